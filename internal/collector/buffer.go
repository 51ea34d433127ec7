package collector

import (
	"sort"
	"sync"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
)

// RecentBuffer 最近原始样本缓冲（按设备、时间升序）
type RecentBuffer struct {
	mu        sync.RWMutex
	retention time.Duration
	samples   map[string][]models.RawTelemetrySample
}

// NewRecentBuffer 创建缓冲
func NewRecentBuffer(retention time.Duration) *RecentBuffer {
	return &RecentBuffer{
		retention: retention,
		samples:   make(map[string][]models.RawTelemetrySample),
	}
}

// Append 追加样本，保持设备内时间顺序
func (b *RecentBuffer) Append(s models.RawTelemetrySample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.samples[s.DeviceID]
	n := len(list)
	if n == 0 || !s.Timestamp.Before(list[n-1].Timestamp) {
		b.samples[s.DeviceID] = append(list, s)
		return
	}
	i := sort.Search(n, func(i int) bool { return list[i].Timestamp.After(s.Timestamp) })
	list = append(list, models.RawTelemetrySample{})
	copy(list[i+1:], list[i:])
	list[i] = s
	b.samples[s.DeviceID] = list
}

// Cleanup 删除早于 now-retention 的样本，返回删除数量（可重复调用）
func (b *RecentBuffer) Cleanup(now time.Time) int {
	cutoff := now.Add(-b.retention)

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for deviceID, list := range b.samples {
		i := sort.Search(len(list), func(i int) bool { return !list[i].Timestamp.Before(cutoff) })
		if i == 0 {
			continue
		}
		removed += i
		if i == len(list) {
			delete(b.samples, deviceID)
			continue
		}
		b.samples[deviceID] = append([]models.RawTelemetrySample(nil), list[i:]...)
	}
	return removed
}

// Window 返回 [from, to) 内的样本副本，按 device_id、时间排序
func (b *RecentBuffer) Window(from, to time.Time) []models.RawTelemetrySample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	deviceIDs := make([]string, 0, len(b.samples))
	for id := range b.samples {
		deviceIDs = append(deviceIDs, id)
	}
	sort.Strings(deviceIDs)

	var out []models.RawTelemetrySample
	for _, id := range deviceIDs {
		for _, s := range b.samples[id] {
			if !s.Timestamp.Before(from) && s.Timestamp.Before(to) {
				out = append(out, s)
			}
		}
	}
	return out
}

// Len 当前缓冲的样本总数
func (b *RecentBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, list := range b.samples {
		n += len(list)
	}
	return n
}
