package repository

import (
	"context"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
)

// DevicesRepository 设备注册表
type DevicesRepository interface {
	// ListMonitoredDevices 返回 monitoring_enabled = TRUE 的设备（按 device_id 排序）
	ListMonitoredDevices(ctx context.Context) ([]models.Device, error)
}
