package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"go.uber.org/zap"
)

// PostgresDevicesRepository 设备注册表（PostgreSQL）
type PostgresDevicesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDevicesRepository 创建设备仓库
func NewPostgresDevicesRepository(db *sql.DB, logger *zap.Logger) *PostgresDevicesRepository {
	return &PostgresDevicesRepository{
		db:     db,
		logger: logger,
	}
}

// ListMonitoredDevices 获取所有启用监控的设备
func (r *PostgresDevicesRepository) ListMonitoredDevices(ctx context.Context) ([]models.Device, error) {
	query := `
		SELECT device_id, device_name, address, model, monitoring_enabled
		FROM devices
		WHERE monitoring_enabled = TRUE
		ORDER BY device_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.DeviceID, &d.DeviceName, &d.Address, &d.Model, &d.MonitoringEnabled); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}
