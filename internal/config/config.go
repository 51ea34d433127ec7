package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（为空 Broker 表示不启用 MQTT 通知）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte

	EventsTopic string // 设备维护事件订阅主题（结果跟踪）
}

// Config 维护预测流水线配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 遥测采集
	Collector struct {
		Interval  time.Duration // 采集周期
		Workers   int           // 并发采集的设备数上限
		Timeout   time.Duration // 单设备采集超时
		Retention time.Duration // 原始样本保留窗口
		SourceURL string        // 设备网关地址
	}

	// 遥测清洗
	Cleaner struct {
		Window          time.Duration // 聚合时间窗口
		ExpectedSamples int           // 每个窗口期望的样本数
		MinTemperature  float64       // 温度合理下限（°C）
		MaxTemperature  float64       // 温度合理上限（°C）
	}

	// 维护预测
	Predictor struct {
		Horizon        time.Duration // 预测时间范围
		HistoryWindows int           // 参与评估的最近聚合窗口数
		NotifySeverity string        // 达到该严重级别才通知
		Interval       time.Duration // 全量预测周期
		CacheTTL       time.Duration // 最近预测缓存 TTL
	}

	// 反馈
	Feedback struct {
		HighQualityCommentLength int           // High 质量评论的最小长度（严格大于）
		RecentWindow             time.Duration // "最近反馈"窗口
		ResolveInterval          time.Duration // 结果解析周期
	}

	// 重新训练
	Retrainer struct {
		MinTrainingRecords int           // 最少训练记录数
		Interval           time.Duration // 定时重新训练周期（0 表示只按需）
		LockTTL            time.Duration // 分布式锁 TTL
	}

	// 通知
	Notify struct {
		WebhookURL string
		MQTTTopic  string
		Stream     string
		StreamMax  int64
	}

	HTTP struct {
		Addr string // /metrics 与 /healthz 监听地址
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（.env 文件可选）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "impresoras")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "maintenance-pipeline")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))
	cfg.MQTT.EventsTopic = getEnv("MQTT_EVENTS_TOPIC", "printers/+/maintenance-events")

	cfg.Collector.Interval = getEnvDuration("COLLECTOR_INTERVAL", 5*time.Minute)
	cfg.Collector.Workers = getEnvInt("COLLECTOR_WORKERS", 8)
	cfg.Collector.Timeout = getEnvDuration("COLLECTOR_TIMEOUT", 10*time.Second)
	cfg.Collector.Retention = getEnvDuration("COLLECTOR_RETENTION", time.Hour)
	cfg.Collector.SourceURL = getEnv("TELEMETRY_SOURCE_URL", "http://localhost:8081")

	cfg.Cleaner.Window = getEnvDuration("CLEANER_WINDOW", 15*time.Minute)
	cfg.Cleaner.ExpectedSamples = getEnvInt("CLEANER_EXPECTED_SAMPLES", 3)
	cfg.Cleaner.MinTemperature = getEnvFloat("CLEANER_MIN_TEMPERATURE", -20)
	cfg.Cleaner.MaxTemperature = getEnvFloat("CLEANER_MAX_TEMPERATURE", 120)

	cfg.Predictor.Horizon = getEnvDuration("PREDICTOR_HORIZON", 30*24*time.Hour)
	cfg.Predictor.HistoryWindows = getEnvInt("PREDICTOR_HISTORY_WINDOWS", 3)
	cfg.Predictor.NotifySeverity = getEnv("PREDICTOR_NOTIFY_SEVERITY", "High")
	cfg.Predictor.Interval = getEnvDuration("PREDICTOR_INTERVAL", 15*time.Minute)
	cfg.Predictor.CacheTTL = getEnvDuration("PREDICTOR_CACHE_TTL", 15*time.Minute)

	cfg.Feedback.HighQualityCommentLength = getEnvInt("FEEDBACK_HIGH_QUALITY_LENGTH", 40)
	cfg.Feedback.RecentWindow = getEnvDuration("FEEDBACK_RECENT_WINDOW", 24*time.Hour)
	cfg.Feedback.ResolveInterval = getEnvDuration("FEEDBACK_RESOLVE_INTERVAL", time.Hour)

	cfg.Retrainer.MinTrainingRecords = getEnvInt("RETRAIN_MIN_RECORDS", 50)
	cfg.Retrainer.Interval = getEnvDuration("RETRAIN_INTERVAL", 24*time.Hour)
	cfg.Retrainer.LockTTL = getEnvDuration("RETRAIN_LOCK_TTL", 30*time.Minute)

	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")
	cfg.Notify.MQTTTopic = getEnv("NOTIFY_MQTT_TOPIC", "maintenance/alerts")
	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "maintenance:predictions")
	cfg.Notify.StreamMax = int64(getEnvInt("NOTIFY_STREAM_MAXLEN", 10000))

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":9102")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	var problems []string

	if c.Collector.Interval <= 0 {
		problems = append(problems, "COLLECTOR_INTERVAL must be positive")
	}
	if c.Collector.Workers < 1 || c.Collector.Workers > 256 {
		problems = append(problems, "COLLECTOR_WORKERS must be within [1, 256]")
	}
	if c.Collector.Timeout <= 0 {
		problems = append(problems, "COLLECTOR_TIMEOUT must be positive")
	}
	if c.Collector.Retention < c.Cleaner.Window {
		problems = append(problems, "COLLECTOR_RETENTION must cover at least one CLEANER_WINDOW")
	}
	if c.Cleaner.Window <= 0 {
		problems = append(problems, "CLEANER_WINDOW must be positive")
	}
	if c.Cleaner.ExpectedSamples < 1 {
		problems = append(problems, "CLEANER_EXPECTED_SAMPLES must be at least 1")
	}
	if c.Cleaner.MinTemperature >= c.Cleaner.MaxTemperature {
		problems = append(problems, "CLEANER_MIN_TEMPERATURE must be below CLEANER_MAX_TEMPERATURE")
	}
	if c.Predictor.Horizon < 24*time.Hour {
		problems = append(problems, "PREDICTOR_HORIZON must be at least one day")
	}
	if c.Predictor.HistoryWindows < 1 {
		problems = append(problems, "PREDICTOR_HISTORY_WINDOWS must be at least 1")
	}
	switch c.Predictor.NotifySeverity {
	case "Low", "Medium", "High", "Critical":
	default:
		problems = append(problems, "PREDICTOR_NOTIFY_SEVERITY must be one of Low, Medium, High, Critical")
	}
	if c.Feedback.HighQualityCommentLength < 1 {
		problems = append(problems, "FEEDBACK_HIGH_QUALITY_LENGTH must be at least 1")
	}
	if c.Retrainer.MinTrainingRecords < 1 {
		problems = append(problems, "RETRAIN_MIN_RECORDS must be at least 1")
	}
	if c.Retrainer.LockTTL <= 0 {
		problems = append(problems, "RETRAIN_LOCK_TTL must be positive")
	}
	if c.MQTT.QoS > 2 {
		problems = append(problems, "MQTT_QOS must be 0, 1 or 2")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

// getEnvDuration 支持 "90s"、"15m" 形式，纯数字按秒处理
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
