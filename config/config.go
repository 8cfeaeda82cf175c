package config

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Playback tuning values (clock interval, damping, retry counts) are
// configuration rather than hard constants so they can be reloaded at runtime.
type Config struct {
	ServerAddr string

	// Catalog API
	CatalogAPIURL  string
	CatalogTimeout time.Duration

	// Audio engine service
	EngineAPIURL  string
	EngineTimeout time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置（音频镜像源）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// 播放编排调优参数
	Playback PlaybackTuning

	LogPath  string
	LogLevel string
}

// PlaybackTuning 播放编排的可调参数
type PlaybackTuning struct {
	ClockInterval    time.Duration // 进度采样间隔
	DampingThreshold float64       // 进度发布阈值（秒）
	URLTTL           time.Duration // 解析后URL的有效期
	VerifyWindow     time.Duration // 播放后验证窗口
	PreloadCapacity  int           // 预热实例上限
	NextRetries      int           // 下一曲失败重试次数
	PrevRetries      int           // 上一曲失败重试次数
	SyncCadence      time.Duration // 副屏进度推送间隔
	SyncFollowUp     time.Duration // 副屏全量快照补发延迟
	SleepTick        time.Duration // 睡眠定时器检查间隔
}

var (
	mu     sync.RWMutex
	loaded *Config
)

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as time.Duration (e.g. "100ms") or returns a default.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		CatalogAPIURL:  getEnv("CATALOG_API_URL", "http://localhost:3000"),
		CatalogTimeout: getEnvDuration("CATALOG_TIMEOUT", 10*time.Second),

		EngineAPIURL:  getEnv("ENGINE_API_URL", "http://localhost:4000"),
		EngineTimeout: getEnvDuration("ENGINE_TIMEOUT", 5*time.Second),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "echofm"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "echofm"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",

		Playback: loadTuning(),

		LogPath:  getEnv("LOG_PATH", "logs/echofm.log"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	mu.Lock()
	loaded = cfg
	mu.Unlock()
	return cfg
}

// loadTuning 从环境变量读取播放调优参数
func loadTuning() PlaybackTuning {
	return PlaybackTuning{
		ClockInterval:    getEnvDuration("CLOCK_INTERVAL", 100*time.Millisecond),
		DampingThreshold: getEnvFloat("DAMPING_THRESHOLD", 0.3),
		URLTTL:           getEnvDuration("URL_TTL", 30*time.Minute),
		VerifyWindow:     getEnvDuration("VERIFY_WINDOW", 4*time.Second),
		PreloadCapacity:  getEnvInt("PRELOAD_CAPACITY", 2),
		NextRetries:      getEnvInt("NEXT_RETRIES", 3),
		PrevRetries:      getEnvInt("PREV_RETRIES", 2),
		SyncCadence:      getEnvDuration("SYNC_CADENCE", time.Second),
		SyncFollowUp:     getEnvDuration("SYNC_FOLLOWUP", 500*time.Millisecond),
		SleepTick:        getEnvDuration("SLEEP_TICK", time.Second),
	}
}

// Current returns the most recently loaded configuration.
func Current() *Config {
	mu.RLock()
	cfg := loaded
	mu.RUnlock()
	if cfg == nil {
		return Load()
	}
	return cfg
}

// ReloadTuning 重新读取调优参数（由 fsnotify 监听触发）
func ReloadTuning() PlaybackTuning {
	// godotenv 不覆盖已有环境变量，重载时需要整体重读文件
	env, err := godotenv.Read()
	if err == nil {
		for k, v := range env {
			os.Setenv(k, v)
		}
	}
	tuning := loadTuning()

	mu.Lock()
	if loaded != nil {
		loaded.Playback = tuning
	}
	mu.Unlock()
	return tuning
}
