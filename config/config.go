package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Logger    `mapstructure:"logger"`
	DB        Database  `mapstructure:"database"`
	API       API       `mapstructure:"api"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Worker    Worker    `mapstructure:"worker"`
	Cache     Cache     `mapstructure:"cache"`
	Alert     Alert     `mapstructure:"alert"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// DSN returns the connection string. An explicit URL (JOB_SCHEDULER_DB_URL)
// wins over the individual host settings.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode)
}

type Scheduler struct {
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	DispatchLockDuration   time.Duration `mapstructure:"dispatch_lock_duration"`
	TimeoutThreshold       time.Duration `mapstructure:"timeout_threshold"`
	TimeoutSweepInterval   time.Duration `mapstructure:"timeout_sweep_interval"`
	WorkerOfflineThreshold time.Duration `mapstructure:"worker_offline_threshold"`
	ReaperInterval         time.Duration `mapstructure:"reaper_interval"`
	CleanupInterval        time.Duration `mapstructure:"cleanup_interval"`
	CleanupRetentionDays   int           `mapstructure:"cleanup_retention_days"`
	MaxRetryAttempts       int           `mapstructure:"max_retry_attempts"`
	RetryFailedDispatches  bool          `mapstructure:"retry_failed_dispatches"`
	MaxConsecutiveErrors   int           `mapstructure:"max_consecutive_errors"`
}

type Worker struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	MaxPollInterval      time.Duration `mapstructure:"max_poll_interval"`
	BackoffFactor        float64       `mapstructure:"backoff_factor"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	JobTimeout           time.Duration `mapstructure:"job_timeout"`
	ScriptRoot           string        `mapstructure:"script_root"`
	MaxOutputBytes       int           `mapstructure:"max_output_bytes"`
	ShutdownGracePeriod  time.Duration `mapstructure:"shutdown_grace_period"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
}

type API struct {
	Port              int           `mapstructure:"port"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	RequestBurst      int           `mapstructure:"request_burst"`
	ViewCacheTTL      time.Duration `mapstructure:"view_cache_ttl"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type Alert struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func setDefaults() {
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.name", "job_scheduler")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_idle_conns", 4)
	viper.SetDefault("database.max_open_conns", 16)
	viper.SetDefault("database.log_level", "Warn")

	viper.SetDefault("scheduler.poll_interval", 10*time.Second)
	viper.SetDefault("scheduler.dispatch_lock_duration", 300*time.Second)
	viper.SetDefault("scheduler.timeout_threshold", 600*time.Second)
	viper.SetDefault("scheduler.timeout_sweep_interval", 60*time.Second)
	viper.SetDefault("scheduler.worker_offline_threshold", 180*time.Second)
	viper.SetDefault("scheduler.reaper_interval", 100*time.Second)
	viper.SetDefault("scheduler.cleanup_interval", time.Hour)
	viper.SetDefault("scheduler.cleanup_retention_days", 30)
	viper.SetDefault("scheduler.max_retry_attempts", 3)
	viper.SetDefault("scheduler.retry_failed_dispatches", true)
	viper.SetDefault("scheduler.max_consecutive_errors", 5)

	viper.SetDefault("worker.poll_interval", 5*time.Second)
	viper.SetDefault("worker.max_poll_interval", 60*time.Second)
	viper.SetDefault("worker.backoff_factor", 1.5)
	viper.SetDefault("worker.heartbeat_interval", 30*time.Second)
	viper.SetDefault("worker.job_timeout", 600*time.Second)
	viper.SetDefault("worker.script_root", "scripts")
	viper.SetDefault("worker.max_output_bytes", 1<<20)
	viper.SetDefault("worker.shutdown_grace_period", 30*time.Second)
	viper.SetDefault("worker.max_consecutive_errors", 5)

	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.requests_per_second", 10)
	viper.SetDefault("api.request_burst", 30)
	viper.SetDefault("api.view_cache_ttl", 3*time.Second)

	viper.SetDefault("cache.default_expiration", 5*time.Minute)
	viper.SetDefault("cache.cleanup_interval", 10*time.Minute)

	viper.SetDefault("alert.timeout", 10*time.Second)
}

func Load() (*Config, error) {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	// The canonical single connection string shared by all three processes.
	if url := os.Getenv("JOB_SCHEDULER_DB_URL"); url != "" {
		viper.Set("database.url", url)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateWorker checks the settings the worker refuses to start without.
func (c *Config) ValidateWorker() error {
	if c.Worker.ScriptRoot == "" {
		return fmt.Errorf("worker.script_root is required")
	}
	info, err := os.Stat(c.Worker.ScriptRoot)
	if err != nil {
		return fmt.Errorf("worker.script_root %q is not accessible: %w", c.Worker.ScriptRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("worker.script_root %q is not a directory", c.Worker.ScriptRoot)
	}
	if c.Worker.BackoffFactor < 1 {
		return fmt.Errorf("worker.backoff_factor must be >= 1")
	}
	if c.Worker.PollInterval <= 0 || c.Worker.MaxPollInterval < c.Worker.PollInterval {
		return fmt.Errorf("worker poll intervals are inconsistent")
	}
	return nil
}

// ValidateScheduler checks the settings the scheduler refuses to start without.
func (c *Config) ValidateScheduler() error {
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be positive")
	}
	if c.Scheduler.DispatchLockDuration <= 0 {
		return fmt.Errorf("scheduler.dispatch_lock_duration must be positive")
	}
	if c.Scheduler.MaxRetryAttempts < 0 {
		return fmt.Errorf("scheduler.max_retry_attempts must not be negative")
	}
	return nil
}
