// Package config loads process configuration from config.yaml, .env and the environment.
package config

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	AMQP          AMQPConfig
	StatFin       StatFinConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
	Core          *CoreConfig
}

type AppConfig struct {
	Name     string
	Env      string
	HTTPAddr string
	NodeID   int64
}

func (c AppConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AMQPConfig struct {
	URL      string
	Queue    string
	Prefetch int
}

// IndexInput names one StatFin housing-price table and the measure column to import.
type IndexInput struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
	Code string `mapstructure:"code"`
}

type StatFinConfig struct {
	CostOfLivingURL     string
	CostOfLiving1914URL string
	CostOfLiving1938URL string
	PriceIndexes        []IndexInput
	RequestTimeout      time.Duration
}

type SchedulerConfig struct {
	Enabled                   bool
	TickInterval              time.Duration
	IndexImportInterval       time.Duration
	EqualizationInterval      time.Duration
	InvoiceGenerationInterval time.Duration
	ReportInterval            time.Duration
	DefaultJobTimeout         time.Duration
	EqualizationTimeout       time.Duration
	ReportTimeout             time.Duration
	LockTTL                   time.Duration
	// DecrementRetentionDays bounds how long adjustment decrements stay revertable.
	DecrementRetentionDays int
}

type ObservabilityConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// CoreConfig carries the switches the rent core reads at runtime. Reloadable keys are
// guarded by a lock because viper may rewrite them from the file watcher.
type CoreConfig struct {
	mu                   sync.RWMutex
	dueDateOffsetDays    int
	fileScanEnabled      bool
	FileScanServiceURL   string
	PrivateFilesLocation string
}

func NewCoreConfig(dueDateOffsetDays int, fileScanEnabled bool, scanURL, filesLocation string) *CoreConfig {
	return &CoreConfig{
		dueDateOffsetDays:    dueDateOffsetDays,
		fileScanEnabled:      fileScanEnabled,
		FileScanServiceURL:   scanURL,
		PrivateFilesLocation: filesLocation,
	}
}

// DueDateOffsetDays is MVJ_DUE_DATE_OFFSET_DAYS.
func (c *CoreConfig) DueDateOffsetDays() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dueDateOffsetDays
}

// FileScanEnabled is FLAG_FILE_SCAN.
func (c *CoreConfig) FileScanEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fileScanEnabled
}

func (c *CoreConfig) update(dueDateOffsetDays int, fileScanEnabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dueDateOffsetDays = dueDateOffsetDays
	c.fileScanEnabled = fileScanEnabled
}

var defaultPriceIndexes = []IndexInput{
	{
		Name: "Vanhojen osakeasuntojen hintaindeksi (2020=100)",
		URL:  "https://pxdata.stat.fi:443/PxWeb/api/v1/fi/StatFin/ashi/statfin_ashi_pxt_13mx.px",
		Code: "ketj_P_QA_T",
	},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "mvj")
	v.SetDefault("app.env", "production")
	v.SetDefault("app.http_addr", ":8080")
	v.SetDefault("app.node_id", 1)

	v.SetDefault("database.dsn", "host=localhost user=mvj password=mvj dbname=mvj port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.queue", "mvj.jobs")
	v.SetDefault("amqp.prefetch", 1)

	v.SetDefault("statfin.cost_of_living_url", "https://pxdata.stat.fi:443/PxWeb/api/v1/fi/StatFin/khi/statfin_khi_pxt_11xu.px")
	v.SetDefault("statfin.cost_of_living_1914_url", "https://pxdata.stat.fi:443/PxWeb/api/v1/fi/StatFin/khi/statfin_khi_pxt_11xs.px")
	v.SetDefault("statfin.cost_of_living_1938_url", "https://pxdata.stat.fi:443/PxWeb/api/v1/fi/StatFin/khi/statfin_khi_pxt_11xt.px")
	v.SetDefault("statfin.request_timeout", 30*time.Second)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick_interval", time.Minute)
	v.SetDefault("scheduler.index_import_interval", 24*time.Hour)
	v.SetDefault("scheduler.equalization_interval", 24*time.Hour)
	v.SetDefault("scheduler.invoice_generation_interval", 24*time.Hour)
	v.SetDefault("scheduler.report_interval", 7*24*time.Hour)
	v.SetDefault("scheduler.default_job_timeout", 10*time.Minute)
	v.SetDefault("scheduler.equalization_timeout", 30*time.Minute)
	v.SetDefault("scheduler.report_timeout", time.Hour)
	v.SetDefault("scheduler.lock_ttl", 2*time.Hour)
	v.SetDefault("scheduler.decrement_retention_days", 400)

	v.SetDefault("observability.service_name", "mvj")

	v.SetDefault("core.due_date_offset_days", 17)
	v.SetDefault("core.file_scan_enabled", false)
	v.SetDefault("core.file_scan_service_url", "")
	v.SetDefault("core.private_files_location", "/var/lib/mvj/private")
}

func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("core.due_date_offset_days", "MVJ_DUE_DATE_OFFSET_DAYS")
	_ = v.BindEnv("core.file_scan_enabled", "FLAG_FILE_SCAN")
	_ = v.BindEnv("core.file_scan_service_url", "FILE_SCAN_SERVICE_URL")
	_ = v.BindEnv("core.private_files_location", "PRIVATE_FILES_LOCATION")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
}

// Load reads configuration. A missing config file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()
	v, err := newViper()
	if err != nil {
		return Config{}, err
	}
	return fromViper(v)
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/mvj")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		App: AppConfig{
			Name:     v.GetString("app.name"),
			Env:      v.GetString("app.env"),
			HTTPAddr: v.GetString("app.http_addr"),
			NodeID:   v.GetInt64("app.node_id"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		AMQP: AMQPConfig{
			URL:      v.GetString("amqp.url"),
			Queue:    v.GetString("amqp.queue"),
			Prefetch: v.GetInt("amqp.prefetch"),
		},
		StatFin: StatFinConfig{
			CostOfLivingURL:     v.GetString("statfin.cost_of_living_url"),
			CostOfLiving1914URL: v.GetString("statfin.cost_of_living_1914_url"),
			CostOfLiving1938URL: v.GetString("statfin.cost_of_living_1938_url"),
			RequestTimeout:      v.GetDuration("statfin.request_timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:                   v.GetBool("scheduler.enabled"),
			TickInterval:              v.GetDuration("scheduler.tick_interval"),
			IndexImportInterval:       v.GetDuration("scheduler.index_import_interval"),
			EqualizationInterval:      v.GetDuration("scheduler.equalization_interval"),
			InvoiceGenerationInterval: v.GetDuration("scheduler.invoice_generation_interval"),
			ReportInterval:            v.GetDuration("scheduler.report_interval"),
			DefaultJobTimeout:         v.GetDuration("scheduler.default_job_timeout"),
			EqualizationTimeout:       v.GetDuration("scheduler.equalization_timeout"),
			ReportTimeout:             v.GetDuration("scheduler.report_timeout"),
			LockTTL:                   v.GetDuration("scheduler.lock_ttl"),
			DecrementRetentionDays:    v.GetInt("scheduler.decrement_retention_days"),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: v.GetString("observability.otlp_endpoint"),
			ServiceName:  v.GetString("observability.service_name"),
		},
		Core: NewCoreConfig(
			v.GetInt("core.due_date_offset_days"),
			v.GetBool("core.file_scan_enabled"),
			v.GetString("core.file_scan_service_url"),
			v.GetString("core.private_files_location"),
		),
	}

	if err := v.UnmarshalKey("statfin.price_indexes", &cfg.StatFin.PriceIndexes); err != nil {
		return Config{}, err
	}
	if len(cfg.StatFin.PriceIndexes) == 0 {
		cfg.StatFin.PriceIndexes = append([]IndexInput(nil), defaultPriceIndexes...)
	}

	return cfg, nil
}

// Watch reloads the reloadable CoreConfig keys whenever the config file changes.
func Watch(v *viper.Viper, core *CoreConfig, onChange func(fsnotify.Event)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		core.update(v.GetInt("core.due_date_offset_days"), v.GetBool("core.file_scan_enabled"))
		if onChange != nil {
			onChange(e)
		}
	})
	v.WatchConfig()
}
