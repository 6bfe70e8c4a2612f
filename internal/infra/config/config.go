package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Режимы доставки.
const (
	DeliveryHTTP  = "http"
	DeliveryAMQP  = "amqp"
	DeliveryRedis = "redis"
)

// AppConfig описывает конфигурацию задачи загрузки.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"local"`
	Scope  string `envconfig:"INGEST_SCOPE" default:"seoul"`

	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	} `envconfig:""`

	MyHome struct {
		BaseURL         string        `envconfig:"MYHOME_BASE_URL" default:"https://apis.data.go.kr/1613000/HWSPR02"`
		ServiceKey      string        `envconfig:"MYHOME_SERVICE_KEY"`
		ConnectTimeout  time.Duration `envconfig:"MYHOME_CONNECT_TIMEOUT" default:"3s"`
		ReadTimeout     time.Duration `envconfig:"MYHOME_READ_TIMEOUT" default:"10s"`
		NumOfRows       int           `envconfig:"MYHOME_NUM_OF_ROWS" default:"100"`
		MaxPages        int           `envconfig:"MYHOME_MAX_PAGES" default:"200"`
		BrtcCode        string        `envconfig:"MYHOME_BRTC_CODE" default:"11"`
		RegionPrefixes  []string      `envconfig:"MYHOME_REGION_PREFIXES"`
		CategoryRsdt    string        `envconfig:"MYHOME_CATEGORY_RSDT" default:"rsdt"`
		CategoryLtRsdt  string        `envconfig:"MYHOME_CATEGORY_LTRSDT" default:"ltrsdt"`
		SignguCode      string        `envconfig:"MYHOME_SIGNGU_CODE"`
		HouseTy         string        `envconfig:"MYHOME_HOUSE_TY"`
		YearMtBegin     string        `envconfig:"MYHOME_YEAR_MT_BEGIN"`
		YearMtEnd       string        `envconfig:"MYHOME_YEAR_MT_END"`
		SuplyTy         string        `envconfig:"MYHOME_SUPLY_TY"`
		LfstsTyAt       string        `envconfig:"MYHOME_LFSTS_TY_AT"`
		BassMtRntchrgSe string        `envconfig:"MYHOME_BASS_MT_RNTCHRG_SE"`
		TargetsFile     string        `envconfig:"MYHOME_TARGETS_FILE"`
	} `envconfig:""`

	SH struct {
		NoticeURL      string        `envconfig:"SH_RSS_NOTICE_URL"`
		ConnectTimeout time.Duration `envconfig:"SH_RSS_CONNECT_TIMEOUT" default:"3s"`
		ReadTimeout    time.Duration `envconfig:"SH_RSS_READ_TIMEOUT" default:"10s"`
		Category       string        `envconfig:"SH_CATEGORY" default:"rental"`
		Keyword        string        `envconfig:"SH_KEYWORD" default:"임대"`
		SeedLimit      int           `envconfig:"SH_SEED_LIMIT" default:"5"`
		ReseedOnStale  bool          `envconfig:"SH_RESEED_ON_STALE" default:"false"`
	} `envconfig:""`

	MainServer struct {
		BaseURL    string        `envconfig:"MAIN_SERVER_BASE_URL"`
		IngestPath string        `envconfig:"MAIN_SERVER_INGEST_PATH" default:"/internal/announcements/ingest"`
		Timeout    time.Duration `envconfig:"MAIN_SERVER_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Delivery struct {
		Mode             string `envconfig:"DELIVERY_MODE" default:"http"`
		RabbitURL        string `envconfig:"RABBITMQ_URL"`
		RabbitExchange   string `envconfig:"RABBITMQ_EXCHANGE" default:"announcements"`
		RabbitRoutingKey string `envconfig:"RABBITMQ_ROUTING_KEY" default:"announcements.ingest"`
		RedisKey         string `envconfig:"DELIVERY_REDIS_KEY" default:"seoulhousing:ingest:outbox"`
	} `envconfig:""`

	Snapshot struct {
		TTL                time.Duration `envconfig:"SNAPSHOT_TTL" default:"168h"`
		GzipThresholdBytes int           `envconfig:"SNAPSHOT_GZIP_THRESHOLD_BYTES" default:"4096"`
	} `envconfig:""`

	Retry struct {
		Attempts uint          `envconfig:"RETRY_ATTEMPTS" default:"3"`
		Delay    time.Duration `envconfig:"RETRY_DELAY" default:"300ms"`
		MaxDelay time.Duration `envconfig:"RETRY_MAX_DELAY" default:"2s"`
	} `envconfig:""`

	RunLockTTL time.Duration `envconfig:"RUN_LOCK_TTL" default:"30m"`

	PGDSN string `envconfig:"PG_DSN"`

	Telegram struct {
		Token       string `envconfig:"TG_BOT_TOKEN"`
		AlertChatID int64  `envconfig:"TG_ALERT_CHAT_ID"`
	} `envconfig:""`

	Metrics struct {
		PushgatewayURL string `envconfig:"PUSHGATEWAY_URL"`
		Job            string `envconfig:"METRICS_JOB" default:"housing_ingest"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения и проверяет его.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.Delivery.Mode = strings.ToLower(strings.TrimSpace(cfg.Delivery.Mode))
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate проверяет значения без разумного дефолта.
func (c AppConfig) Validate() error {
	var errs []error
	switch c.AppEnv {
	case "local", "dev", "prod":
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be local, dev or prod, got %q", c.AppEnv))
	}
	if strings.TrimSpace(c.Scope) == "" {
		errs = append(errs, errors.New("INGEST_SCOPE is blank"))
	}
	if strings.TrimSpace(c.MyHome.BaseURL) == "" {
		errs = append(errs, errors.New("MYHOME_BASE_URL is required"))
	}
	if strings.TrimSpace(c.MyHome.ServiceKey) == "" {
		errs = append(errs, errors.New("MYHOME_SERVICE_KEY is required"))
	}
	if c.MyHome.NumOfRows <= 0 {
		errs = append(errs, errors.New("MYHOME_NUM_OF_ROWS must be positive"))
	}
	if strings.TrimSpace(c.SH.NoticeURL) == "" {
		errs = append(errs, errors.New("SH_RSS_NOTICE_URL is required"))
	}
	if c.SH.SeedLimit < 0 {
		errs = append(errs, errors.New("SH_SEED_LIMIT must not be negative"))
	}
	switch c.Delivery.Mode {
	case DeliveryHTTP:
		if strings.TrimSpace(c.MainServer.BaseURL) == "" {
			errs = append(errs, errors.New("MAIN_SERVER_BASE_URL is required for http delivery"))
		}
	case DeliveryAMQP:
		if strings.TrimSpace(c.Delivery.RabbitURL) == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for amqp delivery"))
		}
	case DeliveryRedis:
		if strings.TrimSpace(c.Delivery.RedisKey) == "" {
			errs = append(errs, errors.New("DELIVERY_REDIS_KEY is required for redis delivery"))
		}
	default:
		errs = append(errs, fmt.Errorf("DELIVERY_MODE must be http, amqp or redis, got %q", c.Delivery.Mode))
	}
	if c.Snapshot.TTL <= 0 {
		errs = append(errs, errors.New("SNAPSHOT_TTL must be positive"))
	}
	if c.Retry.Attempts == 0 {
		errs = append(errs, errors.New("RETRY_ATTEMPTS must be at least 1"))
	}
	if c.Telegram.Token != "" && c.Telegram.AlertChatID == 0 {
		errs = append(errs, errors.New("TG_ALERT_CHAT_ID is required when TG_BOT_TOKEN is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
