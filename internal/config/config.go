package config

import "time"

type HTTPConfig struct {
	Addr              string        `yaml:"addr" env:"BULKFLOW_HTTP_ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"BULKFLOW_HTTP_READ_HEADER_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"BULKFLOW_HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"BULKFLOW_HTTP_SHUTDOWN_TIMEOUT"`
	MaxRequestBytes   int64         `yaml:"max_request_bytes" env:"BULKFLOW_HTTP_MAX_REQUEST_BYTES"`
	CORSOrigins       []string      `yaml:"cors_origins" env:"BULKFLOW_CORS_ORIGINS" envSeparator:","`

	// JWTSecret enables HS256 bearer auth on the bulk transaction API when set.
	// FSPIOP callback routes are never behind it.
	JWTSecret string `yaml:"jwt_secret" env:"BULKFLOW_JWT_SECRET"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"BULKFLOW_RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"BULKFLOW_RATE_LIMIT_BURST"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr" env:"REDIS_ADDR"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db" env:"REDIS_DB"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`
}

type StoreConfig struct {
	// Backend is one of redis, postgres, sqlite, memory.
	Backend   string `yaml:"backend" env:"BULKFLOW_STORE_BACKEND"`
	DSN       string `yaml:"dsn" env:"BULKFLOW_STORE_DSN"`
	KeyPrefix string `yaml:"key_prefix" env:"BULKFLOW_STORE_KEY_PREFIX"`
}

type RocketMQConfig struct {
	NameServers  []string `yaml:"name_servers" env:"ROCKETMQ_NAME_SERVERS" envSeparator:","`
	AccessKey    string   `yaml:"access_key" env:"ROCKETMQ_ACCESS_KEY"`
	SecretKey    string   `yaml:"secret_key" env:"ROCKETMQ_SECRET_KEY"`
	Namespace    string   `yaml:"namespace" env:"ROCKETMQ_NAMESPACE"`
	MaxReconsume int      `yaml:"max_reconsume" env:"ROCKETMQ_MAX_RECONSUME"`
}

type BusConfig struct {
	// Backend is one of redis, rocketmq, memory.
	Backend      string         `yaml:"backend" env:"BULKFLOW_BUS_BACKEND"`
	DomainTopic  string         `yaml:"domain_topic" env:"BULKFLOW_DOMAIN_EVENTS_TOPIC"`
	CommandTopic string         `yaml:"command_topic" env:"BULKFLOW_COMMAND_EVENTS_TOPIC"`
	ConsumerName string         `yaml:"consumer_name" env:"BULKFLOW_CONSUMER_NAME"`
	BlockTimeout time.Duration  `yaml:"block_timeout" env:"BULKFLOW_BUS_BLOCK_TIMEOUT"`
	RocketMQ     RocketMQConfig `yaml:"rocketmq"`

	// FSPIOPConcurrency bounds how many switch round trips the fspiop role
	// keeps in flight. The other roles handle their messages in order.
	FSPIOPConcurrency int `yaml:"fspiop_concurrency" env:"BULKFLOW_FSPIOP_CONCURRENCY"`

	// Redis stream entries a handler asked to redeliver are reclaimed once
	// idle for ClaimMinIdle, checked every ClaimInterval.
	ClaimMinIdle  time.Duration `yaml:"claim_min_idle" env:"BULKFLOW_BUS_CLAIM_MIN_IDLE"`
	ClaimInterval time.Duration `yaml:"claim_interval" env:"BULKFLOW_BUS_CLAIM_INTERVAL"`
}

type WorkflowConfig struct {
	BatchMaxEntries       int           `yaml:"batch_max_entries" env:"BULKFLOW_BATCH_MAX_ENTRIES"`
	ChildWriteConcurrency int           `yaml:"child_write_concurrency" env:"BULKFLOW_CHILD_WRITE_CONCURRENCY"`
	RequestTimeout        time.Duration `yaml:"request_timeout" env:"BULKFLOW_REQUEST_TIMEOUT"`
}

type SwitchConfig struct {
	BaseURL string        `yaml:"base_url" env:"BULKFLOW_SWITCH_BASE_URL"`
	DfspID  string        `yaml:"dfsp_id" env:"BULKFLOW_DFSP_ID"`
	Timeout time.Duration `yaml:"timeout" env:"BULKFLOW_SWITCH_TIMEOUT"`
}

type RolesConfig struct {
	CommandHandler bool `yaml:"command_handler" env:"BULKFLOW_ROLE_COMMAND_HANDLER"`
	DomainHandler  bool `yaml:"domain_handler" env:"BULKFLOW_ROLE_DOMAIN_HANDLER"`
	FSPIOPHandler  bool `yaml:"fspiop_handler" env:"BULKFLOW_ROLE_FSPIOP_HANDLER"`
	API            bool `yaml:"api" env:"BULKFLOW_ROLE_API"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" env:"METRICS_ENABLED"`
	MetricsAddr    string `yaml:"metrics_addr" env:"METRICS_ADDR"`

	OtelEnabled     bool              `yaml:"otel_enabled" env:"OTEL_ENABLED"`
	OtelEndpoint    string            `yaml:"otel_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelHeaders     map[string]string `yaml:"otel_headers" env:"OTEL_EXPORTER_OTLP_HEADERS" envSeparator:"," envKeyValSeparator:"="`
	OtelInsecure    bool              `yaml:"otel_insecure" env:"OTEL_EXPORTER_OTLP_INSECURE"`
	OtelSampleRatio float64           `yaml:"otel_sample_ratio" env:"OTEL_SAMPLER_RATIO"`
}

type Config struct {
	Env         string `yaml:"env" env:"LOG_MODE"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	Version     string `yaml:"version" env:"SERVICE_VERSION"`

	HTTP          HTTPConfig          `yaml:"http"`
	Redis         RedisConfig         `yaml:"redis"`
	Store         StoreConfig         `yaml:"store"`
	Bus           BusConfig           `yaml:"bus"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Switch        SwitchConfig        `yaml:"switch"`
	Roles         RolesConfig         `yaml:"roles"`
	Observability ObservabilityConfig `yaml:"observability"`
}
