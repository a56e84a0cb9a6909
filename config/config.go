package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern-api"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"fern"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`

	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for chatbot lifecycle events
	KafkaEventTopic string `env:"KAFKA_EVENT_TOPIC" env-default:"chatbot-events"`

	// Workflow engine settings
	// Engine API base URL
	EngineBaseURL string `env:"ENGINE_BASE_URL" env-default:"http://localhost:5678"`
	// Engine API key (static; rotated keys come through the key source)
	EngineAPIKey string `env:"ENGINE_API_KEY" env-default:""`
	// Per-call engine request timeout
	EngineRequestTimeout time.Duration `env:"ENGINE_REQUEST_TIMEOUT" env-default:"10s"`
	// Engine API key cache TTL
	EngineAPIKeyTTL time.Duration `env:"ENGINE_API_KEY_TTL" env-default:"60s"`

	// Provisioning timing
	// Base unit for the progressive activation retry delay
	ActivationRetryBaseDelay time.Duration `env:"ACTIVATION_RETRY_BASE_DELAY" env-default:"2s"`
	// Delay before the first webhook identifier check
	WebhookCheckShortDelay time.Duration `env:"WEBHOOK_CHECK_SHORT_DELAY" env-default:"2s"`
	// Delay before the second webhook identifier check
	WebhookCheckMediumDelay time.Duration `env:"WEBHOOK_CHECK_MEDIUM_DELAY" env-default:"5s"`
	// Delay before the third webhook identifier check
	WebhookCheckLongDelay time.Duration `env:"WEBHOOK_CHECK_LONG_DELAY" env-default:"10s"`
	// Pause between deactivate and reactivate in a level-2 repair
	WebhookRepairCyclePause time.Duration `env:"WEBHOOK_REPAIR_CYCLE_PAUSE" env-default:"2s"`
	// Upper bound on detached compensation after a failed saga
	CompensationTimeout time.Duration `env:"COMPENSATION_TIMEOUT" env-default:"30s"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
}
