package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines the default backends
	Tier Tier `json:"tier" envconfig:"HARRIER_TIER"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"event_bus"`
	Alerts     AlertConfig      `json:"alerts"`
	Neo4j      Neo4jConfig      `json:"neo4j"`

	// Detection pipeline
	Scoring ScoringConfig `json:"scoring"`
	Anomaly AnomalyConfig `json:"anomaly"`
	Graph   GraphConfig   `json:"graph"`
	Dataset DatasetConfig `json:"dataset"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" envconfig:"HARRIER_HOST"`
	Port         int    `json:"port" envconfig:"HARRIER_PORT"`
	ReadTimeout  int    `json:"read_timeout" envconfig:"HARRIER_READ_TIMEOUT"`   // seconds
	WriteTimeout int    `json:"write_timeout" envconfig:"HARRIER_WRITE_TIMEOUT"` // seconds
	MaxUploadMB  int64  `json:"max_upload_mb" envconfig:"HARRIER_MAX_UPLOAD_MB"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" envconfig:"HARRIER_LOG_LEVEL"`   // debug, info, warn, error
	Format string `json:"format" envconfig:"HARRIER_LOG_FORMAT"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"HARRIER_TRACING_ENABLED"`
	ServiceName string `json:"service_name" envconfig:"HARRIER_TRACING_SERVICE_NAME"`
}

// ScoringConfig tunes the rule engine and analysis output.
type ScoringConfig struct {
	// BalanceEpsilon is the tolerance of the balance-inconsistency rule.
	// Zero means exact floating point comparison.
	BalanceEpsilon float64 `json:"balance_epsilon" envconfig:"HARRIER_SCORING_BALANCE_EPSILON"`

	// AnalyzeLimit caps the rows returned by an analysis.
	AnalyzeLimit int `json:"analyze_limit" envconfig:"HARRIER_SCORING_ANALYZE_LIMIT"`

	// TopFactors is the number of feature contributions appended to explanations.
	TopFactors int `json:"top_factors" envconfig:"HARRIER_SCORING_TOP_FACTORS"`
}

// AnomalyConfig configures the anomaly scorer ensemble.
type AnomalyConfig struct {
	// Detectors lists the scorers averaged together: "iforest", "deviation".
	Detectors  []string `json:"detectors" envconfig:"HARRIER_ANOMALY_DETECTORS"`
	Trees      int      `json:"trees" envconfig:"HARRIER_ANOMALY_TREES"`
	SampleSize int      `json:"sample_size" envconfig:"HARRIER_ANOMALY_SAMPLE_SIZE"`
	Seed       int64    `json:"seed" envconfig:"HARRIER_ANOMALY_SEED"`

	// Quantile of training reconstruction error used as the deviation threshold.
	ThresholdQuantile float64 `json:"threshold_quantile" envconfig:"HARRIER_ANOMALY_THRESHOLD_QUANTILE"`
}

// Edge scoring modes.
const (
	EdgeScoringFraudScore = "fraud_score"
	EdgeScoringBlended    = "blended"
)

// GraphConfig configures the ego graph builder.
type GraphConfig struct {
	EdgeScoring string        `json:"edge_scoring" envconfig:"HARRIER_GRAPH_EDGE_SCORING"`
	CacheTTL    time.Duration `json:"cache_ttl" envconfig:"HARRIER_GRAPH_CACHE_TTL"`
}

// DatasetConfig points at a transaction table loaded at startup.
type DatasetConfig struct {
	Path string `json:"path" envconfig:"HARRIER_DATASET_PATH"`
}

// AlertConfig configures the Kafka alert stream for suspicious transactions.
type AlertConfig struct {
	Brokers []string `json:"brokers" envconfig:"HARRIER_KAFKA_BROKERS"`
	Topic   string   `json:"topic" envconfig:"HARRIER_KAFKA_TOPIC"`
}

// Neo4jConfig configures the optional graph database source.
type Neo4jConfig struct {
	URI      string `json:"uri" envconfig:"HARRIER_NEO4J_URI"`
	Username string `json:"username" envconfig:"HARRIER_NEO4J_USERNAME"`
	Password string `json:"-" envconfig:"HARRIER_NEO4J_PASSWORD"`
	Database string `json:"database" envconfig:"HARRIER_NEO4J_DATABASE"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 120,
			MaxUploadMB:  256,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Alerts: AlertConfig{
			Topic: "harrier-suspicious-transactions",
		},
		Scoring: ScoringConfig{
			BalanceEpsilon: 0,
			AnalyzeLimit:   1000,
			TopFactors:     3,
		},
		Anomaly: AnomalyConfig{
			Detectors:         []string{"iforest", "deviation"},
			Trees:             100,
			SampleSize:        256,
			Seed:              42,
			ThresholdQuantile: 0.95,
		},
		Graph: GraphConfig{
			EdgeScoring: EdgeScoringFraudScore,
			CacheTTL:    5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
