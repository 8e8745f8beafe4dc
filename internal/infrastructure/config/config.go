package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port               int           `envconfig:"PORT" default:"8080"`
	Env                string        `envconfig:"ENV" default:"development"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"debug"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods []string      `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	CORSAllowedHeaders []string      `envconfig:"CORS_ALLOWED_HEADERS" default:"Origin,Content-Type,Accept,Authorization,X-Request-ID,X-Service-Token"`
	ServiceToken       string        `envconfig:"SERVICE_TOKEN"`
	HeartbeatTTL       time.Duration `envconfig:"HEARTBEAT_TTL" default:"30s"`

	ProbeInterval time.Duration `envconfig:"PROBE_INTERVAL" default:"10s"`
	ProbeTimeout  time.Duration `envconfig:"PROBE_TIMEOUT" default:"2s"`

	ProvisionEndpointTemplate string `envconfig:"PROVISION_ENDPOINT_TEMPLATE" default:"{service}-{ordinal}.local:9000"`

	CallTimeout       time.Duration `envconfig:"CALL_TIMEOUT" default:"5s"`
	DrainGrace        time.Duration `envconfig:"DRAIN_GRACE" default:"30s"`
	ReadyTimeout      time.Duration `envconfig:"READY_TIMEOUT" default:"30s"`
	ReadyPollInterval time.Duration `envconfig:"READY_POLL_INTERVAL" default:"250ms"`

	BreakerFailureThreshold  int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerResetTimeout      time.Duration `envconfig:"BREAKER_RESET_TIMEOUT" default:"30s"`
	BreakerHalfOpenMaxCalls  int           `envconfig:"BREAKER_HALF_OPEN_MAX_CALLS" default:"3"`
	BreakerRequiredSuccesses int           `envconfig:"BREAKER_REQUIRED_SUCCESSES" default:"3"`

	WorkflowMaxConcurrent       int           `envconfig:"WORKFLOW_MAX_CONCURRENT" default:"16"`
	WorkflowStepTimeout         time.Duration `envconfig:"WORKFLOW_STEP_TIMEOUT" default:"10s"`
	WorkflowBaseBackoff         time.Duration `envconfig:"WORKFLOW_BASE_BACKOFF" default:"1s"`
	WorkflowMaxBackoff          time.Duration `envconfig:"WORKFLOW_MAX_BACKOFF" default:"30s"`
	CompensationTimeout         time.Duration `envconfig:"COMPENSATION_TIMEOUT" default:"10s"`
	CompensationBypassBreaker   bool          `envconfig:"COMPENSATION_BYPASS_BREAKER" default:"false"`

	JWTPublicKey  string        `envconfig:"JWT_PUBLIC_KEY"`
	JWTPrivateKey string        `envconfig:"JWT_PRIVATE_KEY"`
	JWTIssuer     string        `envconfig:"JWT_ISSUER" default:"maestro"`
	JWTCallTTL    time.Duration `envconfig:"JWT_CALL_TTL" default:"5m"`

	RedisURL            string `envconfig:"REDIS_URL" default:""`
	RateLimitEnabled    bool   `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
	RateLimitServiceRPM int    `envconfig:"RATE_LIMIT_SERVICE_RPM" default:"600"`
	RateLimitIPRPM      int    `envconfig:"RATE_LIMIT_IP_RPM" default:"60"`

	TraceExporter    string `envconfig:"TRACE_EXPORTER" default:"noop"`
	OTLPEndpoint     string `envconfig:"OTLP_ENDPOINT" default:"localhost:4318"`
	TraceServiceName string `envconfig:"TRACE_SERVICE_NAME" default:"maestro"`

	Version, Commit, BuildDate string
}

func Load(version, commit, buildDate string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.Version, cfg.Commit, cfg.BuildDate = version, commit, buildDate
	return &cfg, nil
}
