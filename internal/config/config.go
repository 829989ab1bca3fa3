package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matchpulse/matchpulse/internal/platform/logging"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	HTTPAddr       string

	DBURL                   string
	DBDisablePreparedBinary bool

	CORSAllowedOrigins []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration

	PprofEnabled bool
	PprofAddr    string

	UptraceEnabled bool
	UptraceDSN     string

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration

	SportsDataBaseURL               string
	SportsDataAPIKey                string
	SportsDataTimeout               time.Duration
	SportsDataMaxRetries            int
	SportsDataBatchSize             int
	SportsDataInterBatchDelay       time.Duration
	SportsDataCircuitEnabled        bool
	SportsDataCircuitFailureCount   int
	SportsDataCircuitOpenTimeout    time.Duration
	SportsDataCircuitHalfOpenMaxReq int

	FreshTTL        time.Duration
	StaleTTL        time.Duration
	LockTTL         time.Duration
	LockRetryWait   time.Duration
	RefreshTimeout  time.Duration
	SnapshotTTL     time.Duration
	PrematchOddsCap int

	InternalJobToken string
	LogLevel         logging.Level
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	readTimeout, err := getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	writeTimeout, err := getEnvAsDuration("HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return Config{}, err
	}

	pprofEnabled, err := getEnvAsBool("PPROF_ENABLED", false)
	if err != nil {
		return Config{}, err
	}

	uptraceEnabled, err := getEnvAsBool("UPTRACE_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	pyroscopeEnabled, err := getEnvAsBool("PYROSCOPE_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := getEnvAsDuration("PYROSCOPE_UPLOAD_RATE", 15*time.Second)
	if err != nil {
		return Config{}, err
	}

	dbDisablePreparedBinary, err := getEnvAsBool("DB_DISABLE_PREPARED_BINARY", false)
	if err != nil {
		return Config{}, err
	}

	// The provider key has no default on purpose: running without one would
	// silently serve fabricated-empty data.
	sportsDataAPIKey := strings.TrimSpace(getEnv("SPORTSDATA_API_KEY", ""))
	if sportsDataAPIKey == "" {
		return Config{}, fmt.Errorf("SPORTSDATA_API_KEY is required")
	}

	sportsDataTimeout, err := getEnvAsDuration("SPORTSDATA_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	sportsDataMaxRetries, err := getEnvAsInt("SPORTSDATA_MAX_RETRIES", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse SPORTSDATA_MAX_RETRIES: %w", err)
	}
	if sportsDataMaxRetries < 0 {
		return Config{}, fmt.Errorf("SPORTSDATA_MAX_RETRIES must be >= 0")
	}
	sportsDataBatchSize, err := getEnvAsInt("SPORTSDATA_BATCH_SIZE", 20)
	if err != nil {
		return Config{}, fmt.Errorf("parse SPORTSDATA_BATCH_SIZE: %w", err)
	}
	if sportsDataBatchSize < 1 {
		return Config{}, fmt.Errorf("SPORTSDATA_BATCH_SIZE must be >= 1")
	}
	sportsDataInterBatchDelay, err := getEnvAsDuration("SPORTSDATA_INTER_BATCH_DELAY", 250*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	sportsDataCircuitEnabled, err := getEnvAsBool("SPORTSDATA_CIRCUIT_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	sportsDataCircuitFailureCount, err := getEnvAsInt("SPORTSDATA_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse SPORTSDATA_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	sportsDataCircuitOpenTimeout, err := getEnvAsDuration("SPORTSDATA_CIRCUIT_OPEN_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	sportsDataCircuitHalfOpenMaxReq, err := getEnvAsInt("SPORTSDATA_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse SPORTSDATA_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}

	freshTTL, err := getEnvAsDuration("REFRESH_FRESH_TTL", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	staleTTL, err := getEnvAsDuration("REFRESH_STALE_TTL", 60*time.Second)
	if err != nil {
		return Config{}, err
	}
	if staleTTL <= freshTTL {
		return Config{}, fmt.Errorf("REFRESH_STALE_TTL (%s) must be greater than REFRESH_FRESH_TTL (%s)", staleTTL, freshTTL)
	}
	lockTTL, err := getEnvAsDuration("REFRESH_LOCK_TTL", 90*time.Second)
	if err != nil {
		return Config{}, err
	}
	lockRetryWait, err := getEnvAsDuration("REFRESH_LOCK_RETRY_WAIT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	refreshTimeout, err := getEnvAsDuration("REFRESH_TIMEOUT", 45*time.Second)
	if err != nil {
		return Config{}, err
	}
	snapshotTTL, err := getEnvAsDuration("REFRESH_SNAPSHOT_TTL", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	prematchOddsCap, err := getEnvAsInt("REFRESH_PREMATCH_ODDS_CAP", 20)
	if err != nil {
		return Config{}, fmt.Errorf("parse REFRESH_PREMATCH_ODDS_CAP: %w", err)
	}
	if prematchOddsCap < 1 {
		return Config{}, fmt.Errorf("REFRESH_PREMATCH_ODDS_CAP must be >= 1")
	}

	cfg := Config{
		AppEnv:         appEnv,
		ServiceName:    getEnv("SERVICE_NAME", "matchpulse-api"),
		ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),

		DBURL:                   strings.TrimSpace(getEnv("DB_URL", "")),
		DBDisablePreparedBinary: dbDisablePreparedBinary,

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,

		PprofEnabled: pprofEnabled,
		PprofAddr:    getEnv("PPROF_ADDR", "localhost:6060"),

		UptraceEnabled: uptraceEnabled,
		UptraceDSN:     uptraceDSN,

		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAppName:           getEnv("PYROSCOPE_APP_NAME", "matchpulse-api"),
		PyroscopeAuthToken:         getEnv("PYROSCOPE_AUTH_TOKEN", ""),
		PyroscopeBasicAuthUser:     getEnv("PYROSCOPE_BASIC_AUTH_USER", ""),
		PyroscopeBasicAuthPassword: getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""),
		PyroscopeUploadRate:        pyroscopeUploadRate,

		SportsDataBaseURL:               getEnv("SPORTSDATA_BASE_URL", ""),
		SportsDataAPIKey:                sportsDataAPIKey,
		SportsDataTimeout:               sportsDataTimeout,
		SportsDataMaxRetries:            sportsDataMaxRetries,
		SportsDataBatchSize:             sportsDataBatchSize,
		SportsDataInterBatchDelay:       sportsDataInterBatchDelay,
		SportsDataCircuitEnabled:        sportsDataCircuitEnabled,
		SportsDataCircuitFailureCount:   sportsDataCircuitFailureCount,
		SportsDataCircuitOpenTimeout:    sportsDataCircuitOpenTimeout,
		SportsDataCircuitHalfOpenMaxReq: sportsDataCircuitHalfOpenMaxReq,

		FreshTTL:        freshTTL,
		StaleTTL:        staleTTL,
		LockTTL:         lockTTL,
		LockRetryWait:   lockRetryWait,
		RefreshTimeout:  refreshTimeout,
		SnapshotTTL:     snapshotTTL,
		PrematchOddsCap: prematchOddsCap,

		InternalJobToken: strings.TrimSpace(getEnv("INTERNAL_JOB_TOKEN", "")),
		LogLevel:         parseLogLevel(getEnv("LOG_LEVEL", "info")),
	}

	return cfg, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}

	return out, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if out <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			return strings.TrimSpace(parts[1])
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case EnvDev, EnvStage, EnvProd:
		return v, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
