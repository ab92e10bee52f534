package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	Auth  AuthConfig
	Call  CallConfig
	Rates RateConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// CallConfig controls call lifecycle timing.
type CallConfig struct {
	// RingTimeout is how long a session may stay ringing before it times out.
	RingTimeout time.Duration

	// SweepInterval is how often the sweeper scans active sessions.
	SweepInterval time.Duration

	// StaleAfter is the staleness bound: active sessions older than this are
	// force-terminated by the sweeper (safety net for lost events).
	StaleAfter time.Duration

	// TerminalGrace is how long terminal sessions are kept in memory so late
	// signaling frames resolve to a known session instead of a miss.
	TerminalGrace time.Duration

	// WSSendBuffer is the per-connection outbound frame buffer.
	WSSendBuffer int

	// AvailabilityTTL bounds how long a callee availability flag lives
	// without being refreshed.
	AvailabilityTTL time.Duration
}

// RateConfig holds per-minute billing rates.
// Caller-side rates are whole coins per started minute. Callee-side earning
// rates are in hundredths of a coin per minute, so fractional rates
// (e.g., 2.5 coins/min) stay integer arithmetic.
type RateConfig struct {
	VoiceCostPerMin int64
	VideoCostPerMin int64

	VoiceEarnPerMinCenti int64
	VideoEarnPerMinCenti int64
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Call.RingTimeout = mustDuration("CALL_RING_TIMEOUT")
	c.Call.SweepInterval = mustDuration("CALL_SWEEP_INTERVAL")
	c.Call.StaleAfter = mustDuration("CALL_STALE_AFTER")
	c.Call.TerminalGrace = mustDuration("CALL_TERMINAL_GRACE")
	c.Call.WSSendBuffer = optInt("WS_SEND_BUFFER")
	c.Call.AvailabilityTTL = mustDuration("AVAILABILITY_TTL")

	c.Rates.VoiceCostPerMin = int64(optInt("RATE_VOICE_COST_PER_MIN"))
	c.Rates.VideoCostPerMin = int64(optInt("RATE_VIDEO_COST_PER_MIN"))
	c.Rates.VoiceEarnPerMinCenti = int64(optInt("RATE_VOICE_EARN_PER_MIN_CENTI"))
	c.Rates.VideoEarnPerMinCenti = int64(optInt("RATE_VIDEO_EARN_PER_MIN_CENTI"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Call.RingTimeout <= 0 {
		c.Call.RingTimeout = 30 * time.Second
	}
	if c.Call.SweepInterval <= 0 {
		c.Call.SweepInterval = 60 * time.Second
	}
	if c.Call.StaleAfter <= 0 {
		c.Call.StaleAfter = 5 * time.Minute
	}
	if c.Call.TerminalGrace <= 0 {
		c.Call.TerminalGrace = 2 * time.Minute
	}
	if c.Call.WSSendBuffer <= 0 {
		c.Call.WSSendBuffer = 32
	}
	if c.Call.AvailabilityTTL <= 0 {
		c.Call.AvailabilityTTL = time.Hour
	}
	if c.Call.StaleAfter <= c.Call.RingTimeout {
		errs = append(errs, errors.New("CALL_STALE_AFTER must be greater than CALL_RING_TIMEOUT"))
	}

	// Rates default to the reference pricing.
	if c.Rates.VoiceCostPerMin <= 0 {
		c.Rates.VoiceCostPerMin = 5
	}
	if c.Rates.VideoCostPerMin <= 0 {
		c.Rates.VideoCostPerMin = 10
	}
	if c.Rates.VoiceEarnPerMinCenti <= 0 {
		c.Rates.VoiceEarnPerMinCenti = 250
	}
	if c.Rates.VideoEarnPerMinCenti <= 0 {
		c.Rates.VideoEarnPerMinCenti = 500
	}
	if c.Rates.VoiceEarnPerMinCenti > c.Rates.VoiceCostPerMin*100 {
		errs = append(errs, errors.New("voice earn rate must not exceed voice cost rate"))
	}
	if c.Rates.VideoEarnPerMinCenti > c.Rates.VideoCostPerMin*100 {
		errs = append(errs, errors.New("video earn rate must not exceed video cost rate"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// optInt reads an optional integer env var; 0 means "use default".
func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
