package config // package config loads application configuration from environment variables

import (
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // durations for timeouts and TTLs
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Optional integrations (MySQL, RabbitMQ, admin
// login) are switched off when their key variables are empty, so the service
// can run with nothing but a port.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address; empty disables MySQL
	DBPort         string // database port number
	DBName         string // database name
	AMQPURL        string // broker URL for access events; empty disables publishing
	AccessQueue    string // queue that receives access events
	AccessBuffer   int    // in-memory buffer in front of the publisher
	ConsumerOn     bool   // run the access-event consumer inside this process
	AccessLogPath  string // file the consumer appends to
	JWTSecret      string // secret used to sign admin JWTs; empty disables admin routes
	AccessTTLMin   int    // access token time‑to‑live in minutes
	AdminEmail     string // login name of the admin account
	AdminPassHash  string // bcrypt hash of the admin password
	BcryptCost     int    // bcrypt cost for password hashing
	TrustProxy     bool   // take the client IP from X-Forwarded-For (only behind a trusted proxy)
	ShutdownWait   time.Duration
}

// Load reads configuration values from environment variables and returns a
// Config.  Every variable has a default, so Load never fails.
func Load() Config {
	return Config{
		Env:           envStr("APP_ENV", "dev"),
		Port:          envStr("APP_PORT", "8080"),
		DBUser:        os.Getenv("DB_USER"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        envStr("DB_PORT", "3306"),
		DBName:        envStr("DB_NAME", "flowsurfer"),
		AMQPURL:       amqpURL(),
		AccessQueue:   envStr("ACCESS_LOG_QUEUE", "web.access"),
		AccessBuffer:  envInt("ACCESS_LOG_BUFFER", 1024),
		ConsumerOn:    envBool("ACCESS_CONSUMER_ENABLED", false),
		AccessLogPath: envStr("ACCESS_LOG_PATH", "logs/access.log"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AccessTTLMin:  envInt("ACCESS_TOKEN_TTL_MIN", 15),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		BcryptCost:    envInt("BCRYPT_COST", 10),
		TrustProxy:    envBool("TRUST_PROXY", false),
		ShutdownWait:  envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// DBEnabled reports whether a MySQL host was configured.
func (c Config) DBEnabled() bool { return c.DBHost != "" }

// AdminEnabled reports whether admin login can issue tokens.
func (c Config) AdminEnabled() bool {
	return c.JWTSecret != "" && c.AdminEmail != "" && c.AdminPassHash != ""
}

// amqpURL accepts both RABBITMQ_URL and the older AMQP_URL name.
func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
