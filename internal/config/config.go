package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort  string
	LogLevel string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	JWTSecret string

	MpesaBaseURL        string
	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaShortCode      string
	MpesaPasskey        string
	MpesaCallbackURL    string
	MpesaTimeout        time.Duration

	// empty means events are recorded in-process
	AMQPURL   string
	AMQPQueue string

	SweepSpec    string
	SweepTimeout time.Duration

	PollInterval    time.Duration
	PollMaxAttempts int

	MinInvestment   int64
	BankName        string
	BankPaybill     string
	BankAccountName string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("config: ignoring non-integer value", "key", k, "value", v)
	}
	return d
}

func getsecs(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		slog.Warn("config: ignoring non-integer seconds", "key", k, "value", v)
	}
	return d
}

// Load reads the environment, after merging a .env file when one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: .env not loaded", "err", err)
	}
	return fromEnv()
}

func fromEnv() *Config {
	return &Config{
		AppPort:  getenv("APP_PORT", "8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "p2p_lending"),
		MySQLUser: getenv("MYSQL_USER", "p2p"),
		MySQLPass: getenv("MYSQL_PASS", "p2p"),

		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		RedisDB:      getint("REDIS_DB", 0),
		IdempTTLSecs: getint("IDEMPOTENCY_TTL_SECONDS", 300),

		JWTSecret: os.Getenv("JWT_SECRET"),

		MpesaBaseURL:        getenv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
		MpesaConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
		MpesaConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
		MpesaShortCode:      getenv("MPESA_SHORTCODE", "174379"),
		MpesaPasskey:        os.Getenv("MPESA_PASSKEY"),
		MpesaCallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		MpesaTimeout:        getsecs("MPESA_TIMEOUT_SECONDS", 15*time.Second),

		AMQPURL:   os.Getenv("AMQP_URL"),
		AMQPQueue: getenv("AMQP_QUEUE", "lending.events"),

		SweepSpec:    getenv("RECONCILE_SPEC", "@every 1m"),
		SweepTimeout: getsecs("RECONCILE_TIMEOUT_SECONDS", 50*time.Second),

		PollInterval:    getsecs("PAYMENT_POLL_INTERVAL_SECONDS", 5*time.Second),
		PollMaxAttempts: getint("PAYMENT_POLL_MAX_ATTEMPTS", 24),

		MinInvestment:   int64(getint("MIN_INVESTMENT", 1000)),
		BankName:        getenv("BANK_NAME", "Equity Bank"),
		BankPaybill:     getenv("BANK_PAYBILL", "247247"),
		BankAccountName: getenv("BANK_ACCOUNT_NAME", "P2P Lending Escrow"),
	}
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	// ensure port is valid
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}

	var missing []string
	for k, v := range map[string]string{
		"MPESA_CONSUMER_KEY":    c.MpesaConsumerKey,
		"MPESA_CONSUMER_SECRET": c.MpesaConsumerSecret,
		"MPESA_PASSKEY":         c.MpesaPasskey,
		"MPESA_CALLBACK_URL":    c.MpesaCallbackURL,
	} {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing M-Pesa config: %s", strings.Join(missing, ", "))
	}
	if c.PollMaxAttempts < 1 || c.PollInterval <= 0 {
		return errors.New("payment polling needs a positive interval and attempt count")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME, loc=UTC keeps timestamps comparable
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
