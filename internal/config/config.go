package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/afshinator/BatchSMS/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every environment-sourced value used by the binaries. Only
// this struct may be used to carry configuration; no direct env access
// elsewhere.
type Config struct {
	AppEnv   string `env:"APP_ENV" default:"dev"`
	AppName  string `env:"APP_NAME" default:"batchsms"`
	AppDebug bool   `env:"APP_DEBUG" default:"1"`

	HttpListenAddr         string `env:"HTTP_LISTEN_ADDR" default:":8080"`
	HttpServerReadTimeout  int    `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout int    `env:"HTTP_SERVER_WRITE_TIMEOUT"`

	// Run-history database (optional; history endpoints need it).
	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	// Preference store. Backend "memory" keeps preferences in-process;
	// "redis" persists them across restarts.
	PrefsBackend            string `env:"PREFS_BACKEND" default:"memory"`
	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE" default:"batchsms"`
	MetricsAddr   string `env:"METRICS_ADDR"`
	MetricsURI    string `env:"METRICS_URI" default:"/metrics"`

	// Composer collaborator. The remote composer is a user-attended
	// provider such as cmd/composer-sim.
	ComposerURL     string        `env:"COMPOSER_URL" default:"http://localhost:9090"`
	ComposerTimeout time.Duration `env:"COMPOSER_TIMEOUT" default:"5m"`

	// Pause between composer invocations so status output can render
	// between popups. Never zero in practice.
	SendStepDelay time.Duration `env:"SEND_STEP_DELAY" default:"500ms"`

	CsvDelimiter string `env:"CSV_DELIMITER" default:","`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the process configuration. Intended for tests.
func Set(c *Config) {
	config = c
}
