package config

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const defaultConfigPath = "src/internal/config/cfg.yml"

type Configuration struct {
	Logs     LogsSettings     `mapstructure:"logs"`
	App      Application      `mapstructure:"app"`
	Database Database         `mapstructure:"database"`
	Queue    QueueConfig      `mapstructure:"queue"`
	Redis    Redis            `mapstructure:"redis"`
	Security SecuritySettings `mapstructure:"security"`
	Server   ServerSettings   `mapstructure:"server"`
	Cache    CacheConfig      `mapstructure:"cache"`
	Session  SessionSettings  `mapstructure:"session"`
}

type LogsSettings struct {
	Level            string `mapstructure:"level"`
	Path             string `mapstructure:"log-path"`
	EnableJSONOutput bool   `mapstructure:"enable-json-output"`
}

type Application struct {
	Name    string `mapstructure:"name"`
	Timeout int    `mapstructure:"timeout"`
	Version string `mapstructure:"version"`
}

type Database struct {
	Timeout     int                   `mapstructure:"timeout"`
	Connections map[string]Connection `mapstructure:"connections"`
}

// Connection describes one named document store instance.
type Connection struct {
	Url        string `mapstructure:"url"`
	DbName     string `mapstructure:"dbname"`
	Collection string `mapstructure:"collection"`
}

type QueueConfig struct {
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type RabbitMQConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Url          string `mapstructure:"url"`
	Exchange     string `mapstructure:"exchange"`
	ExchangeType string `mapstructure:"exchange-type"`
	RoutingKey   string `mapstructure:"routing-key"`
	Durable      bool   `mapstructure:"durable"`
	AutoDelete   bool   `mapstructure:"auto-delete"`
	Internal     bool   `mapstructure:"internal"`
	NoWait       bool   `mapstructure:"no-wait"`
}

type Redis struct {
	Url      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type SecuritySettings struct {
	JwtKey string `mapstructure:"jwt-key"`
}

type ServerSettings struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read-timeout"`
	WriteTimeout int    `mapstructure:"write-timeout"`
	IdleTimeout  int    `mapstructure:"idle-timeout"`
}

type CacheConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	KeyPrefix         string `mapstructure:"key-prefix"`
	SessionTTLSeconds int    `mapstructure:"session-ttl-seconds"`
}

// Load reads the configuration file, applies environment overrides and
// validates the session settings. Any failure is fatal.
func Load() *Configuration {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logrus.Info("Configuration loaded")

	return cfg
}

// LoadFrom is Load without the fatal exit.
func LoadFrom(path string) (*Configuration, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg)

	if err := cfg.Session.Apply(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Configuration) {
	// Override with environment variables
	if cfg.Database.Connections == nil {
		cfg.Database.Connections = map[string]Connection{}
	}
	conn := cfg.Database.Connections[cfg.Session.connectionName()]

	mongoUri := os.Getenv("MONGODB_URL")
	if mongoUri != "" {
		conn.Url = mongoUri
	}

	dbName := os.Getenv("DB_NAME")
	if dbName != "" {
		conn.DbName = dbName
	}

	if mongoUri != "" || dbName != "" {
		cfg.Database.Connections[cfg.Session.connectionName()] = conn
	}

	redisUrl := os.Getenv("REDIS_URL")
	if redisUrl != "" {
		cfg.Redis.Url = redisUrl
	}

	redisDB := os.Getenv("REDIS_DB")
	if redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			cfg.Redis.Db = db
		}
	}

	rabbitmqUrl := os.Getenv("RABBITMQ_URL")
	if rabbitmqUrl != "" {
		cfg.Queue.RabbitMQ.Url = rabbitmqUrl
	}

	jwtKey := os.Getenv("JWT_KEY")
	if jwtKey != "" {
		cfg.Security.JwtKey = jwtKey
	}

	timeout := os.Getenv("SESSION_TIMEOUT")
	if timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil {
			cfg.Session.Timeout = seconds
		}
	}
}

func read(path string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetConfigType("yml")

	var config Configuration

	err := v.ReadInConfig()
	if err != nil {
		logrus.WithError(err).WithField("path", path).Error("Error reading config file")
		return nil, &ConfigError{Setting: "config-file", Value: path, Reason: err.Error()}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		logrus.WithError(err).Error("Error unmarshalling config file")
		return nil, &ConfigError{Setting: "config-file", Value: path, Reason: err.Error()}
	}

	return &config, nil
}
