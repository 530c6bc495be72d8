package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Alturino/storefront/internal/constants"
)

type Application struct {
	Env       string `mapstructure:"env"        json:"env"`
	Host      string `mapstructure:"host"       json:"host"`
	SecretKey string `mapstructure:"secret_key" json:"-"`
	LogDir    string `mapstructure:"log_dir"    json:"log_dir"`
	LogLevel  string `mapstructure:"log_level"  json:"log_level"`
	Port      int    `mapstructure:"port"       json:"port"`
}

type Database struct {
	DbName         string `mapstructure:"name"            json:"name"`
	Host           string `mapstructure:"host"            json:"host"`
	MigrationPath  string `mapstructure:"migration_path"  json:"migration_path"`
	Password       string `mapstructure:"password"        json:"-"`
	TimeZone       string `mapstructure:"timezone"        json:"timezone"`
	Username       string `mapstructure:"username"        json:"username"`
	MaxConnections int32  `mapstructure:"max_connections" json:"max_connections"`
	MinConnections int32  `mapstructure:"min_connections" json:"min_connections"`
	Port           uint16 `mapstructure:"port"            json:"port"`
}

type Cache struct {
	Host         string        `mapstructure:"host"          json:"host"`
	Password     string        `mapstructure:"password"      json:"-"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"  json:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	Database     int           `mapstructure:"database"      json:"database"`
	PoolSize     int           `mapstructure:"pool_size"     json:"pool_size"`
	Port         uint16        `mapstructure:"port"          json:"port"`
}

type Otel struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

type Cart struct {
	EphemeralTTL       time.Duration `mapstructure:"ephemeral_ttl"        json:"ephemeral_ttl"`
	CatalogCacheTTL    time.Duration `mapstructure:"catalog_cache_ttl"    json:"catalog_cache_ttl"`
	DurableCacheTTL    time.Duration `mapstructure:"durable_cache_ttl"    json:"durable_cache_ttl"`
	PersistTimeout     time.Duration `mapstructure:"persist_timeout"      json:"persist_timeout"`
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" json:"session_idle_timeout"`
	CatalogSource      string        `mapstructure:"catalog_source"       json:"catalog_source"`
	CatalogURL         string        `mapstructure:"catalog_url"          json:"catalog_url"`
	BroadcastEnabled   bool          `mapstructure:"broadcast_enabled"    json:"broadcast_enabled"`
}

type Config struct {
	Database    `mapstructure:"db"          json:"db"`
	Cache       `mapstructure:"cache"       json:"cache"`
	Application `mapstructure:"application" json:"application"`
	Otel        `mapstructure:"otel"        json:"otel"`
	Cart        `mapstructure:"cart"        json:"cart"`
}

var (
	once   sync.Once
	config *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.env", "development")
	v.SetDefault("application.host", "0.0.0.0")
	v.SetDefault("application.port", 8080)
	v.SetDefault("application.log_dir", "/var/log")
	v.SetDefault("cache.dial_timeout", 5*time.Second)
	v.SetDefault("cache.read_timeout", 3*time.Second)
	v.SetDefault("cache.write_timeout", 3*time.Second)
	v.SetDefault("cache.pool_size", 20)
	v.SetDefault("db.migration_path", "file://migrations")
	v.SetDefault("db.max_connections", 10)
	v.SetDefault("db.min_connections", 2)
	v.SetDefault("otel.host", "otel-collector")
	v.SetDefault("otel.port", 4317)
	v.SetDefault("cart.ephemeral_ttl", 30*24*time.Hour)
	v.SetDefault("cart.catalog_cache_ttl", 5*time.Minute)
	v.SetDefault("cart.durable_cache_ttl", time.Hour)
	v.SetDefault("cart.persist_timeout", time.Duration(0))
	v.SetDefault("cart.catalog_source", "postgres")
	v.SetDefault("cart.broadcast_enabled", true)
	v.SetDefault("cart.session_idle_timeout", 2*time.Hour)
}

// Get reads ./env/<filename>.yaml once per process; later calls return the
// cached value regardless of filename.
func Get(c context.Context, filename string) *Config {
	once.Do(func() {
		logger := zerolog.Ctx(c).
			With().
			Str(constants.KEY_TAG, "config Get").
			Str(constants.KEY_PROCESS, "init config").
			Str("filename", filename).
			Logger()

		v := viper.New()
		v.SetConfigName(filename)
		v.AddConfigPath("./env")
		v.SetConfigType("yaml")
		v.SetEnvPrefix("STOREFRONT")
		v.AutomaticEnv()
		setDefaults(v)

		logger = logger.With().Str(constants.KEY_PROCESS, "reading config").Logger()
		logger.Info().Msg("reading config")
		err := v.ReadInConfig()
		if err != nil {
			err = fmt.Errorf("error when reading config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		logger.Info().Msg("read config")

		logger = logger.With().Str(constants.KEY_PROCESS, "unmarshaling config").Logger()
		logger.Info().Msg("unmarshaling config")
		cfg := Config{}
		err = v.Unmarshal(&cfg)
		if err != nil {
			err = fmt.Errorf("error unmarshaling config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		config = &cfg
		logger = logger.With().Any(constants.KEY_CONFIG, cfg).Logger()
		logger.Info().Msg("unmarshaled config")
	})
	return config
}
