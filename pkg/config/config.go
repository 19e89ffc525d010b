package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config     = viper.New()
	configName = "config"
	configType = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Log        struct {
		Level string `mapstructure:"LEVEL"`
	} `mapstructure:"LOG"`
	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Tracing        bool   `mapstructure:"TRACING"`
		Metrics        bool   `mapstructure:"METRICS"`
		MetricsPort    uint32 `mapstructure:"METRICS_PORT"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Snowflake struct {
		NodeID int64 `mapstructure:"NODE_ID"`
	} `mapstructure:"SNOWFLAKE"`
	ActionToken struct {
		Secret        string        `mapstructure:"SECRET"`
		Issuer        string        `mapstructure:"ISSUER"`
		DefaultTTL    time.Duration `mapstructure:"DEFAULT_TTL"`
		MaxTTL        time.Duration `mapstructure:"MAX_TTL"`
		Grace         time.Duration `mapstructure:"GRACE"`
		LedgerBackend string        `mapstructure:"LEDGER_BACKEND"` // redis|database
	} `mapstructure:"ACTION_TOKEN"`
	Loyalty struct {
		PointsPerStamp int64 `mapstructure:"POINTS_PER_STAMP"`
		DefaultGoal    int   `mapstructure:"DEFAULT_GOAL"`
		ValidDays      int   `mapstructure:"VALID_DAYS"`
		ExtensionDays  int   `mapstructure:"EXTENSION_DAYS"`
	} `mapstructure:"LOYALTY"`
	Challenge struct {
		MilestoneThreshold  int64  `mapstructure:"MILESTONE_THRESHOLD"`
		MilestonePoints     int64  `mapstructure:"MILESTONE_POINTS"`
		MilestoneTemplateID string `mapstructure:"MILESTONE_TEMPLATE_ID"`
	} `mapstructure:"CHALLENGE"`
	Expiry struct {
		Hour   int    `mapstructure:"HOUR"`
		Minute int    `mapstructure:"MINUTE"`
		Queue  string `mapstructure:"QUEUE"`
	} `mapstructure:"EXPIRY"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "smallbiznis-rewards")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.METRICS_PORT", 9091)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("SNOWFLAKE.NODE_ID", 1)
	v.SetDefault("ACTION_TOKEN.ISSUER", "smallbiznis-rewards")
	v.SetDefault("ACTION_TOKEN.DEFAULT_TTL", "2m")
	v.SetDefault("ACTION_TOKEN.MAX_TTL", "15m")
	v.SetDefault("ACTION_TOKEN.GRACE", "1m")
	v.SetDefault("ACTION_TOKEN.LEDGER_BACKEND", "redis")
	v.SetDefault("LOYALTY.POINTS_PER_STAMP", 10)
	v.SetDefault("LOYALTY.DEFAULT_GOAL", 10)
	v.SetDefault("LOYALTY.VALID_DAYS", 90)
	v.SetDefault("LOYALTY.EXTENSION_DAYS", 30)
	v.SetDefault("CHALLENGE.MILESTONE_THRESHOLD", 3)
	v.SetDefault("CHALLENGE.MILESTONE_POINTS", 100)
	v.SetDefault("EXPIRY.HOUR", 1)
	v.SetDefault("EXPIRY.MINUTE", 0)
	v.SetDefault("EXPIRY.QUEUE", "default")
}

func LoadConfig() *Config {

	config.SetConfigName(configName)
	config.SetConfigType(configType)
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Warn("config.yaml not found, using env and defaults")
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}
