package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/tripsync/internal/clearinghouse"
	"github.com/rpattn/tripsync/internal/db"
	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/export"
	"github.com/rpattn/tripsync/internal/ingestion"
	"github.com/rpattn/tripsync/internal/logging"
	"github.com/rpattn/tripsync/internal/notify"
	"github.com/rpattn/tripsync/internal/statusapi"
)

// EnvPrefix prefixes environment overrides, e.g. TRIPSYNC_API_BASE_URL.
const EnvPrefix = "TRIPSYNC"

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

type ExportConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Folder  string `mapstructure:"folder"`
	Format  string `mapstructure:"format"`
}

type ImportConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Folder   string   `mapstructure:"folder"`
	Patterns []string `mapstructure:"patterns"`
}

type NotificationConfig struct {
	Redis notify.RedisConfig `mapstructure:"redis"`
	MQTT  notify.MQTTConfig  `mapstructure:"mqtt"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type StatusConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Server returns the listener settings for the status API.
func (c StatusConfig) Server() statusapi.Config {
	return statusapi.Config{Addr: c.Addr, AllowedOrigins: c.AllowedOrigins}
}

// Config is the adapter's runtime configuration.
type Config struct {
	Database     db.Config            `mapstructure:"database"`
	Registry     RegistryConfig       `mapstructure:"registry"`
	API          clearinghouse.Config `mapstructure:"api"`
	Export       ExportConfig         `mapstructure:"export"`
	Import       ImportConfig         `mapstructure:"import"`
	MappingFile  string               `mapstructure:"mapping_file"`
	Notification NotificationConfig   `mapstructure:"notification"`
	Logging      logging.Config       `mapstructure:"logging"`
	Poll         PollConfig           `mapstructure:"poll"`
	Status       StatusConfig         `mapstructure:"status"`
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)

	v.SetDefault("registry.path", "data/imported_files.db")

	v.SetDefault("api.base_url", "")
	v.SetDefault("api.api_key", "")
	v.SetDefault("api.provider_id", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.retry_count", 2)

	v.SetDefault("export.enabled", true)
	v.SetDefault("export.folder", "")
	v.SetDefault("export.format", string(export.FormatCSV))

	v.SetDefault("import.enabled", true)
	v.SetDefault("import.folder", "")
	v.SetDefault("import.patterns", ingestion.DefaultPatterns)

	v.SetDefault("mapping_file", "")

	v.SetDefault("notification.redis.addr", "")
	v.SetDefault("notification.redis.password", "")
	v.SetDefault("notification.redis.db", 0)
	v.SetDefault("notification.redis.channel", "tripsync:errors")
	v.SetDefault("notification.mqtt.broker", "")
	v.SetDefault("notification.mqtt.client_id", "tripsync")
	v.SetDefault("notification.mqtt.username", "")
	v.SetDefault("notification.mqtt.password", "")
	v.SetDefault("notification.mqtt.topic", "tripsync/errors")
	v.SetDefault("notification.mqtt.qos", 1)

	logDefaults := logging.DefaultConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.format", logDefaults.Format)
	v.SetDefault("logging.file", "")

	v.SetDefault("poll.interval", 5*time.Minute)

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.addr", ":8080")
	v.SetDefault("status.allowed_origins", []string{"http://localhost:3000"})
}

// Load reads config.yaml from configPath when present and applies
// TRIPSYNC_* environment overrides on top of the defaults.
func Load(configPath string) (Config, bool, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, false, fmt.Errorf("%w: read config: %v", domain.ErrConfiguration, err)
		}
		fileLoaded = false
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fileLoaded, fmt.Errorf("%w: decode config: %v", domain.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fileLoaded, err
	}
	return cfg, fileLoaded, nil
}

// Validate checks settings that would make every cycle fail. Missing
// export or import folders are reported per cycle instead.
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("%w: api.base_url is required", domain.ErrConfiguration)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("%w: poll.interval must be positive", domain.ErrConfiguration)
	}
	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		return err
	}
	return nil
}
