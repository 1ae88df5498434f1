// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/sua-org/safetynet/internal/mediamtx"
	"github.com/sua-org/safetynet/internal/mqttclient"
	"github.com/sua-org/safetynet/internal/storage"
)

const EnvPrefix = "SAFETYNET"

type Config struct {
	LogLevel string `mapstructure:"log_level"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	WS struct {
		Path   string `mapstructure:"path"`
		Secure bool   `mapstructure:"secure"`
	} `mapstructure:"ws"`

	TLS struct {
		InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
		CAFile             string `mapstructure:"ca_file"`
	} `mapstructure:"tls"`

	History struct {
		DetectionsPath string        `mapstructure:"detections_path"`
		TrespassPath   string        `mapstructure:"trespass_path"`
		Secure         bool          `mapstructure:"secure"`
		Port           int           `mapstructure:"port"`
		Timeout        time.Duration `mapstructure:"timeout"`
		Parallel       int           `mapstructure:"parallel"`
	} `mapstructure:"history"`

	Probe struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"probe"`

	Reconcile struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"reconcile"`

	Status struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"status"`

	Dedup struct {
		Size int           `mapstructure:"size"`
		TTL  time.Duration `mapstructure:"ttl"`
	} `mapstructure:"dedup"`

	Registry struct {
		File string `mapstructure:"file"`
	} `mapstructure:"registry"`

	MediaMTX mediamtx.Options `mapstructure:"mediamtx"`

	MQTT struct {
		mqttclient.Config `mapstructure:",squash"`
		Enabled           bool   `mapstructure:"enabled"`
		BaseTopic         string `mapstructure:"base_topic"`
	} `mapstructure:"mqtt"`

	MinIO storage.Config `mapstructure:"minio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("ws.path", "/")
	v.SetDefault("ws.secure", true)
	v.SetDefault("tls.insecure_skip_verify", true)
	v.SetDefault("tls.ca_file", "")
	v.SetDefault("history.detections_path", "/api/detections")
	v.SetDefault("history.trespass_path", "/api/trespass")
	v.SetDefault("history.secure", false)
	v.SetDefault("history.port", 0)
	v.SetDefault("history.timeout", 10*time.Second)
	v.SetDefault("history.parallel", 4)
	v.SetDefault("probe.timeout", 5*time.Second)
	v.SetDefault("reconcile.interval", 30*time.Second)
	v.SetDefault("status.interval", 30*time.Second)
	v.SetDefault("dedup.size", 4096)
	v.SetDefault("dedup.ttl", 10*time.Minute)
	v.SetDefault("registry.file", "cameras.yaml")
	v.SetDefault("mediamtx.config_path", "")
	v.SetDefault("mediamtx.reload_url", "")
	v.SetDefault("mediamtx.reload_pid", 0)
	v.SetDefault("mediamtx.reload_user", "")
	v.SetDefault("mediamtx.reload_pass", "")
	v.SetDefault("mediamtx.reload_token", "")
	v.SetDefault("mediamtx.api_user", "")
	v.SetDefault("mediamtx.api_pass", "")
	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "safetynet")
	v.SetDefault("mqtt.base_topic", "safetynet")
	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "safetynet-snapshots")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.public_base_url", "")
}

// Load lê .env (se existir), variáveis SAFETYNET_* e o arquivo YAML
// opcional. Env tem precedência sobre o arquivo.
func Load(configPath string) (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("não foi possível carregar .env")
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", configPath, err)
			}
			log.Warn().Str("path", configPath).Msg("arquivo de config não encontrado, usando env/defaults")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MQTT.Enabled && (c.MQTT.Port <= 0 || c.MQTT.Port > 65535) {
		return fmt.Errorf("invalid mqtt.port: %d", c.MQTT.Port)
	}
	if c.History.Port < 0 || c.History.Port > 65535 {
		return fmt.Errorf("invalid history.port: %d", c.History.Port)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("invalid probe.timeout: %s", c.Probe.Timeout)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// SetupLogging configura o nível global do zerolog.
func (c Config) SetupLogging() {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
