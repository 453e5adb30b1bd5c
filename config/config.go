package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	appDir    = "cinema-checkout-cli"
	envPrefix = "CHECKOUT"
)

type Config struct {
	API     APIConfig
	Booking BookingConfig
	Store   StoreConfig
	Log     LogConfig
	User    UserConfig
}

type APIConfig struct {
	BaseURL     string        `validate:"required,url"`
	Timeout     time.Duration `validate:"gt=0"`
	MaxAttempts int           `validate:"gte=1,lte=10"`
}

type BookingConfig struct {
	MaxSeats       int           `validate:"gte=1,lte=20"`
	TickInterval   time.Duration `validate:"gt=0"`
	PollInterval   time.Duration `validate:"gt=0"`
	PointValue     int64         `validate:"gte=1"`
	CleanupTimeout time.Duration `validate:"gt=0"`
}

type StoreConfig struct {
	Backend       string `validate:"oneof=file redis"`
	RedisAddr     string `validate:"required_if=Backend redis"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
}

type LogConfig struct {
	Path  string
	Debug bool
}

type UserConfig struct {
	ID string
}

// Load reads configuration from defaults, an optional YAML file and CHECKOUT_*
// environment variables, in increasing order of precedence. When file is empty
// the user config dir is searched for config.yaml; a missing file is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, appDir))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:     strings.TrimRight(v.GetString("api.base_url"), "/"),
			Timeout:     v.GetDuration("api.timeout"),
			MaxAttempts: v.GetInt("api.max_attempts"),
		},
		Booking: BookingConfig{
			MaxSeats:       v.GetInt("booking.max_seats"),
			TickInterval:   v.GetDuration("booking.tick_interval"),
			PollInterval:   v.GetDuration("booking.poll_interval"),
			PointValue:     v.GetInt64("booking.point_value"),
			CleanupTimeout: v.GetDuration("booking.cleanup_timeout"),
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(v.GetString("store.backend")),
			RedisAddr:     v.GetString("store.redis_addr"),
			RedisPassword: v.GetString("store.redis_password"),
			RedisDB:       v.GetInt("store.redis_db"),
		},
		Log: LogConfig{
			Path:  v.GetString("log.path"),
			Debug: v.GetBool("log.debug"),
		},
		User: UserConfig{
			ID: v.GetString("user.id"),
		},
	}
	if cfg.Log.Path == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			cfg.Log.Path = filepath.Join(dir, appDir, "logs")
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080/api/v1")
	v.SetDefault("api.timeout", 12*time.Second)
	v.SetDefault("api.max_attempts", 3)
	v.SetDefault("booking.max_seats", 8)
	v.SetDefault("booking.tick_interval", time.Second)
	v.SetDefault("booking.poll_interval", 3*time.Second)
	v.SetDefault("booking.point_value", 1)
	v.SetDefault("booking.cleanup_timeout", 5*time.Second)
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("log.path", "")
	v.SetDefault("log.debug", false)
	v.SetDefault("user.id", "")
}
