// Package config loads the process settings of spinlet.
//
// Settings come from, in increasing precedence: defaults, an optional YAML
// file, SPINLET_* environment variables and command line overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/infrastructure/kvstore"
	"github.com/spinlet-dev/spinlet/log"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SPINLET"

// Config is the runtime configuration.
type Config struct {
	Listen string `mapstructure:"listen" validate:"required,listen_addr"`
	App    string `mapstructure:"app" validate:"required"`

	TLS TLS `mapstructure:"tls"`
	Log Log `mapstructure:"log"`

	// Variables are available to the descriptor as {{ .variables.<name> }}.
	Variables       map[string]any `mapstructure:"variables"`
	StrictVariables bool           `mapstructure:"strict_variables"`

	KeyValueStores map[string]KeyValueStore `mapstructure:"key_value_stores" validate:"dive"`

	MaxRequestBody       int64         `mapstructure:"max_request_body" validate:"gt=0"`
	MaxSelfRequestDepth  int           `mapstructure:"max_self_request_depth" validate:"gte=1,lte=100"`
	BlockPrivateNetworks bool          `mapstructure:"block_private_networks"`
	OutboundTimeout      time.Duration `mapstructure:"outbound_timeout" validate:"gt=0"`
	ReadHeaderTimeout    time.Duration `mapstructure:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// TLS enables HTTPS when both files are set.
type TLS struct {
	Cert string `mapstructure:"cert" validate:"required_with=Key"`
	Key  string `mapstructure:"key" validate:"required_with=Cert"`
}

// Enabled reports whether TLS material is configured.
func (t TLS) Enabled() bool {
	return t.Cert != "" && t.Key != ""
}

// Log selects the process logger.
type Log struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	Source bool   `mapstructure:"source"`
}

// KeyValueStore configures the backend of one store label.
type KeyValueStore struct {
	Type string `mapstructure:"type" validate:"omitempty,oneof=memory redis"`
	URL  string `mapstructure:"url" validate:"required_if=Type redis"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "127.0.0.1:3000")
	v.SetDefault("app", "spin.yaml")
	v.SetDefault("tls.cert", "")
	v.SetDefault("tls.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.source", false)
	v.SetDefault("strict_variables", true)
	v.SetDefault("max_request_body", 10<<20)
	v.SetDefault("max_self_request_depth", 10)
	v.SetDefault("block_private_networks", false)
	v.SetDefault("outbound_timeout", 30*time.Second)
	v.SetDefault("read_header_timeout", 10*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
}

// Load reads path (optional) and applies environment variables and
// overrides. Override keys use the file layout, e.g. "tls.cert".
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, &domainerrors.ConfigError{Field: "config", Err: fmt.Errorf("failed to read config: %w", err)}
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, &domainerrors.ConfigError{Field: "config", Err: fmt.Errorf("failed to unmarshal config: %w", err)}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
		return validListenAddr(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validListenAddr accepts host:port with an optional host and any port in
// 0..65535; port 0 asks the kernel for a free port.
func validListenAddr(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}

// Validate checks the struct constraints. The first violation is returned
// as a ConfigError naming the offending key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &domainerrors.ConfigError{Field: "config", Err: err}
	}
	fe := fieldErrs[0]
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	return &domainerrors.ConfigError{
		Field: field,
		Err:   fmt.Errorf("value %v fails %q", fe.Value(), fe.Tag()),
	}
}

// Stores returns the key-value backends keyed by label.
func (c *Config) Stores() map[string]kvstore.Spec {
	specs := make(map[string]kvstore.Spec, len(c.KeyValueStores))
	for label, s := range c.KeyValueStores {
		specs[label] = kvstore.Spec{Type: s.Type, URL: s.URL}
	}
	return specs
}

// LoggerOptions converts the log settings.
func (c *Config) LoggerOptions() ([]log.HandlerOption, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, &domainerrors.ConfigError{Field: "log.level", Err: err}
	}
	format, err := log.ParseFormat(c.Log.Format)
	if err != nil {
		return nil, &domainerrors.ConfigError{Field: "log.format", Err: err}
	}
	return []log.HandlerOption{
		log.WithLevel(level),
		log.WithFormat(format),
		log.WithSource(c.Log.Source),
	}, nil
}
