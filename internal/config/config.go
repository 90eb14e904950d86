// Package config loads the rootcause.yaml file read by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rootcause/internal/engine"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "rootcause.yaml"

// Config is the CLI configuration. Zero values mean "engine default".
type Config struct {
	// PoolSize bounds the number of concurrent diagnosis sessions.
	PoolSize int `yaml:"pool_size" validate:"gte=0,lte=1024"`

	// MaxExecutions caps rule executions per diagnosis. 0 disables the cap.
	MaxExecutions int `yaml:"max_executions" validate:"gte=0"`

	// Variables are session variables passed to every diagnosis.
	Variables map[string]any `yaml:"variables" validate:"dive,keys,varname,endkeys"`

	// Database is the sqlite file diagnoses are recorded in.
	Database string `yaml:"database"`

	// Rules is the default rule directory.
	Rules string `yaml:"rules"`
}

var (
	validate  *validator.Validate
	varNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("varname", func(fl validator.FieldLevel) bool {
		return varNameRe.MatchString(fl.Field().String())
	})
}

// Load reads and validates a configuration file.
// A missing file yields the zero configuration when optional is true.
func Load(path string, optional bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML strictly (unknown fields are rejected) and
// validates the result. An empty document is the zero configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and reports every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = describe(fe)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "varname":
		return fmt.Sprintf("%s: %q is not a valid variable name", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// EngineOptions translates the configuration into engine options.
// Unset fields leave the engine defaults in place.
func (c *Config) EngineOptions() []engine.Option {
	var opts []engine.Option
	if c.PoolSize > 0 {
		opts = append(opts, engine.WithPoolSize(c.PoolSize))
	}
	if c.MaxExecutions > 0 {
		opts = append(opts, engine.WithMaxExecutions(c.MaxExecutions))
	}
	return opts
}

// MergeVariables returns the configured variables overridden by vars.
func (c *Config) MergeVariables(vars map[string]any) map[string]any {
	out := make(map[string]any, len(c.Variables)+len(vars))
	for k, v := range c.Variables {
		out[k] = v
	}
	for k, v := range vars {
		out[k] = v
	}
	return out
}
