// Package config loads the tap configuration from YAML (or JSON) files with
// ${VAR} environment substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/sherpa-tap/pkg/client"
	"github.com/Sternrassler/sherpa-tap/pkg/retry"
	"github.com/Sternrassler/sherpa-tap/pkg/stream"
)

// DefaultWSDLURL is the Sherpa test environment.
const DefaultWSDLURL = "https://sherpaservices-tst.sherpacloud.eu/214/Sherpa.asmx?wsdl"

// EnvSecurityCode overrides security_code when set.
const EnvSecurityCode = "SHERPA_SECURITY_CODE"

// State backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// ErrInvalid is returned for configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the tap configuration.
type Config struct {
	WSDLURL           string  `yaml:"wsdl_url"`
	SecurityCode      string  `yaml:"security_code"`
	Timeout           int     `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	UserAgent         string  `yaml:"user_agent"`

	MaxRetries   int `yaml:"max_retries"`
	RetryWaitMin int `yaml:"retry_wait_min"`
	RetryWaitMax int `yaml:"retry_wait_max"`

	// PerRequest holds page-size hints by stream. Top-level
	// <stream>_per_request keys are merged into it.
	PerRequest map[string]int `yaml:"per_request"`

	Streams []string `yaml:"streams"`

	State StateConfig `yaml:"state"`
	Log   LogConfig   `yaml:"log"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// StateConfig selects where bookmarks are persisted.
type StateConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	Namespace string `yaml:"namespace"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		WSDLURL:           DefaultWSDLURL,
		Timeout:           30,
		RequestsPerSecond: 5,
		UserAgent:         "sherpa-tap/1.0",
		MaxRetries:        3,
		RetryWaitMin:      4,
		RetryWaitMax:      10,
		PerRequest:        map[string]int{},
		State: StateConfig{
			Backend:   BackendFile,
			Path:      "state.json",
			Namespace: "default",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.parse(data); err != nil {
			return nil, err
		}
	}

	if code := os.Getenv(EnvSecurityCode); code != "" {
		cfg.SecurityCode = code
	}
	return cfg, nil
}

// Parse applies YAML content over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := cfg.parse(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	content := []byte(substituteEnvVars(string(data)))

	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if c.PerRequest == nil {
		c.PerRequest = map[string]int{}
	}
	for key, v := range raw {
		name, ok := strings.CutSuffix(key, "_per_request")
		if !ok || name == "" {
			continue
		}
		n, ok := v.(int)
		if !ok {
			return fmt.Errorf("%w: %s must be an integer", ErrInvalid, key)
		}
		if !strings.HasPrefix(name, "changed_") {
			name = "changed_" + name
		}
		c.PerRequest[name] = n
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.WSDLURL == "" {
		errs = append(errs, fmt.Errorf("wsdl_url is required"))
	}
	if c.SecurityCode == "" {
		errs = append(errs, fmt.Errorf("security_code is required (or set %s)", EnvSecurityCode))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be > 0 (got %d)", c.Timeout))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second must be >= 0 (got %v)", c.RequestsPerSecond))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 1 (got %d)", c.MaxRetries))
	}
	if c.RetryWaitMin <= 0 || c.RetryWaitMax < c.RetryWaitMin {
		errs = append(errs, fmt.Errorf("retry waits must satisfy 0 < retry_wait_min <= retry_wait_max (got %d, %d)", c.RetryWaitMin, c.RetryWaitMax))
	}
	for name, n := range c.PerRequest {
		if _, err := stream.Lookup(name); err != nil {
			errs = append(errs, fmt.Errorf("%s_per_request: %w", name, err))
		}
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s_per_request must be > 0 (got %d)", name, n))
		}
	}
	for _, name := range c.Streams {
		if _, err := stream.Lookup(name); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.State.Backend {
	case BackendFile:
		if c.State.Path == "" {
			errs = append(errs, fmt.Errorf("state.path is required for the file backend"))
		}
	case BackendRedis:
		if c.State.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("state.redis_addr is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("state.backend must be file, redis or memory (got %q)", c.State.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// RetryConfig returns the retry policy configuration.
func (c *Config) RetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = c.MaxRetries
	cfg.InitialBackoff = time.Duration(c.RetryWaitMin) * time.Second
	cfg.MaxBackoff = time.Duration(c.RetryWaitMax) * time.Second
	return cfg
}

// ClientConfig returns the Sherpa client configuration.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		Endpoint:          client.EndpointFromWSDL(c.WSDLURL),
		SecurityCode:      c.SecurityCode,
		Timeout:           time.Duration(c.Timeout) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		UserAgent:         c.UserAgent,
	}
}

// PageSize returns the page-size hint for a stream.
func (c *Config) PageSize(name string) int {
	if n, ok := c.PerRequest[name]; ok && n > 0 {
		return n
	}
	return stream.DefaultPageSize
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
