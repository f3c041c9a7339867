package operatortest

import (
	"os"

	"github.com/cockroachdb/errors"
	"mit.edu/dsg/vexec/execution"
	"sigs.k8s.io/yaml"
)

// ConfigEnv names a YAML file with harness settings. OperatorTestBase loads it when set.
const ConfigEnv = "VEXEC_TEST_CONFIG"

// Config holds the harness settings.
type Config struct {
	// UseAsyncCache installs the shared block cache for every test.
	UseAsyncCache bool `json:"useAsyncCache"`
	// CacheBlocks sizes the shared cache when it is first created.
	CacheBlocks     int    `json:"cacheBlocks"`
	MaxBatchRows    int    `json:"maxBatchRows"`
	OutputQueueSize int    `json:"outputQueueSize"`
	LogLevel        string `json:"logLevel"`
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		UseAsyncCache:   true,
		CacheBlocks:     DefaultCacheBlocks,
		MaxBatchRows:    execution.DefaultMaxBatchRows,
		OutputQueueSize: execution.DefaultOutputQueueSize,
		LogLevel:        "warn",
	}
}

// LoadConfig reads a YAML config from path. Fields missing from the file keep their defaults; unknown fields are
// an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config")
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// ConfigFromEnv loads the file named by ConfigEnv, or returns the defaults when it is unset.
func ConfigFromEnv() (Config, error) {
	path := os.Getenv(ConfigEnv)
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// Validate rejects negative sizes and unknown log levels.
func (c Config) Validate() error {
	if c.CacheBlocks < 0 || c.MaxBatchRows < 0 || c.OutputQueueSize < 0 {
		return errors.Newf("negative sizes in %+v", c)
	}
	if _, err := levelOption(c.LogLevel); err != nil {
		return err
	}
	return nil
}
