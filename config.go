package sophia

import (
	"errors"

	"github.com/ostafen/sophia/native"
	"go.uber.org/zap"
)

// Config contains the Go-side settings of an environment. Engine settings
// are control paths, applied in order by New.
type Config struct {
	Engine   native.Engine
	Logger   *zap.Logger
	Settings []Setting
}

// Setting is a control path and the value written to it.
type Setting struct {
	Path, Value string
}

func defaultConfig() *Config {
	return &Config{
		Logger: zap.NewNop(),
	}
}

func (c *Config) applyOptions(opts []Option) (*Config, error) {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Option is a function that takes a config struct and modifies it
type Option func(c *Config) error

// WithEngine selects the engine implementation. It defaults to engine.New().
func WithEngine(eng native.Engine) Option {
	return func(c *Config) error {
		if eng == nil {
			return errors.New("engine must not be nil")
		}
		c.Engine = eng
		return nil
	}
}

// WithLogger sets the logger of the environment and of the default engine.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.Logger = logger
		return nil
	}
}

// WithSetting writes value to a control path when the environment is created.
func WithSetting(path, value string) Option {
	return func(c *Config) error {
		c.Settings = append(c.Settings, Setting{Path: path, Value: value})
		return nil
	}
}

// WithPath sets the storage directory.
func WithPath(dir string) Option {
	return WithSetting("sophia.path", dir)
}

// WithBackend selects the store backend: "bbolt", "badger" or "memory".
func WithBackend(name string) Option {
	return WithSetting("sophia.backend", name)
}

// WithDatabase declares a database.
func WithDatabase(name string) Option {
	return WithSetting("db", name)
}
