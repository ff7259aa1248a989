package redis

import (
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/whisperd/validation"
)

// Config is the redis section. Password never serializes to JSON.
type Config struct {
	Enabled      bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Addr         string        `mapstructure:"addr" json:"addr" yaml:"addr"`
	Password     string        `mapstructure:"password" json:"-" yaml:"password"`
	DB           int           `mapstructure:"db" json:"db" yaml:"db"`
	PoolSize     int           `mapstructure:"pool_size" json:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" json:"min_idle_conns" yaml:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries" json:"max_retries" yaml:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`
	// ReadTimeout and WriteTimeout bound each command.
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
}

func (c *Config) ApplyDefaults() {
	setDefault(&c.Addr, "localhost:6379")
	setDefault(&c.PoolSize, 10)
	setDefault(&c.MinIdleConns, 2)
	setDefault(&c.MaxRetries, 3)
	setDefault(&c.DialTimeout, 5*time.Second)
	setDefault(&c.ReadTimeout, time.Second)
	setDefault(&c.WriteTimeout, time.Second)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate is a no-op for a disabled section.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.New().
		Required("addr", c.Addr).
		Custom(c.PoolSize > 0, "pool_size", "must be > 0").
		Custom(c.DB >= 0, "db", "must be >= 0").
		Validate()
}

func (c *Config) options() *goredis.Options {
	return &goredis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}
