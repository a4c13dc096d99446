// Package redis provides Redis client configuration options.
package redis

import (
	"fmt"

	"github.com/kart-io/medqa/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options defines configuration options for Redis.
type Options struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	Password     string `json:"-" mapstructure:"password"`
	Database     int    `json:"database" mapstructure:"database"`
	MaxRetries   int    `json:"max-retries" mapstructure:"max-retries"`
	PoolSize     int    `json:"pool-size" mapstructure:"pool-size"`
	MinIdleConns int    `json:"min-idle-conns" mapstructure:"min-idle-conns"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Host:         "localhost",
		Port:         6379,
		Database:     0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
	}
}

// Addr returns the host:port address.
func (o *Options) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// AddFlags adds flags for Redis options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Host, p+"redis.host", o.Host, "Redis host.")
	fs.IntVar(&o.Port, p+"redis.port", o.Port, "Redis port.")
	fs.StringVar(&o.Password, p+"redis.password", o.Password, "Redis password.")
	fs.IntVar(&o.Database, p+"redis.database", o.Database, "Redis database number.")
	fs.IntVar(&o.MaxRetries, p+"redis.max-retries", o.MaxRetries, "Redis max retries.")
	fs.IntVar(&o.PoolSize, p+"redis.pool-size", o.PoolSize, "Redis connection pool size.")
	fs.IntVar(&o.MinIdleConns, p+"redis.min-idle-conns", o.MinIdleConns, "Redis minimum idle connections.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Host == "" {
		errs = append(errs, fmt.Errorf("redis host is required"))
	}
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis port must be in (0, 65535]"))
	}
	return errs
}

// Complete completes the options.
func (o *Options) Complete() error {
	return nil
}
