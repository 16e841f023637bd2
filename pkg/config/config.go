package config

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// DialFunc opens the raw byte stream to the backend.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// TLSUpgrader upgrades an established stream to TLS. It is invoked at
// most once per connection, immediately after the server accepts the
// SSL negotiation and before any startup bytes are sent.
type TLSUpgrader func(ctx context.Context, raw net.Conn, cfg *tls.Config) (net.Conn, error)

// Config describes one connection.
type Config struct {
	Host            string            `toml:"host"`
	Port            uint16            `toml:"port"`
	User            string            `toml:"user"`
	Password        string            `toml:"password"`
	Database        string            `toml:"database"`
	ApplicationName string            `toml:"application_name"`
	RuntimeParams   map[string]string `toml:"runtime_params"`

	DialTimeout    time.Duration `toml:"-"`
	DialTimeoutStr string        `toml:"dial_timeout"`

	TLS TLSConfig `toml:"tls"`

	// Hooks; nil means the defaults (net.Dialer, crypto/tls client).
	DialFunc    DialFunc    `toml:"-"`
	TLSUpgrader TLSUpgrader `toml:"-"`
}

// Default returns a config with libpq-compatible defaults filled in.
func Default() *Config {
	return &Config{
		Port:            5432,
		ApplicationName: "pglink",
		RuntimeParams:   map[string]string{},
		DialTimeout:     5 * time.Second,
	}
}

// Addr is the host:port dial target.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// ParseDSN parses a libpq-style "key=value key=value" string into a
// Config on top of the defaults.
func ParseDSN(dsn string) (*Config, error) {
	cfg := Default()
	for _, field := range strings.Fields(dsn) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return nil, errors.Errorf("malformed dsn field %q", field)
		}
		v = strings.Trim(v, "'")
		switch k {
		case "host":
			cfg.Host = v
		case "port":
			p, err := strconv.ParseUint(v, 10, 16)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid port %q", v)
			}
			cfg.Port = uint16(p)
		case "user":
			cfg.User = v
		case "password":
			cfg.Password = v
		case "dbname", "database":
			cfg.Database = v
		case "application_name":
			cfg.ApplicationName = v
		case "sslmode":
			cfg.TLS.SslMode = v
		case "sslrootcert":
			cfg.TLS.RootCertFile = v
		case "sslcert":
			cfg.TLS.CertFile = v
		case "sslkey":
			cfg.TLS.KeyFile = v
		case "connect_timeout":
			secs, err := strconv.Atoi(v)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid connect_timeout %q", v)
			}
			cfg.DialTimeout = time.Duration(secs) * time.Second
		default:
			cfg.RuntimeParams[k] = v
		}
	}
	if cfg.Host == "" {
		return nil, errors.New("dsn: host is required")
	}
	return cfg, nil
}

// LoadFile reads a TOML connection profile.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	if cfg.DialTimeoutStr != "" {
		d, err := time.ParseDuration(cfg.DialTimeoutStr)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid dial_timeout %q", cfg.DialTimeoutStr)
		}
		cfg.DialTimeout = d
	}
	if cfg.Host == "" {
		return nil, errors.Errorf("config %s: host is required", path)
	}
	return cfg, nil
}

// StartupParameters assembles the parameter map sent in the startup
// message.
func (c *Config) StartupParameters() map[string]string {
	params := map[string]string{
		"user":             c.User,
		"client_encoding":  "UTF8",
		"application_name": c.ApplicationName,
	}
	if c.Database != "" {
		params["database"] = c.Database
	}
	for k, v := range c.RuntimeParams {
		params[k] = v
	}
	return params
}
