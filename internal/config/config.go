package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/33TU/socksd/socks5"
)

// Environment variable prefix.
const envPrefix = "SOCKSD_"

// Config holds the daemon configuration.
type Config struct {
	Listen           string
	Username         string
	Password         string
	UsersFile        string
	AllowNoAuth      bool
	HandshakeTimeout time.Duration
	DialTimeout      time.Duration
	MaxHandshakes    int64
	AcceptRate       float64 // accepts per second (0=unlimited)
	AcceptBurst      int
	ZeroBinding      bool
	MetricsListen    string // empty disables the metrics endpoint
	LogLevel         string
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		Listen:           ":1080",
		HandshakeTimeout: socks5.DefaultHandshakeTimeout,
		DialTimeout:      10 * time.Second,
		MaxHandshakes:    1024,
		AcceptBurst:      64,
		LogLevel:         "info",
	}
}

// Load reads SOCKSD_* variables from the environment after loading the given
// .env files. With no files, ./.env is loaded if it exists. Variables already
// present in the environment win over .env entries.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load() // Load .env file if it exists
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	c := Default()
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	parse := func(key string, fn func(string) error) {
		if v, ok := lookup(key); ok {
			if err := fn(v); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			}
		}
	}

	str("LISTEN", &c.Listen)
	str("USERNAME", &c.Username)
	str("PASSWORD", &c.Password)
	str("USERS_FILE", &c.UsersFile)
	str("METRICS_LISTEN", &c.MetricsListen)
	str("LOG_LEVEL", &c.LogLevel)

	parse("ALLOW_NOAUTH", func(v string) (err error) {
		c.AllowNoAuth, err = strconv.ParseBool(v)
		return
	})
	parse("ZERO_BINDING", func(v string) (err error) {
		c.ZeroBinding, err = strconv.ParseBool(v)
		return
	})
	parse("HANDSHAKE_TIMEOUT", func(v string) (err error) {
		c.HandshakeTimeout, err = time.ParseDuration(v)
		return
	})
	parse("DIAL_TIMEOUT", func(v string) (err error) {
		c.DialTimeout, err = time.ParseDuration(v)
		return
	})
	parse("MAX_HANDSHAKES", func(v string) (err error) {
		c.MaxHandshakes, err = strconv.ParseInt(v, 10, 64)
		return
	})
	parse("ACCEPT_RATE", func(v string) (err error) {
		c.AcceptRate, err = strconv.ParseFloat(v, 64)
		return
	})
	parse("ACCEPT_BURST", func(v string) (err error) {
		c.AcceptBurst, err = strconv.Atoi(v)
		return
	})

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	return strings.TrimSpace(v), ok
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.Password != "" && c.Username == "" {
		errs = append(errs, errors.New("password set without username"))
	}
	if c.Username != "" && c.Password == "" {
		errs = append(errs, errors.New("username set without password"))
	}
	if c.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("handshake timeout must be positive, got %s", c.HandshakeTimeout))
	}
	if c.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("dial timeout must not be negative, got %s", c.DialTimeout))
	}
	if c.MaxHandshakes < 0 {
		errs = append(errs, fmt.Errorf("max handshakes must not be negative, got %d", c.MaxHandshakes))
	}
	if c.AcceptRate < 0 {
		errs = append(errs, fmt.Errorf("accept rate must not be negative, got %g", c.AcceptRate))
	}
	if c.AcceptRate > 0 && c.AcceptBurst < 1 {
		errs = append(errs, fmt.Errorf("accept burst must be at least 1, got %d", c.AcceptBurst))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}

// usersFile is the layout of SOCKSD_USERS_FILE:
//
//	[users]
//	alice = "secret"
type usersFile struct {
	Users map[string]string `toml:"users"`
}

// LoadUsers reads a TOML credentials file.
func LoadUsers(path string) (socks5.StaticCredentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()

	var uf usersFile
	if err := toml.NewDecoder(f).Decode(&uf); err != nil {
		return nil, fmt.Errorf("decode users file %s: %w", path, err)
	}

	creds := make(socks5.StaticCredentials, len(uf.Users))
	for user, pass := range uf.Users {
		if len(user) == 0 || len(user) > 255 || len(pass) == 0 || len(pass) > 255 {
			return nil, fmt.Errorf("users file %s: entry %q: username and password must be 1-255 bytes", path, user)
		}
		creds[user] = pass
	}
	return creds, nil
}

// Credentials merges the single-user variables with the users file.
func (c *Config) Credentials() (socks5.StaticCredentials, error) {
	creds := socks5.StaticCredentials{}
	if c.UsersFile != "" {
		fromFile, err := LoadUsers(c.UsersFile)
		if err != nil {
			return nil, err
		}
		creds = fromFile
	}
	if c.Username != "" {
		creds[c.Username] = c.Password
	}
	return creds, nil
}

// Methods returns the server's method preference for the given credentials.
func (c *Config) Methods(creds socks5.StaticCredentials) []socks5.Method {
	if len(creds) == 0 {
		return []socks5.Method{socks5.MethodNoAuth}
	}
	if c.AllowNoAuth {
		return []socks5.Method{socks5.MethodUserPass, socks5.MethodNoAuth}
	}
	return []socks5.Method{socks5.MethodUserPass}
}

// ListenerOptions builds the SOCKS5 listener options described by c.
func (c *Config) ListenerOptions() (*socks5.ListenerOptions, error) {
	creds, err := c.Credentials()
	if err != nil {
		return nil, err
	}

	opts := &socks5.ListenerOptions{
		Config: socks5.Config{
			Methods:          c.Methods(creds),
			Commands:         []socks5.Command{socks5.CmdConnect},
			HandshakeTimeout: c.HandshakeTimeout,
			Executor: &socks5.DialExecutor{
				Dialer:      &net.Dialer{Timeout: c.DialTimeout},
				ZeroBinding: c.ZeroBinding,
			},
		},
		MaxHandshakes: c.MaxHandshakes,
	}
	if len(creds) > 0 {
		opts.Config.Authenticator = creds
	}
	if c.AcceptRate > 0 {
		opts.AcceptLimiter = rate.NewLimiter(rate.Limit(c.AcceptRate), c.AcceptBurst)
	}
	return opts, nil
}
