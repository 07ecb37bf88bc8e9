package httppolling

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query parameters carrying credentials in a built connection URI.
const (
	ParamUsername   = "authUsername"
	ParamPassword   = "authPassword"
	ParamMethod     = "authMethod"
	ParamPreemptive = "authenticationPreemptive"
)

// Config describes an HTTP endpoint polled at a fixed interval.
type Config struct {
	ServerURL     string            `yaml:"server_url"`
	ServerPort    int               `yaml:"server_port"`
	AuthUsername  string            `yaml:"auth_username"`
	AuthPassword  string            `yaml:"auth_password"`
	Interval      time.Duration     `yaml:"interval"`
	Timeout       time.Duration     `yaml:"timeout"`
	EmitUnchanged bool              `yaml:"emit_unchanged"`
	Headers       map[string]string `yaml:"headers"`
}

func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("server_url must be an http or https URL")
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return errors.New("server_port out of range")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be > 0")
	}
	return nil
}

// BaseAddress is ServerURL with ServerPort filled in when the URL names no port.
func (c *Config) BaseAddress() string {
	if c.ServerPort <= 0 {
		return c.ServerURL
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" || u.Port() != "" {
		return c.ServerURL
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(c.ServerPort))
	return u.String()
}

// ConnectionURI returns the address to poll, carrying preemptive basic
// credentials when both a username and a password are configured.
func (c *Config) ConnectionURI() string {
	return WithBasicAuth(c.BaseAddress(), c.AuthUsername, c.AuthPassword)
}

// WithBasicAuth appends the credential query parameters to base. If either
// credential is missing, base is returned unchanged; an empty username or
// password counts as missing. Values are query-escaped.
func WithBasicAuth(base, username, password string) string {
	if username == "" || password == "" {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}

	var b strings.Builder
	b.Grow(len(base) + len(username) + len(password) + 96)
	b.WriteString(base)
	b.WriteString(sep)
	b.WriteString(ParamUsername + "=")
	b.WriteString(url.QueryEscape(username))
	b.WriteString("&" + ParamPassword + "=")
	b.WriteString(url.QueryEscape(password))
	b.WriteString("&" + ParamMethod + "=Basic&" + ParamPreemptive + "=true")
	return b.String()
}
