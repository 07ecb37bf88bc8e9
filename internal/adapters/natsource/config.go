package natsource

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config describes a NATS subject subscription.
type Config struct {
	ServerURL           string        `yaml:"server_url"`
	ServerPort          int           `yaml:"server_port"`
	Username            string        `yaml:"username"`
	Password            string        `yaml:"password"`
	Subject             string        `yaml:"subject"`
	Queue               string        `yaml:"queue"`
	ClientName          string        `yaml:"client_name"`
	PingInterval        time.Duration `yaml:"ping_interval"`
	MaxPingsOutstanding int           `yaml:"max_pings_outstanding"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	PendingMsgs         int           `yaml:"pending_msgs"`
}

func (c *Config) ApplyDefaults() {
	if c.ServerPort == 0 && !strings.Contains(c.ServerURL, "://") {
		c.ServerPort = 4222
	}
	if c.ClientName == "" {
		c.ClientName = "databridge"
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.MaxPingsOutstanding <= 0 {
		c.MaxPingsOutstanding = 3
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.PendingMsgs <= 0 {
		c.PendingMsgs = 65536
	}
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.Subject == "" {
		return errors.New("subject is required")
	}
	if strings.ContainsAny(c.Subject, " \t") {
		return errors.New("subject must not contain whitespace")
	}
	if c.Username != "" && c.Password == "" {
		return errors.New("password is required when username is set")
	}
	return nil
}

// ConnectionURI is nats://host:port. Credentials travel in the CONNECT
// handshake rather than in the address.
func (c *Config) ConnectionURI() string {
	base := c.ServerURL
	if !strings.Contains(base, "://") {
		base = "nats://" + base
	}
	if c.ServerPort > 0 {
		if u, err := url.Parse(base); err == nil && u.Host != "" && u.Port() == "" {
			u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(c.ServerPort))
			base = u.String()
		}
	}
	return base
}
