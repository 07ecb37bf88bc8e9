package snmp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config describes an SNMP agent polled with GET requests.
type Config struct {
	Host          string        `yaml:"host"`
	Port          uint16        `yaml:"port"`
	Community     string        `yaml:"community"`
	Version       string        `yaml:"version"`
	OIDs          []string      `yaml:"oids"`
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
	Retries       int           `yaml:"retries"`
	EmitUnchanged bool          `yaml:"emit_unchanged"`
}

func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 161
	}
	if c.Community == "" {
		c.Community = "public"
	}
	if c.Version == "" {
		c.Version = "2c"
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if len(c.OIDs) == 0 {
		return errors.New("at least one oid must be configured")
	}
	switch strings.ToLower(c.Version) {
	case "1", "2", "2c":
	default:
		return fmt.Errorf("unsupported snmp version %q", c.Version)
	}
	return nil
}

func (c *Config) ConnectionURI() string {
	return "snmp://" + net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}
