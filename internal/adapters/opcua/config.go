package opcua

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gopcua/opcua/ua"
)

// nodeIDForm requires an explicit identifier type; ua.ParseNodeID alone
// accepts any bare string as a namespace 0 string id.
var nodeIDForm = regexp.MustCompile(`^(ns=\d+;)?[isgb]=.+$`)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	ServerURL        string        `yaml:"server_url"`
	ServerPort       int           `yaml:"server_port"`
	PathToService    string        `yaml:"path_to_service"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	CertFile         string        `yaml:"cert_file"`
	KeyFile          string        `yaml:"key_file"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	SessionTimeout   time.Duration `yaml:"session_timeout"`

	// Server-side subscription keep-alive: the server sends an empty publish
	// after MaxKeepAliveCount idle publishing intervals and drops the
	// subscription after LifetimeCount intervals without a publish request.
	MaxKeepAliveCount uint32 `yaml:"max_keepalive_count"`
	LifetimeCount     uint32 `yaml:"lifetime_count"`

	Nodes []NodeConfig `yaml:"nodes"`
}

// NodeConfig defines a monitored node.
type NodeConfig struct {
	NodeID string `yaml:"node_id"`
	Name   string `yaml:"name"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "databridge"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Minute
	}
	if c.MaxKeepAliveCount == 0 {
		c.MaxKeepAliveCount = 10
	}
	if c.LifetimeCount == 0 {
		c.LifetimeCount = c.MaxKeepAliveCount * 3
	}
	for i := range c.Nodes {
		if c.Nodes[i].Name == "" {
			c.Nodes[i].Name = c.Nodes[i].NodeID
		}
	}
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	for _, n := range c.Nodes {
		if n.NodeID == "" {
			return errors.New("node_id is required")
		}
		if !nodeIDForm.MatchString(n.NodeID) {
			return fmt.Errorf("node_id %q: expected ns=<n>;<i|s|g|b>=<id> or <i|s|g|b>=<id>", n.NodeID)
		}
		if _, err := ua.ParseNodeID(n.NodeID); err != nil {
			return fmt.Errorf("node_id %q: %w", n.NodeID, err)
		}
	}
	if c.LifetimeCount < 3*c.MaxKeepAliveCount {
		return errors.New("lifetime_count must be at least three times max_keepalive_count")
	}
	if c.Username != "" && c.Password == "" {
		return errors.New("password is required when username is set")
	}
	return nil
}

// ConnectionURI builds opc.tcp://host:port/path. Credentials are negotiated
// in the session, never in the address.
func (c *Config) ConnectionURI() string {
	base := c.ServerURL
	if !strings.Contains(base, "://") {
		base = "opc.tcp://" + base
	}
	if c.ServerPort > 0 {
		if u, err := url.Parse(base); err == nil && u.Host != "" && u.Port() == "" {
			u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(c.ServerPort))
			base = u.String()
		}
	}
	if c.PathToService != "" {
		base = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(c.PathToService, "/")
	}
	return base
}
