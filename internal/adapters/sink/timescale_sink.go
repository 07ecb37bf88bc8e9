package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

var (
	tableName    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	dsnPassword  = regexp.MustCompile(`(password=)('[^']*'|\S+)`)
	defaultTable = "envelopes"
)

type TimescaleConfig struct {
	ConnString         string  `yaml:"conn_string"`
	Table              string  `yaml:"table"`
	MaxWritesPerSecond float64 `yaml:"max_writes_per_second"`
}

func (c *TimescaleConfig) ApplyDefaults() {
	if c.Table == "" {
		c.Table = defaultTable
	}
}

func (c *TimescaleConfig) Validate() error {
	if c.ConnString == "" {
		return errors.New("conn_string is required")
	}
	if !tableName.MatchString(c.Table) {
		return fmt.Errorf("invalid table name %q", c.Table)
	}
	if c.MaxWritesPerSecond < 0 {
		return errors.New("max_writes_per_second must be >= 0")
	}
	return nil
}

// ConnectionURI returns the connection string with any password redacted.
func (c *TimescaleConfig) ConnectionURI() string {
	if u, err := url.Parse(c.ConnString); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	return dsnPassword.ReplaceAllString(c.ConnString, "${1}xxxxx")
}

var _ ports.Descriptor = (*TimescaleConfig)(nil)

// TimescaleSink inserts one row per envelope. Replays of the same envelope
// are absorbed by the table's unique key.
type TimescaleSink struct {
	db        *sql.DB
	tableName string
	query     string
	ownsDB    bool
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	if table == "" {
		table = defaultTable
	}
	return &TimescaleSink{
		db:        db,
		tableName: table,
		query: "INSERT INTO " + table +
			" (route_id, source_id, envelope_id, seq, ts, payload) VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT DO NOTHING",
	}
}

// OpenTimescale opens a dedicated connection pool for one route.
func OpenTimescale(cfg TimescaleConfig) (*TimescaleSink, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("open timescale: %w", err)
	}
	s := NewTimescaleSink(db, cfg.Table)
	s.ownsDB = true
	return s, nil
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

func (t *TimescaleSink) Write(ctx context.Context, env *domain.Envelope) error {
	if env == nil {
		return nil
	}
	payload, err := encodePayload(env.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ts := env.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = t.db.ExecContext(ctx, t.query,
		env.RouteID,
		env.SourceID,
		env.ID,
		env.Seq,
		ts,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", t.tableName, err)
	}
	return nil
}

func (t *TimescaleSink) Close() error {
	if !t.ownsDB {
		return nil
	}
	return t.db.Close()
}

var _ ports.Sink = (*TimescaleSink)(nil)
