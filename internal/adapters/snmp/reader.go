package snmp

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/ghalamif/databridge/internal/ports"
)

// Reader issues one GET for all configured OIDs per poll.
type Reader struct {
	cfg    Config
	client *gosnmp.GoSNMP
}

func NewReader(cfg Config) *Reader {
	return &Reader{cfg: cfg}
}

func (r *Reader) Open(ctx context.Context) error {
	client := &gosnmp.GoSNMP{
		Target:    r.cfg.Host,
		Port:      r.cfg.Port,
		Community: r.cfg.Community,
		Version:   snmpVersion(r.cfg.Version),
		Timeout:   r.cfg.Timeout,
		Retries:   r.cfg.Retries,
		Context:   ctx,
		MaxOids:   gosnmp.MaxOids,
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("snmp connect: %w", err)
	}
	r.client = client
	return nil
}

func (r *Reader) Read(ctx context.Context) (any, error) {
	if r.client == nil {
		return nil, fmt.Errorf("snmp reader not open")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// each Get runs under the read's own deadline, not the Open context
	r.client.Context = ctx
	packet, err := r.client.Get(r.cfg.OIDs)
	if err != nil {
		return nil, fmt.Errorf("snmp get: %w", err)
	}
	if packet.Error != gosnmp.NoError {
		return nil, fmt.Errorf("snmp get: agent error %v", packet.Error)
	}
	return pduValues(packet.Variables), nil
}

func (r *Reader) Close() error {
	if r.client == nil || r.client.Conn == nil {
		return nil
	}
	err := r.client.Conn.Close()
	r.client = nil
	return err
}

func pduValues(vars []gosnmp.SnmpPDU) map[string]any {
	out := make(map[string]any, len(vars))
	for _, v := range vars {
		name := strings.TrimPrefix(v.Name, ".")
		switch v.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
			out[name] = nil
		case gosnmp.OctetString:
			if b, ok := v.Value.([]byte); ok {
				out[name] = string(b)
				continue
			}
			out[name] = v.Value
		default:
			out[name] = v.Value
		}
	}
	return out
}

func snmpVersion(version string) gosnmp.SnmpVersion {
	switch strings.ToLower(version) {
	case "1":
		return gosnmp.Version1
	default:
		return gosnmp.Version2c
	}
}

var _ ports.Reader = (*Reader)(nil)
