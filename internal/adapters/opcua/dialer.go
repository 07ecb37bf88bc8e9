package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

// DataValue is the payload emitted for one monitored item change.
type DataValue struct {
	NodeID          string    `json:"nodeId"`
	Name            string    `json:"name"`
	Value           any       `json:"value"`
	Status          uint32    `json:"status"`
	SourceTimestamp time.Time `json:"sourceTimestamp"`
	ServerTimestamp time.Time `json:"serverTimestamp"`
}

var currentTimeNode = ua.NewNumericNodeID(0, id.Server_ServerStatus_CurrentTime)

// Dialer opens OPC UA sessions with one subscription covering all configured nodes.
type Dialer struct {
	cfg      Config
	sourceID string
	obs      ports.Observability
}

func NewDialer(sourceID string, cfg Config, obs ports.Observability) (*Dialer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dialer{cfg: cfg, sourceID: sourceID, obs: obs}, nil
}

func (d *Dialer) Dial(ctx context.Context, emit func(*domain.Envelope)) (ports.Session, error) {
	client, err := opcua.NewClient(d.cfg.ConnectionURI(), d.buildClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}

	// the session outlives the dial; only Close ends consumption
	consumeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	notifyCh := make(chan *opcua.PublishNotificationData, len(d.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval:          d.cfg.PublishInterval,
		MaxKeepAliveCount: d.cfg.MaxKeepAliveCount,
		LifetimeCount:     d.cfg.LifetimeCount,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return nil, fmt.Errorf("opcua subscribe: %w", err)
	}

	sess := &session{
		client:  client,
		sub:     sub,
		cancel:  cancel,
		handles: make(map[uint32]NodeConfig, len(d.cfg.Nodes)),
		obs:     d.obs,
		source:  d.sourceID,
	}

	for i, node := range d.cfg.Nodes {
		nodeID, _ := ua.ParseNodeID(node.NodeID)
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		if d.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(d.cfg.SamplingInterval / time.Millisecond)
		}
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err == nil && len(res.Results) == 0 {
			err = errors.New("empty result")
		}
		if err == nil && res.Results[0].StatusCode != ua.StatusOK {
			err = res.Results[0].StatusCode
		}
		if err != nil {
			_ = sess.Close(ctx)
			return nil, fmt.Errorf("monitor node %q: %w", node.NodeID, err)
		}
		sess.handles[handle] = node
	}

	sess.wg.Add(1)
	go sess.consume(consumeCtx, notifyCh, emit)
	return sess, nil
}

func (d *Dialer) buildClientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(d.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(d.cfg.SecurityPolicy)),
		opcua.ApplicationName(d.cfg.ApplicationName),
		opcua.RequestTimeout(d.cfg.RequestTimeout),
		opcua.SessionTimeout(d.cfg.SessionTimeout),
		// reconnection is driven by the keep-alive watchdog
		opcua.AutoReconnect(false),
	}
	if d.cfg.CertFile != "" && d.cfg.KeyFile != "" {
		opts = append(opts, opcua.CertificateFile(d.cfg.CertFile), opcua.PrivateKeyFile(d.cfg.KeyFile))
	}

	if d.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(d.cfg.Username, d.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

type session struct {
	client  *opcua.Client
	sub     *opcua.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	handles map[uint32]NodeConfig
	obs     ports.Observability
	source  string

	closeOnce sync.Once
	closeErr  error
}

// Ping reads the server clock, which answers whether or not any monitored
// value has changed.
func (s *session) Ping(ctx context.Context) error {
	resp, err := s.client.Read(ctx, &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{
			{NodeID: currentTimeNode, AttributeID: ua.AttributeIDValue},
		},
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	})
	if err != nil {
		return err
	}
	if len(resp.Results) == 0 {
		return errors.New("opcua ping: empty read response")
	}
	if status := resp.Results[0].Status; status != ua.StatusOK {
		return fmt.Errorf("opcua ping: %w", status)
	}
	return nil
}

func (s *session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()
		var err error
		if s.sub != nil {
			if e := s.sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
				err = errors.Join(err, e)
			}
		}
		if e := s.client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
		s.wg.Wait()
		s.closeErr = err
	})
	return s.closeErr
}

func (s *session) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData, emit func(*domain.Envelope)) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				s.obs.LogError("opcua_notification_error", notif.Error, ports.F("source", s.source))
				continue
			}
			s.processNotification(ctx, notif.Value, emit)
		}
	}
}

func (s *session) processNotification(ctx context.Context, val interface{}, emit func(*domain.Envelope)) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}

	for _, item := range data.MonitoredItems {
		if ctx.Err() != nil {
			return
		}
		nodeCfg, ok := s.handles[item.ClientHandle]
		if !ok || item.Value == nil {
			continue
		}

		ts := item.Value.ServerTimestamp
		if ts.IsZero() {
			ts = item.Value.SourceTimestamp
		}
		if ts.IsZero() {
			ts = time.Now()
		}

		emit(&domain.Envelope{
			SourceID:  s.source,
			Timestamp: ts,
			Payload: DataValue{
				NodeID:          nodeCfg.NodeID,
				Name:            nodeCfg.Name,
				Value:           variantValue(item.Value.Value),
				Status:          uint32(item.Value.Status),
				SourceTimestamp: item.Value.SourceTimestamp,
				ServerTimestamp: item.Value.ServerTimestamp,
			},
		})
	}
}

func variantValue(v *ua.Variant) any {
	if v == nil {
		return nil
	}
	switch val := v.Value().(type) {
	case *ua.LocalizedText:
		if val == nil {
			return nil
		}
		return val.Text
	case *ua.NodeID:
		if val == nil {
			return nil
		}
		return val.String()
	default:
		return val
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Dialer = (*Dialer)(nil)
