// Package telemetry publishes alignment verdicts to an MQTT broker.
//
// Topics are rooted at <prefix>/<station>:
//
//	<prefix>/<station>/decision  decision summary without curve samples
//	<prefix>/<station>/metrics   the flat metric map of the decision
//	<prefix>/<station>/mtf       single-frame gate results
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/activealign/internal/monitoring"
	"github.com/banshee-data/activealign/internal/mtf"
	"github.com/banshee-data/activealign/internal/scan"
)

var (
	// ErrNotConnected is returned when publishing without a broker session.
	ErrNotConnected = errors.New("telemetry: mqtt client not connected")
	// ErrPublishTimeout is returned when the broker does not acknowledge in time.
	ErrPublishTimeout = errors.New("telemetry: publish timed out")
)

// DefaultPublishTimeout bounds the wait for a broker acknowledgement.
const DefaultPublishTimeout = 2 * time.Second

// Options configure a broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Dial connects to the broker. Subsequent connection losses are retried by
// the client in the background.
func Dial(ctx context.Context, o Options) (mqtt.Client, error) {
	if o.Broker == "" {
		return nil, errors.New("telemetry: broker address is required")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	if o.ClientID == "" {
		o.ClientID = "aa-scan"
	}
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Logf("[telemetry] connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect(), 10*time.Second); err != nil {
		return nil, fmt.Errorf("telemetry: connect %s: %w", o.Broker, err)
	}
	monitoring.Logf("[telemetry] connected to %s as %s", o.Broker, o.ClientID)
	return client, nil
}

// Publisher sends decisions for one station. It implements scan.Signaler
// so a Runner can publish its verdict directly.
type Publisher struct {
	client  mqtt.Client
	prefix  string
	station string
	qos     byte
	retain  bool
	timeout time.Duration
	now     func() time.Time
}

// NewPublisher returns a publisher for station under prefix.
func NewPublisher(client mqtt.Client, prefix, station string) *Publisher {
	return &Publisher{
		client:  client,
		prefix:  prefix,
		station: station,
		qos:     1,
		retain:  true,
		timeout: DefaultPublishTimeout,
		now:     time.Now,
	}
}

// Topic returns the full topic for a leaf name.
func (p *Publisher) Topic(leaf string) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, p.station, leaf)
}

type decisionMessage struct {
	Station string `json:"station"`
	*scan.Decision
}

type metricsMessage struct {
	Station   string             `json:"station"`
	ScanID    string             `json:"scan_id"`
	State     string             `json:"state"`
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

type mtfMessage struct {
	Station   string             `json:"station"`
	Passed    bool               `json:"passed"`
	Reason    string             `json:"reason"`
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// PublishDecision sends the decision summary and its metrics.
func (p *Publisher) PublishDecision(ctx context.Context, d *scan.Decision) error {
	summary := *d
	summary.Curves = nil
	if err := p.publish(ctx, "decision", decisionMessage{Station: p.station, Decision: &summary}); err != nil {
		return err
	}
	return p.publish(ctx, "metrics", metricsMessage{
		Station:   p.station,
		ScanID:    d.ID,
		State:     string(d.State),
		Timestamp: p.now().Unix(),
		Metrics:   d.Metrics,
	})
}

// PublishMTF sends a gate result.
func (p *Publisher) PublishMTF(ctx context.Context, r *mtf.Result) error {
	return p.publish(ctx, "mtf", mtfMessage{
		Station:   p.station,
		Passed:    r.Passed,
		Reason:    r.Reason,
		Timestamp: p.now().Unix(),
		Metrics:   r.Metrics,
	})
}

// Accept publishes an accepted decision.
func (p *Publisher) Accept(ctx context.Context, d *scan.Decision) error {
	return p.PublishDecision(ctx, d)
}

// Reject publishes a rejected or faulted decision.
func (p *Publisher) Reject(ctx context.Context, d *scan.Decision) error {
	return p.PublishDecision(ctx, d)
}

func (p *Publisher) publish(ctx context.Context, leaf string, v any) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("telemetry: marshal %s: %w", leaf, err)
	}
	topic := p.Topic(leaf)
	if err := wait(ctx, p.client.Publish(topic, p.qos, p.retain, payload), p.timeout); err != nil {
		return fmt.Errorf("telemetry: publish to %s: %w", topic, err)
	}
	monitoring.Debugf("[telemetry] published %d bytes to %s", len(payload), topic)
	return nil
}

func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ scan.Signaler = (*Publisher)(nil)
