package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/axiomscope/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing reports to NATS.
type Publisher interface {
	// PublishTraders publishes a discovery result to "axiom.traders.{program_id}".
	PublishTraders(ctx context.Context, event *TradersEvent) error

	// PublishHistory publishes a trading history to "axiom.history.{address}".
	PublishHistory(ctx context.Context, event *HistoryEvent) error

	// Close closes the connection to NATS.
	Close() error
}

const (
	// StreamName is the name of the JetStream stream for reports.
	StreamName = "AXIOM_REPORTS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "axiom.>"

	// StreamRetention is how long reports are retained.
	StreamRetention = 7 * 24 * time.Hour

	tradersSubjectPrefix = "axiom.traders."
	historySubjectPrefix = "axiom.history."
)

// TradersSubject returns the subject a discovery result for programID is published to.
func TradersSubject(programID string) string {
	return tradersSubjectPrefix + programID
}

// HistorySubject returns the subject address's trading history is published to.
func HistorySubject(address string) string {
	return historySubjectPrefix + address
}

// JetStreamPublisher publishes reports to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher connects to NATS and ensures the report stream exists.
// If metrics is nil, no metrics will be recorded.
func NewPublisher(ctx context.Context, natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("axiomscope-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger.With("component", "report_publisher"),
	}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	p.logger.InfoContext(ctx, "NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)
	return p, nil
}

// ensureStream creates the report stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		if info, err := stream.Info(ctx); err == nil {
			p.logger.DebugContext(ctx, "JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.InfoContext(ctx, "creating JetStream stream", "stream", StreamName)
	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Axiom trader discovery and trading history reports",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishTraders publishes a discovery result.
func (p *JetStreamPublisher) PublishTraders(ctx context.Context, event *TradersEvent) error {
	return p.publish(ctx, TradersSubject(event.ProgramID), event)
}

// PublishHistory publishes a trading history report.
func (p *JetStreamPublisher) PublishHistory(ctx context.Context, event *HistoryEvent) error {
	if event.History == nil {
		return fmt.Errorf("history event has no report")
	}
	return p.publish(ctx, HistorySubject(event.History.AddressID), event)
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal report event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.DebugContext(ctx, "published report", "subject", subject, "bytes", len(data))
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

var _ Publisher = (*JetStreamPublisher)(nil)
