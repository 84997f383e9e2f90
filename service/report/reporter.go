package report

import (
	"context"
	"log/slog"

	"github.com/brojonat/axiomscope/service/history"
	"github.com/brojonat/axiomscope/service/metrics"
)

// Reporter saves reports to a directory and, when a publisher is set, also
// publishes them. Publish failures are logged; the saved file is the result.
type Reporter struct {
	dir       string
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewReporter creates a reporter writing into dir. publisher and metrics may be nil.
func NewReporter(dir string, publisher Publisher, m *metrics.Metrics, logger *slog.Logger) *Reporter {
	if dir == "" {
		dir = "."
	}
	return &Reporter{
		dir:       dir,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With("component", "reporter"),
	}
}

// Traders saves and publishes a discovery result.
func (r *Reporter) Traders(ctx context.Context, set *history.AddressSet, source string) (string, error) {
	path, err := SaveTraders(r.dir, set, source)
	r.record(ctx, "traders", path, err)
	if err != nil {
		return "", err
	}

	if r.publisher != nil {
		if err := r.publisher.PublishTraders(ctx, NewTradersEvent(set, source)); err != nil {
			r.logger.WarnContext(ctx, "failed to publish traders report",
				"program_id", set.ProgramID,
				"error", err,
			)
		}
	}
	return path, nil
}

// History saves and publishes a trading history report.
func (r *Reporter) History(ctx context.Context, th *history.TradingHistory, source string) (string, error) {
	path, err := SaveHistory(r.dir, th)
	r.record(ctx, "history", path, err)
	if err != nil {
		return "", err
	}

	if r.publisher != nil {
		if err := r.publisher.PublishHistory(ctx, NewHistoryEvent(th, source)); err != nil {
			r.logger.WarnContext(ctx, "failed to publish history report",
				"address", th.AddressID,
				"error", err,
			)
		}
	}
	return path, nil
}

func (r *Reporter) record(ctx context.Context, kind, path string, err error) {
	if r.metrics != nil {
		r.metrics.RecordReportWritten(kind, err)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to save report", "kind", kind, "error", err)
		return
	}
	r.logger.InfoContext(ctx, "report saved", "kind", kind, "path", path)
}
