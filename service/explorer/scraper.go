package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/brojonat/axiomscope/service/browser"
	"github.com/brojonat/axiomscope/service/history"
	"github.com/brojonat/axiomscope/service/metrics"
)

const (
	sourceName        = "scrape"
	tableTransactions = "transactions"
	tableBalances     = "balance_changes"
)

// Config holds the scraper tunables.
type Config struct {
	BaseURL            string
	ProgramIDs         []string
	MaxPages           int
	ElementWait        time.Duration
	PageLoadWait       time.Duration
	PageTransitionWait time.Duration
	EvasionDuration    time.Duration
	TaskTimeout        time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:            "https://solscan.io",
		ProgramIDs:         history.AxiomProgramIDs,
		MaxPages:           50,
		ElementWait:        20 * time.Second,
		PageLoadWait:       5 * time.Second,
		PageTransitionWait: 3 * time.Second,
		TaskTimeout:        10 * time.Minute,
	}
}

// Scraper is the explorer data source. Every operation runs as a task on
// the engine, so operations are serialized with all other browser work.
type Scraper struct {
	engine  *browser.Engine
	cfg     Config
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewScraper creates a scraper that submits its work to engine.
// If metrics is nil, no metrics will be recorded.
func NewScraper(engine *browser.Engine, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Scraper {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.ProgramIDs) == 0 {
		cfg.ProgramIDs = def.ProgramIDs
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.ElementWait <= 0 {
		cfg.ElementWait = def.ElementWait
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	return &Scraper{
		engine:  engine,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepContext,
		logger:  logger.With("component", "explorer_source"),
		metrics: m,
	}
}

func (s *Scraper) accountURL(address string) string {
	return s.cfg.BaseURL + "/account/" + url.PathEscape(address)
}

func (s *Scraper) balanceChangesURL(address string) string {
	return s.accountURL(address) + "?page=1#balanceChanges"
}

func (s *Scraper) open(ctx context.Context, sess browser.Session, target string) error {
	s.logger.InfoContext(ctx, "navigating", "url", target)
	if err := sess.Navigate(ctx, target); err != nil {
		return err
	}
	return s.sleep(ctx, s.cfg.PageLoadWait)
}

// eachPage reads the table on the current page and hands its rows to visit,
// then advances, until visit returns false, the next control is missing or
// disabled, or MaxPages pages were read. It returns the number of pages read.
func (s *Scraper) eachPage(ctx context.Context, sess browser.Session, table string, visit func(page int, rows *goquery.Selection) bool) int {
	pages := 0
	for pages < s.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := sess.WaitFor(ctx, TableSelector, s.cfg.ElementWait); err != nil {
			s.logger.WarnContext(ctx, "table did not appear", "table", table, "page", pages+1, "error", err)
			break
		}
		markup, err := sess.OuterHTML(ctx, TableSelector)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to read table", "table", table, "page", pages+1, "error", err)
			break
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err != nil {
			s.logger.WarnContext(ctx, "failed to parse table", "table", table, "page", pages+1, "error", err)
			break
		}

		pages++
		if s.metrics != nil {
			s.metrics.RecordScrapePage(table)
		}
		rows := doc.Find(rowSelector)
		s.logger.DebugContext(ctx, "read table page", "table", table, "page", pages, "rows", rows.Length())

		if !visit(pages, rows) {
			break
		}
		if pages >= s.cfg.MaxPages {
			s.logger.InfoContext(ctx, "page limit reached", "table", table, "max_pages", s.cfg.MaxPages)
			break
		}

		if err := nextPage(ctx, sess, s.logger); err != nil {
			if errors.Is(err, ErrPaginationExhausted) {
				s.logger.InfoContext(ctx, "reached last page", "table", table, "pages", pages)
			} else {
				s.logger.WarnContext(ctx, "pagination failed", "table", table, "error", err)
			}
			break
		}
		if err := s.sleep(ctx, s.cfg.PageTransitionWait); err != nil {
			break
		}
		if s.cfg.EvasionDuration > 0 {
			s.engine.Evasion().Simulate(ctx, sess, s.cfg.EvasionDuration)
		}
	}
	return pages
}

func (s *Scraper) recordRow(table, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordScrapeRow(table, outcome)
	}
}

func (s *Scraper) skipRow(ctx context.Context, table string, page, index int, reason string) {
	s.logger.DebugContext(ctx, "skipping row", "table", table, "page", page, "row", index, "reason", reason)
	s.recordRow(table, reason)
	if s.metrics != nil {
		s.metrics.RecordTransactionsSkipped(sourceName, reason, 1)
	}
}

// FindAddresses collects the signers of transactions on programID's explorer
// page whose programs column links an Axiom program.
func (s *Scraper) FindAddresses(ctx context.Context, programID string, max int) (*history.AddressSet, error) {
	return browser.Do(ctx, s.engine, s.cfg.TaskTimeout, func(ctx context.Context, sess browser.Session) (*history.AddressSet, error) {
		if err := s.open(ctx, sess, s.accountURL(programID)); err != nil {
			return nil, fmt.Errorf("open program page: %w", err)
		}

		collector := history.NewAddressCollector(max, append([]string{programID}, s.cfg.ProgramIDs...)...)
		now := s.now()
		pages := s.eachPage(ctx, sess, tableTransactions, func(page int, rows *goquery.Selection) bool {
			rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
				o := parseTransactionRow(row, now, s.cfg.ProgramIDs)
				if !o.OK() {
					s.skipRow(ctx, tableTransactions, page, i, o.Reason)
					return true
				}
				if !o.Value.axiom {
					s.skipRow(ctx, tableTransactions, page, i, "not_axiom")
					return true
				}
				s.recordRow(tableTransactions, "ok")
				if collector.Add(o.Value.tx.By) {
					s.logger.DebugContext(ctx, "found address", "address", o.Value.tx.By, "count", collector.Len())
				}
				return !collector.Full()
			})
			return !collector.Full()
		})

		set := collector.Result(programID, s.now())
		set.PagesProcessed = pages
		s.logger.InfoContext(ctx, "address discovery complete",
			"program_id", programID,
			"found", set.TotalFound,
			"pages", pages,
		)
		return set, nil
	})
}

// AddressTransactions reads address's transaction table newest first and
// stops at the first row older than now minus days. Rows linking an Axiom
// program and showing no failure marker are kept.
func (s *Scraper) AddressTransactions(ctx context.Context, address string, days int) ([]history.Transaction, error) {
	return browser.Do(ctx, s.engine, s.cfg.TaskTimeout, func(ctx context.Context, sess browser.Session) ([]history.Transaction, error) {
		if err := s.open(ctx, sess, s.accountURL(address)); err != nil {
			return nil, fmt.Errorf("open account page: %w", err)
		}

		now := s.now()
		cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
		txs := make([]history.Transaction, 0)
		reachedCutoff := false

		pages := s.eachPage(ctx, sess, tableTransactions, func(page int, rows *goquery.Selection) bool {
			rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
				o := parseTransactionRow(row, now, s.cfg.ProgramIDs)
				if !o.OK() {
					s.skipRow(ctx, tableTransactions, page, i, o.Reason)
					return true
				}
				r := o.Value
				if r.tx.Timestamp == nil {
					s.logger.WarnContext(ctx, "could not parse time text, assuming recent",
						"time_text", r.tx.Time,
						"signature", r.tx.Signature,
					)
				}
				if r.at.Before(cutoff) {
					s.logger.InfoContext(ctx, "reached transactions older than cutoff",
						"time_text", r.tx.Time,
						"signature", r.tx.Signature,
					)
					reachedCutoff = true
					return false
				}
				switch {
				case !r.axiom:
					s.skipRow(ctx, tableTransactions, page, i, "not_axiom")
				case r.failed:
					s.skipRow(ctx, tableTransactions, page, i, "failed")
				default:
					r.tx.Page = page
					txs = append(txs, r.tx)
					s.recordRow(tableTransactions, "ok")
					if s.metrics != nil {
						s.metrics.RecordTransactionParsed(sourceName, "success")
					}
				}
				return true
			})
			return !reachedCutoff
		})

		s.logger.InfoContext(ctx, "transaction scrape complete",
			"address", address,
			"transactions", len(txs),
			"pages", pages,
		)
		return txs, nil
	})
}

// BalanceChanges reads address's balance-change table and groups the rows of
// the requested signatures by signature, in page order.
func (s *Scraper) BalanceChanges(ctx context.Context, address string, signatures []string) (map[string][]history.BalanceChange, error) {
	changes := make(map[string][]history.BalanceChange)
	if len(signatures) == 0 {
		return changes, nil
	}

	return browser.Do(ctx, s.engine, s.cfg.TaskTimeout, func(ctx context.Context, sess browser.Session) (map[string][]history.BalanceChange, error) {
		if err := s.open(ctx, sess, s.balanceChangesURL(address)); err != nil {
			return nil, fmt.Errorf("open balance changes page: %w", err)
		}

		wanted := make(map[string]bool, len(signatures))
		for _, sig := range signatures {
			wanted[sig] = true
		}

		pages := s.eachPage(ctx, sess, tableBalances, func(page int, rows *goquery.Selection) bool {
			rows.Each(func(i int, row *goquery.Selection) {
				o := parseBalanceRow(row)
				if !o.OK() {
					s.skipRow(ctx, tableBalances, page, i, o.Reason)
					return
				}
				if !wanted[o.Value.Signature] {
					return
				}
				changes[o.Value.Signature] = append(changes[o.Value.Signature], o.Value)
				s.recordRow(tableBalances, "ok")
			})
			return len(changes) < len(wanted)
		})

		s.logger.InfoContext(ctx, "balance change scrape complete",
			"address", address,
			"signatures_found", len(changes),
			"signatures_total", len(wanted),
			"pages", pages,
		)
		return changes, nil
	})
}

// AddressHistory scrapes transactions, then their balance changes, and
// merges the two. The two steps are separate engine tasks.
func (s *Scraper) AddressHistory(ctx context.Context, address string, days int) ([]history.Transaction, error) {
	txs, err := s.AddressTransactions(ctx, address, days)
	if err != nil {
		return nil, fmt.Errorf("scrape transactions: %w", err)
	}
	if len(txs) == 0 {
		return txs, nil
	}

	signatures := make([]string, len(txs))
	for i, tx := range txs {
		signatures[i] = tx.Signature
	}
	changes, err := s.BalanceChanges(ctx, address, signatures)
	if err != nil {
		s.logger.WarnContext(ctx, "balance change scrape failed, returning transactions only",
			"address", address,
			"error", err,
		)
		changes = nil
	}
	return history.Merge(txs, changes), nil
}

var _ history.Source = (*Scraper)(nil)

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
