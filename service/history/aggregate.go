package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Source is implemented by every data source (RPC and explorer scraping).
type Source interface {
	// FindAddresses discovers up to max unique signer addresses that interacted
	// with programID.
	FindAddresses(ctx context.Context, programID string, max int) (*AddressSet, error)

	// AddressHistory returns the Axiom transactions of address from the last
	// days days, newest first, with balance changes embedded.
	AddressHistory(ctx context.Context, address string, days int) ([]Transaction, error)
}

// Merge attaches balance changes keyed by signature onto txs. The input slice is
// not modified. Every returned transaction has a non-nil BalanceChanges slice.
func Merge(txs []Transaction, changes map[string][]BalanceChange) []Transaction {
	out := make([]Transaction, len(txs))
	for i, tx := range txs {
		merged := make([]BalanceChange, 0, len(tx.BalanceChanges)+len(changes[tx.Signature]))
		merged = append(merged, tx.BalanceChanges...)
		merged = append(merged, changes[tx.Signature]...)
		tx.BalanceChanges = merged
		out[i] = tx
	}
	return out
}

// Summarize builds the trading history report for address.
func Summarize(address string, days int, txs []Transaction, now time.Time) *TradingHistory {
	if txs == nil {
		txs = []Transaction{}
	}

	changes := 0
	for _, tx := range txs {
		changes += len(tx.BalanceChanges)
	}

	return &TradingHistory{
		AddressID:    address,
		DaysScraped:  days,
		Transactions: txs,
		Summary: Summary{
			TotalTransactions:   len(txs),
			BalanceChangesFound: changes,
		},
		Timestamp: now.Format(TimestampLayout),
	}
}

// FindTraders unions the addresses discovered for each program ID until max is
// reached. A program whose lookup fails is logged and skipped; an error is
// returned only when every lookup fails.
func FindTraders(ctx context.Context, src Source, programIDs []string, max int, logger *slog.Logger) (*AddressSet, error) {
	collector := NewAddressCollector(max, programIDs...)
	pages := 0
	var errs []error

	for _, programID := range programIDs {
		if collector.Full() {
			break
		}

		// Ask for the full bound; addresses may overlap across programs.
		set, err := src.FindAddresses(ctx, programID, max)
		if err != nil {
			logger.WarnContext(ctx, "address discovery failed for program",
				"program_id", programID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", programID, err))
			continue
		}

		added := 0
		for _, addr := range set.UniqueAddresses {
			if collector.Add(addr) {
				added++
			}
		}
		pages += set.PagesProcessed

		logger.InfoContext(ctx, "collected addresses for program",
			"program_id", programID,
			"returned", len(set.UniqueAddresses),
			"added", added,
			"total", collector.Len(),
		)
	}

	if len(programIDs) > 0 && len(errs) == len(programIDs) {
		return nil, fmt.Errorf("failed to find traders: %w", errors.Join(errs...))
	}

	result := collector.Result(strings.Join(programIDs, ","), time.Now())
	result.PagesProcessed = pages
	return result, nil
}
