package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/brojonat/axiomscope/service/history"
)

const (
	// TradersFileName is the file the trader list is saved to.
	TradersFileName = "axiom_traders.txt"

	historyFilePrefix = "address_trading_history_"
	separatorWidth    = 50
)

// HistoryFileName returns the file name of address's trading history report.
func HistoryFileName(address string) string {
	prefix := address
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	return historyFilePrefix + prefix + ".json"
}

// WriteTraders renders set as the numbered trader list. source names the
// data source in the header, e.g. "RPC".
func WriteTraders(w io.Writer, set *history.AddressSet, source string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Axiom Traders - Fetched via %s\n", source)
	fmt.Fprintf(&b, "Timestamp: %s\n", set.Timestamp)
	fmt.Fprintf(&b, "Total found: %d\n", len(set.UniqueAddresses))
	b.WriteString(strings.Repeat("=", separatorWidth))
	b.WriteString("\n\n")
	for i, addr := range set.UniqueAddresses {
		fmt.Fprintf(&b, "%3d. %s\n", i+1, addr)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteHistory renders th as indented JSON. Non-ASCII and HTML characters are
// written verbatim.
func WriteHistory(w io.Writer, th *history.TradingHistory) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(th); err != nil {
		return fmt.Errorf("failed to encode trading history: %w", err)
	}
	return nil
}

// SaveTraders writes the trader list into dir and returns the file path.
func SaveTraders(dir string, set *history.AddressSet, source string) (string, error) {
	return save(filepath.Join(dir, TradersFileName), func(w io.Writer) error {
		return WriteTraders(w, set, source)
	})
}

// SaveHistory writes the trading history of th.AddressID into dir and returns
// the file path.
func SaveHistory(dir string, th *history.TradingHistory) (string, error) {
	return save(filepath.Join(dir, HistoryFileName(th.AddressID)), func(w io.Writer) error {
		return WriteHistory(w, th)
	})
}

func save(path string, render func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}
