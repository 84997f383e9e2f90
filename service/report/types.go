package report

import (
	"time"

	"github.com/brojonat/axiomscope/service/history"
)

// TradersEvent is published to "axiom.traders.{program_id}" in JetStream.
type TradersEvent struct {
	ProgramID   string    `json:"program_id"`
	Source      string    `json:"source"`
	Addresses   []string  `json:"addresses"`
	TotalFound  int       `json:"total_found"`
	TargetCount int       `json:"target_count"`
	CapturedAt  string    `json:"captured_at"`
	PublishedAt time.Time `json:"published_at"`
}

// HistoryEvent is published to "axiom.history.{address}" in JetStream.
type HistoryEvent struct {
	Source      string                  `json:"source"`
	History     *history.TradingHistory `json:"history"`
	PublishedAt time.Time               `json:"published_at"`
}

// NewTradersEvent converts a discovery result into an event.
func NewTradersEvent(set *history.AddressSet, source string) *TradersEvent {
	return &TradersEvent{
		ProgramID:   set.ProgramID,
		Source:      source,
		Addresses:   set.UniqueAddresses,
		TotalFound:  set.TotalFound,
		TargetCount: set.TargetCount,
		CapturedAt:  set.Timestamp,
		PublishedAt: time.Now().UTC(),
	}
}

// NewHistoryEvent wraps a trading history report into an event.
func NewHistoryEvent(th *history.TradingHistory, source string) *HistoryEvent {
	return &HistoryEvent{
		Source:      source,
		History:     th,
		PublishedAt: time.Now().UTC(),
	}
}
