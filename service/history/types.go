package history

import (
	"time"
)

// Well-known identifiers shared by both data sources.
const (
	// SOLMint is the pseudo-mint used to report native SOL balance movements.
	SOLMint = "So11111111111111111111111111111111111111111"

	// SOLTokenName is the token name reported for native SOL.
	SOLTokenName = "SOL"

	// UnknownToken is reported when a mint's metadata cannot be resolved.
	UnknownToken = "Unknown Token"

	// UnknownTime is the time label used when a block time is missing.
	UnknownTime = "Unknown"

	// UnknownInstruction is the instruction label used when nothing is identifiable.
	UnknownInstruction = "Unknown"

	// TimestampLayout is the capture timestamp layout used in reports.
	TimestampLayout = "2006-01-02 15:04:05"
)

// AxiomProgramIDs are the two known deployments of the Axiom program.
var AxiomProgramIDs = []string{
	"AxiomfHaWDemCFBLBayqnEnNwE6b7B2Qz3UmzMpgbMG6",
	"AxiomxSitiyXyPjKgJ9XSrdhsydtZsskZTEDam3PxKcC",
}

// Transaction is the canonical record produced by every data source.
type Transaction struct {
	Signature      string          `json:"signature"`
	Block          string          `json:"block"`
	Time           string          `json:"time"`
	Timestamp      *time.Time      `json:"timestamp"`
	Instructions   []string        `json:"instructions"`
	By             string          `json:"by"`
	Value          string          `json:"value"`
	Fee            string          `json:"fee"`
	Page           int             `json:"page,omitempty"`
	BalanceChanges []BalanceChange `json:"balance_changes"`
}

// BalanceChange is a net movement of one token (or native SOL) for one address
// within one transaction. Amount is never zero.
type BalanceChange struct {
	Signature    string `json:"signature"`
	Block        string `json:"block"`
	Time         string `json:"time"`
	Amount       string `json:"amount"`
	PostBalance  string `json:"post_balance"`
	TokenName    string `json:"token_name"`
	TokenAddress string `json:"token_address"`
}

// AddressSet is the result of an address discovery run.
type AddressSet struct {
	ProgramID       string   `json:"program_id"`
	UniqueAddresses []string `json:"unique_addresses"`
	TotalFound      int      `json:"total_found"`
	Timestamp       string   `json:"timestamp"`
	TargetCount     int      `json:"target_count"`
	PagesProcessed  int      `json:"pages_processed,omitempty"`
}

// Summary holds the counters reported alongside a trading history.
type Summary struct {
	TotalTransactions   int `json:"total_transactions"`
	BalanceChangesFound int `json:"balance_changes_found"`
}

// TradingHistory is the per-address report. Transactions are ordered newest first.
type TradingHistory struct {
	AddressID    string        `json:"address_id"`
	DaysScraped  int           `json:"days_scraped"`
	Transactions []Transaction `json:"transactions"`
	Summary      Summary       `json:"summary"`
	Timestamp    string        `json:"timestamp"`
}

// IsAxiomProgram reports whether id is one of the known Axiom program IDs.
func IsAxiomProgram(id string) bool {
	for _, p := range AxiomProgramIDs {
		if p == id {
			return true
		}
	}
	return false
}
