package solana

import (
	"errors"
	"strings"

	"github.com/brojonat/axiomscope/service/history"
	"github.com/gagliardetto/solana-go"
)

var (
	// ErrEmptyResponse is returned when an RPC call yields no usable value after
	// every retry. Callers treat it as "no more data".
	ErrEmptyResponse = errors.New("empty RPC response")

	// ErrDecodeFailure is returned when a metadata account does not match the
	// expected layout.
	ErrDecodeFailure = errors.New("failed to decode token metadata")
)

// TokenMetadata is the decoded head of a Metaplex metadata account.
type TokenMetadata struct {
	UpdateAuthority solana.PublicKey
	Mint            solana.PublicKey
	Name            string
	Symbol          string
	URI             string
}

// DisplayName returns the symbol if set, else the name, else "Unknown Token".
func (m *TokenMetadata) DisplayName() string {
	if m == nil {
		return history.UnknownToken
	}
	if s := strings.TrimSpace(m.Symbol); s != "" {
		return s
	}
	if n := strings.TrimSpace(m.Name); n != "" {
		return n
	}
	return history.UnknownToken
}
