package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/axiomscope/service/history"
	"github.com/brojonat/axiomscope/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetAccountInfo(
		ctx context.Context,
		account solana.PublicKey,
	) (*rpc.GetAccountInfoResult, error)
}

const sourceName = "rpc"

// Options configures a Client.
type Options struct {
	ProgramIDs        []string
	MetadataProgramID string
	PageLimit         int // signatures per getSignaturesForAddress call, at most 1000
	MaxPages          int // signature pages per operation, 0 for no limit
	Retry             RetryPolicy
}

// Client is the RPC data source. It owns its endpoint pool, so one instance
// must not be shared by concurrent callers.
type Client struct {
	pool            *EndpointPool
	retrier         *Retrier
	opts            Options
	programs        []solana.PublicKey
	metadataProgram solana.PublicKey
	tokenNames      map[string]string
	now             func() time.Time
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

// NewClient creates a new RPC data source over pool.
// If metrics is nil, no metrics will be recorded.
func NewClient(pool *EndpointPool, opts Options, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if len(opts.ProgramIDs) == 0 {
		opts.ProgramIDs = history.AxiomProgramIDs
	}
	if opts.PageLimit <= 0 || opts.PageLimit > 1000 {
		opts.PageLimit = 1000
	}

	programs := make([]solana.PublicKey, 0, len(opts.ProgramIDs))
	for _, id := range opts.ProgramIDs {
		key, err := solana.PublicKeyFromBase58(id)
		if err != nil {
			return nil, fmt.Errorf("invalid program ID %q: %w", id, err)
		}
		programs = append(programs, key)
	}

	metadataProgram := MetadataProgramID
	if opts.MetadataProgramID != "" {
		key, err := solana.PublicKeyFromBase58(opts.MetadataProgramID)
		if err != nil {
			return nil, fmt.Errorf("invalid metadata program ID %q: %w", opts.MetadataProgramID, err)
		}
		metadataProgram = key
	}

	logger = logger.With("component", "rpc_source")
	return &Client{
		pool:            pool,
		retrier:         NewRetrier(opts.Retry, pool, m, logger),
		opts:            opts,
		programs:        programs,
		metadataProgram: metadataProgram,
		tokenNames:      make(map[string]string),
		now:             time.Now,
		logger:          logger,
		metrics:         m,
	}, nil
}

func (c *Client) signatures(ctx context.Context, address solana.PublicKey, before solana.Signature, limit int) ([]*rpc.TransactionSignature, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:  &limit,
		Before: before,
	}
	// an empty page is the end of history, only a null result is retried
	sigs, err := Retry(ctx, c.retrier, "GetSignaturesForAddress",
		func(s []*rpc.TransactionSignature) bool { return s == nil },
		func(ctx context.Context, client RPCClient) ([]*rpc.TransactionSignature, error) {
			return client.GetSignaturesForAddress(ctx, address, opts)
		},
	)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RecordRPCSignaturesPerCall(c.pool.Label(), float64(len(sigs)))
	}
	return sigs, nil
}

func (c *Client) transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingJSON,
		MaxSupportedTransactionVersion: &maxVersion,
	}
	return Retry(ctx, c.retrier, "GetTransaction",
		func(r *rpc.GetTransactionResult) bool { return r == nil || r.Transaction == nil },
		func(ctx context.Context, client RPCClient) (*rpc.GetTransactionResult, error) {
			return client.GetTransaction(ctx, sig, opts)
		},
	)
}

func (c *Client) pageLimitReached(pages int) bool {
	return c.opts.MaxPages > 0 && pages >= c.opts.MaxPages
}

// FindAddresses pages backward through programID's signatures and collects the
// fee payer of each transaction until max unique addresses are found or the
// history is exhausted. Program IDs are never collected.
func (c *Client) FindAddresses(ctx context.Context, programID string, max int) (*history.AddressSet, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid program ID %q: %w", programID, err)
	}

	c.logger.InfoContext(ctx, "finding addresses for program",
		"program_id", programID,
		"target", max,
		"endpoint", c.pool.Label(),
	)

	collector := history.NewAddressCollector(max, append([]string{programID}, c.opts.ProgramIDs...)...)
	var before solana.Signature
	pages := 0

	for !collector.Full() && !c.pageLimitReached(pages) {
		limit := min(c.opts.PageLimit, max-collector.Len())
		sigs, err := c.signatures(ctx, program, before, limit)
		if err != nil {
			if errors.Is(err, ErrEmptyResponse) {
				c.logger.WarnContext(ctx, "no signature page, stopping", "error", err)
				break
			}
			return nil, err
		}
		if len(sigs) == 0 {
			break
		}
		pages++

		for _, sig := range sigs {
			result, err := c.transaction(ctx, sig.Signature)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				c.skip(ctx, sig.Signature, "unavailable", err)
				continue
			}

			r, err := resolveTransaction(result)
			if err != nil {
				c.skip(ctx, sig.Signature, "decode_error", err)
				continue
			}
			if collector.Add(r.signer()) {
				c.logger.DebugContext(ctx, "found address",
					"address", r.signer(),
					"count", collector.Len(),
				)
			}
			if collector.Full() {
				break
			}
		}

		before = sigs[len(sigs)-1].Signature
		c.logger.InfoContext(ctx, "processed signature page",
			"page", pages,
			"signatures", len(sigs),
			"addresses", collector.Len(),
		)
	}

	set := collector.Result(programID, c.now())
	set.PagesProcessed = pages
	return set, nil
}

// GetAddressHistory pages backward through address's signatures until a block
// time older than now minus days is reached. Failed transactions and those not
// touching an Axiom program are dropped. Results are newest first with balance
// changes embedded.
func (c *Client) GetAddressHistory(ctx context.Context, address string, days int) ([]history.Transaction, error) {
	key, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	now := c.now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	c.logger.InfoContext(ctx, "fetching address history",
		"address", address,
		"days", days,
		"cutoff", cutoff.UTC().Format(time.RFC3339),
	)

	txs := make([]history.Transaction, 0)
	var before solana.Signature
	pages := 0
	done := false

	for !done && !c.pageLimitReached(pages) {
		sigs, err := c.signatures(ctx, key, before, c.opts.PageLimit)
		if err != nil {
			if errors.Is(err, ErrEmptyResponse) {
				c.logger.WarnContext(ctx, "no signature page, stopping", "error", err)
				break
			}
			return nil, err
		}
		if len(sigs) == 0 {
			break
		}
		pages++

		for _, sig := range sigs {
			if sig.BlockTime != nil && sig.BlockTime.Time().Before(cutoff) {
				c.logger.InfoContext(ctx, "reached transactions older than cutoff",
					"signature", sig.Signature.String(),
				)
				done = true
				break
			}
			if sig.Err != nil {
				c.recordSkip("failed")
				continue
			}

			result, err := c.transaction(ctx, sig.Signature)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				c.skip(ctx, sig.Signature, "unavailable", err)
				continue
			}

			r, err := resolveTransaction(result)
			if err != nil {
				c.skip(ctx, sig.Signature, "decode_error", err)
				continue
			}
			if !r.involves(c.programs) {
				c.recordSkip("not_axiom")
				continue
			}

			txn, err := normalizeTransaction(sig, result, address, now, func(mint string) string {
				return c.TokenName(ctx, mint)
			})
			if err != nil {
				c.skip(ctx, sig.Signature, "decode_error", err)
				continue
			}
			if c.metrics != nil {
				c.metrics.RecordTransactionParsed(sourceName, "success")
			}
			txs = append(txs, *txn)
			c.logger.DebugContext(ctx, "found axiom transaction",
				"signature", txn.Signature,
				"count", len(txs),
			)
		}

		if len(sigs) < c.opts.PageLimit {
			break
		}
		before = sigs[len(sigs)-1].Signature
	}

	c.logger.InfoContext(ctx, "fetched address history",
		"address", address,
		"transactions", len(txs),
		"pages", pages,
	)
	return txs, nil
}

// AddressHistory implements history.Source.
func (c *Client) AddressHistory(ctx context.Context, address string, days int) ([]history.Transaction, error) {
	return c.GetAddressHistory(ctx, address, days)
}

func (c *Client) skip(ctx context.Context, sig solana.Signature, reason string, err error) {
	c.logger.WarnContext(ctx, "skipping transaction",
		"signature", sig.String(),
		"reason", reason,
		"error", err,
	)
	if reason == "decode_error" && c.metrics != nil {
		c.metrics.RecordTransactionParsed(sourceName, "error")
	}
	c.recordSkip(reason)
}

func (c *Client) recordSkip(reason string) {
	if c.metrics != nil {
		c.metrics.RecordTransactionsSkipped(sourceName, reason, 1)
	}
}

var _ history.Source = (*Client)(nil)
