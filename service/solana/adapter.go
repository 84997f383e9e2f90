package solana

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// realRPCClient adapts the actual solana-go RPC client to our RPCClient interface.
// This adapter allows us to control the interface and makes testing easier.
type realRPCClient struct {
	client *rpc.Client
}

// NewRPCClient creates a new RPCClient that wraps the solana-go RPC client.
// When requestsPerSecond is positive, calls are throttled client-side.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
func NewRPCClient(rpcURL string, requestsPerSecond int) RPCClient {
	if requestsPerSecond <= 0 {
		return &realRPCClient{client: rpc.New(rpcURL)}
	}
	limited := rpc.NewWithLimiter(rpcURL, rate.Every(time.Second/time.Duration(requestsPerSecond)), requestsPerSecond)
	return &realRPCClient{client: rpc.NewWithCustomRPCClient(limited)}
}

// RateLimitedDialer returns a Dialer producing rate-limited clients.
func RateLimitedDialer(requestsPerSecond int) Dialer {
	return func(rpcURL string) RPCClient {
		return NewRPCClient(rpcURL, requestsPerSecond)
	}
}

func (r *realRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	return r.client.GetSignaturesForAddressWithOpts(ctx, address, opts)
}

func (r *realRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	return r.client.GetTransaction(ctx, signature, opts)
}

func (r *realRPCClient) GetAccountInfo(
	ctx context.Context,
	account solana.PublicKey,
) (*rpc.GetAccountInfoResult, error) {
	return r.client.GetAccountInfo(ctx, account)
}

// Dialer builds an RPCClient for an endpoint URL.
type Dialer func(rpcURL string) RPCClient

// SelectRandomEndpoint picks one endpoint uniformly at random.
func SelectRandomEndpoint(endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no RPC endpoints configured")
	}
	return endpoints[rand.IntN(len(endpoints))], nil
}

// EndpointPool owns the currently selected endpoint and its client.
// It is mutated in place on failover and is not safe for concurrent use.
type EndpointPool struct {
	urls    []string
	current string
	client  RPCClient
	dial    Dialer
}

// NewEndpointPool selects a random initial endpoint from urls.
func NewEndpointPool(urls []string, dial Dialer) (*EndpointPool, error) {
	selected, err := SelectRandomEndpoint(urls)
	if err != nil {
		return nil, err
	}
	return &EndpointPool{
		urls:    append([]string(nil), urls...),
		current: selected,
		client:  dial(selected),
		dial:    dial,
	}, nil
}

// Client returns the client for the current endpoint.
func (p *EndpointPool) Client() RPCClient {
	return p.client
}

// Current returns the current endpoint URL.
func (p *EndpointPool) Current() string {
	return p.current
}

// Label returns a short identifier for the current endpoint, used for metrics.
func (p *EndpointPool) Label() string {
	return endpointLabel(p.current)
}

// Switch moves to a random endpoint other than the current one.
// It returns false when no alternate endpoint exists.
func (p *EndpointPool) Switch() bool {
	remaining := make([]string, 0, len(p.urls))
	for _, u := range p.urls {
		if u != p.current {
			remaining = append(remaining, u)
		}
	}
	next, err := SelectRandomEndpoint(remaining)
	if err != nil {
		return false
	}
	p.current = next
	p.client = p.dial(next)
	return true
}

// endpointLabel strips credentials and paths so API keys never reach metric labels.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
