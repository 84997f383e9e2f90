package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRandomEndpoint(t *testing.T) {
	t.Run("successful selection from multiple endpoints", func(t *testing.T) {
		endpoints := []string{
			"https://api.mainnet-beta.solana.com",
			"https://mainnet.helius-rpc.com",
			"https://rpc.ankr.com/solana",
		}

		selected, err := SelectRandomEndpoint(endpoints)
		require.NoError(t, err)
		assert.Contains(t, endpoints, selected)
	})

	t.Run("successful selection from single endpoint", func(t *testing.T) {
		endpoints := []string{"https://api.mainnet-beta.solana.com"}

		selected, err := SelectRandomEndpoint(endpoints)
		require.NoError(t, err)
		assert.Equal(t, endpoints[0], selected)
	})

	t.Run("error on empty slice", func(t *testing.T) {
		_, err := SelectRandomEndpoint([]string{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no RPC endpoints configured")
	})

	t.Run("error on nil slice", func(t *testing.T) {
		_, err := SelectRandomEndpoint(nil)
		assert.Error(t, err)
	})

	t.Run("distribution across multiple calls", func(t *testing.T) {
		endpoints := []string{
			"https://endpoint1.com",
			"https://endpoint2.com",
			"https://endpoint3.com",
		}

		// probabilistic: 30 draws from 3 endpoints should hit at least 2
		seen := make(map[string]bool)
		for i := 0; i < 30; i++ {
			selected, err := SelectRandomEndpoint(endpoints)
			require.NoError(t, err)
			seen[selected] = true
		}
		assert.GreaterOrEqual(t, len(seen), 2)
	})
}

func TestEndpointPool(t *testing.T) {
	dialed := []string{}
	dial := func(url string) RPCClient {
		dialed = append(dialed, url)
		return &mockRPCClient{}
	}

	t.Run("switch picks another endpoint", func(t *testing.T) {
		dialed = dialed[:0]
		pool, err := NewEndpointPool([]string{"https://a.example", "https://b.example"}, dial)
		require.NoError(t, err)
		first := pool.Current()

		require.True(t, pool.Switch())
		assert.NotEqual(t, first, pool.Current())
		assert.Len(t, dialed, 2)
	})

	t.Run("switch without alternate keeps endpoint", func(t *testing.T) {
		dialed = dialed[:0]
		pool, err := NewEndpointPool([]string{"https://only.example"}, dial)
		require.NoError(t, err)

		assert.False(t, pool.Switch())
		assert.Equal(t, "https://only.example", pool.Current())
		assert.Len(t, dialed, 1)
	})

	t.Run("empty pool is rejected", func(t *testing.T) {
		_, err := NewEndpointPool(nil, dial)
		require.Error(t, err)
	})

	t.Run("label hides credentials", func(t *testing.T) {
		pool, err := NewEndpointPool([]string{"https://mainnet.helius-rpc.com/?api-key=secret"}, dial)
		require.NoError(t, err)
		assert.Equal(t, "mainnet.helius-rpc.com", pool.Label())
	})
}
