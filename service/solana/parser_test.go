package solana

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/brojonat/axiomscope/service/history"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTransactionEnvelope creates a TransactionResultEnvelope from a Transaction.
// This is a test helper that works around the unexported fields in TransactionResultEnvelope.
func makeTransactionEnvelope(tx *solana.Transaction) (*rpc.TransactionResultEnvelope, error) {
	txJSON, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}

	var temp struct {
		Transaction json.RawMessage `json:"transaction"`
	}
	temp.Transaction = txJSON

	envelopeJSON, err := json.Marshal(temp)
	if err != nil {
		return nil, err
	}

	var result rpc.GetTransactionResult
	if err := json.Unmarshal(envelopeJSON, &result); err != nil {
		return nil, err
	}
	return result.Transaction, nil
}

func testKey(n byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{n}, solana.PublicKeyLength))
}

func testSignature(n byte) solana.Signature {
	var sig solana.Signature
	for i := range sig {
		sig[i] = n
	}
	return sig
}

var axiomProgram = solana.MustPublicKeyFromBase58(history.AxiomProgramIDs[0])

// buildResult assembles an RPC transaction result. A zero blockTime leaves the
// block time unset.
func buildResult(
	t *testing.T,
	sig solana.Signature,
	slot uint64,
	blockTime time.Time,
	keys []solana.PublicKey,
	instructions int,
	meta *rpc.TransactionMeta,
) *rpc.GetTransactionResult {
	t.Helper()

	ixs := make([]solana.CompiledInstruction, instructions)
	for i := range ixs {
		ixs[i] = solana.CompiledInstruction{ProgramIDIndex: uint16(len(keys) - 1)}
	}
	tx := &solana.Transaction{
		Signatures: []solana.Signature{sig},
		Message: solana.Message{
			AccountKeys:  keys,
			Header:       solana.MessageHeader{NumRequiredSignatures: 1},
			Instructions: ixs,
		},
	}
	envelope, err := makeTransactionEnvelope(tx)
	require.NoError(t, err)

	result := &rpc.GetTransactionResult{
		Slot:        slot,
		Transaction: envelope,
		Meta:        meta,
	}
	if !blockTime.IsZero() {
		bt := solana.UnixTimeSeconds(blockTime.Unix())
		result.BlockTime = &bt
	}
	return result
}

func uiAmount(s string) *rpc.UiTokenAmount {
	return &rpc.UiTokenAmount{UiAmountString: s, Decimals: 6}
}

func TestExtractInstructions(t *testing.T) {
	tests := []struct {
		name  string
		logs  []string
		count int
		want  []string
	}{
		{
			name: "buy and sell in log order, each once",
			logs: []string{
				"Program log: Instruction: Buy",
				"Program log: Instruction: Sell",
				"Program log: Instruction: Buy",
			},
			count: 2,
			want:  []string{"buy", "sell"},
		},
		{
			name:  "swap is recognised anywhere in a line",
			logs:  []string{"Program log: Instruction: SwapBaseIn"},
			count: 1,
			want:  []string{"swap"},
		},
		{
			name:  "unrecognised multi-instruction uses count",
			logs:  []string{"Program log: Instruction: Transfer"},
			count: 3,
			want:  []string{"3+"},
		},
		{
			name:  "single unrecognised instruction",
			logs:  []string{"Program log: Instruction: Transfer"},
			count: 1,
			want:  []string{"Unknown"},
		},
		{
			name: "no logs and no instructions",
			want: []string{"Unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractInstructions(tt.logs, tt.count))
		})
	}
}

func TestMaxSOLDelta(t *testing.T) {
	t.Run("largest absolute movement wins", func(t *testing.T) {
		meta := &rpc.TransactionMeta{
			PreBalances:  []uint64{5_000_000_000, 100, 2_000_000},
			PostBalances: []uint64{4_000_000_000, 1_000_100, 2_500_000},
		}
		assert.Equal(t, "1.000000", history.FormatSOL(maxSOLDelta(meta)))
	})

	t.Run("no movement renders zero", func(t *testing.T) {
		meta := &rpc.TransactionMeta{
			PreBalances:  []uint64{10},
			PostBalances: []uint64{10},
		}
		assert.Equal(t, "0.000000", history.FormatSOL(maxSOLDelta(meta)))
	})

	t.Run("nil meta", func(t *testing.T) {
		assert.True(t, maxSOLDelta(nil).IsZero())
	})
}

func TestTokenAmount(t *testing.T) {
	assert.True(t, decimal.RequireFromString("1.5").Equal(tokenAmount(&rpc.UiTokenAmount{UiAmountString: "1.5"})))
	assert.True(t, decimal.RequireFromString("1.5").Equal(tokenAmount(&rpc.UiTokenAmount{Amount: "1500000", Decimals: 6})))
	assert.True(t, tokenAmount(&rpc.UiTokenAmount{UiAmountString: "garbage"}).IsZero())
	assert.True(t, tokenAmount(nil).IsZero())
}

func TestExtractBalanceChanges(t *testing.T) {
	trader := testKey(1)
	other := testKey(2)
	mintA := testKey(10)
	mintB := testKey(11)
	mintC := testKey(12)
	mintD := testKey(13)
	mintE := testKey(14)

	names := map[string]string{
		mintA.String(): "AAA",
		mintC.String(): "CCC",
		mintD.String(): "DDD",
	}
	tokenName := func(mint string) string {
		if n, ok := names[mint]; ok {
			return n
		}
		return history.UnknownToken
	}

	meta := &rpc.TransactionMeta{
		PreBalances:  []uint64{2_000_000_000, 1_000},
		PostBalances: []uint64{1_500_000_000, 1_000},
		PreTokenBalances: []rpc.TokenBalance{
			{AccountIndex: 5, Owner: &trader, Mint: mintA, UiTokenAmount: uiAmount("100")},
			{AccountIndex: 5, Owner: &trader, Mint: mintB, UiTokenAmount: uiAmount("10")},
			{AccountIndex: 6, Owner: &trader, Mint: mintD, UiTokenAmount: uiAmount("7")},
			{AccountIndex: 7, Owner: &other, Mint: mintE, UiTokenAmount: uiAmount("1")},
		},
		PostTokenBalances: []rpc.TokenBalance{
			{AccountIndex: 5, Owner: &trader, Mint: mintA, UiTokenAmount: uiAmount("1150")},
			{AccountIndex: 5, Owner: &trader, Mint: mintB, UiTokenAmount: uiAmount("10")},
			{AccountIndex: 0, Mint: mintC, UiTokenAmount: uiAmount("5")},
			{AccountIndex: 7, Owner: &other, Mint: mintE, UiTokenAmount: uiAmount("9")},
		},
	}
	result := buildResult(t, testSignature(1), 42, time.Time{}, []solana.PublicKey{trader, other, axiomProgram}, 1, meta)
	r, err := resolveTransaction(result)
	require.NoError(t, err)

	changes := extractBalanceChanges(r, trader.String(), "sig", "42", "1 hr ago", tokenName)
	require.Len(t, changes, 4)

	t.Run("changed mint reports delta and post balance", func(t *testing.T) {
		c := changes[0]
		assert.Equal(t, mintA.String(), c.TokenAddress)
		assert.Equal(t, "AAA", c.TokenName)
		assert.Equal(t, "+1,050.000000", c.Amount)
		assert.Equal(t, "1,150.000000", c.PostBalance)
		assert.Equal(t, "sig", c.Signature)
		assert.Equal(t, "42", c.Block)
		assert.Equal(t, "1 hr ago", c.Time)
	})

	t.Run("pre-only mint treats post as zero", func(t *testing.T) {
		c := changes[1]
		assert.Equal(t, mintD.String(), c.TokenAddress)
		assert.Equal(t, "-7.000000", c.Amount)
		assert.Equal(t, "0.000000", c.PostBalance)
	})

	t.Run("post-only mint matched by account index treats pre as zero", func(t *testing.T) {
		c := changes[2]
		assert.Equal(t, mintC.String(), c.TokenAddress)
		assert.Equal(t, "CCC", c.TokenName)
		assert.Equal(t, "+5.000000", c.Amount)
	})

	t.Run("native SOL change comes last", func(t *testing.T) {
		c := changes[3]
		assert.Equal(t, history.SOLMint, c.TokenAddress)
		assert.Equal(t, history.SOLTokenName, c.TokenName)
		assert.Equal(t, "-0.500000000", c.Amount)
		assert.Equal(t, "1.500000000", c.PostBalance)
	})

	t.Run("unchanged and foreign mints are dropped", func(t *testing.T) {
		for _, c := range changes {
			assert.NotEqual(t, mintB.String(), c.TokenAddress)
			assert.NotEqual(t, mintE.String(), c.TokenAddress)
			assert.NotEqual(t, "0.000000", c.Amount)
		}
	})

	t.Run("dust below display precision is dropped", func(t *testing.T) {
		dust := &rpc.TransactionMeta{
			PreBalances:  []uint64{1_000},
			PostBalances: []uint64{1_000},
			PreTokenBalances: []rpc.TokenBalance{
				{AccountIndex: 3, Owner: &trader, Mint: mintA, UiTokenAmount: uiAmount("1.0000001")},
			},
			PostTokenBalances: []rpc.TokenBalance{
				{AccountIndex: 3, Owner: &trader, Mint: mintA, UiTokenAmount: uiAmount("1.0000002")},
			},
		}
		result := buildResult(t, testSignature(2), 43, time.Time{}, []solana.PublicKey{trader, axiomProgram}, 1, dust)
		r, err := resolveTransaction(result)
		require.NoError(t, err)

		got := extractBalanceChanges(r, trader.String(), "sig", "43", "now", tokenName)
		assert.Empty(t, got)
	})

	t.Run("nil meta yields empty non-nil slice", func(t *testing.T) {
		r := &resolvedTransaction{keys: solana.PublicKeySlice{trader}}
		got := extractBalanceChanges(r, trader.String(), "sig", "1", "now", tokenName)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestResolveTransaction_LoadedAddresses(t *testing.T) {
	trader := testKey(1)
	pool := testKey(2)

	meta := &rpc.TransactionMeta{
		LoadedAddresses: rpc.LoadedAddresses{
			Writable: solana.PublicKeySlice{pool},
			ReadOnly: solana.PublicKeySlice{axiomProgram},
		},
	}
	result := buildResult(t, testSignature(1), 7, time.Time{}, []solana.PublicKey{trader}, 1, meta)

	r, err := resolveTransaction(result)
	require.NoError(t, err)

	assert.Len(t, r.keys, 3)
	assert.Equal(t, trader.String(), r.signer())
	assert.Equal(t, 1, r.indexOf(pool.String()))
	assert.True(t, r.involves([]solana.PublicKey{axiomProgram}))
	assert.False(t, r.involves([]solana.PublicKey{testKey(99)}))
	assert.Equal(t, history.UnknownTime, r.timeLabel(time.Now()))
}

func TestResolveTransaction_Empty(t *testing.T) {
	_, err := resolveTransaction(nil)
	assert.Error(t, err)

	_, err = resolveTransaction(&rpc.GetTransactionResult{})
	assert.Error(t, err)
}

func TestNormalizeTransaction(t *testing.T) {
	trader := testKey(1)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	blockTime := now.Add(-2 * time.Hour)
	sig := testSignature(3)

	meta := &rpc.TransactionMeta{
		Fee:          5000,
		PreBalances:  []uint64{3_000_000_000, 0},
		PostBalances: []uint64{2_749_995_000, 250_000_000},
		LogMessages:  []string{"Program log: Instruction: Buy"},
	}
	result := buildResult(t, sig, 300, blockTime, []solana.PublicKey{trader, testKey(2), axiomProgram}, 2, meta)
	sigInfo := &rpc.TransactionSignature{Signature: sig, Slot: 301}

	txn, err := normalizeTransaction(sigInfo, result, trader.String(), now, func(string) string { return "X" })
	require.NoError(t, err)

	assert.Equal(t, sig.String(), txn.Signature)
	assert.Equal(t, "301", txn.Block)
	assert.Equal(t, "2 hrs ago", txn.Time)
	require.NotNil(t, txn.Timestamp)
	assert.True(t, blockTime.Equal(*txn.Timestamp))
	assert.Equal(t, []string{"buy"}, txn.Instructions)
	assert.Equal(t, trader.String(), txn.By)
	assert.Equal(t, "0.250005", txn.Value)
	assert.Equal(t, "0.000005", txn.Fee)
	assert.Equal(t, 1, txn.Page)

	require.Len(t, txn.BalanceChanges, 1)
	assert.Equal(t, "-0.250005000", txn.BalanceChanges[0].Amount)
	assert.Equal(t, "2.749995000", txn.BalanceChanges[0].PostBalance)
}
