package solana

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/axiomscope/service/history"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// This file is the only place that knows the shape of rpc.GetTransactionResult.

// resolvedTransaction is a decoded RPC transaction with its full key list.
type resolvedTransaction struct {
	slot      uint64
	blockTime *time.Time
	tx        *solana.Transaction
	meta      *rpc.TransactionMeta
	keys      solana.PublicKeySlice
}

// resolveTransaction decodes the envelope and builds the complete account key
// list: static keys followed by loaded writable and readonly addresses.
func resolveTransaction(result *rpc.GetTransactionResult) (*resolvedTransaction, error) {
	if result == nil || result.Transaction == nil {
		return nil, fmt.Errorf("transaction result is empty")
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	keys := make(solana.PublicKeySlice, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	if result.Meta != nil {
		keys = append(keys, result.Meta.LoadedAddresses.Writable...)
		keys = append(keys, result.Meta.LoadedAddresses.ReadOnly...)
	}

	r := &resolvedTransaction{
		slot: result.Slot,
		tx:   tx,
		meta: result.Meta,
		keys: keys,
	}
	if result.BlockTime != nil {
		t := result.BlockTime.Time().UTC()
		r.blockTime = &t
	}
	return r, nil
}

// signer returns the first account key, the fee payer.
func (r *resolvedTransaction) signer() string {
	if len(r.keys) == 0 {
		return ""
	}
	return r.keys[0].String()
}

// involves reports whether any of programs appears among the account keys.
func (r *resolvedTransaction) involves(programs []solana.PublicKey) bool {
	for _, key := range r.keys {
		for _, p := range programs {
			if key.Equals(p) {
				return true
			}
		}
	}
	return false
}

func (r *resolvedTransaction) indexOf(address string) int {
	for i, key := range r.keys {
		if key.String() == address {
			return i
		}
	}
	return -1
}

func (r *resolvedTransaction) timeLabel(now time.Time) string {
	if r.blockTime == nil {
		return history.UnknownTime
	}
	return history.RelativeLabel(*r.blockTime, now)
}

// normalizeTransaction converts an RPC transaction into the canonical record,
// with balance changes for address embedded. tokenName resolves mint names.
func normalizeTransaction(
	sig *rpc.TransactionSignature,
	result *rpc.GetTransactionResult,
	address string,
	now time.Time,
	tokenName func(mint string) string,
) (*history.Transaction, error) {
	r, err := resolveTransaction(result)
	if err != nil {
		return nil, err
	}

	slot := r.slot
	if sig != nil && sig.Slot != 0 {
		slot = sig.Slot
	}
	signature := ""
	if sig != nil {
		signature = sig.Signature.String()
	} else if len(r.tx.Signatures) > 0 {
		signature = r.tx.Signatures[0].String()
	}

	var fee uint64
	var logs []string
	if r.meta != nil {
		fee = r.meta.Fee
		logs = r.meta.LogMessages
	}

	txn := &history.Transaction{
		Signature:    signature,
		Block:        strconv.FormatUint(slot, 10),
		Time:         r.timeLabel(now),
		Timestamp:    r.blockTime,
		Instructions: extractInstructions(logs, len(r.tx.Message.Instructions)),
		By:           r.signer(),
		Value:        history.FormatSOL(maxSOLDelta(r.meta)),
		Fee:          history.FormatSOL(history.LamportsToSOL(fee)),
		Page:         1,
	}
	txn.BalanceChanges = extractBalanceChanges(r, address, signature, txn.Block, txn.Time, tokenName)
	return txn, nil
}

// extractInstructions labels a transaction from its log messages. Buy, sell and
// swap are reported at most once each in log order. Without any of them a
// count label like "3+" is used for multi-instruction transactions.
func extractInstructions(logs []string, instructionCount int) []string {
	labels := make([]string, 0, 3)
	seen := make(map[string]bool, 3)
	add := func(label string) {
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}

	for _, line := range logs {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "instruction: buy"):
			add("buy")
		case strings.Contains(lower, "instruction: sell"):
			add("sell")
		case strings.Contains(lower, "swap"):
			add("swap")
		}
	}

	if len(labels) == 0 && instructionCount > 1 {
		labels = append(labels, fmt.Sprintf("%d+", instructionCount))
	}
	if len(labels) == 0 {
		return []string{history.UnknownInstruction}
	}
	return labels
}

// maxSOLDelta returns the largest absolute lamport movement of any account, in SOL.
func maxSOLDelta(meta *rpc.TransactionMeta) decimal.Decimal {
	if meta == nil {
		return decimal.Zero
	}
	var largest uint64
	n := min(len(meta.PreBalances), len(meta.PostBalances))
	for i := 0; i < n; i++ {
		pre, post := meta.PreBalances[i], meta.PostBalances[i]
		delta := post - pre
		if pre > post {
			delta = pre - post
		}
		largest = max(largest, delta)
	}
	return history.LamportsToSOL(largest)
}

type tokenDelta struct {
	pre  decimal.Decimal
	post decimal.Decimal
}

// extractBalanceChanges reports token and native SOL movements for address.
// Token balances belong to address when their account index is the address's
// index or their owner is address. Pre and post entries are merged per mint;
// a mint missing on one side counts as zero there. Zero deltas are dropped.
func extractBalanceChanges(
	r *resolvedTransaction,
	address, signature, block, timeLabel string,
	tokenName func(mint string) string,
) []history.BalanceChange {
	changes := make([]history.BalanceChange, 0)
	if r.meta == nil {
		return changes
	}

	idx := r.indexOf(address)
	owns := func(b rpc.TokenBalance) bool {
		if idx >= 0 && int(b.AccountIndex) == idx {
			return true
		}
		return b.Owner != nil && b.Owner.String() == address
	}

	order := make([]string, 0)
	deltas := make(map[string]*tokenDelta)
	for _, b := range r.meta.PreTokenBalances {
		if !owns(b) {
			continue
		}
		mint := b.Mint.String()
		if _, ok := deltas[mint]; !ok {
			order = append(order, mint)
		}
		deltas[mint] = &tokenDelta{pre: tokenAmount(b.UiTokenAmount), post: decimal.Zero}
	}
	for _, b := range r.meta.PostTokenBalances {
		if !owns(b) {
			continue
		}
		mint := b.Mint.String()
		if d, ok := deltas[mint]; ok {
			d.post = tokenAmount(b.UiTokenAmount)
			continue
		}
		order = append(order, mint)
		deltas[mint] = &tokenDelta{pre: decimal.Zero, post: tokenAmount(b.UiTokenAmount)}
	}

	for _, mint := range order {
		d := deltas[mint]
		change := d.post.Sub(d.pre)
		if change.Round(history.TokenPlaces).IsZero() {
			continue
		}
		changes = append(changes, history.BalanceChange{
			Signature:    signature,
			Block:        block,
			Time:         timeLabel,
			Amount:       history.FormatChange(change, history.TokenPlaces),
			PostBalance:  history.FormatBalance(d.post, history.TokenPlaces),
			TokenName:    tokenName(mint),
			TokenAddress: mint,
		})
	}

	if idx >= 0 && idx < len(r.meta.PreBalances) && idx < len(r.meta.PostBalances) {
		pre := history.LamportsToSOL(r.meta.PreBalances[idx])
		post := history.LamportsToSOL(r.meta.PostBalances[idx])
		change := post.Sub(pre)
		if !change.Round(history.SOLChangePlaces).IsZero() {
			changes = append(changes, history.BalanceChange{
				Signature:    signature,
				Block:        block,
				Time:         timeLabel,
				Amount:       history.FormatChange(change, history.SOLChangePlaces),
				PostBalance:  history.FormatBalance(post, history.SOLChangePlaces),
				TokenName:    history.SOLTokenName,
				TokenAddress: history.SOLMint,
			})
		}
	}
	return changes
}

// tokenAmount prefers the UI amount string and falls back to the raw amount
// scaled by decimals. Unparsable amounts count as zero.
func tokenAmount(ui *rpc.UiTokenAmount) decimal.Decimal {
	if ui == nil {
		return decimal.Zero
	}
	if ui.UiAmountString != "" {
		if d, err := decimal.NewFromString(ui.UiAmountString); err == nil {
			return d
		}
	}
	if ui.Amount != "" {
		if d, err := decimal.NewFromString(ui.Amount); err == nil {
			return d.Shift(-int32(ui.Decimals))
		}
	}
	return decimal.Zero
}
