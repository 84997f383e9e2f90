package solana

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/brojonat/axiomscope/service/history"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// MetadataProgramID is the Metaplex token metadata program.
var MetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// metadataKeyV1 is the account discriminator of a metadata account.
const metadataKeyV1 = 4

// MetadataAddress derives the metadata PDA for mint under program.
func MetadataAddress(mint, program solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			program.Bytes(),
			mint.Bytes(),
		},
		program,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive metadata address: %w", err)
	}
	return addr, nil
}

// DecodeMetadata decodes the fixed head of a metadata account:
// key (1), update authority (32), mint (32), then name, symbol and uri as
// u32 little-endian length-prefixed strings. Trailing NUL padding is trimmed.
func DecodeMetadata(data []byte) (*TokenMetadata, error) {
	dec := bin.NewBorshDecoder(data)

	key, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrDecodeFailure, err)
	}
	if key != metadataKeyV1 {
		return nil, fmt.Errorf("%w: unexpected key %d", ErrDecodeFailure, key)
	}

	authority, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, fmt.Errorf("%w: update authority: %v", ErrDecodeFailure, err)
	}
	mint, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, fmt.Errorf("%w: mint: %v", ErrDecodeFailure, err)
	}

	meta := &TokenMetadata{
		UpdateAuthority: solana.PublicKeyFromBytes(authority),
		Mint:            solana.PublicKeyFromBytes(mint),
	}
	for _, field := range []struct {
		name string
		dst  *string
	}{
		{"name", &meta.Name},
		{"symbol", &meta.Symbol},
		{"uri", &meta.URI},
	} {
		s, err := readPrefixedString(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, field.name, err)
		}
		*field.dst = s
	}
	return meta, nil
}

func readPrefixedString(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return "", err
	}
	if int(n) > dec.Remaining() {
		return "", fmt.Errorf("length %d exceeds remaining %d bytes", n, dec.Remaining())
	}
	raw, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(strings.ToValidUTF8(string(raw), ""), "\x00"), nil
}

// TokenName resolves a display name for mint from its on-chain metadata.
// Any failure yields "Unknown Token". Results are cached per client.
func (c *Client) TokenName(ctx context.Context, mint string) string {
	if name, ok := c.tokenNames[mint]; ok {
		if c.metrics != nil {
			c.metrics.RecordTokenNameLookup("cached")
		}
		return name
	}

	name := c.resolveTokenName(ctx, mint)
	c.tokenNames[mint] = name
	if c.metrics != nil {
		result := "resolved"
		if name == history.UnknownToken {
			result = "unknown"
		}
		c.metrics.RecordTokenNameLookup(result)
	}
	return name
}

func (c *Client) resolveTokenName(ctx context.Context, mint string) string {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		c.logger.WarnContext(ctx, "invalid mint address", "mint", mint, "error", err)
		return history.UnknownToken
	}

	pda, err := MetadataAddress(mintKey, c.metadataProgram)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to derive metadata account", "mint", mint, "error", err)
		return history.UnknownToken
	}

	info, err := Retry(ctx, c.retrier, "GetAccountInfo",
		func(r *rpc.GetAccountInfoResult) bool {
			return r == nil || r.Value == nil || r.Value.Data == nil
		},
		func(ctx context.Context, client RPCClient) (*rpc.GetAccountInfoResult, error) {
			return client.GetAccountInfo(ctx, pda)
		},
	)
	if err != nil {
		c.logger.DebugContext(ctx, "no metadata account for mint", "mint", mint, "error", err)
		return history.UnknownToken
	}

	meta, err := DecodeMetadata(info.Value.Data.GetBinary())
	if err != nil {
		c.logger.WarnContext(ctx, "failed to decode token metadata", "mint", mint, "error", err)
		return history.UnknownToken
	}
	return meta.DisplayName()
}
