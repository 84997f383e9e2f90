package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Decimal places used when rendering amounts.
const (
	SOLValuePlaces  int32 = 6
	SOLChangePlaces int32 = 9
	TokenPlaces     int32 = 6
)

// LamportsToSOL converts a lamport count to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.New(int64(lamports), -9)
}

// FormatSOL renders a SOL value or fee with fixed precision.
func FormatSOL(d decimal.Decimal) string {
	return d.StringFixed(SOLValuePlaces)
}

// FormatChange renders a signed delta with an explicit sign and thousands separators,
// e.g. "+1,234.500000" or "-0.250000".
func FormatChange(d decimal.Decimal, places int32) string {
	d = d.Round(places)
	body := groupThousands(d.Abs().StringFixed(places))
	switch d.Sign() {
	case 1:
		return "+" + body
	case -1:
		return "-" + body
	default:
		return body
	}
}

// FormatBalance renders an unsigned balance with thousands separators.
func FormatBalance(d decimal.Decimal, places int32) string {
	if d.Sign() < 0 {
		return "-" + groupThousands(d.Abs().StringFixed(places))
	}
	return groupThousands(d.StringFixed(places))
}

func groupThousands(s string) string {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if len(whole) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// RelativeLabel renders the age of t at now the way the explorer does,
// e.g. "3 days ago", "1 hr ago", "12 mins ago" or "just now".
func RelativeLabel(t, now time.Time) string {
	diff := now.Sub(t)
	if diff < 0 {
		return "just now"
	}

	days := int(diff / (24 * time.Hour))
	if days > 0 {
		return fmt.Sprintf("%d %s ago", days, plural("day", days))
	}

	secs := int(diff / time.Second)
	switch {
	case secs > 3600:
		hours := secs / 3600
		return fmt.Sprintf("%d %s ago", hours, plural("hr", hours))
	case secs > 60:
		mins := secs / 60
		return fmt.Sprintf("%d %s ago", mins, plural("min", mins))
	default:
		return "just now"
	}
}

func plural(unit string, n int) string {
	if n > 1 {
		return unit + "s"
	}
	return unit
}
