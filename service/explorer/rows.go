package explorer

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/brojonat/axiomscope/service/history"
)

// Table contract of the explorer UI. Both tables share the same markup.
const (
	TableSelector = "table.w-full.border-separate.caption-bottom.border-spacing-0"
	rowSelector   = "tbody tr"
)

// Column indexes of the transaction table.
const (
	txColSignature    = 1
	txColBlock        = 2
	txColTime         = 3
	txColInstructions = 4
	txColBy           = 5
	txColValue        = 6
	txColFee          = 7
	txColPrograms     = 8
	txColumns         = 9
)

// Column indexes of the balance-change table.
const (
	bcColSignature   = 1
	bcColBlock       = 2
	bcColTime        = 3
	bcColAmount      = 4
	bcColPostBalance = 5
	bcColToken       = 6
	bcColumns        = 7
)

// failureMarkers in a row's markup flag a failed transaction.
var failureMarkers = []string{"failed", "error", "fail", "cancelled"}

// Outcome is the result of extracting one row: a value, or the reason the
// row was skipped.
type Outcome[T any] struct {
	Value  T
	Reason string
	ok     bool
}

// Ok wraps an extracted value.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, ok: true}
}

// Skip records why a row produced nothing.
func Skip[T any](reason string) Outcome[T] {
	return Outcome[T]{Reason: reason}
}

// OK reports whether the outcome carries a value.
func (o Outcome[T]) OK() bool {
	return o.ok
}

// txRow is a parsed transaction row plus the facts callers filter on.
type txRow struct {
	tx     history.Transaction
	at     time.Time
	axiom  bool
	failed bool
}

func cellText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

// afterMarker returns the part of href after the last marker, or "".
func afterMarker(href, marker string) string {
	i := strings.LastIndex(href, marker)
	if i < 0 {
		return ""
	}
	return href[i+len(marker):]
}

func linkedSignature(cell *goquery.Selection) string {
	href, _ := cell.Find("a").First().Attr("href")
	return afterMarker(href, "/tx/")
}

// leafTexts returns the trimmed text of every element without element
// children, dropping "+" separators. A cell with no child elements yields its
// own text split by line.
func leafTexts(cell *goquery.Selection) []string {
	var out []string
	add := func(text string) {
		text = strings.TrimSpace(text)
		if text != "" && text != "+" {
			out = append(out, text)
		}
	}

	leaves := cell.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Children().Length() == 0
	})
	if leaves.Length() == 0 {
		for _, line := range strings.Split(cell.Text(), "\n") {
			add(line)
		}
		return out
	}
	leaves.Each(func(_ int, s *goquery.Selection) {
		add(s.Text())
	})
	return out
}

// signerAddress reads the full address from a possibly truncated "by" cell:
// an account link, then a long title or data-tooltip, then nested span text,
// then the cell text.
func signerAddress(cell *goquery.Selection) string {
	if href, ok := cell.Find("a").First().Attr("href"); ok && strings.Contains(href, "/account/") {
		return afterMarker(href, "/account/")
	}

	var full string
	cell.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"title", "data-tooltip"} {
			if v, ok := s.Attr(attr); ok && len(v) > 20 {
				full = v
				return false
			}
		}
		return true
	})
	if full != "" {
		return full
	}

	if nested := cell.Find("span span").First(); nested.Length() > 0 {
		return cellText(nested)
	}
	return cellText(cell)
}

func linksProgram(cell *goquery.Selection, programIDs []string) bool {
	found := false
	cell.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		for _, id := range programIDs {
			if strings.Contains(href, id) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func rowFailed(row *goquery.Selection) bool {
	html, err := goquery.OuterHtml(row)
	if err != nil {
		return false
	}
	html = strings.ToLower(html)
	for _, marker := range failureMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

// parseTransactionRow extracts one transaction table row. The time cell is
// kept verbatim as the label; the instant is only set when it parsed.
func parseTransactionRow(row *goquery.Selection, now time.Time, programIDs []string) Outcome[txRow] {
	cells := row.Find("td")
	if cells.Length() < txColumns {
		return Skip[txRow]("short_row")
	}

	signature := linkedSignature(cells.Eq(txColSignature))
	if signature == "" {
		return Skip[txRow]("no_signature")
	}

	blockCell := cells.Eq(txColBlock)
	block := cellText(blockCell.Find("a").First())
	if block == "" {
		block = cellText(blockCell)
	}

	timeText := cellText(cells.Eq(txColTime))
	at, parsed := ParseTimeText(timeText, now)

	r := txRow{
		tx: history.Transaction{
			Signature:      signature,
			Block:          block,
			Time:           timeText,
			Instructions:   leafTexts(cells.Eq(txColInstructions)),
			By:             signerAddress(cells.Eq(txColBy)),
			Value:          cellText(cells.Eq(txColValue)),
			Fee:            cellText(cells.Eq(txColFee)),
			BalanceChanges: []history.BalanceChange{},
		},
		at:     at,
		axiom:  linksProgram(cells.Eq(txColPrograms), programIDs),
		failed: rowFailed(row),
	}
	if parsed {
		ts := at.UTC()
		r.tx.Timestamp = &ts
	}
	if len(r.tx.Instructions) == 0 {
		r.tx.Instructions = []string{history.UnknownInstruction}
	}
	return Ok(r)
}

// parseBalanceRow extracts one balance-change table row. Rows whose token
// has no name are skipped.
func parseBalanceRow(row *goquery.Selection) Outcome[history.BalanceChange] {
	cells := row.Find("td")
	if cells.Length() < bcColumns {
		return Skip[history.BalanceChange]("short_row")
	}

	signature := linkedSignature(cells.Eq(bcColSignature))
	if signature == "" {
		return Skip[history.BalanceChange]("no_signature")
	}

	token := cells.Eq(bcColToken).Find("a.text-current").First()
	name := cellText(token)
	if name == "" {
		return Skip[history.BalanceChange]("no_token_name")
	}
	href, _ := token.Attr("href")

	return Ok(history.BalanceChange{
		Signature:    signature,
		Block:        cellText(cells.Eq(bcColBlock)),
		Time:         cellText(cells.Eq(bcColTime)),
		Amount:       cellText(cells.Eq(bcColAmount)),
		PostBalance:  cellText(cells.Eq(bcColPostBalance)),
		TokenName:    name,
		TokenAddress: afterMarker(href, "/token/"),
	})
}
