package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/axiomscope/service/browser"
)

// ErrPaginationExhausted is returned when no enabled next-page control exists.
var ErrPaginationExhausted = errors.New("no enabled next page control")

// nextPageLocators are tried in order: the chevron icon button, attribute
// matches, then button text.
var nextPageLocators = []browser.Locator{
	{
		Kind: browser.ByJS,
		Expr: `() => Array.from(document.querySelectorAll('button')).find(b => b.querySelector('svg.lucide-chevron-right')) || null`,
	},
	{Kind: browser.ByCSS, Expr: "button[class*='chevron-right']"},
	{Kind: browser.ByCSS, Expr: "button[aria-label*='Next']"},
	{Kind: browser.ByCSS, Expr: "button[title*='Next']"},
	{Kind: browser.ByXPath, Expr: "//button[contains(text(), 'Next')]"},
}

// nextPage clicks the first enabled next-page control.
func nextPage(ctx context.Context, s browser.Session, logger *slog.Logger) error {
	for _, loc := range nextPageLocators {
		control, err := s.Find(ctx, loc)
		if err != nil {
			if !errors.Is(err, browser.ErrNotFound) {
				logger.DebugContext(ctx, "next page lookup failed", "locator", loc.String(), "error", err)
			}
			continue
		}

		enabled, err := control.Enabled(ctx)
		if err != nil {
			logger.DebugContext(ctx, "could not read next page state", "locator", loc.String(), "error", err)
			continue
		}
		if !enabled {
			continue
		}

		if err := control.Click(ctx); err != nil {
			return fmt.Errorf("click next page (%s): %w", loc, err)
		}
		logger.DebugContext(ctx, "advanced to next page", "locator", loc.String())
		return nil
	}
	return ErrPaginationExhausted
}
