package explorer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/axiomscope/service/browser"
	"github.com/brojonat/axiomscope/service/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "https://explorer.test"

// fakeSite is a browser.Session serving canned table pages per URL. Only the
// chevron (JS) locator resolves unless controls overrides lookup.
type fakeSite struct {
	pages    map[string][]string
	endless  bool
	controls map[browser.Locator]*fakeControl

	current   string
	index     int
	navigated []string
	clicks    int
}

type fakeControl struct {
	site    *fakeSite
	enabled bool
	clicked int
}

func (c *fakeControl) Enabled(ctx context.Context) (bool, error) { return c.enabled, nil }

func (c *fakeControl) Click(ctx context.Context) error {
	c.clicked++
	c.site.clicks++
	c.site.index++
	return nil
}

func (f *fakeSite) Viewport() (float64, float64) { return 480, 480 }

func (f *fakeSite) MoveTo(ctx context.Context, p browser.Point) error { return nil }

func (f *fakeSite) Scroll(ctx context.Context, dx, dy float64) error { return nil }

func (f *fakeSite) Hover(ctx context.Context, selector string, index int) error { return nil }

func (f *fakeSite) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	f.current = url
	f.index = 0
	return nil
}

func (f *fakeSite) page() (string, bool) {
	pages := f.pages[f.current]
	if len(pages) == 0 {
		return "", false
	}
	return pages[min(f.index, len(pages)-1)], true
}

func (f *fakeSite) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if _, ok := f.page(); !ok {
		return browser.ErrNotFound
	}
	return nil
}

func (f *fakeSite) OuterHTML(ctx context.Context, selector string) (string, error) {
	markup, ok := f.page()
	if !ok || selector != TableSelector {
		return "", browser.ErrNotFound
	}
	return markup, nil
}

func (f *fakeSite) Find(ctx context.Context, loc browser.Locator) (browser.Control, error) {
	if f.controls != nil {
		c, ok := f.controls[loc]
		if !ok {
			return nil, browser.ErrNotFound
		}
		return c, nil
	}
	if loc != nextPageLocators[0] {
		return nil, browser.ErrNotFound
	}
	hasNext := f.endless || f.index < len(f.pages[f.current])-1
	return &fakeControl{site: f, enabled: hasNext}, nil
}

func (f *fakeSite) Close() error { return nil }

func newTestScraper(t *testing.T, site *fakeSite, cfg Config) *Scraper {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := browser.NewEngine(browser.EngineConfig{}, []browser.SessionStrategy{
		browser.NewStrategy("fake", func(ctx context.Context) (browser.Session, error) { return site, nil }),
	}, nil, logger)
	engine.Start()
	t.Cleanup(engine.Stop)

	cfg.BaseURL = testBase
	s := NewScraper(engine, cfg, nil, logger)
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	s.now = func() time.Time { return testNow }
	return s
}

func TestScraper_FindAddresses(t *testing.T) {
	ctx := context.Background()
	programURL := testBase + "/account/" + axiomID

	pages := []string{
		txTable(
			txFixture{sig: sig(1), block: "10", time: "1 min ago", by: traderA, programs: []string{axiomID}},
			txFixture{sig: sig(2), block: "10", time: "1 min ago", by: axiomID, programs: []string{axiomID}},
			txFixture{sig: sig(3), block: "10", time: "1 min ago", by: traderB, programs: []string{otherProg}},
			txFixture{sig: sig(4), block: "10", time: "1 min ago", by: traderA, programs: []string{axiomID}},
		),
		txTable(
			txFixture{sig: sig(5), block: "9", time: "2 mins ago", by: traderC, programs: []string{otherProg, axiomID}},
			txFixture{sig: sig(6), block: "9", time: "2 mins ago", by: traderB, programs: []string{axiomID}},
		),
	}

	t.Run("collects axiom signers across pages", func(t *testing.T) {
		site := &fakeSite{pages: map[string][]string{programURL: pages}}
		s := newTestScraper(t, site, Config{})

		set, err := s.FindAddresses(ctx, axiomID, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{traderA, traderC, traderB}, set.UniqueAddresses)
		assert.Equal(t, 3, set.TotalFound)
		assert.Equal(t, 10, set.TargetCount)
		assert.Equal(t, 2, set.PagesProcessed)
		assert.Equal(t, []string{programURL}, site.navigated)
		assert.Equal(t, 1, site.clicks)
	})

	t.Run("stops once max is reached", func(t *testing.T) {
		site := &fakeSite{pages: map[string][]string{programURL: pages}}
		s := newTestScraper(t, site, Config{})

		set, err := s.FindAddresses(ctx, axiomID, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{traderA}, set.UniqueAddresses)
		assert.Equal(t, 1, set.PagesProcessed)
		assert.Zero(t, site.clicks)
	})

	t.Run("configured program IDs are never collected", func(t *testing.T) {
		site := &fakeSite{pages: map[string][]string{programURL: {txTable(
			txFixture{sig: sig(7), block: "8", time: "3 mins ago", by: otherProg, programs: []string{axiomID}},
			txFixture{sig: sig(8), block: "8", time: "3 mins ago", by: traderA, programs: []string{axiomID}},
		)}}}
		s := newTestScraper(t, site, Config{ProgramIDs: []string{axiomID, otherProg}})

		set, err := s.FindAddresses(ctx, axiomID, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{traderA}, set.UniqueAddresses)
	})

	t.Run("missing table yields empty set", func(t *testing.T) {
		site := &fakeSite{}
		s := newTestScraper(t, site, Config{})

		set, err := s.FindAddresses(ctx, axiomID, 5)
		require.NoError(t, err)
		assert.Empty(t, set.UniqueAddresses)
		assert.Zero(t, set.PagesProcessed)
	})
}

func TestScraper_PageLimit(t *testing.T) {
	ctx := context.Background()
	programURL := testBase + "/account/" + axiomID
	page := txTable(txFixture{sig: sig(1), block: "1", time: "just now", by: traderA, programs: []string{axiomID}})

	for _, limit := range []int{1, 3, 5} {
		site := &fakeSite{pages: map[string][]string{programURL: {page}}, endless: true}
		s := newTestScraper(t, site, Config{MaxPages: limit})

		set, err := s.FindAddresses(ctx, axiomID, 10)
		require.NoError(t, err)
		assert.Equal(t, limit, set.PagesProcessed)
		assert.Equal(t, limit-1, site.clicks, "at most P-1 next navigations")
	}
}

func TestScraper_AddressTransactions(t *testing.T) {
	ctx := context.Background()
	accountURL := testBase + "/account/" + traderA

	site := &fakeSite{pages: map[string][]string{accountURL: {
		txTable(
			txFixture{sig: sig(1), block: "300", time: "5 mins ago", by: traderA, programs: []string{axiomID}},
			txFixture{sig: sig(2), block: "299", time: "10 mins ago", by: traderA, programs: []string{otherProg}},
			txFixture{sig: sig(3), block: "298", time: "2 hrs ago", by: traderA, programs: []string{axiomID}, status: "failed"},
			txFixture{sig: sig(4), block: "297", time: "3 hrs ago", by: traderA, programs: []string{axiomID}},
		),
		txTable(
			txFixture{sig: sig(5), block: "200", time: "20 hrs ago", by: traderA, programs: []string{axiomID}},
			txFixture{sig: sig(6), block: "100", time: "2 days ago", by: traderA, programs: []string{axiomID}},
			txFixture{sig: sig(7), block: "99", time: "3 hrs ago", by: traderA, programs: []string{axiomID}},
		),
		txTable(
			txFixture{sig: sig(8), block: "50", time: "3 days ago", by: traderA, programs: []string{axiomID}},
		),
	}}}
	s := newTestScraper(t, site, Config{})

	txs, err := s.AddressTransactions(ctx, traderA, 1)
	require.NoError(t, err)

	require.Len(t, txs, 3)
	assert.Equal(t, sig(1), txs[0].Signature)
	assert.Equal(t, sig(4), txs[1].Signature)
	assert.Equal(t, sig(5), txs[2].Signature)
	assert.Equal(t, []int{1, 1, 2}, []int{txs[0].Page, txs[1].Page, txs[2].Page})
	assert.Equal(t, "5 mins ago", txs[0].Time)
	assert.Equal(t, "300", txs[0].Block)
	assert.Equal(t, 1, site.clicks, "pagination stops at the cutoff")
}

func TestScraper_BalanceChanges(t *testing.T) {
	ctx := context.Background()
	url := testBase + "/account/" + traderA + "?page=1#balanceChanges"

	site := &fakeSite{pages: map[string][]string{url: {
		bcTable(
			bcFixture{sig: sig(1), amount: "+1,000", post: "1,000", token: "BONK", mint: bonkMint},
			bcFixture{sig: sig(9), amount: "+5", post: "5", token: "WIF", mint: wifMint},
			bcFixture{sig: sig(1), amount: "-0.5", post: "1.2", token: "SOL", mint: history.SOLMint},
			bcFixture{sig: sig(2), amount: "+7", post: "7"},
		),
		bcTable(
			bcFixture{sig: sig(2), amount: "-3", post: "0", token: "WIF", mint: wifMint},
		),
		bcTable(
			bcFixture{sig: sig(3), amount: "-3", post: "0", token: "WIF", mint: wifMint},
		),
	}}}
	s := newTestScraper(t, site, Config{})

	changes, err := s.BalanceChanges(ctx, traderA, []string{sig(1), sig(2)})
	require.NoError(t, err)

	require.Len(t, changes, 2)
	require.Len(t, changes[sig(1)], 2)
	assert.Equal(t, "BONK", changes[sig(1)][0].TokenName)
	assert.Equal(t, bonkMint, changes[sig(1)][0].TokenAddress)
	assert.Equal(t, "SOL", changes[sig(1)][1].TokenName)
	require.Len(t, changes[sig(2)], 1)
	assert.Equal(t, "-3", changes[sig(2)][0].Amount)
	assert.NotContains(t, changes, sig(9))
	assert.Equal(t, 1, site.clicks, "stops once every signature is found")

	t.Run("no signatures needs no navigation", func(t *testing.T) {
		site := &fakeSite{}
		s := newTestScraper(t, site, Config{})
		changes, err := s.BalanceChanges(ctx, traderA, nil)
		require.NoError(t, err)
		assert.Empty(t, changes)
		assert.Empty(t, site.navigated)
	})
}

func TestScraper_AddressHistory(t *testing.T) {
	ctx := context.Background()
	accountURL := testBase + "/account/" + traderA
	balanceURL := accountURL + "?page=1#balanceChanges"

	site := &fakeSite{pages: map[string][]string{
		accountURL: {txTable(
			txFixture{sig: sig(1), block: "300", time: "5 mins ago", by: traderA, programs: []string{axiomID}},
			txFixture{sig: sig(2), block: "299", time: "1 hr ago", by: traderA, programs: []string{axiomID}},
		)},
		balanceURL: {bcTable(
			bcFixture{sig: sig(2), amount: "+42", post: "42", token: "WIF", mint: wifMint},
		)},
	}}
	s := newTestScraper(t, site, Config{})

	txs, err := s.AddressHistory(ctx, traderA, 1)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Empty(t, txs[0].BalanceChanges)
	assert.NotNil(t, txs[0].BalanceChanges)
	require.Len(t, txs[1].BalanceChanges, 1)
	assert.Equal(t, "+42", txs[1].BalanceChanges[0].Amount)
	assert.Equal(t, []string{accountURL, balanceURL}, site.navigated)

	report := history.Summarize(traderA, 1, txs, testNow)
	assert.Equal(t, 2, report.Summary.TotalTransactions)
	assert.Equal(t, 1, report.Summary.BalanceChangesFound)

	t.Run("no transactions skips balance scrape", func(t *testing.T) {
		site := &fakeSite{pages: map[string][]string{accountURL: {txTable()}}}
		s := newTestScraper(t, site, Config{})

		txs, err := s.AddressHistory(ctx, traderA, 1)
		require.NoError(t, err)
		assert.Empty(t, txs)
		assert.Equal(t, []string{accountURL}, site.navigated)
	})
}

func TestNextPage(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("skips disabled controls for the next enabled one", func(t *testing.T) {
		site := &fakeSite{}
		disabled := &fakeControl{site: site, enabled: false}
		aria := &fakeControl{site: site, enabled: true}
		xpath := &fakeControl{site: site, enabled: true}
		site.controls = map[browser.Locator]*fakeControl{
			nextPageLocators[1]: disabled,
			nextPageLocators[2]: aria,
			nextPageLocators[4]: xpath,
		}

		require.NoError(t, nextPage(ctx, site, logger))
		assert.Zero(t, disabled.clicked)
		assert.Equal(t, 1, aria.clicked)
		assert.Zero(t, xpath.clicked)
	})

	t.Run("text locator is the last resort", func(t *testing.T) {
		site := &fakeSite{}
		xpath := &fakeControl{site: site, enabled: true}
		site.controls = map[browser.Locator]*fakeControl{nextPageLocators[4]: xpath}

		require.NoError(t, nextPage(ctx, site, logger))
		assert.Equal(t, 1, xpath.clicked)
	})

	t.Run("no enabled control exhausts pagination", func(t *testing.T) {
		site := &fakeSite{}
		site.controls = map[browser.Locator]*fakeControl{
			nextPageLocators[0]: {site: site, enabled: false},
		}
		assert.ErrorIs(t, nextPage(ctx, site, logger), ErrPaginationExhausted)
	})
}
