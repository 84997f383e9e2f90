package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	windowWidth  = 480
	windowHeight = 480
)

// rodSession is a Session backed by a stealth page in a launched Chrome.
type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// launch starts Chrome with l, connects and opens a stealth page.
func launch(ctx context.Context, l *launcher.Launcher) (*rodSession, error) {
	l = l.
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", windowWidth, windowHeight)).
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("disable-blink-features"), "AutomationControlled").
		NoSandbox(true)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("open stealth page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             windowWidth,
		Height:            windowHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	return &rodSession{launcher: l, browser: b, page: page}, nil
}

// PinnedStrategy launches the given Chrome binary with a visible window.
func PinnedStrategy(bin string) SessionStrategy {
	return NewStrategy("pinned", func(ctx context.Context) (Session, error) {
		if bin == "" {
			return nil, errors.New("no browser binary configured")
		}
		return launch(ctx, launcher.New().Context(ctx).Bin(bin).Headless(false))
	})
}

// AutoStrategy launches the locally installed browser found on the system.
func AutoStrategy() SessionStrategy {
	return NewStrategy("auto", func(ctx context.Context) (Session, error) {
		bin, found := launcher.LookPath()
		if !found {
			return nil, errors.New("no local browser found")
		}
		return launch(ctx, launcher.New().Context(ctx).Bin(bin).Headless(false))
	})
}

// HeadlessStrategy launches headless Chrome, downloading it if needed.
func HeadlessStrategy() SessionStrategy {
	return NewStrategy("headless", func(ctx context.Context) (Session, error) {
		return launch(ctx, launcher.New().Context(ctx).Headless(true))
	})
}

// DefaultStrategies returns pinned (when bin is set), auto, then headless.
func DefaultStrategies(bin string) []SessionStrategy {
	strategies := make([]SessionStrategy, 0, 3)
	if bin != "" {
		strategies = append(strategies, PinnedStrategy(bin))
	}
	return append(strategies, AutoStrategy(), HeadlessStrategy())
}

func notFound(err error, what string) error {
	var nf *rod.ElementNotFoundError
	if errors.As(err, &nf) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load of %s: %w", url, err)
	}
	return nil
}

func (s *rodSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if _, err := s.page.Context(ctx).Timeout(timeout).Element(selector); err != nil {
		return notFound(err, selector)
	}
	return nil
}

func (s *rodSession) OuterHTML(ctx context.Context, selector string) (string, error) {
	el, err := s.page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(selector)
	if err != nil {
		return "", notFound(err, selector)
	}
	html, err := el.HTML()
	if err != nil {
		return "", fmt.Errorf("read html of %s: %w", selector, err)
	}
	return html, nil
}

func (s *rodSession) Find(ctx context.Context, loc Locator) (Control, error) {
	page := s.page.Context(ctx).Sleeper(rod.NotFoundSleeper)

	var el *rod.Element
	var err error
	switch loc.Kind {
	case ByJS:
		el, err = page.ElementByJS(rod.Eval(loc.Expr))
	case ByCSS:
		el, err = page.Element(loc.Expr)
	case ByXPath:
		el, err = page.ElementX(loc.Expr)
	default:
		return nil, fmt.Errorf("unsupported locator kind %s", loc.Kind)
	}
	if err != nil {
		return nil, notFound(err, loc.String())
	}
	return &rodControl{el: el}, nil
}

func (s *rodSession) Viewport() (float64, float64) {
	return windowWidth, windowHeight
}

func (s *rodSession) MoveTo(ctx context.Context, p Point) error {
	return s.page.Context(ctx).Mouse.MoveTo(proto.Point{X: p.X, Y: p.Y})
}

func (s *rodSession) Scroll(ctx context.Context, dx, dy float64) error {
	return s.page.Context(ctx).Mouse.Scroll(dx, dy, 4)
}

func (s *rodSession) Hover(ctx context.Context, selector string, index int) error {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(els) {
		return fmt.Errorf("%w: %s[%d]", ErrNotFound, selector, index)
	}
	return els[index].Hover()
}

func (s *rodSession) Close() error {
	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	s.launcher.Kill()
	return errors.Join(errs...)
}

type rodControl struct {
	el *rod.Element
}

func (c *rodControl) Enabled(ctx context.Context) (bool, error) {
	el := c.el.Context(ctx)
	attr, err := el.Attribute("disabled")
	if err != nil {
		return false, err
	}
	if attr != nil {
		return false, nil
	}
	prop, err := el.Property("disabled")
	if err != nil {
		return false, err
	}
	return !prop.Bool(), nil
}

func (c *rodControl) Click(ctx context.Context) error {
	return c.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}
