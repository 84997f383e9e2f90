package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a selector or locator matches nothing.
var ErrNotFound = errors.New("element not found")

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X, Y float64
}

// LocatorKind selects how a Locator expression is evaluated.
type LocatorKind int

const (
	// ByJS evaluates a JS function returning an element or null.
	ByJS LocatorKind = iota
	// ByCSS matches a CSS selector.
	ByCSS
	// ByXPath matches an XPath expression.
	ByXPath
)

func (k LocatorKind) String() string {
	switch k {
	case ByJS:
		return "js"
	case ByCSS:
		return "css"
	case ByXPath:
		return "xpath"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Locator describes one way of finding an element.
type Locator struct {
	Kind LocatorKind
	Expr string
}

func (l Locator) String() string {
	return l.Kind.String() + ":" + l.Expr
}

// Control is an element that can be clicked.
type Control interface {
	// Enabled reports whether the element is enabled and has no disabled attribute.
	Enabled(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
}

// Pointer is the input surface used for synthetic activity.
type Pointer interface {
	Viewport() (width, height float64)
	MoveTo(ctx context.Context, p Point) error
	Scroll(ctx context.Context, dx, dy float64) error
	// Hover moves over the index-th element matching selector.
	Hover(ctx context.Context, selector string, index int) error
}

// Session is one browser page owned by the engine worker.
// Implementations are not safe for concurrent use.
type Session interface {
	Pointer

	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until selector matches or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// OuterHTML returns the markup of the first element matching selector.
	OuterHTML(ctx context.Context, selector string) (string, error)
	Find(ctx context.Context, loc Locator) (Control, error)
	Close() error
}

// SessionStrategy opens a session one particular way.
type SessionStrategy interface {
	Name() string
	Open(ctx context.Context) (Session, error)
}

type strategyFunc struct {
	name string
	open func(ctx context.Context) (Session, error)
}

// NewStrategy adapts a function to a SessionStrategy.
func NewStrategy(name string, open func(ctx context.Context) (Session, error)) SessionStrategy {
	return strategyFunc{name: name, open: open}
}

func (s strategyFunc) Name() string { return s.name }

func (s strategyFunc) Open(ctx context.Context) (Session, error) { return s.open(ctx) }
