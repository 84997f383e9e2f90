package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/brojonat/axiomscope/service/metrics"
)

// controlJitter is the maximum offset of a Bezier control point from the
// straight line between start and end.
const controlJitter = 50.0

// BezierPath returns n points along a cubic Bezier curve from start to end.
// Both control points are jittered by up to ±50px. The first point is start
// and the last is end.
func BezierPath(start, end Point, n int, rng *rand.Rand) []Point {
	n = max(n, 2)
	jitter := func() float64 { return (rng.Float64()*2 - 1) * controlJitter }

	c1 := Point{
		X: start.X + (end.X-start.X)/3 + jitter(),
		Y: start.Y + (end.Y-start.Y)/3 + jitter(),
	}
	c2 := Point{
		X: start.X + 2*(end.X-start.X)/3 + jitter(),
		Y: start.Y + 2*(end.Y-start.Y)/3 + jitter(),
	}

	points := make([]Point, n)
	for i := range points {
		t := float64(i) / float64(n-1)
		u := 1 - t
		points[i] = Point{
			X: u*u*u*start.X + 3*u*u*t*c1.X + 3*u*t*t*c2.X + t*t*t*end.X,
			Y: u*u*u*start.Y + 3*u*u*t*c1.Y + 3*u*t*t*c2.Y + t*t*t*end.Y,
		}
	}
	points[0], points[n-1] = start, end
	return points
}

// Evasion produces human-looking pointer and scroll activity. It never
// returns errors: failed or panicking actions are logged and skipped.
// Not safe for concurrent use; the engine worker is its only caller.
type Evasion struct {
	rng     *rand.Rand
	cursor  Point
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEvasion creates an evasion layer with a randomly seeded generator.
func NewEvasion(m *metrics.Metrics, logger *slog.Logger) *Evasion {
	return &Evasion{
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:     time.Now,
		sleep:   sleepContext,
		metrics: m,
		logger:  logger,
	}
}

func (e *Evasion) between(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(e.rng.Int64N(int64(hi-lo)+1))
}

// safely runs one action, converting panics into logged failures.
func (e *Evasion) safely(ctx context.Context, action string, fn func() error) {
	status := "success"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			e.logger.WarnContext(ctx, "evasion action panicked", "action", action, "panic", r)
		}
		if e.metrics != nil {
			e.metrics.RecordEvasionAction(action, status)
		}
	}()

	if err := fn(); err != nil {
		status = "error"
		e.logger.DebugContext(ctx, "evasion action failed", "action", action, "error", err)
	}
}

func (e *Evasion) randomPoint(p Pointer) Point {
	w, h := p.Viewport()
	if w <= 0 || h <= 0 {
		w, h = 480, 480
	}
	return Point{X: e.rng.Float64() * w, Y: e.rng.Float64() * h}
}

func (e *Evasion) moveAlong(ctx context.Context, p Pointer, target Point) error {
	path := BezierPath(e.cursor, target, 10+e.rng.IntN(16), e.rng)
	for _, pt := range path {
		if err := p.MoveTo(ctx, pt); err != nil {
			return err
		}
		e.cursor = pt
		if err := e.sleep(ctx, e.between(5*time.Millisecond, 20*time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evasion) scroll(ctx context.Context, p Pointer) error {
	dy := float64(100 + e.rng.IntN(201))
	if e.rng.IntN(2) == 0 {
		dy = -dy
	}
	if err := p.Scroll(ctx, 0, dy); err != nil {
		return err
	}
	return e.sleep(ctx, e.between(300*time.Millisecond, 900*time.Millisecond))
}

func (e *Evasion) circle(ctx context.Context, p Pointer) error {
	radius := float64(10 + e.rng.IntN(21))
	center := e.cursor
	for i := 0; i <= 8; i++ {
		angle := 2 * math.Pi * float64(i) / 8
		pt := Point{X: center.X + radius*math.Cos(angle), Y: center.Y + radius*math.Sin(angle)}
		if err := p.MoveTo(ctx, pt); err != nil {
			return err
		}
		e.cursor = pt
		if err := e.sleep(ctx, e.between(10*time.Millisecond, 30*time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}

// Wander makes 3-5 curved pointer moves, each followed by a pause, a
// scroll or a small circle.
func (e *Evasion) Wander(ctx context.Context, p Pointer) {
	moves := 3 + e.rng.IntN(3)
	for i := 0; i < moves && ctx.Err() == nil; i++ {
		e.safely(ctx, "move", func() error {
			return e.moveAlong(ctx, p, e.randomPoint(p))
		})

		switch e.rng.IntN(3) {
		case 0:
			e.safely(ctx, "pause", func() error {
				return e.sleep(ctx, e.between(200*time.Millisecond, 800*time.Millisecond))
			})
		case 1:
			e.safely(ctx, "scroll", func() error { return e.scroll(ctx, p) })
		default:
			e.safely(ctx, "circle", func() error { return e.circle(ctx, p) })
		}
	}
}

// Simulate mixes wandering, scrolling, hovering over one of the first ten
// divs and idle reading pauses until d has elapsed.
func (e *Evasion) Simulate(ctx context.Context, p Pointer, d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := e.now().Add(d)
	e.logger.DebugContext(ctx, "simulating activity", "duration_seconds", d.Seconds())

	for ctx.Err() == nil {
		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			return
		}

		switch roll := e.rng.IntN(10); {
		case roll < 4:
			e.Wander(ctx, p)
		case roll < 6:
			e.safely(ctx, "scroll", func() error { return e.scroll(ctx, p) })
		case roll < 8:
			e.safely(ctx, "hover", func() error {
				idx := e.rng.IntN(10)
				if err := p.Hover(ctx, "div", idx); err != nil {
					return fmt.Errorf("hover div %d: %w", idx, err)
				}
				return e.sleep(ctx, e.between(200*time.Millisecond, 600*time.Millisecond))
			})
		default:
			e.safely(ctx, "idle", func() error {
				return e.sleep(ctx, min(e.between(time.Second, 3*time.Second), remaining))
			})
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
