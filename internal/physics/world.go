// Package physics implements the free-body cube simulation: semi-implicit
// Euler integration, wall containment with restitution, and pairwise elastic
// impulse exchange between sphere-approximated bodies.
package physics

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	DefaultWallX = 2.5
	DefaultWallY = 2.0
	DefaultWallZ = 2.5
)

var (
	ErrInvalidMass        = errors.New("physics: mass must be positive")
	ErrInvalidRestitution = errors.New("physics: restitution must be within [0,1]")
	ErrInvalidHalfExtent  = errors.New("physics: invalid half extent")
	ErrCoincidentBodies   = errors.New("physics: bodies share a position, contact normal undefined")
	ErrNegativeDelta      = errors.New("physics: negative time delta")
	ErrNoBody             = errors.New("physics: no such body")
)

// RestitutionPolicy selects the coefficient used for body-body impulses.
type RestitutionPolicy int

const (
	// RestitutionFirstBody uses the first body of the pair. This is asymmetric
	// when the two coefficients differ.
	RestitutionFirstBody RestitutionPolicy = iota
	// RestitutionMin uses the lesser of the two coefficients.
	RestitutionMin
)

func (p RestitutionPolicy) String() string {
	switch p {
	case RestitutionMin:
		return "min"
	default:
		return "first"
	}
}

// ParseRestitutionPolicy maps "first" or "min" to a policy.
func ParseRestitutionPolicy(s string) (RestitutionPolicy, error) {
	switch strings.ToLower(s) {
	case "", "first":
		return RestitutionFirstBody, nil
	case "min":
		return RestitutionMin, nil
	}
	return 0, fmt.Errorf("physics: unknown restitution policy %q", s)
}

// Config describes the box the bodies live in.
type Config struct {
	// Walls holds the wall distance from the origin on each axis.
	Walls  mgl64.Vec3
	Policy RestitutionPolicy
}

// DefaultConfig returns the room of the default scene.
func DefaultConfig() Config {
	return Config{Walls: mgl64.Vec3{DefaultWallX, DefaultWallY, DefaultWallZ}}
}

// WallHit records a body being clamped against a wall on one axis.
type WallHit struct {
	Body  int
	Axis  int
	Speed float64 // speed into the wall before the bounce
}

// Contact records a resolved body-body collision.
type Contact struct {
	A, B    int
	Impulse float64
	Overlap float64
}

// StepReport lists what happened during a step.
type StepReport struct {
	WallHits []WallHit
	Contacts []Contact
}

func (r *StepReport) merge(o StepReport) {
	r.WallHits = append(r.WallHits, o.WallHits...)
	r.Contacts = append(r.Contacts, o.Contacts...)
}

// World owns the bodies and advances them. It is not safe for concurrent use.
type World struct {
	cfg    Config
	bodies []Body
}

// NewWorld validates every body and returns a world holding them.
func NewWorld(cfg Config, bodies ...Body) (*World, error) {
	w := &World{cfg: cfg, bodies: make([]Body, 0, len(bodies))}
	for _, b := range bodies {
		if _, err := w.AddBody(b); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// AddBody inserts a body and returns its index.
func (w *World) AddBody(b Body) (int, error) {
	if err := b.validate(w.cfg.Walls); err != nil {
		return -1, fmt.Errorf("body %d: %w", len(w.bodies), err)
	}
	w.bodies = append(w.bodies, b)
	return len(w.bodies) - 1, nil
}

// NumBodies returns the number of bodies in the world.
func (w *World) NumBodies() int {
	return len(w.bodies)
}

// Bodies returns a copy of all bodies.
func (w *World) Bodies() []Body {
	out := make([]Body, len(w.bodies))
	copy(out, w.bodies)
	return out
}

// Body returns a copy of body i.
func (w *World) Body(i int) (Body, error) {
	if i < 0 || i >= len(w.bodies) {
		return Body{}, fmt.Errorf("%w: %d", ErrNoBody, i)
	}
	return w.bodies[i], nil
}

// Transform returns the model matrix of body i. Bodies do not rotate, so
// this is a pure translation.
func (w *World) Transform(i int) (mgl64.Mat4, error) {
	b, err := w.Body(i)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	return mgl64.Translate3D(b.Position[0], b.Position[1], b.Position[2]), nil
}

// Advance steps the world by dt, split into equal sub-steps no longer than
// maxStep. A maxStep <= 0 performs a single step.
func (w *World) Advance(dt, maxStep float64) (StepReport, error) {
	if dt < 0 {
		return StepReport{}, fmt.Errorf("%w: %v", ErrNegativeDelta, dt)
	}
	if maxStep <= 0 || dt <= maxStep {
		return w.Step(dt)
	}
	n := int(math.Ceil(dt / maxStep))
	h := dt / float64(n)
	var report StepReport
	for i := 0; i < n; i++ {
		r, err := w.Step(h)
		if err != nil {
			return report, fmt.Errorf("sub-step %d/%d: %w", i+1, n, err)
		}
		report.merge(r)
	}
	return report, nil
}

// Step advances the world by dt seconds.
func (w *World) Step(dt float64) (StepReport, error) {
	if dt < 0 {
		return StepReport{}, fmt.Errorf("%w: %v", ErrNegativeDelta, dt)
	}
	var report StepReport

	for i := range w.bodies {
		integrate(&w.bodies[i], dt)
	}
	for i := range w.bodies {
		for _, hit := range clampWalls(&w.bodies[i], w.cfg.Walls) {
			hit.Body = i
			report.WallHits = append(report.WallHits, hit)
		}
	}
	for i := 0; i < len(w.bodies); i++ {
		for j := i + 1; j < len(w.bodies); j++ {
			c, hit, err := resolvePair(&w.bodies[i], &w.bodies[j], w.cfg.Policy)
			if err != nil {
				return report, fmt.Errorf("bodies %d and %d: %w", i, j, err)
			}
			if hit {
				c.A, c.B = i, j
				report.Contacts = append(report.Contacts, c)
			}
		}
	}
	if len(report.Contacts) > 0 {
		// separation may push a body resting on a wall back through it
		for i := range w.bodies {
			containPosition(&w.bodies[i], w.cfg.Walls)
		}
		for _, c := range report.Contacts {
			settlePair(&w.bodies[c.A], &w.bodies[c.B], w.cfg.Walls)
		}
	}
	return report, nil
}

// settlePair removes overlap left after containment. A body pinned against a
// wall stays put and its partner takes the whole correction.
func settlePair(a, b *Body, walls mgl64.Vec3) {
	diff := a.Position.Sub(b.Position)
	dist := diff.Len()
	overlap := a.halfExtent() + b.halfExtent() - dist
	if overlap <= 0 || dist == 0 {
		return
	}
	normal := diff.Mul(1 / dist)

	aPinned := pinned(a, normal, walls)
	bPinned := pinned(b, normal.Mul(-1), walls)
	switch {
	case aPinned && !bPinned:
		b.Position = b.Position.Sub(normal.Mul(overlap))
	case bPinned && !aPinned:
		a.Position = a.Position.Add(normal.Mul(overlap))
	default:
		half := normal.Mul(overlap * 0.5)
		a.Position = a.Position.Add(half)
		b.Position = b.Position.Sub(half)
	}
	containPosition(a, walls)
	containPosition(b, walls)
}

// pinned reports whether moving b along dir would push it into a wall it
// already touches.
func pinned(b *Body, dir, walls mgl64.Vec3) bool {
	const eps = 1e-12
	h := b.halfExtent()
	for axis := 0; axis < 3; axis++ {
		limit := walls[axis] - h
		if dir[axis] > eps && b.Position[axis] >= limit-eps {
			return true
		}
		if dir[axis] < -eps && b.Position[axis] <= -limit+eps {
			return true
		}
	}
	return false
}

// Restore replaces every body with a copy of bodies, typically a value
// returned by Bodies before a failed step.
func (w *World) Restore(bodies []Body) {
	w.bodies = append(w.bodies[:0], bodies...)
}

func containPosition(b *Body, walls mgl64.Vec3) {
	h := b.halfExtent()
	for axis := 0; axis < 3; axis++ {
		limit := walls[axis] - h
		b.Position[axis] = math.Max(-limit, math.Min(limit, b.Position[axis]))
	}
}

func integrate(b *Body, dt float64) {
	b.Velocity = b.Velocity.Add(b.Acceleration.Mul(dt))
	b.Position = b.Position.Add(b.Velocity.Mul(dt))
}

func clampWalls(b *Body, walls mgl64.Vec3) []WallHit {
	var hits []WallHit
	h := b.halfExtent()
	for axis := 0; axis < 3; axis++ {
		limit := walls[axis] - h
		if math.Abs(b.Position[axis]) <= limit {
			continue
		}
		sign := 1.0
		if b.Position[axis] < 0 {
			sign = -1.0
		}
		hits = append(hits, WallHit{Axis: axis, Speed: math.Abs(b.Velocity[axis])})
		b.Position[axis] = limit * sign
		b.Velocity[axis] = -b.Velocity[axis] * b.Restitution
	}
	return hits
}

func resolvePair(a, b *Body, policy RestitutionPolicy) (Contact, bool, error) {
	diff := a.Position.Sub(b.Position)
	dist := diff.Len()
	contact := a.halfExtent() + b.halfExtent()
	if dist >= contact {
		return Contact{}, false, nil
	}
	if dist == 0 {
		return Contact{}, false, ErrCoincidentBodies
	}

	normal := diff.Mul(1 / dist)
	e := a.Restitution
	if policy == RestitutionMin {
		e = math.Min(a.Restitution, b.Restitution)
	}

	relVel := a.Velocity.Sub(b.Velocity)
	impulse := -(1 + e) * relVel.Dot(normal) / (1/a.Mass + 1/b.Mass)
	a.Velocity = a.Velocity.Add(normal.Mul(impulse / a.Mass))
	b.Velocity = b.Velocity.Sub(normal.Mul(impulse / b.Mass))

	overlap := contact - dist
	separation := normal.Mul(overlap * 0.5)
	a.Position = a.Position.Add(separation)
	b.Position = b.Position.Sub(separation)

	return Contact{Impulse: impulse, Overlap: overlap}, true, nil
}
