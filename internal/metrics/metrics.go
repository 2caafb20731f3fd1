// Package metrics counts scene activity with OpenTelemetry instruments.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"chasescene/internal/scene"
	"chasescene/internal/shared/types"
)

const instrumentationName = "chasescene/internal/metrics"

// Scene holds the instruments fed by every scene frame.
type Scene struct {
	frames      metric.Int64Counter
	collisions  metric.Int64Counter
	wallBounces metric.Int64Counter
	transitions metric.Int64Counter
	decisions   metric.Int64Counter
	resets      metric.Int64Counter
	frameDelta  metric.Float64Histogram
}

// New creates the instruments on mp. A nil mp uses the global provider,
// which is a no-op until one is installed.
func New(mp metric.MeterProvider) (*Scene, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(instrumentationName)

	var (
		s   Scene
		err error
	)
	if s.frames, err = m.Int64Counter(
		"scene.frames",
		metric.WithDescription("Total scene ticks"),
	); err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}
	if s.collisions, err = m.Int64Counter(
		"scene.collisions",
		metric.WithDescription("Total body-body contacts resolved"),
	); err != nil {
		return nil, fmt.Errorf("creating collisions counter: %w", err)
	}
	if s.wallBounces, err = m.Int64Counter(
		"scene.wall_bounces",
		metric.WithDescription("Total wall bounces"),
	); err != nil {
		return nil, fmt.Errorf("creating wall bounce counter: %w", err)
	}
	if s.transitions, err = m.Int64Counter(
		"scene.transitions",
		metric.WithDescription("Chase state transitions by target state"),
	); err != nil {
		return nil, fmt.Errorf("creating transitions counter: %w", err)
	}
	if s.decisions, err = m.Int64Counter(
		"scene.decisions",
		metric.WithDescription("Decisions taken at the red light and the junction, by cause"),
	); err != nil {
		return nil, fmt.Errorf("creating decisions counter: %w", err)
	}
	if s.resets, err = m.Int64Counter(
		"scene.resets",
		metric.WithDescription("Total scene resets"),
	); err != nil {
		return nil, fmt.Errorf("creating resets counter: %w", err)
	}
	if s.frameDelta, err = m.Float64Histogram(
		"scene.frame.delta",
		metric.WithDescription("Frame delta after clamping"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating frame delta histogram: %w", err)
	}
	return &s, nil
}

// Observe records one frame and its events.
func (s *Scene) Observe(ctx context.Context, f types.FrameState) {
	sceneAttr := attribute.String("scene", f.SceneID)
	s.frames.Add(ctx, 1, metric.WithAttributes(sceneAttr, attribute.String("state", f.ChaseState)))
	s.frameDelta.Record(ctx, f.Delta, metric.WithAttributes(sceneAttr))

	for _, ev := range f.Events {
		switch ev.Type {
		case scene.EventCollision:
			s.collisions.Add(ctx, 1, metric.WithAttributes(sceneAttr))
		case scene.EventWallBounce:
			s.wallBounces.Add(ctx, 1, metric.WithAttributes(sceneAttr))
		case scene.EventStateChange:
			s.transitions.Add(ctx, 1, metric.WithAttributes(sceneAttr, attribute.String("to", ev.To)))
		case scene.EventDecision:
			s.decisions.Add(ctx, 1, metric.WithAttributes(
				sceneAttr,
				attribute.String("at", ev.From),
				attribute.String("cause", ev.Detail),
			))
		case scene.EventReset:
			s.resets.Add(ctx, 1, metric.WithAttributes(sceneAttr))
		}
	}
}
