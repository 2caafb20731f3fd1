package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"chasescene/internal/config"
	"chasescene/internal/recorder"
	"chasescene/internal/scene"
	"chasescene/internal/shared/logger"
	"chasescene/internal/shared/types"
)

var ErrUnknownKey = errors.New("scenecli: unknown key")

// Press is one scripted key tap at a scene time in seconds.
type Press struct {
	At  float64 `json:"at"`
	Key string  `json:"key"` // left|right|proceed
}

// Script drives a headless run.
type Script struct {
	// DT is the fixed frame delta in seconds.
	DT float64 `json:"dt"`
	// MaxSeconds stops the run if the chase has not finished by then.
	MaxSeconds float64 `json:"maxSeconds"`
	Presses    []Press `json:"presses"`
}

// DefaultScript proceeds at the red light and lets the junction time out.
func DefaultScript() Script {
	return Script{
		DT:         1.0 / 60.0,
		MaxSeconds: 120,
		Presses:    []Press{{At: 8.5, Key: "proceed"}},
	}
}

// ParseScript decodes a JSON script, filling unset fields from DefaultScript.
func ParseScript(data []byte) (Script, error) {
	s := DefaultScript()
	s.Presses = nil
	if err := json.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("error decoding script: %w", err)
	}
	return s, s.validate()
}

func (s Script) validate() error {
	if !(s.DT > 0) || !(s.MaxSeconds > 0) {
		return fmt.Errorf("script: dt and maxSeconds must be positive (dt=%v maxSeconds=%v)", s.DT, s.MaxSeconds)
	}
	for i, p := range s.Presses {
		if _, err := keyState(p.Key); err != nil {
			return fmt.Errorf("press %d: %w", i, err)
		}
		if p.At < 0 {
			return fmt.Errorf("press %d: negative time %v", i, p.At)
		}
	}
	return nil
}

func keyState(key string) (types.KeyState, error) {
	switch strings.ToLower(key) {
	case "left":
		return types.KeyState{Left: true}, nil
	case "right":
		return types.KeyState{Right: true}, nil
	case "proceed":
		return types.KeyState{Proceed: true}, nil
	}
	return types.KeyState{}, fmt.Errorf("%w %q", ErrUnknownKey, key)
}

// Summary is the JSON written at the end of a run.
type Summary struct {
	SceneID     string             `json:"scene_id"`
	Ticks       uint64             `json:"ticks"`
	Elapsed     float64            `json:"elapsed"`
	FinalState  string             `json:"final_state"`
	Finished    bool               `json:"finished"`
	Path        []string           `json:"path"`
	Decisions   []types.SceneEvent `json:"decisions"`
	Collisions  int                `json:"collisions"`
	WallBounces int                `json:"wall_bounces"`
	Lead        types.ActorState   `json:"lead"`
	RunID       uint               `json:"run_id,omitempty"`
}

// run plays script against a scene built from cfg. The scene clock advances by
// exactly DT per tick so the junction timeout is reproducible.
func run(cfg config.Config, script Script, rec *recorder.Recorder, log logger.Logger) (Summary, error) {
	if err := script.validate(); err != nil {
		return Summary{}, err
	}
	physCfg, err := cfg.PhysicsWorld()
	if err != nil {
		return Summary{}, err
	}

	clock := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	sc, err := scene.New(scene.Settings{
		ID:             cfg.Scene.ID,
		Chase:          cfg.Chase(),
		Physics:        physCfg,
		Bodies:         cfg.Bodies(),
		MaxFrameDelta:  math.Max(cfg.Scene.MaxFrameDelta, script.DT),
		PhysicsMaxStep: cfg.Scene.PhysicsMaxStep,
		Clock:          func() time.Time { return clock },
	})
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{SceneID: sc.ID(), Path: []string{sc.Snapshot().ChaseState}}
	if rec != nil {
		if sum.RunID, err = rec.StartRun(sc.ID(), script); err != nil {
			return Summary{}, err
		}
	}

	presses := append([]Press(nil), script.Presses...)
	sort.SliceStable(presses, func(i, j int) bool { return presses[i].At < presses[j].At })
	step := time.Duration(script.DT * float64(time.Second))

	var frame types.FrameState
	for elapsed := 0.0; elapsed < script.MaxSeconds; {
		for len(presses) > 0 && presses[0].At <= elapsed {
			keys, _ := keyState(presses[0].Key)
			sc.ApplyInput(keys)
			sc.ApplyInput(types.KeyState{})
			log.Debug().Float64("at", elapsed).Str("key", presses[0].Key).Msg("press")
			presses = presses[1:]
		}

		clock = clock.Add(step)
		frame, err = sc.Tick(script.DT)
		if err != nil {
			return sum, err
		}
		elapsed = frame.Elapsed
		if rec != nil {
			if err := rec.Record(frame); err != nil {
				return sum, err
			}
		}

		for _, ev := range frame.Events {
			switch ev.Type {
			case scene.EventStateChange:
				sum.Path = append(sum.Path, ev.To)
				log.Info().Uint64("tick", ev.Tick).Str("from", ev.From).Str("to", ev.To).Str("cause", ev.Detail).Msg("state change")
			case scene.EventDecision:
				sum.Decisions = append(sum.Decisions, ev)
			case scene.EventCollision:
				sum.Collisions++
			case scene.EventWallBounce:
				sum.WallBounces++
			}
		}
		if frame.ChaseState == "finished" {
			sum.Finished = true
			break
		}
	}

	sum.Ticks = frame.Tick
	sum.Elapsed = frame.Elapsed
	sum.FinalState = frame.ChaseState
	if len(frame.Actors) > 0 {
		sum.Lead = frame.Actors[0]
	}
	if rec != nil {
		if err := rec.FinishRun(frame.ChaseState); err != nil {
			return sum, err
		}
	}
	return sum, nil
}
