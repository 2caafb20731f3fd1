package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/viper"

	"chasescene/internal/chase"
	"chasescene/internal/physics"
	"chasescene/internal/shared/types"
)

// EnvPrefix prefixes environment overrides, e.g. CHASE_SERVER_ADDR.
const EnvPrefix = "CHASE"

var ErrInvalid = errors.New("config: invalid value")

// Vec3 is a vector in config files.
type Vec3 struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
	Z float64 `json:"z" mapstructure:"z"`
}

func (v Vec3) vec() mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }

// Color is an RGB triple in config files.
type Color struct {
	R float64 `json:"r" mapstructure:"r"`
	G float64 `json:"g" mapstructure:"g"`
	B float64 `json:"b" mapstructure:"b"`
}

func (c Color) color() types.Color { return types.Color{R: c.R, G: c.G, B: c.B} }

// ActorConfig describes one chase actor.
type ActorConfig struct {
	Name   string  `json:"name" mapstructure:"name"`
	Model  string  `json:"model" mapstructure:"model"`
	Height float64 `json:"height" mapstructure:"height"`
	Scale  Vec3    `json:"scale" mapstructure:"scale"`
	Color  Color   `json:"color" mapstructure:"color"`
}

// WaypointsConfig holds the chase path.
type WaypointsConfig struct {
	Start          Vec3 `json:"start" mapstructure:"start"`
	FullLeft       Vec3 `json:"fullLeft" mapstructure:"fullLeft"`
	RedLight       Vec3 `json:"redLight" mapstructure:"redLight"`
	ChaseOrigin    Vec3 `json:"chaseOrigin" mapstructure:"chaseOrigin"`
	Junction       Vec3 `json:"junction" mapstructure:"junction"`
	Barricade      Vec3 `json:"barricade" mapstructure:"barricade"`
	TrainStart     Vec3 `json:"trainStart" mapstructure:"trainStart"`
	TrainEnd       Vec3 `json:"trainEnd" mapstructure:"trainEnd"`
	FinalTurnStart Vec3 `json:"finalTurnStart" mapstructure:"finalTurnStart"`
	FinalTurnEnd   Vec3 `json:"finalTurnEnd" mapstructure:"finalTurnEnd"`
}

// SequenceConfig holds the chase sequencer settings. Times are in seconds.
type SequenceConfig struct {
	Waypoints            WaypointsConfig `json:"waypoints" mapstructure:"waypoints"`
	SegmentDuration      float64         `json:"segmentDuration" mapstructure:"segmentDuration"`
	FollowerDelay        float64         `json:"followerDelay" mapstructure:"followerDelay"`
	ChoiceTimeoutSeconds float64         `json:"choiceTimeoutSeconds" mapstructure:"choiceTimeoutSeconds"`
	TrainDuration        float64         `json:"trainDuration" mapstructure:"trainDuration"`
	BankClampDegrees     float64         `json:"bankClampDegrees" mapstructure:"bankClampDegrees"`
	FollowerHoldOffset   Vec3            `json:"followerHoldOffset" mapstructure:"followerHoldOffset"`
	Lead                 ActorConfig     `json:"lead" mapstructure:"lead"`
	Follower             ActorConfig     `json:"follower" mapstructure:"follower"`
	Train                ActorConfig     `json:"train" mapstructure:"train"`
}

// BodyConfig describes one physics body.
type BodyConfig struct {
	Position     Vec3    `json:"position" mapstructure:"position"`
	Velocity     Vec3    `json:"velocity" mapstructure:"velocity"`
	Acceleration Vec3    `json:"acceleration" mapstructure:"acceleration"`
	Mass         float64 `json:"mass" mapstructure:"mass"`
	Restitution  float64 `json:"restitution" mapstructure:"restitution"`
	HalfExtent   float64 `json:"halfExtent" mapstructure:"halfExtent"`
	Color        Color   `json:"color" mapstructure:"color"`
}

// PhysicsConfig holds the collision world settings.
type PhysicsConfig struct {
	Walls             Vec3         `json:"walls" mapstructure:"walls"`
	RestitutionPolicy string       `json:"restitutionPolicy" mapstructure:"restitutionPolicy"`
	Bodies            []BodyConfig `json:"bodies" mapstructure:"bodies"`
}

// SceneConfig holds the per-tick driver settings.
type SceneConfig struct {
	ID             string  `json:"id" mapstructure:"id"`
	MaxFrameDelta  float64 `json:"maxFrameDelta" mapstructure:"maxFrameDelta"`
	PhysicsMaxStep float64 `json:"physicsMaxStep" mapstructure:"physicsMaxStep"`
}

// ServerConfig holds the scene server settings.
type ServerConfig struct {
	Addr          string `json:"addr" mapstructure:"addr"`
	TickHz        int    `json:"tickHz" mapstructure:"tickHz"`
	ReplicationHz int    `json:"replicationHz" mapstructure:"replicationHz"`
	EventBuffer   int    `json:"eventBuffer" mapstructure:"eventBuffer"`
}

// RecorderConfig holds the SQLite frame recorder settings.
type RecorderConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
	// Every records one frame out of Every ticks; events are always kept.
	Every int `json:"every" mapstructure:"every"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel string         `json:"logLevel" mapstructure:"logLevel"`
	Scene    SceneConfig    `json:"scene" mapstructure:"scene"`
	Sequence SequenceConfig `json:"sequence" mapstructure:"sequence"`
	Physics  PhysicsConfig  `json:"physics" mapstructure:"physics"`
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Recorder RecorderConfig `json:"recorder" mapstructure:"recorder"`
}

// Load sets default values, reads the file at path when path is not empty and
// applies CHASE_* environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")

	v.SetDefault("scene.id", "night-chase")
	v.SetDefault("scene.maxFrameDelta", 0.1)
	v.SetDefault("scene.physicsMaxStep", 1.0/120)

	seq := chase.DefaultConfig()
	wp := seq.Waypoints
	setVec(v, "sequence.waypoints.start", wp.Start)
	setVec(v, "sequence.waypoints.fullLeft", wp.FullLeft)
	setVec(v, "sequence.waypoints.redLight", wp.RedLight)
	setVec(v, "sequence.waypoints.chaseOrigin", wp.ChaseOrigin)
	setVec(v, "sequence.waypoints.junction", wp.Junction)
	setVec(v, "sequence.waypoints.barricade", wp.Barricade)
	setVec(v, "sequence.waypoints.trainStart", wp.TrainStart)
	setVec(v, "sequence.waypoints.trainEnd", wp.TrainEnd)
	setVec(v, "sequence.waypoints.finalTurnStart", wp.FinalTurnStart)
	setVec(v, "sequence.waypoints.finalTurnEnd", wp.FinalTurnEnd)
	v.SetDefault("sequence.segmentDuration", seq.SegmentDuration)
	v.SetDefault("sequence.followerDelay", seq.FollowerDelay)
	v.SetDefault("sequence.choiceTimeoutSeconds", seq.ChoiceTimeout)
	v.SetDefault("sequence.trainDuration", seq.TrainDuration)
	v.SetDefault("sequence.bankClampDegrees", seq.BankClampDegrees)
	setVec(v, "sequence.followerHoldOffset", seq.FollowerHoldOffset)
	setActor(v, "sequence.lead", seq.Lead)
	setActor(v, "sequence.follower", seq.Follower)
	setActor(v, "sequence.train", seq.Train)

	phys := physics.DefaultConfig()
	setVec(v, "physics.walls", phys.Walls)
	v.SetDefault("physics.restitutionPolicy", phys.Policy.String())
	bodies := make([]map[string]any, 0, 2)
	for _, b := range physics.DefaultBodies() {
		bodies = append(bodies, map[string]any{
			"position":     vecMap(b.Position),
			"velocity":     vecMap(b.Velocity),
			"acceleration": vecMap(b.Acceleration),
			"mass":         b.Mass,
			"restitution":  b.Restitution,
			"halfExtent":   b.HalfExtent,
			"color":        map[string]any{"r": b.Color.R, "g": b.Color.G, "b": b.Color.B},
		})
	}
	v.SetDefault("physics.bodies", bodies)

	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.tickHz", 60)
	v.SetDefault("server.replicationHz", 30)
	v.SetDefault("server.eventBuffer", 512)

	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.path", "./recordings/chase.db")
	v.SetDefault("recorder.every", 1)
}

func setVec(v *viper.Viper, key string, vec mgl64.Vec3) {
	v.SetDefault(key+".x", vec[0])
	v.SetDefault(key+".y", vec[1])
	v.SetDefault(key+".z", vec[2])
}

func setActor(v *viper.Viper, key string, a chase.ActorSpec) {
	v.SetDefault(key+".name", a.Name)
	v.SetDefault(key+".model", a.Model)
	v.SetDefault(key+".height", a.Height)
	setVec(v, key+".scale", a.Scale)
	v.SetDefault(key+".color.r", a.Color.R)
	v.SetDefault(key+".color.g", a.Color.G)
	v.SetDefault(key+".color.b", a.Color.B)
}

func vecMap(vec mgl64.Vec3) map[string]any {
	return map[string]any{"x": vec[0], "y": vec[1], "z": vec[2]}
}

// Validate checks the values the rest of the program relies on.
func (c Config) Validate() error {
	if err := c.Chase().Validate(); err != nil {
		return fmt.Errorf("sequence: %w", err)
	}
	pc, err := c.PhysicsWorld()
	if err != nil {
		return fmt.Errorf("physics: %w", err)
	}
	if _, err := physics.NewWorld(pc, c.Bodies()...); err != nil {
		return fmt.Errorf("physics: %w", err)
	}
	if !(c.Scene.MaxFrameDelta > 0) || !(c.Scene.PhysicsMaxStep > 0) {
		return fmt.Errorf("%w: scene deltas must be positive (maxFrameDelta=%v physicsMaxStep=%v)",
			ErrInvalid, c.Scene.MaxFrameDelta, c.Scene.PhysicsMaxStep)
	}
	if c.Server.TickHz <= 0 || c.Server.ReplicationHz <= 0 {
		return fmt.Errorf("%w: server rates must be positive (tickHz=%d replicationHz=%d)",
			ErrInvalid, c.Server.TickHz, c.Server.ReplicationHz)
	}
	if c.Recorder.Enabled && c.Recorder.Path == "" {
		return fmt.Errorf("%w: recorder enabled without a path", ErrInvalid)
	}
	if c.Recorder.Every < 0 {
		return fmt.Errorf("%w: recorder.every must not be negative", ErrInvalid)
	}
	return nil
}

// Chase converts the sequence section into sequencer settings.
func (c Config) Chase() chase.Config {
	s := c.Sequence
	wp := s.Waypoints
	return chase.Config{
		Waypoints: chase.Waypoints{
			Start:          wp.Start.vec(),
			FullLeft:       wp.FullLeft.vec(),
			RedLight:       wp.RedLight.vec(),
			ChaseOrigin:    wp.ChaseOrigin.vec(),
			Junction:       wp.Junction.vec(),
			Barricade:      wp.Barricade.vec(),
			TrainStart:     wp.TrainStart.vec(),
			TrainEnd:       wp.TrainEnd.vec(),
			FinalTurnStart: wp.FinalTurnStart.vec(),
			FinalTurnEnd:   wp.FinalTurnEnd.vec(),
		},
		SegmentDuration:    s.SegmentDuration,
		FollowerDelay:      s.FollowerDelay,
		ChoiceTimeout:      s.ChoiceTimeoutSeconds,
		TrainDuration:      s.TrainDuration,
		BankClampDegrees:   s.BankClampDegrees,
		FollowerHoldOffset: s.FollowerHoldOffset.vec(),
		Lead:               s.Lead.spec(),
		Follower:           s.Follower.spec(),
		Train:              s.Train.spec(),
	}
}

func (a ActorConfig) spec() chase.ActorSpec {
	return chase.ActorSpec{
		Name:   a.Name,
		Model:  a.Model,
		Height: a.Height,
		Scale:  a.Scale.vec(),
		Color:  a.Color.color(),
	}
}

// PhysicsWorld converts the physics section into world settings.
func (c Config) PhysicsWorld() (physics.Config, error) {
	policy, err := physics.ParseRestitutionPolicy(c.Physics.RestitutionPolicy)
	if err != nil {
		return physics.Config{}, err
	}
	return physics.Config{Walls: c.Physics.Walls.vec(), Policy: policy}, nil
}

// Bodies converts the configured bodies.
func (c Config) Bodies() []physics.Body {
	out := make([]physics.Body, 0, len(c.Physics.Bodies))
	for _, b := range c.Physics.Bodies {
		out = append(out, physics.Body{
			Position:     b.Position.vec(),
			Velocity:     b.Velocity.vec(),
			Acceleration: b.Acceleration.vec(),
			Mass:         b.Mass,
			Restitution:  b.Restitution,
			HalfExtent:   b.HalfExtent,
			Color:        b.Color.color(),
		})
	}
	return out
}
