// Package recorder persists scene frames and events to SQLite through GORM.
package recorder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chasescene/internal/shared/types"
)

var ErrNoRun = errors.New("recorder: no run in progress")

// Options tune what gets written.
type Options struct {
	// Every keeps one frame out of Every ticks. Zero or one keeps all frames.
	Every int
}

// Recorder writes frames of one scene at a time. It is safe for concurrent use.
type Recorder struct {
	db    *gorm.DB
	log   zerolog.Logger
	path  string
	every uint64

	mu  sync.Mutex
	run *Run
}

// Open connects to the SQLite file at path, creating it and its directory if
// needed, and migrates the schema. An empty path uses a private in-memory
// database.
func Open(path string, log zerolog.Logger, opts Options) (*Recorder, error) {
	dsn := "file::memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create recorder directory: %w", err)
		}
		dsn = path
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open recorder DB: %w", err)
	}
	if path == "" {
		// each pooled connection would otherwise see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql interface: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("failed to migrate recorder schema: %w", err)
	}

	every := uint64(1)
	if opts.Every > 1 {
		every = uint64(opts.Every)
	}
	log.Info().Str("path", path).Uint64("every", every).Msg("recorder ready")
	return &Recorder{db: db, log: log, path: path, every: every}, nil
}

// StartRun opens a new run. A run still in progress is finished first with
// its last recorded state.
func (r *Recorder) StartRun(sceneID string, settings any) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run != nil {
		if err := r.finishLocked(""); err != nil {
			return 0, err
		}
	}

	run := &Run{
		SceneID:   sceneID,
		StartedAt: time.Now().UTC(),
		Settings:  jsonOf(settings),
	}
	if err := r.db.Create(run).Error; err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}
	r.run = run
	r.log.Info().Uint("run", run.ID).Str("scene", sceneID).Msg("recording started")
	return run.ID, nil
}

// Record stores f in the current run. Events are always written; the frame
// itself only on sampled ticks.
func (r *Recorder) Record(f types.FrameState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return ErrNoRun
	}

	keepFrame := f.Tick%r.every == 0
	if !keepFrame && len(f.Events) == 0 {
		return nil
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if keepFrame {
			row := frameRow(r.run.ID, f)
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to insert frame %d: %w", f.Tick, err)
			}
		}
		if len(f.Events) > 0 {
			rows := eventRows(r.run.ID, f.Events)
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to insert events of frame %d: %w", f.Tick, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if keepFrame {
		r.run.FrameCount++
	}
	r.run.EventCount += len(f.Events)
	r.run.FinalState = f.ChaseState
	return nil
}

// FinishRun closes the current run. An empty state keeps the last recorded one.
func (r *Recorder) FinishRun(state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return ErrNoRun
	}
	return r.finishLocked(state)
}

func (r *Recorder) finishLocked(state string) error {
	now := time.Now().UTC()
	r.run.EndedAt = &now
	if state != "" {
		r.run.FinalState = state
	}
	if err := r.db.Save(r.run).Error; err != nil {
		return fmt.Errorf("failed to finish run %d: %w", r.run.ID, err)
	}
	r.log.Info().
		Uint("run", r.run.ID).
		Int("frames", r.run.FrameCount).
		Int("events", r.run.EventCount).
		Str("state", r.run.FinalState).
		Msg("recording finished")
	r.run = nil
	return nil
}

// Path returns the database file, empty for an in-memory recorder.
func (r *Recorder) Path() string {
	return r.path
}

// Runs lists every run, oldest first.
func (r *Recorder) Runs() ([]Run, error) {
	var runs []Run
	if err := r.db.Order("id").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Frames returns the frames of a run with their actors and bodies, by tick.
func (r *Recorder) Frames(runID uint) ([]Frame, error) {
	var frames []Frame
	err := r.db.
		Preload("Actors", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Bodies", func(db *gorm.DB) *gorm.DB { return db.Order("body_index") }).
		Where("run_id = ?", runID).
		Order("tick").
		Find(&frames).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load frames of run %d: %w", runID, err)
	}
	return frames, nil
}

// Events returns the events of a run in order. A non-empty typ filters by type.
func (r *Recorder) Events(runID uint, typ string) ([]Event, error) {
	q := r.db.Where("run_id = ?", runID)
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var events []Event
	if err := q.Order("id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load events of run %d: %w", runID, err)
	}
	return events, nil
}

// Close finishes any open run and closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	var finishErr error
	if r.run != nil {
		finishErr = r.finishLocked("")
	}
	r.mu.Unlock()

	sqlDB, err := r.db.DB()
	if err != nil {
		return errors.Join(finishErr, fmt.Errorf("failed to access sql interface: %w", err))
	}
	return errors.Join(finishErr, sqlDB.Close())
}

func frameRow(runID uint, f types.FrameState) Frame {
	row := Frame{
		RunID:      runID,
		Tick:       f.Tick,
		Elapsed:    f.Elapsed,
		Delta:      f.Delta,
		ChaseState: f.ChaseState,
		CapturedAt: f.CreatedAt,
		Actors:     make([]ActorPose, 0, len(f.Actors)),
		Bodies:     make([]BodyPose, 0, len(f.Bodies)),
	}
	for _, a := range f.Actors {
		row.Actors = append(row.Actors, ActorPose{
			Name:      a.Name,
			Model:     a.Model,
			PosX:      a.Position.X,
			PosY:      a.Position.Y,
			PosZ:      a.Position.Z,
			Pitch:     a.Rotation.Pitch,
			Yaw:       a.Rotation.Yaw,
			Roll:      a.Rotation.Roll,
			Transform: jsonOf(a.Transform),
		})
	}
	for _, b := range f.Bodies {
		row.Bodies = append(row.Bodies, BodyPose{
			Index:     b.Index,
			PosX:      b.Position.X,
			PosY:      b.Position.Y,
			PosZ:      b.Position.Z,
			VelX:      b.Velocity.X,
			VelY:      b.Velocity.Y,
			VelZ:      b.Velocity.Z,
			Transform: jsonOf(b.Transform),
		})
	}
	return row
}

func eventRows(runID uint, events []types.SceneEvent) []Event {
	rows := make([]Event, 0, len(events))
	for _, ev := range events {
		rows = append(rows, Event{
			RunID:      runID,
			Tick:       ev.Tick,
			Type:       ev.Type,
			From:       ev.From,
			To:         ev.To,
			Detail:     ev.Detail,
			OccurredAt: time.UnixMilli(ev.OccurredMS).UTC(),
		})
	}
	return rows
}

func jsonOf(v any) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("null")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(data)
}
