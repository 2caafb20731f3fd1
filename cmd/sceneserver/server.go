package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chasescene/internal/config"
	"chasescene/internal/metrics"
	"chasescene/internal/recorder"
	"chasescene/internal/scene"
	"chasescene/internal/shared/logger"
	"chasescene/internal/shared/types"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

type server struct {
	log      logger.Logger
	cfg      config.Config
	scene    *scene.Scene
	metrics  *metrics.Scene
	exporter *metrics.Exporter
	events   *eventStore
	upgrader websocket.Upgrader

	recMu     sync.Mutex
	recorder  *recorder.Recorder
	recording bool

	mu      sync.RWMutex
	clients map[string]*client
}

func newServer(cfg config.Config, log logger.Logger, rec *recorder.Recorder) (*server, error) {
	physCfg, err := cfg.PhysicsWorld()
	if err != nil {
		return nil, err
	}
	sc, err := scene.New(scene.Settings{
		ID:             cfg.Scene.ID,
		Chase:          cfg.Chase(),
		Physics:        physCfg,
		Bodies:         cfg.Bodies(),
		MaxFrameDelta:  cfg.Scene.MaxFrameDelta,
		PhysicsMaxStep: cfg.Scene.PhysicsMaxStep,
	})
	if err != nil {
		return nil, err
	}

	exporter, err := metrics.NewExporter("chasescene")
	if err != nil {
		return nil, err
	}
	m, err := metrics.New(exporter.MeterProvider())
	if err != nil {
		return nil, err
	}

	s := &server{
		log:      log,
		cfg:      cfg,
		scene:    sc,
		metrics:  m,
		exporter: exporter,
		events:   newEventStore(cfg.Server.EventBuffer),
		recorder: rec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*client),
	}
	if err := s.startRecording(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.Handle("/metrics", s.exporter)
	return withCORS(mux)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"scene":  s.scene.ID(),
		"state":  s.scene.ChaseState().String(),
	})
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_limit"})
				return
			}
			limit = n
		}
		recent := s.events.listRecent(r.URL.Query().Get("type"), limit)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":   len(recent),
			"events":  recent,
			"summary": s.events.summary(),
		})
	case http.MethodPost:
		var ev types.SceneEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request"})
			return
		}
		if ev.Type == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type_required"})
			return
		}
		if ev.OccurredMS == 0 {
			ev.OccurredMS = time.Now().UTC().UnixMilli()
		}
		if ev.Tick == 0 {
			ev.Tick = s.scene.Snapshot().Tick
		}
		s.events.ingest(ev)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	}
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = fmt.Sprintf("viewer_%d", time.Now().UTC().UnixNano())
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	c := &client{id: clientID, conn: conn, send: make(chan []byte, 64)}
	s.register(c)
	s.log.Info().Str("client", clientID).Str("remote", r.RemoteAddr).Msg("client connected")

	frame := s.scene.Snapshot()
	s.enqueue(c, types.ServerEnvelope{
		Type:     "welcome",
		Tick:     frame.Tick,
		Frame:    &frame,
		ServerMS: time.Now().UTC().UnixMilli(),
		Message:  "connected",
	})

	go s.writePump(c)
	s.readPump(c)
}

func (s *server) readPump(c *client) {
	defer func() {
		s.unregister(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Info().Str("client", c.id).Msg("client disconnected")
				return
			}
			s.log.Warn().Str("client", c.id).Err(err).Msg("read error")
			return
		}
		if reply := s.handleMessage(msg); reply != nil {
			s.enqueue(c, *reply)
		}
	}
}

// handleMessage applies one client message and returns the direct reply, if any.
func (s *server) handleMessage(msg []byte) *types.ServerEnvelope {
	var in types.ClientEnvelope
	if err := json.Unmarshal(msg, &in); err != nil {
		return errorEnvelope("bad_payload")
	}

	switch in.Type {
	case "input":
		if in.Keys == nil {
			return errorEnvelope("missing_keys")
		}
		s.scene.ApplyInput(*in.Keys)
		return nil
	case "ping":
		return &types.ServerEnvelope{Type: "pong", ServerMS: time.Now().UTC().UnixMilli()}
	case "reset":
		if err := s.reset(); err != nil {
			s.log.Error().Err(err).Msg("reset failed")
			return errorEnvelope("reset_failed")
		}
		return nil
	default:
		return errorEnvelope("unsupported_message_type")
	}
}

func (s *server) writePump(c *client) {
	ticker := time.NewTicker(20 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				return
			}
		}
	}
}

func (s *server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.clients[c.id]; ok {
		close(old.send)
	}
	s.clients[c.id] = c
}

func (s *server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// a reconnect under the same id may already have replaced c
	if s.clients[c.id] == c {
		close(c.send)
		delete(s.clients, c.id)
	}
}

func (s *server) enqueue(c *client, env types.ServerEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		s.log.Error().Err(err).Str("type", env.Type).Msg("marshal envelope failed")
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.clients[c.id] != c {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (s *server) reset() error {
	if err := s.scene.Reset(); err != nil {
		return err
	}
	s.log.Info().Str("scene", s.scene.ID()).Msg("scene reset")
	return s.startRecording()
}

// step advances the scene once and fans the frame out to events, metrics and
// the recorder.
func (s *server) step(ctx context.Context, dt float64) (types.FrameState, error) {
	frame, err := s.scene.Tick(dt)
	if err != nil {
		return frame, err
	}
	s.events.ingest(frame.Events...)
	s.metrics.Observe(ctx, frame)
	for _, ev := range frame.Events {
		if ev.Type == scene.EventStateChange {
			s.log.Debug().Uint64("tick", ev.Tick).Str("from", ev.From).Str("to", ev.To).Str("cause", ev.Detail).Msg("state change")
		}
	}
	s.record(frame)
	return frame, nil
}

func (s *server) startRecording() error {
	if s.recorder == nil {
		return nil
	}
	s.recMu.Lock()
	defer s.recMu.Unlock()
	if _, err := s.recorder.StartRun(s.scene.ID(), s.cfg.Sequence); err != nil {
		return err
	}
	s.recording = true
	return nil
}

func (s *server) record(frame types.FrameState) {
	if s.recorder == nil {
		return
	}
	s.recMu.Lock()
	defer s.recMu.Unlock()
	if !s.recording {
		return
	}
	if err := s.recorder.Record(frame); err != nil {
		s.log.Error().Err(err).Uint64("tick", frame.Tick).Msg("record frame failed")
		return
	}
	if frame.ChaseState == "finished" {
		if err := s.recorder.FinishRun(frame.ChaseState); err != nil && !errors.Is(err, recorder.ErrNoRun) {
			s.log.Error().Err(err).Msg("finish run failed")
		}
		s.recording = false
	}
}

func (s *server) runSimulationLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.Server.TickHz))
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if _, err := s.step(ctx, dt); err != nil {
				s.log.Error().Err(err).Msg("scene tick failed")
			}
		}
	}
}

func (s *server) runReplicationLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.Server.ReplicationHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast()
		}
	}
}

func (s *server) broadcast() {
	frame := s.scene.Snapshot()
	env := types.ServerEnvelope{
		Type:     "frame",
		Tick:     frame.Tick,
		Frame:    &frame,
		ServerMS: time.Now().UTC().UnixMilli(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal frame failed")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

func (s *server) close(ctx context.Context) error {
	var errs []error
	if s.recorder != nil {
		errs = append(errs, s.recorder.Close())
	}
	errs = append(errs, s.exporter.Shutdown(ctx))
	return errors.Join(errs...)
}

func errorEnvelope(message string) *types.ServerEnvelope {
	return &types.ServerEnvelope{Type: "error", Message: message}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
