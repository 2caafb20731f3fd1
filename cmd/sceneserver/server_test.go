package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chasescene/internal/config"
	"chasescene/internal/recorder"
	"chasescene/internal/shared/types"
)

func newTestServer(t *testing.T, rec *recorder.Recorder) *server {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	s, err := newServer(cfg, zerolog.Nop(), rec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.close(context.Background()) })
	return s
}

func TestHandleMessage(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name    string
		msg     string
		reply   string
		message string
	}{
		{"bad json", `{"type":`, "error", "bad_payload"},
		{"input without keys", `{"type":"input"}`, "error", "missing_keys"},
		{"unknown type", `{"type":"teleport"}`, "error", "unsupported_message_type"},
		{"ping", `{"type":"ping"}`, "pong", ""},
		{"input", `{"type":"input","keys":{"left":false,"right":false,"proceed":true}}`, "", ""},
		{"reset", `{"type":"reset"}`, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := s.handleMessage([]byte(tt.msg))
			if tt.reply == "" {
				assert.Nil(t, reply)
				return
			}
			require.NotNil(t, reply)
			assert.Equal(t, tt.reply, reply.Type)
			assert.Equal(t, tt.message, reply.Message)
		})
	}
}

func TestInputMessageDrivesChase(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	// idle and wait-at-red take two four second segments
	for i := 0; i < 100 && s.scene.ChaseState().String() != "red_decision"; i++ {
		_, err := s.step(ctx, 0.1)
		require.NoError(t, err)
	}
	require.Equal(t, "red_decision", s.scene.ChaseState().String())

	require.Nil(t, s.handleMessage([]byte(`{"type":"input","keys":{"proceed":true}}`)))
	frame, err := s.step(ctx, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "chase_begin", frame.ChaseState)

	decisions := s.events.listRecent("decision", 10)
	require.Len(t, decisions, 1)
	assert.Equal(t, "proceed", decisions[0].Detail)
}

func TestResetMessageRestartsScene(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	for iter := 0; iter < 10; iter++ {
		_, err := s.step(ctx, 0.1)
		require.NoError(t, err)
	}
	require.Nil(t, s.handleMessage([]byte(`{"type":"reset"}`)))

	frame, err := s.step(ctx, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, frame.Elapsed, 1e-12)
	assert.Len(t, s.events.listRecent("reset", 0), 1)
}

func TestEventsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/events", "application/json", strings.NewReader(`{"type":"camera_cut","detail":"overhead"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/v1/events", "application/json", strings.NewReader(`{"detail":"no type"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/events?type=camera_cut")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Count   int                `json:"count"`
		Events  []types.SceneEvent `json:"events"`
		Summary summary            `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "overhead", body.Events[0].Detail)
	assert.Equal(t, int64(1), body.Summary.ByType["camera_cut"])
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.step(context.Background(), 0.1)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"idle_at_start"`)

	rec = httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chasescene_scene_frames_total")
}

func TestWebsocketWelcomeAndPong(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?client_id=viewer1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var welcome types.ServerEnvelope
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "welcome", welcome.Type)
	require.NotNil(t, welcome.Frame)
	assert.Equal(t, "idle_at_start", welcome.Frame.ChaseState)
	assert.Len(t, welcome.Frame.Actors, 3)

	require.NoError(t, conn.WriteJSON(types.ClientEnvelope{Type: "ping"}))
	var pong types.ServerEnvelope
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong.Type)

	s.broadcast()
	var frame types.ServerEnvelope
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "frame", frame.Type)
}

func TestServerRecordsUntilFinished(t *testing.T) {
	rec, err := recorder.Open(filepath.Join(t.TempDir(), "chase.db"), zerolog.Nop(), recorder.Options{})
	require.NoError(t, err)
	s := newTestServer(t, rec)
	ctx := context.Background()

	press := func(keys string) {
		require.Nil(t, s.handleMessage([]byte(`{"type":"input","keys":{}}`)))
		require.Nil(t, s.handleMessage([]byte(`{"type":"input","keys":`+keys+`}`)))
	}
	for i := 0; i < 1000 && s.scene.ChaseState().String() != "finished"; i++ {
		switch s.scene.ChaseState().String() {
		case "red_decision":
			press(`{"proceed":true}`)
		case "choice_point":
			press(`{"left":true}`)
		}
		_, err := s.step(ctx, 0.1)
		require.NoError(t, err)
	}
	require.Equal(t, "finished", s.scene.ChaseState().String())

	runs, err := rec.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "finished", runs[0].FinalState)
	assert.NotNil(t, runs[0].EndedAt)

	decisions, err := rec.Events(runs[0].ID, "decision")
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "left", decisions[1].Detail)
}
