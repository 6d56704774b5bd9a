package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/hamrelay/internal/command"
	"github.com/nerrad567/hamrelay/internal/history"
	"github.com/nerrad567/hamrelay/internal/infrastructure/config"
	"github.com/nerrad567/hamrelay/internal/infrastructure/logging"
	"github.com/nerrad567/hamrelay/internal/relay"
)

// fakeRelay implements Relay for testing.
type fakeRelay struct {
	mu         sync.Mutex
	status     relay.Status
	pending    []relay.PendingQuery
	dispatched []string
}

func (f *fakeRelay) Dispatch(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, code)
}

func (f *fakeRelay) Status() relay.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeRelay) Pending() []relay.PendingQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeRelay) Dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dispatched...)
}

// fakeHistory implements history.Repository for testing.
type fakeHistory struct {
	lastFilter history.Filter
	err        error
}

func (f *fakeHistory) Create(context.Context, *history.Entry) error { return nil }

func (f *fakeHistory) List(_ context.Context, filter history.Filter) (*history.ListResult, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return &history.ListResult{
		Entries: []history.Entry{{ID: "evt-1", Kind: relay.EventAction, Code: "*2000"}},
		Total:   1,
		Limit:   50,
	}, nil
}

func (f *fakeHistory) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
}

var testTable = []command.Entry{
	{
		Code:            "#100",
		Description:     "outside temperature",
		ActionTopic:     "garageweather/cmnd/status",
		ActionPayload:   "8",
		ResponseTopic:   "garageweather/stat/STATUS8",
		ResponseKeyPath: "StatusSNS.SI7021-14.Temperature",
	},
	{Code: "*2000", Description: "light off", ActionTopic: "ch4_01/cmnd/POWER1", ActionPayload: "off"},
	{Code: "*2000", Description: "duplicate", ActionTopic: "x", ActionPayload: "y"},
}

// testServer creates a Server over fakes and returns its router.
func testServer(t *testing.T, mutate func(*Deps)) (*Server, http.Handler, *fakeRelay) {
	t.Helper()

	registry, dups := command.NewRegistry(testTable)
	fr := &fakeRelay{status: relay.Status{
		Connected:     true,
		Mode:          relay.ModeRetire,
		Commands:      registry.Len(),
		Subscriptions: []string{"garageweather/stat/STATUS8"},
		StartedAt:     time.Date(2026, 6, 23, 10, 0, 0, 0, time.UTC),
	}}

	log := testLogger()
	deps := Deps{
		Config:     config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:         testWSConfig(),
		Logger:     log,
		Relay:      fr,
		Commands:   registry,
		Duplicates: dups,
		Version:    "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if srv.hub == nil {
		srv.hub = NewHub(srv.wsCfg, log)
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go srv.hub.Run(ctx)
	}

	return srv, srv.buildRouter(), fr
}

func doRequest(t *testing.T, h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	registry, _ := command.NewRegistry(nil)
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Relay: &fakeRelay{}, Commands: registry}},
		{"no relay", Deps{Logger: testLogger(), Commands: registry}},
		{"no commands", Deps{Logger: testLogger(), Relay: &fakeRelay{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	_, h, _ := testServer(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		Status  string            `json:"status"`
		Version string            `json:"version"`
		Checks  map[string]string `json:"checks"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "ok" || body.Version != "test" || body.Checks["mqtt"] != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestHealth_Degraded(t *testing.T) {
	_, h, fr := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"database": checkFunc(func(context.Context) error { return errors.New("disk gone") }),
		}
	})
	fr.status.Connected = false

	rec := doRequest(t, h, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "degraded" || body.Checks["mqtt"] != "disconnected" || body.Checks["database"] != "disk gone" {
		t.Errorf("body = %+v", body)
	}
}

func TestRequestID(t *testing.T) {
	_, h, _ := testServer(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-id-1" {
		t.Errorf("X-Request-ID = %q, want client-id-1", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	_, h, _ := testServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://shack.local"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/dispatch", nil)
	req.Header.Set("Origin", "http://shack.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://shack.local" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://elsewhere")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for a disallowed origin", got)
	}
}

func TestNotFound(t *testing.T) {
	_, h, _ := testServer(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/nothing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	_, h, _ := testServer(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body StatusResponse
	decodeBody(t, rec, &body)
	if !body.Relay.Connected || body.Relay.Mode != "retire" {
		t.Errorf("relay = %+v", body.Relay)
	}
	if body.Relay.Commands != 2 || body.Relay.Duplicates != 1 {
		t.Errorf("commands = %d, duplicates = %d, want 2, 1", body.Relay.Commands, body.Relay.Duplicates)
	}
	if body.Relay.StartedAt != "2026-06-23T10:00:00Z" {
		t.Errorf("started_at = %q", body.Relay.StartedAt)
	}
	if body.Runtime.Goroutines == 0 {
		t.Error("runtime.goroutines = 0")
	}
}

func TestListCommands(t *testing.T) {
	_, h, _ := testServer(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/commands", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body CommandsResponse
	decodeBody(t, rec, &body)
	if body.Count != 2 || len(body.Commands) != 2 {
		t.Errorf("count = %d, commands = %d, want 2", body.Count, len(body.Commands))
	}
	if body.Duplicates.Sequences != 3 || len(body.Duplicates.Duplicates) != 1 || body.Duplicates.Duplicates[0].Code != "*2000" {
		t.Errorf("duplicates = %+v", body.Duplicates)
	}
	if body.Commands[1].Description != "light off" {
		t.Errorf("first *2000 row should win, got %q", body.Commands[1].Description)
	}
}

func TestGetCommand(t *testing.T) {
	_, h, _ := testServer(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/commands/%23100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var entry command.Entry
	decodeBody(t, rec, &entry)
	if entry.Code != "#100" || entry.Description != "outside temperature" {
		t.Errorf("entry = %+v", entry)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/commands/%23999", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListPending(t *testing.T) {
	_, h, fr := testServer(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/pending", "")
	var empty struct {
		Pending []relay.PendingQuery `json:"pending"`
		Count   int                  `json:"count"`
	}
	decodeBody(t, rec, &empty)
	if empty.Pending == nil || empty.Count != 0 {
		t.Errorf("empty pending = %+v, want [] and 0", empty)
	}

	fr.pending = []relay.PendingQuery{{ID: "q1", Entry: testTable[0]}}
	rec = doRequest(t, h, http.MethodGet, "/api/v1/pending", "")
	var body struct {
		Pending []relay.PendingQuery `json:"pending"`
		Count   int                  `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 1 || body.Pending[0].ID != "q1" || body.Pending[0].Entry.Code != "#100" {
		t.Errorf("pending = %+v", body)
	}
}

func TestListHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		_, h, _ := testServer(t, nil)
		rec := doRequest(t, h, http.MethodGet, "/api/v1/history", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("filters", func(t *testing.T) {
		repo := &fakeHistory{}
		_, h, _ := testServer(t, func(d *Deps) { d.History = repo })

		rec := doRequest(t, h, http.MethodGet,
			"/api/v1/history?kind=reply&code=%23100&since=2026-06-23T10:00:00Z&limit=10&offset=5", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		f := repo.lastFilter
		if f.Kind != relay.EventReply || f.Code != "#100" || f.Limit != 10 || f.Offset != 5 {
			t.Errorf("filter = %+v", f)
		}
		if !f.Since.Equal(time.Date(2026, 6, 23, 10, 0, 0, 0, time.UTC)) {
			t.Errorf("since = %v", f.Since)
		}

		var body history.ListResult
		decodeBody(t, rec, &body)
		if body.Total != 1 || body.Entries[0].ID != "evt-1" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("bad parameters", func(t *testing.T) {
		_, h, _ := testServer(t, func(d *Deps) { d.History = &fakeHistory{} })
		for _, q := range []string{"limit=ten", "offset=x", "since=yesterday"} {
			rec := doRequest(t, h, http.MethodGet, "/api/v1/history?"+q, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", q, rec.Code)
			}
		}
	})

	t.Run("repository error", func(t *testing.T) {
		_, h, _ := testServer(t, func(d *Deps) { d.History = &fakeHistory{err: errors.New("locked")} })
		rec := doRequest(t, h, http.MethodGet, "/api/v1/history", "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestDispatch(t *testing.T) {
	_, h, fr := testServer(t, nil)

	tests := []struct {
		name           string
		body           string
		wantStatus     int
		wantRecognised bool
		wantClass      command.Class
	}{
		{"query", `{"code":"#100"}`, http.StatusAccepted, true, command.ClassQuery},
		{"action", `{"code":" *2000 "}`, http.StatusAccepted, true, command.ClassAction},
		{"unknown", `{"code":"#999"}`, http.StatusAccepted, false, ""},
		{"empty", `{"code":""}`, http.StatusBadRequest, false, ""},
		{"invalid JSON", `{code`, http.StatusBadRequest, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/v1/dispatch", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusAccepted {
				return
			}
			var resp DispatchResponse
			decodeBody(t, rec, &resp)
			if resp.Recognised != tt.wantRecognised || resp.Class != tt.wantClass {
				t.Errorf("response = %+v", resp)
			}
		})
	}

	want := []string{"#100", "*2000", "#999"}
	got := fr.Dispatched()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("dispatched = %v, want %v", got, want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := relay.NewMetrics(reg); err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	_, h, _ := testServer(t, func(d *Deps) { d.Gatherer = reg })

	rec := doRequest(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hamrelay_relay_pending_queries") {
		t.Error("metrics output missing hamrelay_relay_pending_queries")
	}
}

func TestMetricsEndpoint_NotMounted(t *testing.T) {
	_, h, _ := testServer(t, nil)
	if rec := doRequest(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func newFeedClient(hub *Hub, kinds ...relay.EventKind) *feedClient {
	c := &feedClient{hub: hub, send: make(chan []byte, feedBufferSize)}
	c.setFilter(kinds)
	hub.register(c)
	return c
}

func readFeed(t *testing.T, c *feedClient) (FeedMessage, bool) {
	t.Helper()
	select {
	case data := <-c.send:
		var msg FeedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg, true
	case <-time.After(100 * time.Millisecond):
		return FeedMessage{}, false
	}
}

func TestHub_RecordFiltersByKind(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	all := newFeedClient(hub)
	replies := newFeedClient(hub, relay.EventReply)
	actions := newFeedClient(hub, relay.EventAction)

	hub.Record(relay.Event{Kind: relay.EventReply, Code: "#100", Payload: "outside temperature 21.5"})

	for name, c := range map[string]*feedClient{"all": all, "replies": replies} {
		msg, ok := readFeed(t, c)
		if !ok {
			t.Errorf("%s: timed out waiting for event", name)
			continue
		}
		if msg.Type != FeedEvent || msg.Event == nil || msg.Event.Payload != "outside temperature 21.5" {
			t.Errorf("%s: message = %+v", name, msg)
		}
	}
	if _, ok := readFeed(t, actions); ok {
		t.Error("action-only client should not receive a reply")
	}
}

func TestFeedClient_Messages(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	c := newFeedClient(hub)

	c.handle([]byte(`{"type":"filter","id":"f1","kinds":["expired"]}`))
	msg, ok := readFeed(t, c)
	if !ok || msg.Type != FeedPong || msg.ID != "f1" || len(msg.Kinds) != 1 {
		t.Fatalf("filter ack = %+v", msg)
	}
	if c.wants(relay.EventReply) || !c.wants(relay.EventExpired) {
		t.Error("filter not applied")
	}

	c.handle([]byte(`{"type":"filter"}`))
	readFeed(t, c)
	if !c.wants(relay.EventReply) {
		t.Error("empty filter should accept every kind")
	}

	c.handle([]byte(`{"type":"shout","id":"x"}`))
	if msg, _ := readFeed(t, c); msg.Type != FeedError || msg.ID != "x" {
		t.Errorf("unknown type reply = %+v", msg)
	}

	c.handle([]byte(`not json`))
	if msg, _ := readFeed(t, c); msg.Type != FeedError {
		t.Errorf("bad JSON reply = %+v", msg)
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())

	c := newFeedClient(hub)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.unregister(c)
	hub.unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
	// queue closed; a late event must not panic
	c.trySend([]byte("late"))
}

func TestHub_RunDisconnectsOnCancel(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	c := newFeedClient(hub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, open := <-c.send; open {
		t.Error("send queue should be closed")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients = %d, want 0", hub.ClientCount())
	}
}

func TestWebSocket_LiveEvents(t *testing.T) {
	srv, h, _ := testServer(t, nil)
	ts := httptest.NewServer(h)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?kinds=unrecognised"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// ping round trip confirms the client is registered before broadcasting
	if err := conn.WriteJSON(FeedMessage{Type: FeedPing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var pong FeedMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != FeedPong || pong.ID != "p1" {
		t.Fatalf("pong = %+v", pong)
	}

	// filtered out
	srv.hub.Record(relay.Event{Kind: relay.EventAction, Code: "*2000"})
	srv.hub.Record(relay.Event{Kind: relay.EventUnrecognised, Code: "#999", Payload: "#999 not recognised"})

	var msg FeedMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != FeedEvent || msg.Event == nil || msg.Event.Code != "#999" {
		t.Errorf("event = %+v", msg)
	}
}
