package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activity"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/auth"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/config"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/metrics"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/runtime"
	pebblestore "github.com/tdaniel1925/easemail-redux-sub002/internal/storage/pebble"
)

func newTestServer(t *testing.T) (*httptest.Server, *activity.Service) {
	t.Helper()
	cfg := config.Default()
	cfg.AuthTokens = []config.TokenScope{
		{Token: "tok-a", AccountID: "acct-a", UserID: "user-1"},
		{Token: "tok-b", AccountID: "acct-b"},
	}
	rt, err := runtime.Open(runtime.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfg,
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	mtr := metrics.New()
	svc := activity.NewService(activity.ServiceOptions{
		DB:              rt.DB(),
		Opener:          rt,
		Metrics:         mtr,
		SnapshotLimit:   cfg.SnapshotLimit,
		PayloadMaxBytes: cfg.PayloadMaxBytes,
		BufferLen:       cfg.Stream.BufferLen,
		ReplayBatch:     cfg.Stream.ReplayBatch,
	})
	t.Cleanup(svc.Shutdown)

	srv := New(Options{
		Runtime: rt,
		Service: svc,
		Auth:    auth.New(cfg.AuthTokens),
		Metrics: mtr,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, svc
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestHealthzNoAuth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := doJSON(t, ts, http.MethodGet, "/v1/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d %s", resp.StatusCode, body)
	}
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, ts, http.MethodGet, "/v1/activity", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestEmitAndList(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, ts, http.MethodPost, "/v1/activity/emit", "tok-a", map[string]any{
		"type":      "contact.created",
		"entity_id": "c-1",
		"payload":   map[string]string{"name": "Ada"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("emit: %d %s", resp.StatusCode, body)
	}
	var rec activity.EventRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode emit response: %v", err)
	}
	if rec.ID != 1 || rec.AccountID != "acct-a" || rec.UserID != "user-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	resp, body = doJSON(t, ts, http.MethodGet, "/v1/activity", "tok-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}
	var page struct {
		Events []activity.EventRecord `json:"events"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].ID != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestEmitValidationErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, ts, http.MethodPost, "/v1/activity/emit", "tok-a", map[string]any{
		"type": "NotValid",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type: %d", resp.StatusCode)
	}
}

func TestListScopeIsolation(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, ts, http.MethodPost, "/v1/activity/emit", "tok-a", map[string]any{
		"type": "contact.created", "entity_id": "c-1",
	})
	doJSON(t, ts, http.MethodPost, "/v1/activity/emit", "tok-b", map[string]any{
		"type": "draft.created", "entity_id": "d-1",
	})

	_, body := doJSON(t, ts, http.MethodGet, "/v1/activity", "tok-b", nil)
	var page struct {
		Events []activity.EventRecord `json:"events"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].AccountID != "acct-b" {
		t.Fatalf("scope leak: %+v", page.Events)
	}
}

func TestSearchAndStats(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, ts, http.MethodPost, "/v1/activity/emit", "tok-a", map[string]any{
		"type": "message.updated", "entity_id": "m-1", "payload": map[string]bool{"unread": true},
	})
	doJSON(t, ts, http.MethodPost, "/v1/activity/emit", "tok-a", map[string]any{
		"type": "message.updated", "entity_id": "m-2", "payload": map[string]bool{"unread": false},
	})

	resp, body := doJSON(t, ts, http.MethodGet, "/v1/activity/search?filter="+
		"json.unread+%3D%3D+true", "tok-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: %d %s", resp.StatusCode, body)
	}
	var page struct {
		Events []activity.EventRecord `json:"events"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].EntityID != "m-1" {
		t.Fatalf("search result: %+v", page.Events)
	}

	resp, body = doJSON(t, ts, http.MethodGet, "/v1/activity/stats", "tok-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d", resp.StatusCode)
	}
	var st activity.StatsInfo
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if st.Count != 2 || st.LastID != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

// sseFrame is one parsed server-sent event.
type sseFrame struct {
	id    string
	event string
	data  string
}

// readFrames consumes SSE frames from the stream, skipping comments, until
// n frames arrive or the deadline passes.
func readFrames(t *testing.T, rd *bufio.Reader, n int, deadline time.Duration) []sseFrame {
	t.Helper()
	done := make(chan []sseFrame, 1)
	go func() {
		var frames []sseFrame
		var cur sseFrame
		for len(frames) < n {
			line, err := rd.ReadString('\n')
			if err != nil {
				break
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, ":"):
				// keepalive comment
			case strings.HasPrefix(line, "id:"):
				cur.id = strings.TrimPrefix(line, "id:")
			case strings.HasPrefix(line, "event:"):
				cur.event = strings.TrimPrefix(line, "event:")
			case strings.HasPrefix(line, "data:"):
				cur.data = strings.TrimPrefix(line, "data:")
			case line == "":
				if cur.data != "" || cur.event != "" {
					frames = append(frames, cur)
					cur = sseFrame{}
				}
			}
		}
		done <- frames
	}()
	select {
	case frames := <-done:
		return frames
	case <-time.After(deadline):
		t.Fatalf("timed out reading SSE frames")
		return nil
	}
}

func openStream(t *testing.T, ts *httptest.Server, path string, header map[string]string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %s", ct)
	}
	return resp, bufio.NewReader(resp.Body)
}

func TestStreamLiveEvents(t *testing.T) {
	ts, svc := newTestServer(t)
	_, rd := openStream(t, ts, "/v1/activity/stream?access_token=tok-a", nil)

	// Give the subscription a moment to go live before emitting.
	time.Sleep(50 * time.Millisecond)
	scope := activity.Scope{AccountID: "acct-a", UserID: "user-1"}
	for i := 0; i < 2; i++ {
		if _, err := svc.Emit(context.Background(), scope, activity.TypeContactCreated, fmt.Sprintf("c-%d", i), nil); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	frames := readFrames(t, rd, 2, 3*time.Second)
	if frames[0].id != "1" || frames[1].id != "2" {
		t.Fatalf("ids out of order: %+v", frames)
	}
	if frames[0].event != activity.TypeContactCreated {
		t.Fatalf("event name: %+v", frames[0])
	}
	var rec activity.EventRecord
	if err := json.Unmarshal([]byte(frames[0].data), &rec); err != nil {
		t.Fatalf("frame data: %v", err)
	}
	if rec.AccountID != "acct-a" {
		t.Fatalf("frame record: %+v", rec)
	}
}

func TestStreamResumeWithLastEventID(t *testing.T) {
	ts, svc := newTestServer(t)
	scope := activity.Scope{AccountID: "acct-a"}
	for i := 0; i < 3; i++ {
		if _, err := svc.Emit(context.Background(), scope, activity.TypeMessageUpdated, "m-1", nil); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	_, rd := openStream(t, ts, "/v1/activity/stream?access_token=tok-a", map[string]string{
		"Last-Event-ID": "1",
	})
	frames := readFrames(t, rd, 2, 3*time.Second)
	if frames[0].id != "2" || frames[1].id != "3" {
		t.Fatalf("resume replay wrong: %+v", frames)
	}
}

func TestStreamResumeAfterQueryParam(t *testing.T) {
	ts, svc := newTestServer(t)
	scope := activity.Scope{AccountID: "acct-a"}
	for i := 0; i < 2; i++ {
		if _, err := svc.Emit(context.Background(), scope, activity.TypeDraftCreated, "d-1", nil); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	_, rd := openStream(t, ts, "/v1/activity/stream?access_token=tok-a&resume_after=0", nil)
	frames := readFrames(t, rd, 2, 3*time.Second)
	if frames[0].id != "1" || frames[1].id != "2" {
		t.Fatalf("full replay wrong: %+v", frames)
	}
}

func TestStreamShutdownSendsClosedFrame(t *testing.T) {
	ts, svc := newTestServer(t)
	_, rd := openStream(t, ts, "/v1/activity/stream?access_token=tok-a", nil)
	time.Sleep(50 * time.Millisecond)

	go svc.Shutdown()
	frames := readFrames(t, rd, 1, 3*time.Second)
	if frames[0].event != "stream.closed" {
		t.Fatalf("expected stream.closed, got %+v", frames[0])
	}
	if !strings.Contains(frames[0].data, "shutdown") {
		t.Fatalf("close reason missing: %+v", frames[0])
	}
}

func TestStreamTypeFilter(t *testing.T) {
	ts, svc := newTestServer(t)
	_, rd := openStream(t, ts, "/v1/activity/stream?access_token=tok-a&types=message.*", nil)
	time.Sleep(50 * time.Millisecond)

	scope := activity.Scope{AccountID: "acct-a"}
	if _, err := svc.Emit(context.Background(), scope, activity.TypeContactCreated, "c-1", nil); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if _, err := svc.Emit(context.Background(), scope, activity.TypeMessageUpdated, "m-1", nil); err != nil {
		t.Fatalf("emit: %v", err)
	}

	frames := readFrames(t, rd, 1, 3*time.Second)
	if frames[0].event != activity.TypeMessageUpdated {
		t.Fatalf("filter leaked: %+v", frames[0])
	}
}
