package webmonitor

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

func TestIndex(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("GET / content-type = %q", resp.Header.Get("Content-Type"))
	}
	for _, needle := range []string{"<title>Driver Drowsiness Monitor</title>", "/stream", "/api/status/stream"} {
		if !strings.Contains(string(body), needle) {
			t.Errorf("index missing %q", needle)
		}
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /nope status = %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	srv.monitor.SetSession("session-1")

	frame := &stubFrame{num: 1}
	srv.ObserveFrame(frame, report(1, types.Alert))
	srv.ObserveFrame(frame, report(2, types.Drowsy))

	resp, payload := getJSON(t, ts.URL+"/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/status status = %d", resp.StatusCode)
	}
	assertStatusPayload(t, payload)

	monitor := requireMap(t, payload["monitor"], "monitor")
	if got := requireNumber(t, monitor["frames_processed"], "frames_processed"); got != 2 {
		t.Errorf("frames_processed = %v, want 2", got)
	}
	latest := requireMap(t, payload["latest_reading"], "latest_reading")
	if got := requireString(t, latest["state"], "state"); got != "Drowsy" {
		t.Errorf("latest state = %q, want Drowsy", got)
	}
	face := requireMap(t, latest["face"], "face")
	if requireNumber(t, face["w"], "face.w") != 100 {
		t.Errorf("face width = %v, want 100", face["w"])
	}
	if got := requireString(t, payload["session_id"], "session_id"); got != "session-1" {
		t.Errorf("session_id = %q", got)
	}
	if len(requireSlice(t, payload["reading_history"], "reading_history")) != 2 {
		t.Errorf("expected 2 readings in history")
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, payload := getJSON(t, ts.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health status = %d", resp.StatusCode)
	}
	if requireString(t, payload["status"], "status") != "ok" {
		t.Fatalf("unexpected health payload: %v", payload)
	}
}

func TestMJPEGStream(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	frame := &stubFrame{num: 7, jpeg: []byte("\xff\xd8annotated-frame\xff\xd9")}

	buf, headers, err := readUntil(ts.URL+"/stream", nil, 3*time.Second,
		func() { srv.ObserveFrame(frame, report(7, types.Alert)) },
		func(b []byte) bool { return bytes.Contains(b, []byte("annotated-frame")) },
	)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	contentType := headers.Get("Content-Type")
	if !strings.Contains(contentType, "multipart/x-mixed-replace") || !strings.Contains(contentType, "boundary=frame") {
		t.Fatalf("GET /stream content-type = %q", contentType)
	}
	// Placeholder first, then the published frame.
	if bytes.Count(buf, []byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")) < 2 {
		t.Fatalf("expected placeholder and frame parts, got %q", buf)
	}
}

func TestStatusStream_JSON(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	srv.ObserveFrame(&stubFrame{num: 1}, report(1, types.Alert))

	data, headers, err := readSSEEvent(ts.URL+"/api/status/stream", nil, 3*time.Second, nil)
	if err != nil {
		t.Fatalf("status stream error: %v", err)
	}
	if !strings.Contains(headers.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("status stream content-type = %q", headers.Get("Content-Type"))
	}
	if headers.Get("X-Content-Format") != "application/json" {
		t.Fatalf("X-Content-Format = %q", headers.Get("X-Content-Format"))
	}
	assertStatusPayload(t, decodeJSONMap(t, []byte(data)))
}

func TestStatusStream_Protobuf(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	srv.ObserveFrame(&stubFrame{num: 1}, report(1, types.Drowsy))

	header := http.Header{"Accept": []string{"application/protobuf"}}
	data, headers, err := readSSEEvent(ts.URL+"/api/status/stream", header, 3*time.Second, nil)
	if err != nil {
		t.Fatalf("status stream error: %v", err)
	}
	if headers.Get("X-Content-Format") != "application/protobuf" {
		t.Fatalf("X-Content-Format = %q", headers.Get("X-Content-Format"))
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal protobuf: %v", err)
	}
	assertStatusPayload(t, st.AsMap())

	latest := requireMap(t, st.AsMap()["latest_reading"], "latest_reading")
	if requireString(t, latest["state"], "state") != "Drowsy" {
		t.Fatalf("unexpected latest reading: %v", latest)
	}
}

func TestReadingsStream(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	bad := report(3)
	bad.Err = errors.New("left eye: degenerate eye geometry")

	data, _, err := readSSEEvent(ts.URL+"/api/readings/stream", nil, 3*time.Second, func() {
		srv.ObserveFrame(&stubFrame{num: 3}, bad)
	})
	if err != nil {
		t.Fatalf("readings stream error: %v", err)
	}

	payload := decodeJSONMap(t, []byte(data))
	if requireNumber(t, payload["frame_number"], "frame_number") != 3 {
		t.Errorf("frame_number = %v", payload["frame_number"])
	}
	if !strings.Contains(requireString(t, payload["error"], "error"), "degenerate") {
		t.Errorf("error = %v", payload["error"])
	}
	if len(requireSlice(t, payload["readings"], "readings")) != 0 {
		t.Errorf("expected no readings")
	}
}

type fakeTransitions struct {
	session  string
	list     []types.Transition
	sessions []types.Session
	err      error
	limit    int
}

func (f *fakeTransitions) SessionID() string { return f.session }

func (f *fakeTransitions) Transitions(_ context.Context, session string, limit int) ([]types.Transition, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if session != f.session {
		return nil, nil
	}
	return f.list, nil
}

func (f *fakeTransitions) Sessions(_ context.Context) ([]types.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions, nil
}

func TestTransitions(t *testing.T) {
	src := &fakeTransitions{
		session: "s1",
		list: []types.Transition{
			{FrameNum: 40, From: types.Alert, To: types.Drowsy, Run: 39, EAR: 0.12},
		},
	}
	_, ts := newTestServer(t, src)

	resp, payload := getJSON(t, ts.URL+"/api/transitions?limit=5")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if src.limit != 5 {
		t.Errorf("limit = %d, want 5", src.limit)
	}
	list := requireSlice(t, payload["transitions"], "transitions")
	if len(list) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(list))
	}
	tr := requireMap(t, list[0], "transitions[0]")
	if requireString(t, tr["to"], "to") != "drowsy" || requireString(t, tr["from"], "from") != "alert" {
		t.Errorf("unexpected transition: %v", tr)
	}

	_, payload = getJSON(t, ts.URL+"/api/transitions?session=other")
	if len(requireSlice(t, payload["transitions"], "transitions")) != 0 {
		t.Errorf("expected empty list for unknown session")
	}

	resp, _ = getJSON(t, ts.URL+"/api/transitions?limit=x")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid limit status = %d", resp.StatusCode)
	}
}

func TestTransitions_Disabled(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, payload := getJSON(t, ts.URL+"/api/transitions")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	requireString(t, payload["error"], "error")
}

func TestSessions(t *testing.T) {
	ended := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	src := &fakeTransitions{
		session: "s2",
		sessions: []types.Session{
			{ID: "s2", Source: "0", Scheme: "ibug-68", Threshold: 0.22, StartedAt: ended.Add(time.Hour)},
			{ID: "s1", Source: "0", Scheme: "ibug-68", Threshold: 0.22, StartedAt: ended.Add(-time.Hour), EndedAt: &ended},
		},
	}
	_, ts := newTestServer(t, src)

	resp, payload := getJSON(t, ts.URL+"/api/sessions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if requireString(t, payload["current"], "current") != "s2" {
		t.Errorf("current = %v", payload["current"])
	}
	list := requireSlice(t, payload["sessions"], "sessions")
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	running := requireMap(t, list[0], "sessions[0]")
	if _, ok := running["ended_at"]; ok {
		t.Errorf("running session should omit ended_at: %v", running)
	}
	finished := requireMap(t, list[1], "sessions[1]")
	if requireString(t, finished["session_id"], "session_id") != "s1" {
		t.Errorf("unexpected session: %v", finished)
	}
	requireString(t, finished["ended_at"], "ended_at")
}

func TestSessions_Errors(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, _ := getJSON(t, ts.URL+"/api/sessions")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("disabled status = %d", resp.StatusCode)
	}

	_, ts = newTestServer(t, &fakeTransitions{err: errors.New("disk I/O error")})
	resp, _ = getJSON(t, ts.URL+"/api/sessions")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("failing journal status = %d", resp.StatusCode)
	}
}
