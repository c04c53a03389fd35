package webmonitor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

type stubFrame struct {
	num  uint64
	jpeg []byte
}

func (f *stubFrame) Number() uint64        { return f.num }
func (f *stubFrame) Timestamp() time.Time  { return time.Now() }
func (f *stubFrame) Size() image.Point     { return image.Pt(640, 480) }
func (f *stubFrame) JPEG() ([]byte, error) { return f.jpeg, nil }
func (f *stubFrame) Close() error          { return nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StatusInterval = 20 * time.Millisecond
	cfg.StreamIdleTimeout = time.Second
	cfg.PlaceholderWidth = 64
	cfg.PlaceholderHeight = 48
	return cfg
}

func newTestServer(t *testing.T, transitions TransitionSource) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(testConfig(), NewMonitor(4, 0.22, nil), transitions)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, decodeJSONMap(t, body)
}

// readUntil reads the streaming body of url until check accepts the
// accumulated bytes.
func readUntil(url string, header http.Header, timeout time.Duration, started func(), check func([]byte) bool) ([]byte, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if started != nil {
		started()
	}

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 512)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if check(buf) {
				return buf, resp.Header, nil
			}
		}
		if readErr != nil {
			return nil, nil, fmt.Errorf("read stream: %w", readErr)
		}
	}
}

// readSSEEvent returns the data of the first SSE data event.
func readSSEEvent(url string, header http.Header, timeout time.Duration, started func()) (string, http.Header, error) {
	buf, headers, err := readUntil(url, header, timeout, started, func(b []byte) bool {
		return bytes.Contains(b, []byte("data: ")) && bytes.Contains(b[bytes.Index(b, []byte("data: ")):], []byte("\n\n"))
	})
	if err != nil {
		return "", nil, err
	}
	event := string(buf[bytes.Index(buf, []byte("data: ")):])
	event = strings.TrimPrefix(event, "data: ")
	return event[:strings.Index(event, "\n\n")], headers, nil
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func requireString(t *testing.T, value any, field string) string {
	t.Helper()
	str, ok := value.(string)
	if !ok {
		t.Fatalf("expected %s to be string, got %T", field, value)
	}
	return str
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected %s to be object, got %T", field, value)
	}
	return m
}

func requireSlice(t *testing.T, value any, field string) []any {
	t.Helper()
	s, ok := value.([]any)
	if !ok {
		t.Fatalf("expected %s to be array, got %T", field, value)
	}
	return s
}

func assertStatusPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	monitor := requireMap(t, payload["monitor"], "monitor")
	requireNumber(t, monitor["frames_processed"], "monitor.frames_processed")
	requireNumber(t, monitor["current_fps"], "monitor.current_fps")
	requireMap(t, payload["notify"], "notify")
	requireSlice(t, payload["reading_history"], "reading_history")
	requireNumber(t, payload["threshold"], "threshold")
	requireNumber(t, payload["timestamp"], "timestamp")
}

func report(frame uint64, states ...types.DriverState) types.FrameReport {
	r := types.FrameReport{FrameNum: frame, Timestamp: time.Now()}
	for _, s := range states {
		ear := 0.3
		if s == types.Drowsy {
			ear = 0.12
		}
		r.Readings = append(r.Readings, types.FaceReading{
			Face:     image.Rect(10, 20, 110, 140),
			LeftEAR:  ear,
			RightEAR: ear,
			EAR:      ear,
			State:    s,
		})
	}
	return r
}
