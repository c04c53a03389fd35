package landmark

import (
	"context"
	"encoding/base64"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

type stubFrame struct {
	num  uint64
	jpeg []byte
}

func (f *stubFrame) Number() uint64        { return f.num }
func (f *stubFrame) Timestamp() time.Time  { return time.Time{} }
func (f *stubFrame) Size() image.Point     { return image.Pt(640, 480) }
func (f *stubFrame) JPEG() ([]byte, error) { return f.jpeg, nil }
func (f *stubFrame) Close() error          { return nil }

// landmarkServer answers every request with handle(req).
func landmarkServer(t *testing.T, handle func(req request) response) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connections.Add(1)

		for {
			var req request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if err := conn.WriteJSON(handle(req)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &connections
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNew(t *testing.T) {
	c, err := New("ws://127.0.0.1:8765/landmarks", "models/shape_predictor_68_face_landmarks.dat", 0)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8765/landmarks?model=models%2Fshape_predictor_68_face_landmarks.dat", c.URL())

	_, err = New("http://127.0.0.1:8765/landmarks", "", 0)
	assert.Error(t, err)
}

func TestPredictLandmarks(t *testing.T) {
	var gotModel atomic.Value
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModel.Store(r.URL.Query().Get("model"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		img, err := base64.StdEncoding.DecodeString(req.Image)
		if assert.NoError(t, err) {
			assert.Equal(t, []byte("jpeg-bytes"), img)
		}
		assert.Equal(t, rect{X: 10, Y: 20, W: 100, H: 120}, req.Face)

		points := make(types.LandmarkSet, 68)
		for i := range points {
			points[i] = types.Point{X: float64(i), Y: float64(2 * i)}
		}
		_ = conn.WriteJSON(response{ID: req.ID, Points: points})
	}))
	defer srv.Close()

	c, err := New(wsURL(srv), "predictor.dat", time.Second)
	require.NoError(t, err)
	defer c.Close()

	frame := &stubFrame{num: 1, jpeg: []byte("jpeg-bytes")}
	set, err := c.PredictLandmarks(context.Background(), frame, image.Rect(10, 20, 110, 140))
	require.NoError(t, err)
	require.Len(t, set, 68)
	assert.Equal(t, types.Point{X: 67, Y: 134}, set[67])
	assert.Equal(t, "predictor.dat", gotModel.Load())
}

func TestPredictLandmarks_ServiceError(t *testing.T) {
	srv, _ := landmarkServer(t, func(req request) response {
		return response{ID: req.ID, Error: "no shape found"}
	})

	c, err := New(wsURL(srv), "", time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.PredictLandmarks(context.Background(), &stubFrame{jpeg: []byte{1}}, image.Rect(0, 0, 10, 10))
	assert.ErrorIs(t, err, ErrPrediction)
	assert.Contains(t, err.Error(), "no shape found")
}

func TestPredictLandmarks_MismatchedIDReconnects(t *testing.T) {
	var calls atomic.Int32
	srv, connections := landmarkServer(t, func(req request) response {
		if calls.Add(1) == 1 {
			return response{ID: "stale"}
		}
		return response{ID: req.ID, Points: types.LandmarkSet{{X: 1, Y: 1}}}
	})

	c, err := New(wsURL(srv), "", time.Second)
	require.NoError(t, err)
	defer c.Close()

	frame := &stubFrame{jpeg: []byte{1}}
	_, err = c.PredictLandmarks(context.Background(), frame, image.Rect(0, 0, 10, 10))
	assert.ErrorIs(t, err, ErrPrediction)

	set, err := c.PredictLandmarks(context.Background(), frame, image.Rect(0, 0, 10, 10))
	require.NoError(t, err)
	assert.Len(t, set, 1)
	assert.Equal(t, int32(2), connections.Load())
}

func TestPredictLandmarks_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	c, err := New(url, "", 200*time.Millisecond)
	require.NoError(t, err)

	_, err = c.PredictLandmarks(context.Background(), &stubFrame{jpeg: []byte{1}}, image.Rect(0, 0, 10, 10))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPredictLandmarks_EmptyFace(t *testing.T) {
	c, err := New("ws://127.0.0.1:1/landmarks", "", time.Second)
	require.NoError(t, err)

	_, err = c.PredictLandmarks(context.Background(), &stubFrame{}, image.Rectangle{})
	assert.ErrorIs(t, err, ErrPrediction)
}
