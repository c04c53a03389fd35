// Package landmark talks to the facial landmark service over a WebSocket.
//
// The service holds the 68-point shape predictor. Each request carries one
// JPEG-encoded frame and a face rectangle and is answered with the ordered
// landmark coordinates for that face.
package landmark

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/safedrive/drowsiness-monitor/internal/logger"
	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrUnavailable is returned when the service cannot be reached.
	ErrUnavailable = errors.New("landmark service unavailable")
	// ErrPrediction is returned when the service rejects a request.
	ErrPrediction = errors.New("landmark prediction failed")
)

// DefaultTimeout bounds one request/response round trip.
const DefaultTimeout = 2 * time.Second

type rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type request struct {
	ID    string `json:"id"`
	Image string `json:"image"`
	Face  rect   `json:"face"`
}

type response struct {
	ID     string            `json:"id"`
	Points types.LandmarkSet `json:"points"`
	Error  string            `json:"error,omitempty"`
}

// Client is a synchronous landmark service client. It reconnects lazily
// after any transport error.
type Client struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// New validates the service URL and binds the model path to it.
func New(rawURL, modelPath string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("landmark url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("landmark url %q: scheme must be ws or wss", rawURL)
	}
	if modelPath != "" {
		q := u.Query()
		q.Set("model", modelPath)
		u.RawQuery = q.Encode()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		url:     u.String(),
		timeout: timeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
	}, nil
}

// URL returns the endpoint including the model query.
func (c *Client) URL() string {
	return c.url
}

// Connect dials the service if there is no open connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connLocked(ctx)
	return err
}

func (c *Client) connLocked(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	logger.Info("Landmark", "Connected to %s", c.url)
	c.conn = conn
	return conn, nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// PredictLandmarks returns the landmark set for face in frame.
func (c *Client) PredictLandmarks(ctx context.Context, frame types.Frame, face image.Rectangle) (types.LandmarkSet, error) {
	if face.Empty() {
		return nil, fmt.Errorf("%w: empty face rectangle", ErrPrediction)
	}
	jpeg, err := frame.JPEG()
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", frame.Number(), err)
	}

	req := request{
		ID:    uuid.NewString(),
		Image: base64.StdEncoding.EncodeToString(jpeg),
		Face:  rect{X: face.Min.X, Y: face.Min.Y, W: face.Dx(), H: face.Dy()},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connLocked(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("%w: send: %v", ErrUnavailable, err)
	}

	_ = conn.SetReadDeadline(deadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("%w: read: %v", ErrUnavailable, err)
	}

	var resp response
	if err := json.Unmarshal(message, &resp); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("%w: decode response: %v", ErrPrediction, err)
	}
	if resp.ID != req.ID {
		// Out of step with the service; start over on the next request.
		c.dropLocked()
		return nil, fmt.Errorf("%w: response id %q does not match request %q", ErrPrediction, resp.ID, req.ID)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrPrediction, resp.Error)
	}

	return resp.Points, nil
}

// Close closes the connection. The client may be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.timeout),
	)
	c.dropLocked()
	return nil
}
