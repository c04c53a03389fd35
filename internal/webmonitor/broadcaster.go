package webmonitor

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/safedrive/drowsiness-monitor/internal/logger"
	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FrameBroadcaster manages fanout of JPEG frames to multiple clients.
type FrameBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
	dropped uint64 // Frames not delivered to a slow client
}

// NewFrameBroadcaster creates an empty broadcaster.
func NewFrameBroadcaster() *FrameBroadcaster {
	return &FrameBroadcaster{
		clients: make(map[int]chan []byte),
	}
}

// Subscribe adds a new client and returns a channel for receiving frames.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := fb.nextID
	fb.nextID++
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	fb.clients[id] = ch

	logger.Debug("FrameBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(fb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if ch, ok := fb.clients[id]; ok {
		close(ch)
		delete(fb.clients, id)
		logger.Debug("FrameBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(fb.clients))

		if len(fb.clients) == 0 {
			logger.Info("FrameBroadcaster", "No clients remaining - frame encoding will be skipped")
		}
	}
}

// ClientCount returns the number of subscribed clients.
func (fb *FrameBroadcaster) ClientCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.clients)
}

// Publish sends data to every client without blocking. Slow clients miss
// the frame.
func (fb *FrameBroadcaster) Publish(data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	for _, ch := range fb.clients {
		select {
		case ch <- data:
		default:
			fb.dropped++
		}
	}
}

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized google.protobuf.Struct, base64 encoded for SSE
}

// serializeEvent encodes payload as JSON and as a protobuf Struct. The
// payload may only hold values structpb accepts.
func serializeEvent(payload map[string]interface{}) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}

	pbStruct, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("protobuf struct: %w", err)
	}
	pbData, err := proto.Marshal(pbStruct)
	if err != nil {
		return nil, fmt.Errorf("protobuf marshal: %w", err)
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// EventBroadcaster manages fanout of serialized events to SSE clients.
type EventBroadcaster struct {
	name    string
	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
}

// NewEventBroadcaster creates a broadcaster; name is used in log lines.
func NewEventBroadcaster(name string) *EventBroadcaster {
	return &EventBroadcaster{
		name:    name,
		clients: make(map[int]chan *SerializedEvent),
	}
}

// Subscribe adds a new client and returns a channel for receiving events.
func (eb *EventBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := eb.nextID
	eb.nextID++
	ch := make(chan *SerializedEvent, 2) // Buffer 2 events to avoid blocking
	eb.clients[id] = ch

	logger.Debug(eb.name, "Client #%d subscribed (total clients: %d)", id, len(eb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (eb *EventBroadcaster) Unsubscribe(id int) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if ch, ok := eb.clients[id]; ok {
		close(ch)
		delete(eb.clients, id)
		logger.Debug(eb.name, "Client #%d unsubscribed (remaining clients: %d)", id, len(eb.clients))
	}
}

// ClientCount returns the number of subscribed clients.
func (eb *EventBroadcaster) ClientCount() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.clients)
}

// Broadcast sends event to every client without blocking.
func (eb *EventBroadcaster) Broadcast(event *SerializedEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, ch := range eb.clients {
		select {
		case ch <- event:
		default:
			// Client too slow, skip this event for this client
		}
	}
}

// StatusBroadcaster periodically publishes the monitor status.
type StatusBroadcaster struct {
	*EventBroadcaster
	monitor  *Monitor
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewStatusBroadcaster creates a status broadcaster ticking at interval.
func NewStatusBroadcaster(monitor *Monitor, interval time.Duration) *StatusBroadcaster {
	return &StatusBroadcaster{
		EventBroadcaster: NewEventBroadcaster("StatusBroadcaster"),
		monitor:          monitor,
		interval:         interval,
		stop:             make(chan struct{}),
	}
}

// Start begins the status loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the broadcaster.
func (sb *StatusBroadcaster) Stop() {
	sb.stopOnce.Do(func() { close(sb.stop) })
}

func (sb *StatusBroadcaster) run() {
	logger.Info("StatusBroadcaster", "Starting status event broadcaster (interval=%v)...", sb.interval)
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.stop:
			return
		case <-ticker.C:
			if sb.ClientCount() == 0 {
				continue
			}

			event, err := serializeEvent(statusPayload(sb.monitor.Snapshot()))
			if err != nil {
				logger.Error("StatusBroadcaster", "Serialize error: %v", err)
				continue
			}
			sb.Broadcast(event)
		}
	}
}

func boxPayload(b BoundingBox) map[string]interface{} {
	return map[string]interface{}{"x": b.X, "y": b.Y, "w": b.W, "h": b.H}
}

func readingPayload(r Reading) map[string]interface{} {
	return map[string]interface{}{
		"frame_number": r.FrameNumber,
		"timestamp":    r.Timestamp,
		"face":         boxPayload(r.Face),
		"left_ear":     r.LeftEAR,
		"right_ear":    r.RightEAR,
		"ear":          r.EAR,
		"state":        r.State,
	}
}

// statusPayload mirrors Status as a structpb-compatible map.
func statusPayload(s Status) map[string]interface{} {
	var latest interface{}
	if s.Latest != nil {
		latest = readingPayload(*s.Latest)
	}

	history := make([]interface{}, len(s.History))
	for i, r := range s.History {
		history[i] = readingPayload(r)
	}

	return map[string]interface{}{
		"monitor": map[string]interface{}{
			"frames_processed": s.Monitor.FramesProcessed,
			"frame_errors":     s.Monitor.FrameErrors,
			"faces_detected":   s.Monitor.FacesDetected,
			"current_fps":      s.Monitor.CurrentFPS,
		},
		"latest_reading":  latest,
		"reading_history": history,
		"notify": map[string]interface{}{
			"sent":    s.Notify.Sent,
			"failed":  s.Notify.Failed,
			"skipped": s.Notify.Skipped,
		},
		"session_id": s.Session,
		"threshold":  s.Threshold,
		"timestamp":  s.Timestamp,
	}
}

// framePayload is the per-frame event of /api/readings/stream.
func framePayload(report types.FrameReport) map[string]interface{} {
	readings := make([]interface{}, len(report.Readings))
	for i, r := range report.Readings {
		readings[i] = readingPayload(newReading(report.FrameNum, report.Timestamp, r))
	}

	var errText interface{}
	if report.Err != nil {
		errText = report.Err.Error()
	}

	return map[string]interface{}{
		"frame_number": report.FrameNum,
		"timestamp":    unixSeconds(report.Timestamp),
		"latency_ms":   float64(report.Latency) / float64(time.Millisecond),
		"readings":     readings,
		"error":        errText,
	}
}
