package webmonitor

import (
	"sync"
	"time"

	"github.com/safedrive/drowsiness-monitor/internal/metrics"
	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// fpsWindow is the number of frame timestamps used for the FPS estimate.
const fpsWindow = 30

// Monitor accumulates frame reports into the status served by the API.
type Monitor struct {
	historySize int
	threshold   float64
	metrics     *metrics.Metrics

	mu        sync.Mutex
	stats     MonitorStats
	latest    *Reading
	history   []Reading
	session   string
	frameTime []time.Time
}

// NewMonitor creates a Monitor. m may be nil, in which case notification
// stats stay at zero.
func NewMonitor(historySize int, threshold float64, m *metrics.Metrics) *Monitor {
	if historySize <= 0 {
		historySize = DefaultConfig().HistorySize
	}
	return &Monitor{
		historySize: historySize,
		threshold:   threshold,
		metrics:     m,
	}
}

// SetSession records the journal session of this run.
func (m *Monitor) SetSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = id
}

// Observe folds one frame report into the status.
func (m *Monitor) Observe(report types.FrameReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.FramesProcessed++
	if report.Err != nil {
		m.stats.FrameErrors++
	}
	m.stats.FacesDetected += uint64(len(report.Readings))

	m.frameTime = append(m.frameTime, report.Timestamp)
	if len(m.frameTime) > fpsWindow {
		m.frameTime = m.frameTime[len(m.frameTime)-fpsWindow:]
	}
	m.stats.CurrentFPS = estimateFPS(m.frameTime)

	for _, r := range report.Readings {
		reading := newReading(report.FrameNum, report.Timestamp, r)
		m.latest = &reading
		m.history = append([]Reading{reading}, m.history...)
		if len(m.history) > m.historySize {
			m.history = m.history[:m.historySize]
		}
	}
}

// Snapshot returns a copy of the current status.
func (m *Monitor) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		Monitor:   m.stats,
		History:   make([]Reading, len(m.history)),
		Session:   m.session,
		Threshold: m.threshold,
		Timestamp: unixSeconds(time.Now()),
	}
	copy(status.History, m.history)
	if m.latest != nil {
		latest := *m.latest
		status.Latest = &latest
	}
	if m.metrics != nil {
		status.Notify = NotifyStats{
			Sent:    m.metrics.NotifySent.Load(),
			Failed:  m.metrics.NotifyFailed.Load(),
			Skipped: m.metrics.NotifySkipped.Load(),
		}
	}
	return status
}

func estimateFPS(ts []time.Time) float64 {
	if len(ts) < 2 {
		return 0
	}
	elapsed := ts[len(ts)-1].Sub(ts[0]).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(len(ts)-1) / elapsed
}
