// Package recorder saves a JPEG snapshot of the annotated frame each time
// the driver turns drowsy. Writes happen on a background goroutine so the
// frame loop never waits on the disk.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/safedrive/drowsiness-monitor/internal/logger"
	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// ErrClosed is returned by operations on a closed recorder.
var ErrClosed = errors.New("recorder closed")

type snapshot struct {
	frameNum uint64
	at       time.Time
	ear      float64
	data     []byte
}

// Recorder writes drowsy-onset snapshots to a directory
type Recorder struct {
	mu           sync.RWMutex
	basePath     string
	closed       bool
	last         types.DriverState
	haveLast     bool
	snapshots    uint64
	bytesWritten uint64
	dropped      atomic.Uint64 // Incremented under the read lock
	lastFile     string

	frameChan chan snapshot
	wg        sync.WaitGroup
}

// New creates the snapshot directory and starts the writer goroutine
func New(basePath string) (*Recorder, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	r := &Recorder{
		basePath:  basePath,
		frameChan: make(chan snapshot, 8),
	}

	r.wg.Add(1)
	go r.writeSnapshots()

	return r, nil
}

// ObserveFrame queues a snapshot when the latest reading enters Drowsy.
// Frames without a face leave the tracked state untouched.
func (r *Recorder) ObserveFrame(frame types.Frame, report types.FrameReport) {
	reading, ok := report.Latest()
	if !ok {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	onset := reading.State == types.Drowsy && (!r.haveLast || r.last != types.Drowsy)
	r.last, r.haveLast = reading.State, true
	r.mu.Unlock()

	if !onset {
		return
	}

	data, err := frame.JPEG()
	if err != nil {
		logger.Warn("Recorder", "Frame #%d not encoded: %v", report.FrameNum, err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	// Non-blocking send
	select {
	case r.frameChan <- snapshot{frameNum: report.FrameNum, at: report.Timestamp, ear: reading.EAR, data: data}:
	default:
		r.dropped.Add(1)
		logger.Debug("Recorder", "Snapshot queue full, dropped frame #%d", report.FrameNum)
	}
}

func (r *Recorder) writeSnapshots() {
	defer r.wg.Done()

	for snap := range r.frameChan {
		if err := r.writeSnapshot(snap); err != nil {
			logger.Warn("Recorder", "Snapshot write failed: %v", err)
		}
	}
}

func (r *Recorder) writeSnapshot(snap snapshot) error {
	at := snap.at
	if at.IsZero() {
		at = time.Now()
	}
	filename := fmt.Sprintf("drowsy_%s_f%06d.jpg", at.Format("20060102_150405.000"), snap.frameNum)
	if err := os.WriteFile(filepath.Join(r.basePath, filename), snap.data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}

	r.mu.Lock()
	r.snapshots++
	r.bytesWritten += uint64(len(snap.data))
	r.lastFile = filename
	r.mu.Unlock()

	logger.Info("Recorder", "Saved %s (EAR %.3f)", filename, snap.ear)
	return nil
}

// Status returns the current recorder counters
func (r *Recorder) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Status{
		Directory:    r.basePath,
		Snapshots:    r.snapshots,
		BytesWritten: r.bytesWritten,
		Dropped:      r.dropped.Load(),
		LastFile:     r.lastFile,
	}
}

// Close flushes queued snapshots and stops the writer
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	close(r.frameChan)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

// Status holds the recorder counters
type Status struct {
	Directory    string `json:"directory"`
	Snapshots    uint64 `json:"snapshots"`
	BytesWritten uint64 `json:"bytes_written"`
	Dropped      uint64 `json:"dropped"`
	LastFile     string `json:"last_file,omitempty"`
}
