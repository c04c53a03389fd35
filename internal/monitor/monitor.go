// Package monitor runs the per-frame drowsiness loop: read a frame, find
// faces, classify each face from its eye landmarks, notify the sinks,
// annotate and display.
//
// The loop is single threaded. Every stage is synchronous and bounded, so a
// slow notification delays the next frame but never stops the loop.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/safedrive/drowsiness-monitor/internal/ear"
	"github.com/safedrive/drowsiness-monitor/internal/logger"
	"github.com/safedrive/drowsiness-monitor/internal/metrics"
	"github.com/safedrive/drowsiness-monitor/internal/notifier"
	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// Source yields camera frames. Read returns types.ErrNoFrame when the
// stream is exhausted.
type Source interface {
	Read(ctx context.Context) (types.Frame, error)
	Close() error
}

// FaceDetector finds face rectangles in a frame.
type FaceDetector interface {
	DetectFaces(frame types.Frame) ([]image.Rectangle, error)
}

// LandmarkPredictor returns the landmark set for one face.
type LandmarkPredictor interface {
	PredictLandmarks(ctx context.Context, frame types.Frame, face image.Rectangle) (types.LandmarkSet, error)
}

// Renderer draws a classification onto the frame in place.
type Renderer interface {
	Annotate(frame types.Frame, face image.Rectangle, state types.DriverState) error
}

// Display shows a frame and reports whether the user asked to quit.
type Display interface {
	Show(frame types.Frame) (quit bool, err error)
}

// Journal persists driver state transitions.
type Journal interface {
	Record(ctx context.Context, t types.Transition) error
}

// FrameObserver receives every frame after annotation. The frame is only
// valid for the duration of the call.
type FrameObserver interface {
	ObserveFrame(frame types.Frame, report types.FrameReport)
}

// Options wires the monitor's collaborators. Source, Detector, Landmarks
// and Classifier are required.
type Options struct {
	Source     Source
	Detector   FaceDetector
	Landmarks  LandmarkPredictor
	Classifier *ear.Classifier

	Renderer      Renderer
	Display       Display
	Notifiers     []notifier.Notifier
	NotifyTimeout time.Duration
	Journal       Journal
	Observers     []FrameObserver
	Metrics       *metrics.Metrics
}

// Monitor owns the frame loop.
type Monitor struct {
	source     Source
	detector   FaceDetector
	landmarks  LandmarkPredictor
	classifier *ear.Classifier

	renderer      Renderer
	display       Display
	notifiers     []notifier.Notifier
	notifyTimeout time.Duration
	journal       Journal
	observers     []FrameObserver
	metrics       *metrics.Metrics

	// Transition tracking across readings
	hasState bool
	state    types.DriverState
	run      uint64

	failing map[string]bool // Sinks whose last delivery failed
}

// New validates opts and creates a monitor.
func New(opts Options) (*Monitor, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("monitor: source is required")
	case opts.Detector == nil:
		return nil, errors.New("monitor: face detector is required")
	case opts.Landmarks == nil:
		return nil, errors.New("monitor: landmark predictor is required")
	case opts.Classifier == nil:
		return nil, errors.New("monitor: classifier is required")
	}

	m := &Monitor{
		source:        opts.Source,
		detector:      opts.Detector,
		landmarks:     opts.Landmarks,
		classifier:    opts.Classifier,
		renderer:      opts.Renderer,
		display:       opts.Display,
		notifiers:     opts.Notifiers,
		notifyTimeout: opts.NotifyTimeout,
		journal:       opts.Journal,
		observers:     opts.Observers,
		metrics:       opts.Metrics,
		failing:       make(map[string]bool),
	}
	if m.notifyTimeout <= 0 {
		m.notifyTimeout = notifier.DefaultTimeout
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	return m, nil
}

// State returns the last classified state, if any face was classified yet.
func (m *Monitor) State() (types.DriverState, bool) {
	return m.state, m.hasState
}

// Run processes frames until the source is exhausted, the user quits or
// ctx is cancelled. All three end the loop without error.
func (m *Monitor) Run(ctx context.Context) error {
	logger.Info("Monitor", "Frame loop started (threshold=%.2f, scheme=%s, sinks=%d)",
		m.classifier.Threshold(), m.classifier.Scheme().Name, len(m.notifiers))

	for {
		if ctx.Err() != nil {
			logger.Info("Monitor", "Context cancelled, stopping")
			return nil
		}

		frame, err := m.source.Read(ctx)
		if errors.Is(err, types.ErrNoFrame) {
			logger.Info("Monitor", "No frame received, stopping")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		quit := m.processFrame(ctx, frame)
		if err := frame.Close(); err != nil {
			logger.Debug("Monitor", "Frame %d close: %v", frame.Number(), err)
		}
		if quit {
			logger.Info("Monitor", "Quit requested, stopping")
			return nil
		}
	}
}

// processFrame runs one iteration of the loop and reports whether the
// display asked to quit. Errors are confined to the frame: the remaining
// faces are skipped but the frame is still observed and displayed.
func (m *Monitor) processFrame(ctx context.Context, frame types.Frame) bool {
	start := time.Now()
	m.metrics.FramesRead.Add(1)

	report := types.FrameReport{
		FrameNum:  frame.Number(),
		Timestamp: frame.Timestamp(),
	}

	faces, err := m.detector.DetectFaces(frame)
	if err != nil {
		report.Err = fmt.Errorf("detect faces: %w", err)
	}

	// Landmarks are predicted on the clean frame; annotation comes after.
	for _, face := range faces {
		if report.Err != nil {
			break
		}
		m.metrics.FacesDetected.Add(1)

		reading, err := m.readFace(ctx, frame, face)
		if err != nil {
			report.Err = fmt.Errorf("face %v: %w", face, err)
			break
		}
		report.Readings = append(report.Readings, reading)
		m.metrics.ObserveReading(reading.State, reading.EAR)
	}

	for _, reading := range report.Readings {
		if m.renderer != nil {
			if err := m.renderer.Annotate(frame, reading.Face, reading.State); err != nil {
				logger.Debug("Monitor", "Frame %d annotate: %v", report.FrameNum, err)
			}
		}
		m.notify(ctx, reading.State)
		m.track(ctx, report.FrameNum, reading)
	}

	if report.Err != nil {
		m.metrics.FrameErrors.Add(1)
		logger.Warn("Monitor", "Frame %d skipped: %v", report.FrameNum, report.Err)
	} else {
		m.metrics.FramesProcessed.Add(1)
	}

	report.Latency = time.Since(start)
	m.metrics.UpdateProcessLatency(report.Latency)
	m.metrics.UpdateFrameLatency(report.Timestamp)

	for _, o := range m.observers {
		o.ObserveFrame(frame, report)
	}

	if m.display == nil {
		return false
	}
	quit, err := m.display.Show(frame)
	if err != nil {
		logger.Warn("Monitor", "Frame %d display: %v", report.FrameNum, err)
	}
	return quit
}

func (m *Monitor) readFace(ctx context.Context, frame types.Frame, face image.Rectangle) (types.FaceReading, error) {
	landmarks, err := m.landmarks.PredictLandmarks(ctx, frame, face)
	if err != nil {
		return types.FaceReading{}, fmt.Errorf("landmarks: %w", err)
	}

	r, err := m.classifier.Classify(landmarks)
	if err != nil {
		return types.FaceReading{}, err
	}

	return types.FaceReading{
		Face:     face,
		LeftEAR:  r.Left,
		RightEAR: r.Right,
		EAR:      r.Average,
		State:    r.State,
	}, nil
}

// notify sends state to every sink and accounts for each outcome.
func (m *Monitor) notify(ctx context.Context, state types.DriverState) {
	for _, n := range m.notifiers {
		nctx, cancel := context.WithTimeout(ctx, m.notifyTimeout)
		res := n.Notify(nctx, state)
		cancel()
		m.acknowledge(res)
	}
}

func (m *Monitor) acknowledge(res notifier.Result) {
	switch {
	case res.Skipped:
		m.metrics.NotifySkipped.Add(1)
	case res.Err != nil:
		m.metrics.NotifyFailed.Add(1)
		if !m.failing[res.Sink] {
			logger.Warn("Notify", "%s: %s not delivered: %v", res.Sink, res.State, res.Err)
		} else {
			logger.Debug("Notify", "%s: %s not delivered: %v", res.Sink, res.State, res.Err)
		}
		m.failing[res.Sink] = true
	default:
		m.metrics.NotifySent.Add(1)
		if m.failing[res.Sink] {
			logger.Info("Notify", "%s: delivering again", res.Sink)
		}
		m.failing[res.Sink] = false
		logger.Debug("Notify", "%s: %s delivered in %v", res.Sink, res.State, res.Elapsed)
	}
}

// track counts consecutive readings per state and journals every change.
func (m *Monitor) track(ctx context.Context, frameNum uint64, reading types.FaceReading) {
	if m.hasState && reading.State == m.state {
		m.run++
		return
	}

	t := types.Transition{
		At:       time.Now(),
		FrameNum: frameNum,
		From:     m.state,
		To:       reading.State,
		Initial:  !m.hasState,
		Run:      m.run,
		EAR:      reading.EAR,
	}
	if t.Initial {
		logger.Info("Monitor", "Driver state %s (EAR %.3f)", t.To, t.EAR)
	} else {
		logger.Info("Monitor", "Driver state %s -> %s after %d readings (EAR %.3f)", t.From, t.To, t.Run, t.EAR)
	}

	m.hasState = true
	m.state = reading.State
	m.run = 1

	if m.journal != nil {
		if err := m.journal.Record(ctx, t); err != nil {
			logger.Warn("Monitor", "Journal: %v", err)
		}
	}
}

// Close releases the source and any collaborator that holds resources.
func (m *Monitor) Close() error {
	var errs []error
	if err := m.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	for _, c := range []any{m.detector, m.landmarks, m.display} {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
