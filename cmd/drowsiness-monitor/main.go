package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/safedrive/drowsiness-monitor/internal/config"
	"github.com/safedrive/drowsiness-monitor/internal/ear"
	"github.com/safedrive/drowsiness-monitor/internal/journal"
	"github.com/safedrive/drowsiness-monitor/internal/landmark"
	"github.com/safedrive/drowsiness-monitor/internal/logger"
	"github.com/safedrive/drowsiness-monitor/internal/metrics"
	"github.com/safedrive/drowsiness-monitor/internal/monitor"
	"github.com/safedrive/drowsiness-monitor/internal/notifier"
	"github.com/safedrive/drowsiness-monitor/internal/recorder"
	"github.com/safedrive/drowsiness-monitor/internal/vision"
	"github.com/safedrive/drowsiness-monitor/internal/webmonitor"
)

// Server owns the frame loop and its HTTP side servers
type Server struct {
	cfg        *config.Config
	wg         sync.WaitGroup
	metrics    *metrics.Metrics
	monitor    *monitor.Monitor
	web        *webmonitor.Server
	httpServer *http.Server
	journal    *journal.Journal
	redis      *notifier.Redis
	recorder   *recorder.Recorder
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		file := logger.RotatingFile(cfg.LogFile)
		defer file.Close()
		out = io.MultiWriter(os.Stderr, file)
	}
	logger.Init(level, out, cfg.LogColor)

	if err := cfg.Validate(); err != nil {
		logger.Error("Main", "%v", err)
		os.Exit(1)
	}

	logger.Info("Main", "Drowsiness monitor starting...")
	logger.Info("Main", "Log level: %s", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(ctx, cfg)
	if err != nil {
		logger.Error("Main", "Failed to create server: %v", err)
		os.Exit(1)
	}

	srv.Start()
	runErr := srv.monitor.Run(ctx)

	logger.Info("Main", "Shutting down...")
	if err := srv.Shutdown(); err != nil {
		logger.Warn("Main", "Error during shutdown: %v", err)
	}

	if runErr != nil {
		logger.Error("Main", "Monitor stopped: %v", runErr)
		os.Exit(1)
	}
	logger.Info("Main", "Monitor stopped")
}

// NewServer builds every component from cfg. Components that were already
// opened are released if a later one fails.
func NewServer(ctx context.Context, cfg *config.Config) (_ *Server, err error) {
	s := &Server{cfg: cfg, metrics: metrics.New()}
	var undo rollback
	defer func() {
		if err != nil {
			if rerr := undo.run(); rerr != nil {
				logger.Warn("Main", "Rollback: %v", rerr)
			}
		}
	}()

	scheme, err := ear.SchemeByName(cfg.LandmarkScheme)
	if err != nil {
		return nil, err
	}
	classifier, err := ear.NewClassifier(scheme, cfg.Threshold)
	if err != nil {
		return nil, err
	}

	// Notification sinks
	device, err := notifier.NewDevice(cfg.DeviceURL, cfg.NotifyTimeout)
	if err != nil {
		return nil, err
	}
	sinks := []notifier.Notifier{notifier.NewThrottle(device, cfg.NotifyRate)}
	if cfg.RedisAddr != "" {
		s.redis = notifier.NewRedis(cfg.RedisAddr, cfg.RedisChannel)
		undo.add(s.redis.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.redis.Ping(pingCtx); err != nil {
			logger.Warn("Main", "Redis %s not reachable yet: %v", cfg.RedisAddr, err)
		}
		cancel()
		sinks = append(sinks, notifier.NewThrottle(s.redis, cfg.NotifyRate))
	}

	// Journal
	var transitions webmonitor.TransitionSource
	var journalSink monitor.Journal
	if cfg.JournalPath != "" {
		s.journal, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		undo.add(s.journal.Close)
		if _, err := s.journal.StartSession(ctx, cfg.VideoSource, scheme.Name, cfg.Threshold); err != nil {
			return nil, err
		}
		undo.add(func() error { return s.journal.EndSession(context.Background()) })
		transitions = s.journal
		journalSink = s.journal
	}

	// Vision
	capture, err := vision.OpenCapture(cfg.VideoSource)
	if err != nil {
		return nil, err
	}
	undo.add(capture.Close)

	detector, err := vision.NewCascadeDetector(cfg.CascadePath)
	if err != nil {
		return nil, err
	}
	undo.add(detector.Close)

	landmarks, err := landmark.New(cfg.LandmarkURL, cfg.ModelPath, cfg.LandmarkTimeout)
	if err != nil {
		return nil, err
	}
	undo.add(landmarks.Close)
	if err := landmarks.Connect(ctx); err != nil {
		// The client redials on the next request.
		logger.Warn("Main", "Landmark service: %v", err)
	}

	opts := monitor.Options{
		Source:        capture,
		Detector:      detector,
		Landmarks:     landmarks,
		Classifier:    classifier,
		Renderer:      vision.Renderer{},
		Notifiers:     sinks,
		NotifyTimeout: cfg.NotifyTimeout,
		Journal:       journalSink,
		Metrics:       s.metrics,
	}
	if cfg.Display {
		window := vision.NewWindow(cfg.WindowName)
		undo.add(window.Close)
		opts.Display = window
	}

	// Snapshots
	if cfg.SnapshotDir != "" {
		s.recorder, err = recorder.New(cfg.SnapshotDir)
		if err != nil {
			return nil, err
		}
		undo.add(s.recorder.Close)
		opts.Observers = append(opts.Observers, s.recorder)
	}

	// Web monitor
	if cfg.HTTPAddr != "" {
		webCfg := webmonitor.DefaultConfig()
		webCfg.Addr = cfg.HTTPAddr
		status := webmonitor.NewMonitor(webCfg.HistorySize, cfg.Threshold, s.metrics)
		if s.journal != nil {
			status.SetSession(s.journal.SessionID())
		}
		s.web = webmonitor.NewServer(webCfg, status, transitions)
		s.httpServer = &http.Server{
			Addr:              webCfg.Addr,
			Handler:           s.web.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		opts.Observers = append(opts.Observers, s.web)
	}

	s.monitor, err = monitor.New(opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// rollback releases already-opened components in reverse order.
type rollback []func() error

func (r *rollback) add(release func() error) {
	*r = append(*r, release)
}

func (r rollback) run() error {
	var errs []error
	for i := len(r) - 1; i >= 0; i-- {
		if err := r[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start launches the side servers. The frame loop runs on the caller's
// goroutine because OpenCV windows must be driven from one thread.
func (s *Server) Start() {
	logger.Info("Main", "  Video source: %s", s.cfg.VideoSource)
	logger.Info("Main", "  Device: %s", s.cfg.DeviceURL)
	logger.Info("Main", "  Landmark service: %s", s.cfg.LandmarkURL)
	logger.Info("Main", "  Threshold: %.2f", s.cfg.Threshold)

	if s.cfg.MetricsAddr != "" {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", s.cfg.MetricsAddr)
			if err := s.metrics.StartServer(s.cfg.MetricsAddr); err != nil {
				logger.Warn("Main", "Metrics server error: %v", err)
			}
		}()
	}

	if s.httpServer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			logger.Info("Main", "Starting web monitor on %s", s.httpServer.Addr)
			if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Main", "Web monitor error: %v", err)
			}
		}()
	}
}

// Shutdown stops the side servers and releases every component.
func (s *Server) Shutdown() error {
	var errs []error

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("web monitor: %w", err))
		}
		cancel()
		s.web.Close()
	}
	s.wg.Wait()

	if err := s.monitor.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recorder: %w", err))
		}
		logger.Info("Main", "Snapshots saved: %d", s.recorder.Status().Snapshots)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if s.journal != nil {
		if err := s.journal.EndSession(context.Background()); err != nil {
			errs = append(errs, err)
		}
		if err := s.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	}
	return errors.Join(errs...)
}
