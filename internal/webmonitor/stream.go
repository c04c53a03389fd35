package webmonitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/safedrive/drowsiness-monitor/internal/logger"
)

// streamMJPEGFromChannel streams MJPEG from a channel (fanout pattern).
// placeholder is sent whenever no frame arrived for idle.
func streamMJPEGFromChannel(ctx context.Context, w http.ResponseWriter, frameCh <-chan []byte, placeholder []byte, idle time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	// Show the placeholder right away so the page never sits on a broken image.
	jpegData := placeholder
	for {
		if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			logger.Debug("MJPEG", "Client disconnected during write: %v", err)
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			logger.Debug("MJPEG", "Client disconnected during frame write: %v", err)
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			logger.Debug("MJPEG", "Client disconnected during delimiter write: %v", err)
			return
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		case data, ok := <-frameCh:
			if !ok {
				return
			}
			jpegData = data
		case <-time.After(idle):
			jpegData = placeholder
		}
	}
}

// streamEventsFromChannel streams pre-serialized events to an SSE client.
func streamEventsFromChannel(ctx context.Context, w http.ResponseWriter, eventCh <-chan *SerializedEvent, useProtobuf bool, keepalive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if useProtobuf {
		w.Header().Set("X-Content-Format", "application/protobuf")
	} else {
		w.Header().Set("X-Content-Format", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}

			data := event.JSONData
			if useProtobuf {
				data = event.ProtobufData
			}
			if err := writeSSE(w, data); err != nil {
				logger.Debug("SSE", "Client disconnected during event write: %v", err)
				return
			}
			flusher.Flush()

		case <-time.After(keepalive):
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				logger.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, data []byte) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
