// Serialmux provides an abstraction over a serial port with the ability for
// multiple clients to subscribe to the aligned SDS011 frames read from it.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/airquality.report/internal/sds011"
)

// SerialMux is a serial port multiplexer that allows multiple clients to
// subscribe to frames from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan sds011.Frame
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving frames from the serial
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan sds011.Frame)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Monitor reads frames from the serial port and sends them to the
	// subscribed channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan sds011.Frame),
	}
}

func (s *SerialMux[T]) Subscribe() (string, chan sds011.Frame) {
	id := uuid.NewString()
	ch := make(chan sds011.Frame, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// ScanFrames is a bufio.SplitFunc that yields complete frames delimited by the
// 0xAA head and 0xAB tail markers. Bytes that cannot start a frame are
// dropped so the stream resynchronises after line noise.
//
// The search for the next aligned frame happens here rather than by
// returning a bare advance: bufio.Scanner reads again before re-splitting
// buffered data, and stops for good at EOF on a nil token.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		j := bytes.IndexByte(data[i:], sds011.FrameHead)
		if j < 0 {
			break
		}
		i += j
		if len(data)-i < sds011.FrameLen {
			if atEOF {
				// trailing partial frame
				return len(data), nil, nil
			}
			// keep the candidate head buffered until the rest arrives
			return i, nil, nil
		}
		if data[i+sds011.FrameLen-1] == sds011.FrameTail {
			return i + sds011.FrameLen, data[i : i+sds011.FrameLen], nil
		}
	}
	return len(data), nil, nil
}

// Monitor monitors the serial port for frames and sends them to subscribers
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	scan.Split(ScanFrames)

	frameChan := make(chan sds011.Frame)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs in its own goroutine so the outer loop can
	// still observe context cancellation.
	go func() {
		defer close(frameChan)
		for scan.Scan() {
			frame, err := sds011.ParseFrame(scan.Bytes())
			if err != nil {
				// ScanFrames only yields aligned frames
				continue
			}
			select {
			case frameChan <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case frame, ok := <-frameChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- frame:
				default:
					// slow subscriber; drop rather than block the port
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Server-Sent Events stream of raw frames as they come off the port.
	debug.HandleFunc("tail", "live tail of sensor frames", func(w http.ResponseWriter, r *http.Request) {
		serveFrameTail(w, r, s)
	})
}

type subscriber interface {
	Subscribe() (string, chan sds011.Frame)
	Unsubscribe(string)
}

func serveFrameTail(w http.ResponseWriter, r *http.Request, s subscriber) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.Subscribe()
	defer s.Unsubscribe(id)

	io.WriteString(w, ": ping\n\n")
	flusher.Flush()

	for {
		select {
		case frame, ok := <-c:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ClassifyFrame(frame), frame); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
