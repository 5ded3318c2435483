// Package scan coordinates the capture of a receipt link from a camera.
//
// A camera is an exclusive device: a new scan always releases the previous
// camera before acquiring another, no matter how quickly scans are started.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var (
	// ErrCameraClosed ends a scan; other decode errors are retried.
	ErrCameraClosed = errors.New("camera closed")
	// ErrSuperseded is returned by a scan whose camera was taken over by a newer scan.
	ErrSuperseded = errors.New("scan superseded by a newer scan")
)

// Camera is an acquired capture device.
type Camera interface {
	// Decode blocks until a code is decoded from a frame.
	Decode(ctx context.Context) (string, error)
	Release() error
}

// Opener acquires the camera.
type Opener interface {
	Open(ctx context.Context) (Camera, error)
}

// Cue signals a successful scan to the user.
type Cue interface {
	Play()
}

// CueFunc adapts a function to Cue.
type CueFunc func()

func (f CueFunc) Play() { f() }

// Bell is a Cue that rings the terminal bell on w.
type Bell struct{ W io.Writer }

func (b Bell) Play() {
	if b.W != nil {
		io.WriteString(b.W, "\a")
	}
}

// Session owns at most one acquired camera at a time.
type Session struct {
	opener Opener
	cue    Cue

	mu      sync.Mutex
	current Camera
	gen     uint64
}

// NewSession creates a session. cue may be nil.
func NewSession(opener Opener, cue Cue) *Session {
	return &Session{opener: opener, cue: cue}
}

// Scan acquires the camera, decodes until the first success, plays the cue,
// releases the camera and returns the decoded text.
func (s *Session) Scan(ctx context.Context) (string, error) {
	cam, gen, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer s.release(gen)

	for {
		text, err := cam.Decode(ctx)
		if err == nil && text != "" && s.owns(gen) {
			if s.cue != nil {
				s.cue.Play()
			}
			return text, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if !s.owns(gen) {
			return "", ErrSuperseded
		}
		if errors.Is(err, ErrCameraClosed) || errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to scan: %w", err)
		}
		// Frames without a code are expected while aiming.
	}
}

// Close releases the held camera, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	return s.releaseLocked()
}

func (s *Session) acquire(ctx context.Context) (Camera, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if err := s.releaseLocked(); err != nil {
		slog.Warn("Failed to release previous camera", "error", err)
	}

	cam, err := s.opener.Open(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open camera: %w", err)
	}
	s.current = cam
	return cam, s.gen, nil
}

func (s *Session) release(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return
	}
	if err := s.releaseLocked(); err != nil {
		slog.Warn("Failed to release camera", "error", err)
	}
}

func (s *Session) releaseLocked() error {
	if s.current == nil {
		return nil
	}
	cam := s.current
	s.current = nil
	return cam.Release()
}

func (s *Session) owns(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}
