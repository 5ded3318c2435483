package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeCamera struct {
	id       int
	frames   chan string
	released chan struct{}
	once     sync.Once
	opener   *fakeOpener
}

func (c *fakeCamera) Decode(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.released:
		return "", ErrCameraClosed
	case f := <-c.frames:
		if f == "" {
			return "", errors.New("no code")
		}
		return f, nil
	}
}

func (c *fakeCamera) Release() error {
	c.once.Do(func() {
		close(c.released)
		c.opener.record(fmt.Sprintf("release %d", c.id))
	})
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	events  []string
	held    int
	maxHeld int
	cams    []*fakeCamera
	err     error
}

func (o *fakeOpener) record(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	if strings.HasPrefix(event, "release") {
		o.held--
	}
}

func (o *fakeOpener) Open(ctx context.Context) (Camera, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	cam := &fakeCamera{
		id:       len(o.cams) + 1,
		frames:   make(chan string, 8),
		released: make(chan struct{}),
		opener:   o,
	}
	o.cams = append(o.cams, cam)
	o.events = append(o.events, fmt.Sprintf("open %d", cam.id))
	o.held++
	if o.held > o.maxHeld {
		o.maxHeld = o.held
	}
	return cam, nil
}

func (o *fakeOpener) camera(i int) *fakeCamera {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cams[i]
}

func (o *fakeOpener) snapshot() ([]string, int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...), o.held, o.maxHeld
}

func waitForCameras(t *testing.T, o *fakeOpener, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		o.mu.Lock()
		got := len(o.cams)
		o.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d cameras", n)
}

func TestScan(t *testing.T) {
	opener := &fakeOpener{}
	played := 0
	s := NewSession(opener, CueFunc(func() { played++ }))

	done := make(chan struct{})
	var text string
	var err error
	go func() {
		defer close(done)
		text, err = s.Scan(context.Background())
	}()

	waitForCameras(t, opener, 1)
	cam := opener.camera(0)
	cam.frames <- ""
	cam.frames <- ""
	cam.frames <- "https://check.example/q?x=1"
	<-done

	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if text != "https://check.example/q?x=1" {
		t.Errorf("text = %q", text)
	}
	if played != 1 {
		t.Errorf("cue played %d times, want 1", played)
	}
	events, held, _ := opener.snapshot()
	if held != 0 {
		t.Errorf("camera still held after scan: %v", events)
	}
}

func TestScanRapidReinvocation(t *testing.T) {
	opener := &fakeOpener{}
	s := NewSession(opener, nil)

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Scan(context.Background())
		firstErr <- err
	}()
	waitForCameras(t, opener, 1)

	secondText := make(chan string, 1)
	go func() {
		text, _ := s.Scan(context.Background())
		secondText <- text
	}()
	waitForCameras(t, opener, 2)

	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first scan error = %v, want ErrSuperseded", err)
	}

	opener.camera(1).frames <- "second"
	if got := <-secondText; got != "second" {
		t.Errorf("second scan = %q", got)
	}

	events, held, maxHeld := opener.snapshot()
	want := []string{"open 1", "release 1", "open 2", "release 2"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
	if maxHeld != 1 || held != 0 {
		t.Errorf("held = %d, max held = %d; want 0 and 1", held, maxHeld)
	}
}

// signalingOpener reports every successful Open on opened.
type signalingOpener struct {
	Opener
	opened chan struct{}
}

func (o *signalingOpener) Open(ctx context.Context) (Camera, error) {
	cam, err := o.Opener.Open(ctx)
	if err == nil {
		o.opened <- struct{}{}
	}
	return cam, err
}

func TestScanRapidReinvocationLineOpener(t *testing.T) {
	for i := 0; i < 20; i++ {
		t.Run(fmt.Sprintf("run %d", i), func(t *testing.T) {
			pr, pw := io.Pipe()
			defer pw.Close()

			opener := &signalingOpener{Opener: NewLineOpener(pr), opened: make(chan struct{}, 2)}
			var cues int
			var mu sync.Mutex
			s := NewSession(opener, CueFunc(func() {
				mu.Lock()
				cues++
				mu.Unlock()
			}))
			defer s.Close()

			type result struct {
				text string
				err  error
			}
			first := make(chan result, 1)
			go func() {
				text, err := s.Scan(context.Background())
				first <- result{text, err}
			}()
			<-opener.opened

			second := make(chan result, 1)
			go func() {
				text, err := s.Scan(context.Background())
				second <- result{text, err}
			}()
			<-opener.opened

			if _, err := io.WriteString(pw, "https://check.example/r/1\n"); err != nil {
				t.Fatalf("write: %v", err)
			}

			select {
			case got := <-second:
				if got.err != nil || got.text != "https://check.example/r/1" {
					t.Errorf("second scan = %q, %v; want the link", got.text, got.err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("second scan never received the line")
			}

			got := <-first
			if !errors.Is(got.err, ErrSuperseded) || got.text != "" {
				t.Errorf("first scan = %q, %v; want ErrSuperseded", got.text, got.err)
			}

			mu.Lock()
			defer mu.Unlock()
			if cues != 1 {
				t.Errorf("cue played %d times, want 1", cues)
			}
		})
	}
}

func TestScanContextCancel(t *testing.T) {
	opener := &fakeOpener{}
	s := NewSession(opener, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Scan(ctx)
		done <- err
	}()
	waitForCameras(t, opener, 1)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if _, held, _ := opener.snapshot(); held != 0 {
		t.Error("camera not released after cancel")
	}
}

func TestScanOpenError(t *testing.T) {
	s := NewSession(&fakeOpener{err: errors.New("permission denied")}, nil)
	if _, err := s.Scan(context.Background()); err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("err = %v, want open failure", err)
	}
}

func TestSessionClose(t *testing.T) {
	opener := &fakeOpener{}
	s := NewSession(opener, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Scan(context.Background())
		done <- err
	}()
	waitForCameras(t, opener, 1)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("err = %v, want ErrSuperseded", err)
	}
}

func TestLineOpener(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		validateFunc func(t *testing.T, s *Session)
	}{
		{
			name:  "skips blank frames",
			input: "\n  \nhttps://check.example/a\nhttps://check.example/b\n",
			validateFunc: func(t *testing.T, s *Session) {
				for _, want := range []string{"https://check.example/a", "https://check.example/b"} {
					got, err := s.Scan(context.Background())
					if err != nil {
						t.Fatalf("Scan: %v", err)
					}
					if got != want {
						t.Errorf("Scan = %q, want %q", got, want)
					}
				}
			},
		},
		{
			name:  "end of input",
			input: "\n",
			validateFunc: func(t *testing.T, s *Session) {
				if _, err := s.Scan(context.Background()); !errors.Is(err, io.EOF) {
					t.Errorf("err = %v, want io.EOF", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validateFunc(t, NewSession(NewLineOpener(strings.NewReader(tt.input)), nil))
		})
	}
}
