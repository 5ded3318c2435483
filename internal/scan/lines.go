package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

var errNoCode = errors.New("no code in frame")

// LineOpener is a camera over a stream of already-decoded lines, such as the
// output of `zbarcam --raw`. Each line is one frame; blank lines carry no code.
// Cameras opened from it share the stream; a released camera stops reading.
type LineOpener struct {
	lines chan string
	// requeued holds a line taken by a camera that was released before it
	// could return it.
	requeued chan string
	err      error
	once     sync.Once
	r        io.Reader
}

// NewLineOpener reads frames from r.
func NewLineOpener(r io.Reader) *LineOpener {
	return &LineOpener{r: r, lines: make(chan string), requeued: make(chan string, 1)}
}

func (o *LineOpener) start() {
	go func() {
		defer close(o.lines)
		sc := bufio.NewScanner(o.r)
		for sc.Scan() {
			o.lines <- sc.Text()
		}
		o.err = sc.Err()
	}()
}

func (o *LineOpener) Open(ctx context.Context) (Camera, error) {
	o.once.Do(o.start)
	return &lineCamera{opener: o, done: make(chan struct{})}, nil
}

type lineCamera struct {
	opener *LineOpener

	done chan struct{}
	once sync.Once
}

func (c *lineCamera) Decode(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return "", ErrCameraClosed
	default:
	}

	var (
		line string
		ok   bool
	)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrCameraClosed
	case line = <-c.opener.requeued:
		ok = true
	case line, ok = <-c.opener.lines:
	}

	if !ok {
		if c.opener.err != nil {
			return "", fmt.Errorf("%w: %v", ErrCameraClosed, c.opener.err)
		}
		return "", io.EOF
	}

	select {
	case <-c.done:
		c.requeue(line)
		return "", ErrCameraClosed
	default:
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return "", errNoCode
	}
	return line, nil
}

// requeue hands a line back for the next camera. Only one line can be in
// flight per released camera, and the session holds one camera at a time.
func (c *lineCamera) requeue(line string) {
	select {
	case c.opener.requeued <- line:
	default:
	}
}

func (c *lineCamera) Release() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
