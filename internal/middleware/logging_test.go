package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"connectrpc.com/connect"
)

type scopedRequest struct{ id string }

func (r *scopedRequest) GetSessionID() string { return r.id }

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoggingInterceptor(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		validateFunc func(t *testing.T, entry map[string]any)
	}{
		{
			name: "success",
			validateFunc: func(t *testing.T, entry map[string]any) {
				if entry["msg"] != "RPC ok" || entry["level"] != "INFO" {
					t.Errorf("unexpected entry: %v", entry)
				}
			},
		},
		{
			name: "connect error",
			err:  connect.NewError(connect.CodeNotFound, errors.New("session not found")),
			validateFunc: func(t *testing.T, entry map[string]any) {
				if entry["level"] != "WARN" || entry["code"] != "not_found" {
					t.Errorf("unexpected entry: %v", entry)
				}
			},
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			validateFunc: func(t *testing.T, entry map[string]any) {
				if entry["level"] != "ERROR" || entry["error"] != "boom" {
					t.Errorf("unexpected entry: %v", entry)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			next := func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
				return nil, tt.err
			}

			_, err := LoggingInterceptor()(next)(context.Background(), connect.NewRequest(&scopedRequest{id: "s-1"}))
			if !errors.Is(err, tt.err) {
				t.Errorf("error not passed through: %v", err)
			}

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("expected one JSON log line, got %q", buf.String())
			}
			if entry["session_id"] != "s-1" {
				t.Errorf("session_id = %v, want s-1", entry["session_id"])
			}
			tt.validateFunc(t, entry)
		})
	}
}

func TestSessionID(t *testing.T) {
	if got := SessionID(&scopedRequest{id: "x"}); got != "x" {
		t.Errorf("SessionID = %q", got)
	}
	if got := SessionID(struct{}{}); got != "" {
		t.Errorf("SessionID = %q, want empty", got)
	}
}
