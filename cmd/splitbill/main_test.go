package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const receiptJSON = `{
	"id": "r-42",
	"sum": "100.00",
	"locationName": "Corner Cafe",
	"products": [
		{"productId": "soup", "productName": "Soup", "productPrice": "60", "productCount": "1", "productCost": "60"},
		{"productId": "tea", "productName": "Tea", "productPrice": "40", "productCount": "1", "productCost": "40"}
	]
}`

func writeReceipt(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipt.json")
	if err := os.WriteFile(path, []byte(receiptJSON), 0o600); err != nil {
		t.Fatalf("write receipt: %v", err)
	}
	return path
}

func TestRun(t *testing.T) {
	file := writeReceipt(t)

	tests := []struct {
		name         string
		args         []string
		stdin        string
		wantErr      bool
		validateFunc func(t *testing.T, out string)
	}{
		{
			name: "equal split from file",
			args: []string{"-file", file, "-n", "3", "-origin", "https://pay.example", "-names", "Ann,Bob"},
			validateFunc: func(t *testing.T, out string) {
				for _, want := range []string{"Corner Cafe", "Ann", "Bob", "Participant 3", "?amount=33.34", "?amount=33.33"} {
					if !strings.Contains(out, want) {
						t.Errorf("output missing %q:\n%s", want, out)
					}
				}
				if strings.Count(out, "https://pay.example/pay/r-42/") != 3 {
					t.Errorf("expected 3 references:\n%s", out)
				}
			},
		},
		{
			name: "itemized split with assignments",
			args: []string{"-file", file, "-mode", "itemized", "-n", "2", "-assign", "1=soup", "-assign", "2=tea,soup"},
			validateFunc: func(t *testing.T, out string) {
				for _, want := range []string{"?amount=60.00", "?amount=100.00", "over_allocated"} {
					if !strings.Contains(out, want) {
						t.Errorf("output missing %q:\n%s", want, out)
					}
				}
			},
		},
		{
			name: "manual total",
			args: []string{"-total", "90", "-n", "2"},
			validateFunc: func(t *testing.T, out string) {
				if strings.Count(out, "?amount=45.00") != 2 {
					t.Errorf("expected two equal shares:\n%s", out)
				}
			},
		},
		{
			name: "codes",
			args: []string{"-total", "10", "-n", "1", "-codes"},
			validateFunc: func(t *testing.T, out string) {
				if !strings.Contains(out, "██") {
					t.Errorf("expected a visual code:\n%s", out)
				}
			},
		},
		{name: "unknown mode", args: []string{"-total", "10", "-mode", "random"}, wantErr: true},
		{name: "too many participants", args: []string{"-total", "10", "-n", "21"}, wantErr: true},
		{name: "assign to missing participant", args: []string{"-file", file, "-mode", "itemized", "-n", "1", "-assign", "2=tea"}, wantErr: true},
		{name: "bad assign flag", args: []string{"-total", "10", "-assign", "tea"}, wantErr: true},
		{name: "resolver not configured", args: []string{"-resolver", ""}, stdin: "https://receipt.example/r/1\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout bytes.Buffer
			err := run(context.Background(), tt.args, strings.NewReader(tt.stdin), &stdout, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.validateFunc != nil {
				tt.validateFunc(t, stdout.String())
			}
		})
	}
}

func TestRunScannedLink(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		validateFunc func(t *testing.T, out string)
	}{
		{
			name: "receipt",
			body: receiptJSON,
			validateFunc: func(t *testing.T, out string) {
				if strings.Count(out, "?amount=50.00") != 2 {
					t.Errorf("expected two equal shares:\n%s", out)
				}
			},
		},
		{
			name: "acknowledgement",
			body: `{"status":"ok"}`,
			validateFunc: func(t *testing.T, out string) {
				if strings.TrimSpace(out) != "Link processed" {
					t.Errorf("output = %q, want Link processed", out)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			var stdout, stderr bytes.Buffer
			stdin := strings.NewReader("\n\nhttps://receipt.example/r/1\n")
			if err := run(context.Background(), []string{"-resolver", srv.URL}, stdin, &stdout, &stderr); err != nil {
				t.Fatalf("run() error = %v", err)
			}
			if !strings.Contains(stderr.String(), "\a") {
				t.Errorf("expected the scan cue on stderr")
			}
			tt.validateFunc(t, stdout.String())
		})
	}
}

func TestRunWritesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "split.xlsx")
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"-file", writeReceipt(t), "-xlsx", path}, strings.NewReader(""), &stdout, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Participants")
	if err != nil {
		t.Fatalf("read participants: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("participants rows = %d, want header + 2", len(rows))
	}
}
