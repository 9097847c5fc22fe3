package core

import (
	"testing"
	"time"
)

func TestWorkerID(t *testing.T) {
	id := WorkerID(KindImport, "5f0c")
	if id != "import:5f0c" {
		t.Errorf("expected import:5f0c, got %s", id)
	}
}

func TestParseWorkerID(t *testing.T) {
	tests := []struct {
		input     string
		wantKind  Kind
		wantNID   string
		wantError bool
	}{
		{"main:1", KindMain, "1", false},
		{"import:0b7e2c1a-9a39-4f57-a1f3-6d2a1f54c0e1", KindImport, "0b7e2c1a-9a39-4f57-a1f3-6d2a1f54c0e1", false},
		{"import:has:colons", KindImport, "has:colons", false},
		{"invalid", "", "", true},
		{"main:", "", "", true},
		{":1", "", "", true},
		{"cron:1", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, nid, err := ParseWorkerID(tt.input)
			if tt.wantError {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for %q: %v", tt.input, err)
				return
			}
			if kind != tt.wantKind {
				t.Errorf("kind: got %q, want %q", kind, tt.wantKind)
			}
			if nid != tt.wantNID {
				t.Errorf("nativeID: got %q, want %q", nid, tt.wantNID)
			}
		})
	}
}

func TestParseWorkerIDRoundTrip(t *testing.T) {
	original := WorkerID(KindMain, "3")
	kind, nid, err := ParseWorkerID(original)
	if err != nil {
		t.Fatal(err)
	}
	if reconstructed := WorkerID(kind, nid); reconstructed != original {
		t.Errorf("round-trip failed: %q != %q", reconstructed, original)
	}
}

func TestLogLineFormat(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	l := LogLine{Time: ts, Stream: StreamStdout, Line: "  scrape started \r\n"}
	if got, want := l.Format(), "2024-03-09 14:05:07 scrape started"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestLogLineSeverity(t *testing.T) {
	tests := []struct {
		stream Stream
		want   Severity
	}{
		{StreamStdout, SeverityInfo},
		{StreamStderr, SeverityError},
		{StreamSupervisor, SeverityNotice},
		{Stream(""), SeverityInfo},
	}
	for _, tt := range tests {
		if got := (LogLine{Stream: tt.stream}).Severity(); got != tt.want {
			t.Errorf("Severity(%q) = %q, want %q", tt.stream, got, tt.want)
		}
	}
}
