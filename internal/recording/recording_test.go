package recording

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

func mustParse(t *testing.T, frame string) ws.Event {
	t.Helper()
	ev, err := ws.ParseEvent([]byte(frame))
	if err != nil {
		t.Fatalf("parse %s: %v", frame, err)
	}
	return ev
}

var sampleFrames = []string{
	`{"type":"cargo_status","cargoId":"cargo-1","status":"Placed","timestamp":1}`,
	`{"type":"area_update","areaId":"area-1","action":"update","data":{"name":"A"},"timestamp":2}`,
	`{"type":"crane_alarm","timestamp":3}`,
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"events.jsonl", "events.jsonl.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			rec, err := NewRecorder(path)
			if err != nil {
				t.Fatalf("NewRecorder: %v", err)
			}
			for _, f := range sampleFrames {
				if err := rec.Write(mustParse(t, f)); err != nil {
					t.Fatalf("Write: %v", err)
				}
			}
			if rec.Count() != len(sampleFrames) {
				t.Errorf("expected count %d, got %d", len(sampleFrames), rec.Count())
			}
			if err := rec.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			frames, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(frames) != len(sampleFrames) {
				t.Fatalf("expected %d frames, got %d", len(sampleFrames), len(frames))
			}
			for i, f := range frames {
				if string(f) != sampleFrames[i] {
					t.Errorf("frame %d: got %s, want %s", i, f, sampleFrames[i])
				}
			}
		})
	}
}

func TestCompressedFileIsNotPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl.zst")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Write(mustParse(t, sampleFrames[0])); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// zstd frame magic number
	if len(raw) < 4 || raw[0] != 0x28 || raw[1] != 0xB5 || raw[2] != 0x2F || raw[3] != 0xFD {
		t.Errorf("expected zstd magic, got % x", raw[:min(4, len(raw))])
	}
}

func TestLoadRejectsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	content := sampleFrames[0] + "\n\n" + `{"status":"Placed"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !errors.Is(err, ws.ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
}

func TestLoadEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestMultiLineFrameRecordedOnOneLine(t *testing.T) {
	pretty := "{\n  \"type\": \"cargo_status\",\n  \"cargoId\": \"cargo-1\",\n  \"status\": \"Placed\",\n  \"timestamp\": 1\n}"
	path := filepath.Join(t.TempDir(), "pretty.jsonl")

	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Write(mustParse(t, pretty)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	frames, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	want := `{"type":"cargo_status","cargoId":"cargo-1","status":"Placed","timestamp":1}`
	if string(frames[0]) != want {
		t.Errorf("got %s, want %s", frames[0], want)
	}
}
