package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quicksocket/internal/config"
)

func TestLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, InfoLevel).With(String("component", "engine"))

	logger.Debug("hidden")
	logger.Warn("client lagged", Uint64("missed", 3), Error(errors.New("slow")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected a single line below debug level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["level"] != "warn" || entry["message"] != "client lagged" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["component"] != "engine" || entry["error"] != "slow" || entry["missed"] != float64(3) {
		t.Fatalf("missing structured fields in %v", entry)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if level, err := ParseLevel("WARNING"); err != nil || level != WarnLevel {
		t.Fatalf("expected warn level, got %v err=%v", level, err)
	}
}

func TestRotationCompressesWithConfiguredCodec(t *testing.T) {
	for _, name := range []string{"gzip", "zstd", "snappy"} {
		name := name
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "quicksocket.log")
			writer, err := newRotatingWriter(config.LoggingConfig{
				Path:        path,
				MaxSizeMB:   1,
				MaxBackups:  2,
				Compression: name,
			})
			if err != nil {
				t.Fatalf("newRotatingWriter: %v", err)
			}
			defer writer.Close()
			writer.maxSize = 16

			first := []byte("0123456789abcdef")
			if _, err := writer.Write(first); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := writer.Write([]byte("next")); err != nil {
				t.Fatalf("write after rotation: %v", err)
			}

			codec, _ := CodecFor(name)
			matches, err := filepath.Glob(path + ".*" + codec.Extension())
			if err != nil || len(matches) != 1 {
				t.Fatalf("expected one rotated %s file, got %v err=%v", name, matches, err)
			}
			file, err := os.Open(matches[0])
			if err != nil {
				t.Fatalf("open rotated: %v", err)
			}
			defer file.Close()
			reader, err := codec.NewReader(file)
			if err != nil {
				t.Fatalf("codec reader: %v", err)
			}
			defer reader.Close()
			data, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read rotated: %v", err)
			}
			if !bytes.Equal(data, first) {
				t.Fatalf("rotated content mismatch: %q", data)
			}
		})
	}
}

func TestCodecForRejectsUnknown(t *testing.T) {
	if _, err := CodecFor("brotli"); err == nil {
		t.Fatalf("expected unknown codec error")
	}
	if codec, err := CodecFor("none"); err != nil || codec != nil {
		t.Fatalf("expected nil codec for none, got %v err=%v", codec, err)
	}
}
