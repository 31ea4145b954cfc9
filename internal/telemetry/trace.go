package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bombadil/exerciser/internal/runner"
)

// TraceWriter appends one JSON line per RunEvent to a zstd-compressed
// file, the way a long exploration run records its history for later
// replay or debugging without the event stream dominating disk usage.
//
// The teacher's cache layer reaches for snappy (github.com/klauspost/compress)
// and lz4 (github.com/pierrec/lz4) for hot-path block
// compression of cached render payloads. A trace file is an
// append-only stream read back in full, not a randomly-accessed
// block store, so this uses the zstd facet of that same dependency
// instead — chosen for its streaming encoder and materially better
// ratio on repetitive JSONL, not a different library.
type TraceWriter struct {
	file    *os.File
	encoder *zstd.Encoder
}

// NewTraceWriter creates (or truncates) the trace file runID.jsonl.zst
// inside dir.
func NewTraceWriter(dir, runID string) (*TraceWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: creating trace dir: %w", err)
	}

	path := filepath.Join(dir, runID+".jsonl.zst")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating trace file: %w", err)
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("telemetry: creating zstd encoder: %w", err)
	}

	return &TraceWriter{file: f, encoder: enc}, nil
}

// traceLine is the on-disk shape of one event, decoupled from
// runner.RunEvent so the trace format doesn't shift with internal
// runner refactors.
type traceLine struct {
	Timestamp      time.Time               `json:"timestamp"`
	Kind           string                  `json:"kind"`
	CoverageEdges  int                     `json:"coverage_edges"`
	NewEdges       int                     `json:"new_edges"`
	Properties     []runner.PropertyOutcome `json:"properties,omitempty"`
	DispatchedNext *string                 `json:"dispatched_next,omitempty"`
}

// Write appends one event as a compressed JSON line.
func (w *TraceWriter) Write(ev runner.RunEvent) error {
	line := traceLine{
		Timestamp:     ev.Timestamp,
		Kind:          string(ev.Kind),
		CoverageEdges: ev.CoverageEdges,
		NewEdges:      ev.NewEdges,
		Properties:    ev.Properties,
	}
	if ev.DispatchedNext != nil {
		kind := string(ev.DispatchedNext.Kind)
		line.DispatchedNext = &kind
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("telemetry: marshalling trace line: %w", err)
	}
	data = append(data, '\n')

	if _, err := w.encoder.Write(data); err != nil {
		return fmt.Errorf("telemetry: writing trace line: %w", err)
	}
	return nil
}

// Close flushes the zstd frame and closes the underlying file.
func (w *TraceWriter) Close() error {
	if err := w.encoder.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("telemetry: closing zstd encoder: %w", err)
	}
	return w.file.Close()
}

// ReadTrace decodes a trace file written by TraceWriter back into its
// events, used by tests and offline inspection tooling.
func ReadTrace(r io.Reader) ([]traceLine, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating zstd reader: %w", err)
	}
	defer dec.Close()

	var lines []traceLine
	decoder := json.NewDecoder(dec)
	for {
		var line traceLine
		if err := decoder.Decode(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("telemetry: decoding trace line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}
