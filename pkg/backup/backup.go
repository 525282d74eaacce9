// Package backup persists the frame samples behind a generated password.
// The password itself is never stored, only its length.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/entropass/pkg/grid"
)

// Frame is the serialized form of one grid.Sample.
type Frame struct {
	Flat          []int   `json:"flat"`
	UsedCamera    bool    `json:"used_camera"`
	Resolution    [2]int  `json:"resolution"`
	Timestamp     float64 `json:"timestamp"`
	GridShape     [2]int  `json:"grid_shape"`
	AvgBrightness float64 `json:"avg_brightness"`
}

// Record is one backup. In JSON, GeneratedAt is Unix seconds.
type Record struct {
	ID             string
	GeneratedAt    time.Time
	PasswordLength int
	Frames         []Frame
}

// Writer stores records.
type Writer interface {
	Write(ctx context.Context, rec Record) error
}

// NewRecord converts samples into a Record. id may be empty, in which case
// a new UUID is assigned.
func NewRecord(id string, samples []grid.Sample, passwordLength int) Record {
	if id == "" {
		id = uuid.NewString()
	}
	rec := Record{
		ID:             id,
		GeneratedAt:    time.Now(),
		PasswordLength: passwordLength,
		Frames:         make([]Frame, 0, len(samples)),
	}
	for _, s := range samples {
		rec.Frames = append(rec.Frames, FromSample(s))
	}
	return rec
}

// FromSample converts one sample.
func FromSample(s grid.Sample) Frame {
	flat := make([]int, len(s.Flat))
	for i, v := range s.Flat {
		flat[i] = int(v)
	}
	return Frame{
		Flat:          flat,
		UsedCamera:    s.UsedRealDevice,
		Resolution:    [2]int{s.Width, s.Height},
		Timestamp:     float64(s.Timestamp.UnixMicro()) / 1e6,
		GridShape:     [2]int{s.Shape.Rows, s.Shape.Cols},
		AvgBrightness: s.AvgBrightness,
	}
}

type jsonRecord struct {
	ID             string  `json:"id"`
	GeneratedAt    int64   `json:"generated_at"`
	PasswordLength int     `json:"password_length"`
	Frames         []Frame `json:"frames"`
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonRecord{
		ID:             r.ID,
		GeneratedAt:    r.GeneratedAt.Unix(),
		PasswordLength: r.PasswordLength,
		Frames:         r.Frames,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var jr jsonRecord
	if err := json.Unmarshal(data, &jr); err != nil {
		return err
	}
	*r = Record{
		ID:             jr.ID,
		GeneratedAt:    time.Unix(jr.GeneratedAt, 0),
		PasswordLength: jr.PasswordLength,
		Frames:         jr.Frames,
	}
	return nil
}

// JSONFile writes each record to a single JSON file, replacing the previous one.
type JSONFile struct {
	Path string
}

// Write implements Writer.
func (j JSONFile) Write(_ context.Context, rec Record) error {
	return WriteJSON(j.Path, rec)
}

// WriteJSON writes rec as indented JSON to path, creating parent directories.
func WriteJSON(path string, rec Record) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("backup: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("backup: create directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: encode: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o600); err != nil {
		return fmt.Errorf("backup: write: %w", err)
	}
	return nil
}

// ReadJSON loads a record written by WriteJSON.
func ReadJSON(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("backup: read: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("backup: decode: %w", err)
	}
	return rec, nil
}

// Multi writes to every writer and returns the first error.
type Multi []Writer

// Write implements Writer.
func (m Multi) Write(ctx context.Context, rec Record) error {
	var first error
	for _, w := range m {
		if err := w.Write(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}
