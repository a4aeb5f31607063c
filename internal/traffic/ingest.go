package traffic

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// WireObservation is the NDJSON wire form of one detection. The bounding
// box travels as a compact [x, y, w, h] array.
type WireObservation struct {
	ID         int64      `json:"id"`
	BBox       [4]float64 `json:"bbox"`
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
}

// Frame is one NDJSON line: a timestamp plus the detections visible in
// that frame.
type Frame struct {
	TSUnixNanos  int64             `json:"ts_unix_nanos"`
	Observations []WireObservation `json:"observations"`
}

// ToObservations converts the wire frame into domain observations. Each
// observation inherits the frame timestamp.
func (f Frame) ToObservations() []Observation {
	out := make([]Observation, len(f.Observations))
	for i, w := range f.Observations {
		out[i] = Observation{
			ID:          w.ID,
			BBox:        BBox{X: w.BBox[0], Y: w.BBox[1], W: w.BBox[2], H: w.BBox[3]},
			Class:       w.Class,
			Confidence:  w.Confidence,
			TSUnixNanos: f.TSUnixNanos,
		}
	}
	return out
}

// DecodeFrame parses one NDJSON line into a Frame.
func DecodeFrame(line []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.TSUnixNanos == 0 {
		return Frame{}, fmt.Errorf("decode frame: missing ts_unix_nanos")
	}
	return f, nil
}

// FrameReader reads NDJSON frames from a stream, one JSON object per line.
// Blank lines are skipped.
type FrameReader struct {
	scanner *bufio.Scanner
}

// maxFrameBytes bounds a single NDJSON line. A frame with hundreds of
// observations stays well under this.
const maxFrameBytes = 4 << 20

// NewFrameReader wraps r for line-by-line frame decoding.
func NewFrameReader(r io.Reader) *FrameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxFrameBytes)
	return &FrameReader{scanner: sc}
}

// Next returns the next frame, or io.EOF when the stream ends.
func (fr *FrameReader) Next() (Frame, error) {
	for fr.scanner.Scan() {
		line := fr.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return DecodeFrame(line)
	}
	if err := fr.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}
