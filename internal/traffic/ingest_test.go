package traffic

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDecodeFrame(t *testing.T) {
	line := `{"ts_unix_nanos":1700000000000000000,"observations":[{"id":7,"bbox":[100,200,40,30],"class":"car","confidence":0.92}]}`

	f, err := DecodeFrame([]byte(line))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.TSUnixNanos != 1700000000000000000 {
		t.Errorf("ts = %d, want 1700000000000000000", f.TSUnixNanos)
	}
	if len(f.Observations) != 1 {
		t.Fatalf("observations = %d, want 1", len(f.Observations))
	}

	obs := f.ToObservations()
	if obs[0].ID != 7 || obs[0].Class != "car" {
		t.Errorf("observation = %+v, want id 7 class car", obs[0])
	}
	if obs[0].BBox != (BBox{X: 100, Y: 200, W: 40, H: 30}) {
		t.Errorf("bbox = %+v, want {100 200 40 30}", obs[0].BBox)
	}
	if obs[0].TSUnixNanos != f.TSUnixNanos {
		t.Error("observation should inherit the frame timestamp")
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	if _, err := DecodeFrame([]byte(`not json`)); err == nil {
		t.Error("malformed JSON should fail")
	}
	if _, err := DecodeFrame([]byte(`{"observations":[]}`)); err == nil {
		t.Error("missing timestamp should fail")
	}
}

func TestFrameReader(t *testing.T) {
	input := strings.Join([]string{
		`{"ts_unix_nanos":100,"observations":[{"id":1,"bbox":[0,0,10,10],"class":"car","confidence":0.9}]}`,
		``,
		`{"ts_unix_nanos":200,"observations":[]}`,
		``,
	}, "\n")

	fr := NewFrameReader(strings.NewReader(input))

	f1, err := fr.Next()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if f1.TSUnixNanos != 100 || len(f1.Observations) != 1 {
		t.Errorf("first frame = %+v, want ts 100 with one observation", f1)
	}

	// Blank lines are skipped, not returned as errors.
	f2, err := fr.Next()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if f2.TSUnixNanos != 200 {
		t.Errorf("second frame ts = %d, want 200", f2.TSUnixNanos)
	}

	if _, err := fr.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("end of stream error = %v, want io.EOF", err)
	}
}

func TestFrameReaderPropagatesDecodeError(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("garbage\n"))
	if _, err := fr.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want a decode failure", err)
	}
}
