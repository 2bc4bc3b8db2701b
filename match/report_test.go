package match

import (
	"bytes"
	"testing"
)

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	res := &Result{NBest: 3, Best: AffineMatrix{A: 0, B: -2, Tx: 5, C: 2, D: 0, Ty: 5}}
	if err := WriteResult(&buf, res); err != nil {
		t.Fatal(err)
	}
	want := "# Transformation that fits the most asterisms:\n-t 0 -2 5 2 0 5\n"
	if buf.String() != want {
		t.Errorf("WriteResult = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := WriteResult(&buf, &Result{}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "No transformations with multiple asterisms found.\n" {
		t.Errorf("WriteResult = %q", buf.String())
	}
}

func TestReporter_Levels(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, LevelDetail)
	r.Comment(LevelSummary, "summary %d", 1)
	r.Comment(LevelDetail, "detail")
	r.Comment(LevelDebug, "debug")

	if got, want := buf.String(), "# summary 1\n# detail\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	quiet := NewReporter(&buf, -1)
	buf.Reset()
	quiet.Comment(LevelSummary, "hidden")
	if buf.Len() != 0 {
		t.Errorf("quiet reporter wrote %q", buf.String())
	}
}

func TestReporter_Nil(t *testing.T) {
	var r *Reporter
	r.Comment(LevelSummary, "nothing")
	r.finish(&Result{EarlyExit: true})
}
