package match

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

const sampleCatalogue = `# id x y
a 1 2
b 3.5 -4

*
c 100 100
*
d 5 6 extra
e 7
f x 8
`

func TestLoadCatalogue(t *testing.T) {
	opts := DefaultLoadOptions()
	opts.XCol, opts.YCol = 2, 3
	var pass bytes.Buffer
	opts.Passthrough = &pass

	cat, err := LoadCatalogue(strings.NewReader(sampleCatalogue), opts)
	if err != nil {
		t.Fatalf("LoadCatalogue: %v", err)
	}
	if cat.Len() != 5 {
		t.Fatalf("Len() = %d, want 5 (%v)", cat.Len(), cat.Lines)
	}

	want := []orb.Point{{1, 2}, {3.5, -4}, {5, 6}}
	for i, p := range want {
		if cat.Points[i] != p {
			t.Errorf("Points[%d] = %v, want %v", i, cat.Points[i], p)
		}
	}
	if cat.Lines[2] != "d 5 6 extra" {
		t.Errorf("Lines[2] = %q", cat.Lines[2])
	}

	// Missing and unparsable columns become NaN.
	if cat.Points[3][0] != 7 || !math.IsNaN(cat.Points[3][1]) {
		t.Errorf("short row = %v, want (7, NaN)", cat.Points[3])
	}
	if !math.IsNaN(cat.Points[4][0]) || cat.Points[4][1] != 8 {
		t.Errorf("bad row = %v, want (NaN, 8)", cat.Points[4])
	}

	wantPass := "# id x y\n*\nc 100 100\n*\n"
	if pass.String() != wantPass {
		t.Errorf("passthrough = %q, want %q", pass.String(), wantPass)
	}
}

func TestLoadCatalogue_Separators(t *testing.T) {
	opts := LoadOptions{XCol: 1, YCol: 2, Separators: ",;"}
	cat, err := LoadCatalogue(strings.NewReader("1,2\n3;;4\r\n"), opts)
	if err != nil {
		t.Fatalf("LoadCatalogue: %v", err)
	}
	if cat.Len() != 2 || cat.Points[1] != (orb.Point{3, 4}) {
		t.Errorf("points = %v", cat.Points)
	}
	if cat.Lines[1] != "3;;4" {
		t.Errorf("carriage return not trimmed: %q", cat.Lines[1])
	}
}

func TestLoadCatalogue_BadColumns(t *testing.T) {
	_, err := LoadCatalogue(strings.NewReader("1 2\n"), LoadOptions{XCol: 0, YCol: 2})
	if err == nil {
		t.Fatal("expected an error for column 0")
	}
}

func TestOpenCatalogue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cat.txt")
	if err := os.WriteFile(path, []byte("1 2\n3 4\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cat, err := OpenCatalogue(path, nil, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("OpenCatalogue: %v", err)
	}
	if cat.Name != path || cat.Len() != 2 {
		t.Errorf("got %q with %d rows", cat.Name, cat.Len())
	}
	if b := cat.Bound(); b.Min != (orb.Point{1, 2}) || b.Max != (orb.Point{3, 4}) {
		t.Errorf("Bound() = %v", b)
	}

	cat, err = OpenCatalogue("-", strings.NewReader("5 6\n"), DefaultLoadOptions())
	if err != nil {
		t.Fatalf("OpenCatalogue(-): %v", err)
	}
	if cat.Name != "-" || cat.Points[0] != (orb.Point{5, 6}) {
		t.Errorf("stdin catalogue = %+v", cat)
	}

	if _, err := OpenCatalogue(filepath.Join(t.TempDir(), "missing"), nil, DefaultLoadOptions()); !os.IsNotExist(err) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}

func TestScanCatalogue_StopsOnError(t *testing.T) {
	rows := 0
	stop := os.ErrClosed
	err := ScanCatalogue(strings.NewReader("1 1\n2 2\n3 3\n"), DefaultLoadOptions(), func(string, orb.Point, bool) error {
		rows++
		if rows == 2 {
			return stop
		}
		return nil
	})
	if err != stop {
		t.Errorf("err = %v, want %v", err, stop)
	}
	if rows != 2 {
		t.Errorf("rows = %d, want 2", rows)
	}
}
