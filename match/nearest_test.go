package match

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCatalogue(t *testing.T, text string) *Catalogue {
	t.Helper()
	cat, err := LoadCatalogue(strings.NewReader(text), DefaultLoadOptions())
	require.NoError(t, err)
	return cat
}

func TestMatchNearest(t *testing.T) {
	cat1 := mustCatalogue(t, "0 0 a\n10 10 b\n50 50 c\n")
	cat2 := mustCatalogue(t, "0.1 0 w\n10 10.2 x\n10.3 10 y\n100 100 z\nnan 3 bad\n")

	report, err := MatchNearest(cat1, cat2, NearestOptions{Radius: 0.25})
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)
	assert.Equal(t, 1, report.Skipped)

	wantNearest := []int{0, 1, 2}
	for i, row := range report.Rows {
		require.NotNil(t, row.Nearest, "row %d", i)
		assert.Equal(t, wantNearest[i], row.Nearest.Row, "row %d", i)
	}
	assert.InDelta(t, 0.1, report.Rows[0].Nearest.Dist, 1e-12)
	assert.InDelta(t, 0.2, report.Rows[1].Nearest.Dist, 1e-12)

	require.Len(t, report.Rows[1].Within, 1)
	assert.Equal(t, 1, report.Rows[1].Within[0].Row)
	assert.Empty(t, report.Rows[2].Within)

	n, mean, std := report.Summary()
	assert.Equal(t, 3, n)
	d := report.Rows[2].Nearest.Dist
	assert.InDelta(t, (0.1+0.2+d)/3, mean, 1e-9)
	assert.Positive(t, std)
}

func TestWriteNearest(t *testing.T) {
	cat1 := mustCatalogue(t, "0 0 a\n")
	cat2 := mustCatalogue(t, "0.1 0 x\n")

	tests := []struct {
		name string
		opts NearestOptions
		want string
	}{
		{"nearest", NearestOptions{}, "0 0 a   1.0000e-01 0.1 0 x\n"},
		{"within only", NearestOptions{Radius: 1, SkipNearest: true}, "0 0 a   0.1000 0.1 0 x\n"},
		{
			"mapped",
			NearestOptions{Transform1: ptr(Translation(0.1, 0))},
			"0 0 a   0.1000   0.0000   0.0000e+00 0.1 0 x\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := MatchNearest(cat1, cat2, tt.opts)
			require.NoError(t, err)
			var out bytes.Buffer
			require.NoError(t, WriteNearest(&out, cat1, cat2, report, tt.opts))
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestMatchNearest_Unique(t *testing.T) {
	cat1 := mustCatalogue(t, "0 0\n10 10\n")
	cat2 := mustCatalogue(t, "0.1 0 kept\n10.3 10 lonely\n99 99 far\n")
	opts := NearestOptions{Radius: 0.25, Unique: true}

	report, err := MatchNearest(cat1, cat2, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, report.Unmatched)

	var out bytes.Buffer
	require.NoError(t, WriteNearest(&out, cat1, cat2, report, opts))
	assert.Equal(t, "10.3 10 lonely\n99 99 far\n", out.String())

	_, err = MatchNearest(cat1, cat2, NearestOptions{Unique: true})
	assert.Error(t, err, "unique mode needs a radius")
}

func TestMatchNearest_Transform2(t *testing.T) {
	cat1 := mustCatalogue(t, "5 5\n")
	cat2 := mustCatalogue(t, "0 0\n")
	report, err := MatchNearest(cat1, cat2, NearestOptions{Transform2: ptr(Translation(5, 5))})
	require.NoError(t, err)
	assert.Zero(t, report.Rows[0].Nearest.Dist)
}

func TestMatchNearest_Sphere(t *testing.T) {
	cat1 := mustCatalogue(t, "10 20\n359.9 0\n")
	cat2 := mustCatalogue(t, "10 20.5\n0.1 0\n")

	report, err := MatchNearest(cat1, cat2, NearestOptions{Sphere: true, Radius: 0.4})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, report.Rows[0].Nearest.Dist, 1e-9)
	assert.Empty(t, report.Rows[0].Within)

	assert.Equal(t, 1, report.Rows[1].Nearest.Row, "right ascension wraps at 360")
	assert.InDelta(t, 0.2, report.Rows[1].Nearest.Dist, 1e-9)
	require.Len(t, report.Rows[1].Within, 1)
}

func TestNearestReport_SummaryEdgeCases(t *testing.T) {
	n, mean, _ := (&NearestReport{}).Summary()
	assert.Zero(t, n)
	assert.True(t, math.IsNaN(mean))

	one := &NearestReport{Rows: []NearestRow{{Nearest: &Neighbour{Dist: 2}}}}
	n, mean, std := one.Summary()
	assert.Equal(t, 1, n)
	assert.Equal(t, 2.0, mean)
	assert.Zero(t, std)
}

func ptr[T any](v T) *T { return &v }
