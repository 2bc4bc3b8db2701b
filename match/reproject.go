package match

import (
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
)

const arcsecPerRadian = 180 * 3600 / math.Pi

// ReprojectOptions configures the transform tool.
type ReprojectOptions struct {
	Load LoadOptions
	// Transform is applied last. Nil means identity.
	Transform *AffineMatrix
	// Centre, when set, projects RA/Dec degrees onto the tangent plane at
	// that position (offsets in arcseconds) before Transform.
	Centre *orb.Point
}

// TangentPlane projects (ra, dec) in degrees about centre onto the tangent
// plane, returning offsets in arcseconds.
func TangentPlane(p, centre orb.Point) orb.Point {
	a, d := p[0]*math.Pi/180, p[1]*math.Pi/180
	ac, dc := centre[0]*math.Pi/180, centre[1]*math.Pi/180

	cosRho := math.Cos(d)*math.Cos(dc)*math.Cos(a-ac) + math.Sin(d)*math.Sin(dc)
	rho := math.Acos(math.Max(-1, math.Min(1, cosRho)))
	theta := math.Atan2(math.Sin(d)-cosRho*math.Sin(dc), math.Cos(d)*math.Sin(a-ac)*math.Cos(dc))

	rho *= arcsecPerRadian
	return orb.Point{rho * math.Cos(theta), rho * math.Sin(theta)}
}

// Reproject maps a point through the configured projection and transform.
func (o ReprojectOptions) Reproject(p orb.Point) orb.Point {
	if o.Centre != nil {
		p = TangentPlane(p, *o.Centre)
	}
	if o.Transform != nil {
		p = TransformPoint(p, *o.Transform)
	}
	return p
}

// ReprojectStream copies r to w, prefixing each data row with its mapped
// position. Comment lines are copied unchanged; rows that do not map to a
// finite position are dropped. It returns the number of rows written.
func ReprojectStream(w io.Writer, r io.Reader, opts ReprojectOptions) (int, error) {
	written := 0
	err := ScanCatalogue(r, opts.Load, func(line string, p orb.Point, data bool) error {
		if !data {
			_, err := fmt.Fprintln(w, line)
			return err
		}
		p = opts.Reproject(p)
		if !isFinitePoint(p) {
			return nil
		}
		if _, err := fmt.Fprintf(w, "%8.4f %8.4f %s\n", p[0], p[1], line); err != nil {
			return err
		}
		written++
		return nil
	})
	return written, err
}
