package match

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	plotReference = color.RGBA{R: 40, G: 90, B: 200, A: 255}
	plotMapped    = color.RGBA{R: 210, G: 50, B: 40, A: 255}
	plotSupport   = color.RGBA{R: 30, G: 150, B: 60, A: 255}
)

// PlotRenderer draws catalogue 2, catalogue 1 mapped through a transform,
// and the correspondences that support it.
type PlotRenderer struct {
	Cat1       []orb.Point
	Cat2       []orb.Point
	Transform  AffineMatrix
	Support    []Correspondence
	Size       float64 // longest side, in canvas millimetres
	Margin     float64 // canvas millimetres
	Resolution canvas.Resolution
	Title      string
}

// NewPlotRenderer prepares a plot of a matcher result. Without a solution
// catalogue 1 is drawn untransformed.
func NewPlotRenderer(cat1, cat2 []orb.Point, res *Result) *PlotRenderer {
	r := &PlotRenderer{
		Cat1:       cat1,
		Cat2:       cat2,
		Transform:  Identity(),
		Size:       200,
		Margin:     10,
		Resolution: canvas.DPI(100),
	}
	if res != nil {
		r.Title = fmt.Sprintf("%s: nbest=%d", res.Variant, res.NBest)
		if res.Found() {
			r.Transform = res.Best
			r.Support = res.Support
			r.Title += " " + res.Best.String()
		}
	}
	return r
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// plotFrame maps catalogue coordinates to canvas millimetres.
type plotFrame struct {
	bound         orb.Bound
	scale         float64
	margin        float64
	width, height float64
}

func (f plotFrame) toCanvas(p orb.Point) (float64, float64) {
	return (p[0]-f.bound.Min[0])*f.scale + f.margin, (p[1]-f.bound.Min[1])*f.scale + f.margin
}

func (r *PlotRenderer) frame() plotFrame {
	mapped := TransformPoints(r.Cat1, r.Transform)
	b := boundOf(append(slices.Clone(r.Cat2), mapped...))
	w, h := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	extent := math.Max(w, h)
	if !(extent > 0) {
		extent = 1
	}
	scale := r.Size / extent
	return plotFrame{
		bound:  b,
		scale:  scale,
		margin: r.Margin,
		width:  w*scale + 2*r.Margin,
		height: h*scale + 2*r.Margin,
	}
}

// RenderToSVG writes the plot as an SVG to the provided writer
func (r *PlotRenderer) RenderToSVG(w io.Writer) error {
	f := r.frame()
	svgRenderer := svg.New(w, f.width, f.height, nil)
	r.renderToCanvas(svgRenderer, f)
	return svgRenderer.Close()
}

// RenderToPNG writes the plot as a PNG to the provided writer
func (r *PlotRenderer) RenderToPNG(w io.Writer) error {
	f := r.frame()
	rast := rasterizer.New(f.width, f.height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, f)
	if r.Title != "" {
		drawLabel(rast, 8, 16, r.Title)
	}
	return png.Encode(w, rast)
}

// WriteFile renders to path, choosing the format from its extension.
func (r *PlotRenderer) WriteFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".svg" && ext != ".png" {
		return fmt.Errorf("unsupported plot format %q (want .svg or .png)", ext)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating plot: %w", err)
	}
	if ext == ".svg" {
		err = r.RenderToSVG(out)
	} else {
		err = r.RenderToPNG(out)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return nil
}

func (r *PlotRenderer) renderToCanvas(renderer canvasRenderer, f plotFrame) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(f.width, f.height), bgStyle, canvas.Identity)

	supportStyle := canvas.DefaultStyle
	supportStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	supportStyle.Stroke = canvas.Paint{Color: plotSupport}
	supportStyle.StrokeWidth = 0.3
	for _, c := range r.Support {
		if c.I1 >= len(r.Cat1) || c.I2 >= len(r.Cat2) {
			continue
		}
		from := TransformPoint(r.Cat1[c.I1], r.Transform)
		to := r.Cat2[c.I2]
		if !isFinitePoint(from) || !isFinitePoint(to) {
			continue
		}
		x1, y1 := f.toCanvas(from)
		x2, y2 := f.toCanvas(to)
		p := &canvas.Path{}
		p.MoveTo(x1, y1)
		p.LineTo(x2, y2)
		renderer.RenderPath(p, supportStyle, canvas.Identity)
	}

	refStyle := canvas.DefaultStyle
	refStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	refStyle.Stroke = canvas.Paint{Color: plotReference}
	refStyle.StrokeWidth = 0.3
	for _, p := range r.Cat2 {
		if !isFinitePoint(p) {
			continue
		}
		cx, cy := f.toCanvas(p)
		renderer.RenderPath(canvas.Circle(1.5).Translate(cx, cy), refStyle, canvas.Identity)
	}

	mappedStyle := canvas.DefaultStyle
	mappedStyle.Fill = canvas.Paint{Color: plotMapped}
	mappedStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, p := range TransformPoints(r.Cat1, r.Transform) {
		if !isFinitePoint(p) {
			continue
		}
		cx, cy := f.toCanvas(p)
		renderer.RenderPath(canvas.Circle(0.7).Translate(cx, cy), mappedStyle, canvas.Identity)
	}
}

// drawLabel renders text onto a raster at pixel position (x, y).
func drawLabel(img draw.Image, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
