// Package plot draws light curves as magnitude-over-time scatter plots, one
// series per photometric band, with the magnitude axis inverted so brighter
// is up.
package plot

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Default canvas size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

// Formats lists the supported output formats.
var Formats = []string{"png", "svg", "pdf"}

var bandColors = map[string]color.Color{
	"G":  color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	"BP": color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	"RP": color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
}

// Options control a rendered plot. Zero sizes use the defaults.
type Options struct {
	Title  string
	Width  vg.Length
	Height vg.Length
}

func (o Options) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}

// Build lays out the plot of table.
func Build(table *lightcurve.Table, opts Options) (*gplot.Plot, error) {
	series, err := table.Series()
	if err != nil {
		return nil, err
	}

	p := gplot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "Time (BJD - 2455197.5) [d]"
	p.Y.Label.Text = "Magnitude"
	p.Y.Scale = gplot.InvertedScale{Normalizer: p.Y.Scale}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	points := 0
	for i, s := range series {
		xys := make(plotter.XYs, s.Len())
		for j := range s.Time {
			xys[j].X = s.Time[j]
			xys[j].Y = s.Mag[j]
		}
		scatter, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("band %s: %w", s.Band, err)
		}
		c, ok := bandColors[s.Band]
		if !ok {
			c = plotutil.Color(i)
		}
		scatter.GlyphStyle.Color = c
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(2)

		p.Add(scatter)
		p.Legend.Add(s.Band, scatter)
		points += s.Len()
	}
	if points == 0 {
		return nil, fmt.Errorf("light curve has no plottable points")
	}
	return p, nil
}

// Render writes the plot of table to w in format (png, svg or pdf).
func Render(w io.Writer, table *lightcurve.Table, format string, opts Options) error {
	format = strings.ToLower(format)
	if !supported(format) {
		return fmt.Errorf("unsupported plot format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
	p, err := Build(table, opts)
	if err != nil {
		return err
	}
	width, height := opts.size()
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return fmt.Errorf("prepare %s canvas: %w", format, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write %s: %w", format, err)
	}
	return nil
}

// RenderFile plots the light curve stored at csvPath into outPath, choosing
// the format from outPath's extension. The title defaults to the file name.
func RenderFile(csvPath, outPath string, opts Options) error {
	table, err := lightcurve.ReadTable(csvPath)
	if err != nil {
		return err
	}
	if opts.Title == "" {
		opts.Title = strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
	}

	format := strings.TrimPrefix(filepath.Ext(outPath), ".")
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	if err := Render(f, table, format, opts); err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		return fmt.Errorf("plot %s: %w", csvPath, err)
	}
	return f.Close()
}

// OutputPath is the default image path for a light-curve file: the CSV path
// with its extension replaced by format.
func OutputPath(csvPath, format string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + "." + strings.ToLower(format)
}

func supported(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}
