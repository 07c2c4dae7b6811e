// Package plot renders S/N vs magnitude figures with gonum.org/v1/plot.
package plot

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	gonum "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"

	"github.com/lcogt/nres-sn/internal/domain"
)

// DefaultTitle is the figure title used when Options.Title is empty.
const DefaultTitle = "NRES S/N model\nper resolution element for 60 sec exposure, 5100 Ang"

// Options configures figure output.
type Options struct {
	// Output is the destination file. The format follows the extension.
	// An empty Output disables rendering.
	Output string

	// Palette re-encodes PNG output as a paletted image.
	Palette bool

	Width, Height vg.Length
	Title         string
	XMin, XMax    float64
}

// DefaultOptions returns the standard 10x6 inch figure over V = 1..15.
func DefaultOptions(output string) Options {
	return Options{
		Output: output,
		Width:  10 * vg.Inch,
		Height: 6 * vg.Inch,
		Title:  DefaultTitle,
		XMin:   1,
		XMax:   15,
	}
}

// Renderer draws observation datasets and model curves into one figure.
type Renderer struct {
	opts   Options
	logger *slog.Logger
}

// NewRenderer creates a Renderer. Zero-valued size, title and range fields
// fall back to DefaultOptions.
func NewRenderer(opts Options, logger *slog.Logger) *Renderer {
	def := DefaultOptions(opts.Output)
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.Title == "" {
		opts.Title = def.Title
	}
	if opts.XMin >= opts.XMax {
		opts.XMin, opts.XMax = def.XMin, def.XMax
	}
	return &Renderer{opts: opts, logger: logger}
}

// Render draws one scatter per dataset and one line per curve, then writes
// the figure to the configured output.
func (r *Renderer) Render(datasets []domain.Dataset, curves []domain.Curve) error {
	if r.opts.Output == "" {
		r.logger.Info("not plotting", "reason", "no output path configured")
		return nil
	}

	p, err := r.build(datasets, curves)
	if err != nil {
		return err
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(r.opts.Output)), ".")
	if format == "" {
		format = "png"
	}
	wt, err := p.WriterTo(r.opts.Width, r.opts.Height, format)
	if err != nil {
		return fmt.Errorf("create %s canvas: %w", format, err)
	}

	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return fmt.Errorf("render figure: %w", err)
	}

	data := buf.Bytes()
	if r.opts.Palette {
		if format != "png" {
			r.logger.Warn("palette reduction only applies to png output", "output", r.opts.Output)
		} else if data, err = paletted(data); err != nil {
			return err
		}
	}

	if err := os.WriteFile(r.opts.Output, data, 0o644); err != nil {
		return fmt.Errorf("write figure: %w", err)
	}
	r.logger.Info("figure written",
		"output", r.opts.Output,
		"datasets", len(datasets),
		"curves", len(curves),
	)
	return nil
}

func (r *Renderer) build(datasets []domain.Dataset, curves []domain.Curve) (*gonum.Plot, error) {
	p := gonum.New()
	p.Title.Text = r.opts.Title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = "V mag"
	p.Y.Label.Text = "S/N"
	p.Y.Scale = gonum.LogScale{}
	p.Y.Tick.Marker = gonum.LogTicks{Prec: -1}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	plotted := 0
	yMin, yMax := math.Inf(1), math.Inf(-1)
	extend := func(xys plotter.XYs) {
		for _, xy := range xys {
			yMin, yMax = math.Min(yMin, xy.Y), math.Max(yMax, xy.Y)
		}
	}
	for _, ds := range datasets {
		xys, names := r.points(ds.Series)
		if len(xys) == 0 {
			r.logger.Debug("dataset has no plottable points", "label", ds.Label)
			continue
		}
		c, err := ParseColor(ds.Color)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", ds.Label, err)
		}

		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", ds.Label, err)
		}
		sc.GlyphStyle = vgdraw.GlyphStyle{Color: c, Radius: vg.Points(3), Shape: vgdraw.CircleGlyph{}}

		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: names})
		if err != nil {
			return nil, fmt.Errorf("dataset %q labels: %w", ds.Label, err)
		}
		for i := range labels.TextStyle {
			labels.TextStyle[i].Font.Size = vg.Points(4)
		}

		p.Add(sc, labels)
		p.Legend.Add(ds.Label, sc)
		extend(xys)
		plotted++
	}

	for _, cv := range curves {
		if cv.RefFlux <= 0 {
			continue
		}
		c, err := ParseColor(cv.Color)
		if err != nil {
			return nil, fmt.Errorf("curve %q: %w", cv.Label, err)
		}

		mags, sn := domain.SNModel(cv.RefFlux, cv.RON)
		xys := make(plotter.XYs, 0, len(mags))
		for i := range mags {
			if sn[i] > 0 && !math.IsInf(sn[i], 0) {
				xys = append(xys, plotter.XY{X: mags[i], Y: sn[i]})
			}
		}
		if len(xys) == 0 {
			continue
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("curve %q: %w", cv.Label, err)
		}
		line.Color = c
		line.Width = vg.Points(1.5)

		p.Add(line)
		p.Legend.Add("model "+cv.Label, line)
		extend(xys)
		plotted++
	}

	p.X.Min, p.X.Max = r.opts.XMin, r.opts.XMax
	switch {
	case plotted == 0:
		r.logger.Warn("nothing to plot, writing empty figure", "output", r.opts.Output)
		p.Y.Min, p.Y.Max = 1, 1000
	case yMin >= yMax:
		// A flat range is padded by ±1, which can cross zero on the log axis.
		p.Y.Min, p.Y.Max = yMin/10, yMax*10
	}
	return p, nil
}

// points keeps records inside the X range with positive finite S/N; the
// log axis cannot show anything else.
func (r *Renderer) points(s domain.Series) (plotter.XYs, []string) {
	xys := make(plotter.XYs, 0, s.Len())
	names := make([]string, 0, s.Len())
	for i := range s.Len() {
		x, y := s.Magnitudes[i], s.SN60[i]
		if !finite(x) || !finite(y) || y <= 0 {
			continue
		}
		if x < r.opts.XMin || x > r.opts.XMax {
			continue
		}
		xys = append(xys, plotter.XY{X: x, Y: y})
		names = append(names, s.Names[i])
	}
	return xys, names
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// paletted quantizes a PNG to the Plan 9 palette with Floyd-Steinberg dithering.
func paletted(data []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode figure: %w", err)
	}

	dst := image.NewPaletted(src.Bounds(), palette.Plan9)
	draw.FloydSteinberg.Draw(dst, src.Bounds(), src, image.Point{})

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode paletted figure: %w", err)
	}
	return buf.Bytes(), nil
}
