package export

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var captionBand = color.RGBA{A: 160}

// renderer draws frames into one reused canvas.
type renderer struct {
	canvas  *image.RGBA
	face    font.Face
	margin  int
	maxText int
}

func newRenderer(width, height int) (*renderer, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(height) / 22,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	margin := width / 12
	return &renderer{
		canvas:  image.NewRGBA(image.Rect(0, 0, width, height)),
		face:    face,
		margin:  margin,
		maxText: width - 2*margin,
	}, nil
}

// frame draws src zoomed by scale with the caption over the lower third.
// The returned image is reused by the next call.
func (r *renderer) frame(src image.Image, scale float64, caption string) *image.RGBA {
	kenBurns(r.canvas, src, scale)
	r.caption(caption)
	return r.canvas
}

// kenBurns fills dst with the centre of src, cropped to cover dst and
// enlarged by scale.
func kenBurns(dst *image.RGBA, src image.Image, scale float64) {
	sb := src.Bounds()
	db := dst.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	dw, dh := float64(db.Dx()), float64(db.Dy())
	if sw == 0 || sh == 0 {
		draw.Draw(dst, db, image.Black, image.Point{}, draw.Src)
		return
	}

	cover := max(dw/sw, dh/sh) * max(scale, 1)
	cw, ch := dw/cover, dh/cover
	x0 := float64(sb.Min.X) + (sw-cw)/2
	y0 := float64(sb.Min.Y) + (sh-ch)/2
	sr := image.Rect(int(x0), int(y0), int(x0+cw+0.5), int(y0+ch+0.5)).Intersect(sb)

	draw.ApproxBiLinear.Scale(dst, db, src, sr, draw.Src, nil)
}

func (r *renderer) caption(text string) {
	lines := wrapText(r.face, text, r.maxText)
	if len(lines) == 0 {
		return
	}
	b := r.canvas.Bounds()
	lineHeight := r.face.Metrics().Height.Ceil() * 6 / 5
	pad := lineHeight / 2
	top := b.Max.Y - r.margin/2 - len(lines)*lineHeight - 2*pad
	band := image.Rect(r.margin-pad, top, b.Max.X-r.margin+pad, b.Max.Y-r.margin/2)
	draw.Draw(r.canvas, band, image.NewUniform(captionBand), image.Point{}, draw.Over)

	d := &font.Drawer{Dst: r.canvas, Src: image.White, Face: r.face}
	ascent := r.face.Metrics().Ascent.Ceil()
	for i, line := range lines {
		w := font.MeasureString(r.face, line).Ceil()
		x := (b.Dx() - w) / 2
		y := top + pad + i*lineHeight + ascent
		d.Dot = fixed.P(x, y)
		d.DrawString(line)
	}
}

// wrapText breaks text into lines no wider than maxWidth, filling each line
// greedily. A single word wider than maxWidth gets a line of its own.
func wrapText(face font.Face, text string, maxWidth int) []string {
	var lines []string
	var line string
	for _, word := range strings.Fields(text) {
		if line == "" {
			line = word
			continue
		}
		candidate := line + " " + word
		if font.MeasureString(face, candidate).Ceil() > maxWidth {
			lines = append(lines, line)
			line = word
			continue
		}
		line = candidate
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
