package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"storyloom/internal/domain/story"
)

func testFace(t *testing.T) font.Face {
	t.Helper()
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		t.Fatal(err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 24, DPI: 72})
	if err != nil {
		t.Fatal(err)
	}
	return face
}

func TestWrapText(t *testing.T) {
	face := testFace(t)
	text := "The little robot followed the humming wires across the valley until the stars came out"
	const maxWidth = 300

	lines := wrapText(face, text, maxWidth)
	if len(lines) < 2 {
		t.Fatalf("lines = %d, want wrapping", len(lines))
	}
	for _, l := range lines {
		if w := font.MeasureString(face, l).Ceil(); w > maxWidth {
			t.Errorf("line %q is %dpx wide", l, w)
		}
	}
	if got := strings.Join(lines, " "); got != text {
		t.Errorf("wrapped text lost words: %q", got)
	}

	// Greedy: the first word of each line would not have fitted on the
	// previous one.
	for i := 1; i < len(lines); i++ {
		next := strings.Fields(lines[i])[0]
		if font.MeasureString(face, lines[i-1]+" "+next).Ceil() <= maxWidth {
			t.Errorf("line %d could have taken %q", i-1, next)
		}
	}
}

func TestWrapTextEdgeCases(t *testing.T) {
	face := testFace(t)
	if lines := wrapText(face, "   ", 100); len(lines) != 0 {
		t.Errorf("blank text wrapped to %v", lines)
	}
	long := strings.Repeat("x", 80)
	lines := wrapText(face, "a "+long+" b", 100)
	if len(lines) != 3 || lines[1] != long {
		t.Errorf("oversized word lines = %q", lines)
	}
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func near(a, b color.RGBA) bool {
	d := func(x, y uint8) bool { return int(x)-int(y) <= 1 && int(y)-int(x) <= 1 }
	return d(a.R, b.R) && d(a.G, b.G) && d(a.B, b.B) && d(a.A, b.A)
}

func TestKenBurnsCoversFrame(t *testing.T) {
	red := color.RGBA{R: 200, A: 255}
	dst := image.NewRGBA(image.Rect(0, 0, 32, 18))
	for _, scale := range []float64{1, 1.05, 1.1} {
		kenBurns(dst, solid(50, 50, red), scale)
		for _, pt := range []image.Point{{0, 0}, {31, 17}, {16, 9}} {
			if got := dst.RGBAAt(pt.X, pt.Y); !near(got, red) {
				t.Fatalf("scale %v pixel %v = %v, want %v", scale, pt, got, red)
			}
		}
	}
}

func TestKenBurnsZoomsIn(t *testing.T) {
	// Left half black, right half white: zooming pushes the edge outwards,
	// so the column just left of centre stays dark.
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 50; x < 100; x++ {
			src.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))
	kenBurns(dst, src, 1.1)
	if c := dst.RGBAAt(40, 50); c.R > 10 {
		t.Errorf("pixel left of centre = %v, want dark", c)
	}
	if c := dst.RGBAAt(60, 50); c.R < 245 {
		t.Errorf("pixel right of centre = %v, want light", c)
	}
}

func TestRendererDrawsCaption(t *testing.T) {
	r, err := newRenderer(320, 180)
	if err != nil {
		t.Fatal(err)
	}
	bg := color.RGBA{G: 255, A: 255}
	plain := r.frame(solid(320, 180, bg), 1, "")
	if !near(plain.RGBAAt(160, 170), bg) {
		t.Fatal("frame without caption was altered")
	}
	captioned := r.frame(solid(320, 180, bg), 1, "Hello there")
	changed := false
	for y := 90; y < 180 && !changed; y++ {
		for x := 0; x < 320; x++ {
			if !near(captioned.RGBAAt(x, y), bg) {
				changed = true
				break
			}
		}
	}
	if !changed {
		t.Fatal("caption not drawn in the lower half")
	}
}

func pngPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(8, 4, color.RGBA{B: 255, A: 255})); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoadImagePayloads(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString(pngPayload(t))
	for name, payload := range map[string]string{
		"data url": "data:image/png;base64," + raw,
		"base64":   raw,
	} {
		t.Run(name, func(t *testing.T) {
			img, err := loadImage(context.Background(), http.DefaultClient, payload)
			if err != nil {
				t.Fatal(err)
			}
			if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
				t.Errorf("bounds = %v", img.Bounds())
			}
		})
	}

	for name, payload := range map[string]string{
		"empty":      "",
		"not base64": "%%%",
		"not image":  base64.StdEncoding.EncodeToString([]byte("hello")),
		"plain url":  "data:text/plain,hello",
	} {
		if _, err := loadImage(context.Background(), http.DefaultClient, payload); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadImageOverHTTP(t *testing.T) {
	data := pngPayload(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	img, err := loadImage(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestStalledImageFallsBack(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := loadImage(ctx, srv.Client(), srv.URL); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	e := &Exporter{Width: 16, Height: 9, ImageTimeout: 50 * time.Millisecond, HTTPClient: srv.Client()}
	start := time.Now()
	img := e.sceneImage(context.Background(), 0, &story.Scene{Image: srv.URL})
	if time.Since(start) > 2*time.Second {
		t.Fatal("image load was not bounded")
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 9 {
		t.Fatalf("fallback bounds = %v, want placeholder", img.Bounds())
	}
}

func TestPlaceholderGradient(t *testing.T) {
	img := placeholder(4, 10).(*image.RGBA)
	top, bottom := img.RGBAAt(0, 0), img.RGBAAt(0, 9)
	if top == bottom {
		t.Fatal("placeholder is flat")
	}
	if top.A != 255 || bottom.A != 255 {
		t.Fatal("placeholder is not opaque")
	}
}
