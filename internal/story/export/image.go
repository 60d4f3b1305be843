package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
)

var ErrNoImage = errors.New("scene has no image")

// loadImage resolves a scene image payload: a data URL, bare base64 or an
// http(s) URL. The whole load is bounded by ctx.
func loadImage(ctx context.Context, client *http.Client, payload string) (image.Image, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrNoImage
	}

	var data []byte
	var err error
	if strings.HasPrefix(payload, "http://") || strings.HasPrefix(payload, "https://") {
		data, err = fetch(ctx, client, payload)
	} else {
		data, err = decodePayload(payload)
	}
	if err != nil {
		return nil, err
	}

	type result struct {
		img image.Image
		err error
	}
	done := make(chan result, 1)
	go func() {
		img, _, err := image.Decode(bytes.NewReader(data))
		done <- result{img, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("decode image: %w", r.err)
		}
		return r.img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func decodePayload(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.Contains(payload[:comma], ";base64") {
			return nil, errors.New("unsupported data URL")
		}
		payload = payload[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return data, nil
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// placeholder is a vertical gradient used when a scene's image is missing or
// fails to load in time.
func placeholder(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	top := color.RGBA{R: 24, G: 28, B: 64, A: 255}
	bottom := color.RGBA{R: 88, G: 40, B: 104, A: 255}
	for y := 0; y < height; y++ {
		t := float64(y) / float64(max(height-1, 1))
		c := color.RGBA{
			R: lerp8(top.R, bottom.R, t),
			G: lerp8(top.G, bottom.G, t),
			B: lerp8(top.B, bottom.B, t),
			A: 255,
		}
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = c.R, c.G, c.B, c.A
		}
	}
	return img
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}
