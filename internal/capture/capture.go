// Package capture produces screen frames for the artifact pipeline. The
// actual OS screenshot primitive is an external collaborator behind the
// Provider interface; a synthetic provider keeps the agent runnable and the
// pipeline testable on hosts without a capturable display.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"

	xdraw "golang.org/x/image/draw"
)

const (
	// TargetWidth and TargetHeight bound the on-disk artifact size; every
	// captured frame is resized to these dimensions before persisting.
	TargetWidth  = 800
	TargetHeight = 600

	// BlurRadius is the fixed gaussian radius applied when blurring is
	// enabled in the runtime config.
	BlurRadius = 15
)

// Provider produces full-screen frames.
type Provider interface {
	Grab(ctx context.Context) (image.Image, error)
}

// ProviderFunc adapts a function literal to the Provider interface.
type ProviderFunc func(ctx context.Context) (image.Image, error)

// Grab calls the underlying function.
func (f ProviderFunc) Grab(ctx context.Context) (image.Image, error) { return f(ctx) }

// Synthetic renders a gradient test frame. It stands in for the OS
// screenshot primitive on unsupported platforms.
type Synthetic struct{}

// Grab returns a 1280x800 gradient frame.
func (Synthetic) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	const width, height = 1280, 800
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	hue := uint8(rand.Intn(200) + 40)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: hue, G: uint8(x % 255), B: uint8(y % 255), A: 255})
		}
	}
	return img, nil
}

// Process applies the configured blur and the unconditional resize, and
// returns the frame encoded as PNG.
func Process(frame image.Image, blur bool) ([]byte, error) {
	src := toRGBA(frame)
	if blur {
		src = gaussianBlur(src, BlurRadius)
	}

	dst := image.NewRGBA(image.Rect(0, 0, TargetWidth, TargetHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	xdraw.Draw(rgba, bounds, img, bounds.Min, xdraw.Src)
	return rgba
}

// gaussianBlur approximates a gaussian filter with three box-blur passes
// over each axis.
func gaussianBlur(src *image.RGBA, radius int) *image.RGBA {
	if radius <= 0 {
		return src
	}
	boxRadius := boxRadiusFor(radius)
	out := src
	for pass := 0; pass < 3; pass++ {
		out = boxBlurVertical(boxBlurHorizontal(out, boxRadius), boxRadius)
	}
	return out
}

// boxRadiusFor picks a per-pass box radius whose triple application has a
// standard deviation close to the requested gaussian radius.
func boxRadiusFor(radius int) int {
	r := radius / 2
	if r < 1 {
		r = 1
	}
	return r
}

func boxBlurHorizontal(src *image.RGBA, radius int) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	w, h := bounds.Dx(), bounds.Dy()
	window := 2*radius + 1

	for y := 0; y < h; y++ {
		var sumR, sumG, sumB, sumA int
		row := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		at := func(x int) (int, int, int, int) {
			if x < 0 {
				x = 0
			}
			if x >= w {
				x = w - 1
			}
			off := row + x*4
			return int(src.Pix[off]), int(src.Pix[off+1]), int(src.Pix[off+2]), int(src.Pix[off+3])
		}
		for x := -radius; x <= radius; x++ {
			r, g, b, a := at(x)
			sumR += r
			sumG += g
			sumB += b
			sumA += a
		}
		for x := 0; x < w; x++ {
			off := dst.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			dst.Pix[off] = uint8(sumR / window)
			dst.Pix[off+1] = uint8(sumG / window)
			dst.Pix[off+2] = uint8(sumB / window)
			dst.Pix[off+3] = uint8(sumA / window)

			rOut, gOut, bOut, aOut := at(x - radius)
			rIn, gIn, bIn, aIn := at(x + radius + 1)
			sumR += rIn - rOut
			sumG += gIn - gOut
			sumB += bIn - bOut
			sumA += aIn - aOut
		}
	}
	return dst
}

func boxBlurVertical(src *image.RGBA, radius int) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	w, h := bounds.Dx(), bounds.Dy()
	window := 2*radius + 1

	for x := 0; x < w; x++ {
		var sumR, sumG, sumB, sumA int
		at := func(y int) (int, int, int, int) {
			if y < 0 {
				y = 0
			}
			if y >= h {
				y = h - 1
			}
			off := src.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			return int(src.Pix[off]), int(src.Pix[off+1]), int(src.Pix[off+2]), int(src.Pix[off+3])
		}
		for y := -radius; y <= radius; y++ {
			r, g, b, a := at(y)
			sumR += r
			sumG += g
			sumB += b
			sumA += a
		}
		for y := 0; y < h; y++ {
			off := dst.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			dst.Pix[off] = uint8(sumR / window)
			dst.Pix[off+1] = uint8(sumG / window)
			dst.Pix[off+2] = uint8(sumB / window)
			dst.Pix[off+3] = uint8(sumA / window)

			rOut, gOut, bOut, aOut := at(y - radius)
			rIn, gIn, bIn, aIn := at(y + radius + 1)
			sumR += rIn - rOut
			sumG += gIn - gOut
			sumB += bIn - bOut
			sumA += aIn - aOut
		}
	}
	return dst
}
