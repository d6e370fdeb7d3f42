package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func TestProcessResizesToTarget(t *testing.T) {
	frame, err := Synthetic{}.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}

	data, err := Process(frame, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	img := decode(t, data)
	if got := img.Bounds().Size(); got.X != TargetWidth || got.Y != TargetHeight {
		t.Fatalf("processed size = %v, want %dx%d", got, TargetWidth, TargetHeight)
	}
}

func TestProcessBlurSmoothsEdges(t *testing.T) {
	// Hard black/white split; blurring must soften the boundary.
	src := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			c := color.RGBA{A: 255}
			if x >= 200 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			src.SetRGBA(x, y, c)
		}
	}

	sharp, err := Process(src, false)
	if err != nil {
		t.Fatalf("Process sharp: %v", err)
	}
	blurred, err := Process(src, true)
	if err != nil {
		t.Fatalf("Process blurred: %v", err)
	}

	if bytes.Equal(sharp, blurred) {
		t.Fatal("blurred output identical to sharp output")
	}

	// Sample a pixel near the split in the blurred image; it should be a
	// mid-grey rather than pure black or white.
	img := decode(t, blurred)
	r, _, _, _ := img.At(TargetWidth/2, TargetHeight/2).RGBA()
	v := r >> 8
	if v < 16 || v > 240 {
		t.Fatalf("pixel at split = %d, expected smoothed mid value", v)
	}
}

func TestProcessPreservesOpaqueAlpha(t *testing.T) {
	frame, err := Synthetic{}.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	data, err := Process(frame, true)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	img := decode(t, data)
	_, _, _, a := img.At(10, 10).RGBA()
	if a>>8 != 255 {
		t.Fatalf("alpha = %d, want 255", a>>8)
	}
}
