package extract

import (
	"image"
	"image/color"
	"testing"
)

func TestPreprocess_UpscalesSmallImages(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 200, 100))
	out := Preprocess(src)

	b := out.Bounds()
	if b.Dx() < minOCRDimension || b.Dy() < minOCRDimension {
		t.Fatalf("expected min dimension >= %d after upscale, got %dx%d", minOCRDimension, b.Dx(), b.Dy())
	}
}

func TestPreprocess_LeavesLargeImagesUnscaled(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 1200, 1600))
	out := Preprocess(src)

	b := out.Bounds()
	if b.Dx() != 1200 || b.Dy() != 1600 {
		t.Fatalf("expected dimensions preserved for large input, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestPreprocess_OutputIsBinary(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 1100, 1100))
	for y := 0; y < 1100; y++ {
		for x := 0; x < 1100; x++ {
			src.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}

	out := Preprocess(src)
	gray, ok := out.(*image.Gray)
	if !ok {
		t.Fatalf("expected grayscale output, got %T", out)
	}

	for y := gray.Bounds().Min.Y; y < gray.Bounds().Max.Y; y += 97 {
		for x := gray.Bounds().Min.X; x < gray.Bounds().Max.X; x += 97 {
			v := gray.GrayAt(x, y).Y
			if v != 0 && v != 255 {
				t.Fatalf("expected binary pixels after threshold, found %d at (%d,%d)", v, x, y)
			}
		}
	}
}

func TestAverageConfidence(t *testing.T) {
	if got := averageConfidence([]float64{0.8, 1.0, 0.6}); got < 0.79 || got > 0.81 {
		t.Fatalf("expected average ~0.8, got %f", got)
	}
	if got := averageConfidence(nil); got != 0 {
		t.Fatalf("expected 0 for no words, got %f", got)
	}
}

func TestMedian(t *testing.T) {
	if got := median([]uint8{9, 1, 5}); got != 5 {
		t.Fatalf("expected median 5, got %d", got)
	}
}
