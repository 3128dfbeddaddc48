package extract

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/syntheit/ledgerflow/internal/models"
)

// minOCRDimension is the minimum pixel dimension after upscaling, so
// small receipt photos OCR reliably.
const minOCRDimension = 1000

// OCREngine is an external recognizer the pipeline calls but does not
// implement. Recognize returns the recognized text plus one confidence
// value per recognized word, each in [0, 1].
type OCREngine interface {
	Recognize(img image.Image) (text string, wordConfidences []float64, err error)
}

// ImageExtractor preprocesses (grayscale, upscale, contrast/sharpen,
// median filter, threshold) then delegates to an injected OCREngine.
type ImageExtractor struct {
	OCR OCREngine
}

func NewImageExtractor(ocr OCREngine) *ImageExtractor {
	return &ImageExtractor{OCR: ocr}
}

func (e *ImageExtractor) Extensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff"}
}

func (e *ImageExtractor) CanHandle(path, mime string) bool {
	ext := extOf(path)
	for _, supported := range e.Extensions() {
		if ext == supported {
			return true
		}
	}
	return len(mime) >= 6 && mime[:6] == "image/"
}

func (e *ImageExtractor) Extract(path string) (*models.RawExtraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.ExtractionError{Reason: fmt.Sprintf("cannot open image: %v", err)}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &models.ExtractionError{Reason: fmt.Sprintf("cannot decode image: %v", err)}
	}

	processed := Preprocess(img)

	if e.OCR == nil {
		return nil, &models.ExtractionError{Reason: "no OCR engine configured"}
	}

	text, confidences, err := e.OCR.Recognize(processed)
	if err != nil {
		return nil, &models.ExtractionError{Reason: fmt.Sprintf("OCR failed: %v", err)}
	}

	aggregate := averageConfidence(confidences)

	return &models.RawExtraction{
		RawText: text,
		StructuredData: map[string]any{
			"confidence_score": aggregate,
			"word_count":       len(confidences),
		},
	}, nil
}

// Preprocess runs the OCR preparation pipeline: grayscale, upscale
// so the smaller dimension is at least minOCRDimension, a simple
// contrast-stretch plus 3x3 sharpen kernel, a 3x3 median filter, then a
// binary threshold at 128.
func Preprocess(src image.Image) image.Image {
	gray := toGrayscale(src)
	upscaled := upscale(gray, minOCRDimension)
	sharpened := sharpen(contrastStretch(upscaled))
	denoised := medianFilter(sharpened)
	return threshold(denoised, 128)
}

func toGrayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

func upscale(src *image.Gray, minDim int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	minSide := w
	if h < minSide {
		minSide = h
	}
	if minSide >= minDim || minSide == 0 {
		return src
	}

	factor := float64(minDim) / float64(minSide)
	newW := int(float64(w) * factor)
	newH := int(float64(h) * factor)

	dst := image.NewGray(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		sy := int(float64(y) / factor)
		if sy >= h {
			sy = h - 1
		}
		for x := 0; x < newW; x++ {
			sx := int(float64(x) / factor)
			if sx >= w {
				sx = w - 1
			}
			dst.SetGray(x, y, src.GrayAt(b.Min.X+sx, b.Min.Y+sy))
		}
	}
	return dst
}

func contrastStretch(src *image.Gray) *image.Gray {
	b := src.Bounds()
	min, max := uint8(255), uint8(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := src.GrayAt(x, y).Y
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	if max <= min {
		return src
	}

	dst := image.NewGray(b)
	scale := 255.0 / float64(max-min)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := src.GrayAt(x, y).Y
			stretched := uint8(clamp(float64(v-min)*scale, 0, 255))
			dst.SetGray(x, y, color.Gray{Y: stretched})
		}
	}
	return dst
}

func sharpen(src *image.Gray) *image.Gray {
	kernel := [3][3]float64{
		{0, -1, 0},
		{-1, 5, -1},
		{0, -1, 0},
	}
	return convolve(src, kernel)
}

func convolve(src *image.Gray, kernel [3][3]float64) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum := 0.0
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					px := clampInt(x+kx, b.Min.X, b.Max.X-1)
					py := clampInt(y+ky, b.Min.Y, b.Max.Y-1)
					sum += float64(src.GrayAt(px, py).Y) * kernel[ky+1][kx+1]
				}
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(clamp(sum, 0, 255))})
		}
	}
	return dst
}

func medianFilter(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	window := make([]uint8, 0, 9)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					px := clampInt(x+kx, b.Min.X, b.Max.X-1)
					py := clampInt(y+ky, b.Min.Y, b.Max.Y-1)
					window = append(window, src.GrayAt(px, py).Y)
				}
			}
			dst.SetGray(x, y, color.Gray{Y: median(window)})
		}
	}
	return dst
}

func threshold(src *image.Gray, cutoff uint8) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if src.GrayAt(x, y).Y >= cutoff {
				dst.SetGray(x, y, color.Gray{Y: 255})
			} else {
				dst.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return dst
}

func median(vals []uint8) uint8 {
	sorted := append([]uint8{}, vals...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func averageConfidence(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range confidences {
		sum += c
	}
	return sum / float64(len(confidences))
}
