package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// TesseractOCR shells out to the tesseract CLI. It requests TSV output
// so per-word confidences are available for the aggregate score.
type TesseractOCR struct {
	BinaryPath string
	Lang       string
}

func NewTesseractOCR() *TesseractOCR {
	return &TesseractOCR{BinaryPath: "tesseract", Lang: "eng"}
}

func (t *TesseractOCR) Recognize(img image.Image) (string, []float64, error) {
	tmp, err := os.CreateTemp("", "ocr-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := png.Encode(tmp, img); err != nil {
		return "", nil, fmt.Errorf("encode temp image: %w", err)
	}
	tmp.Close()

	bin := t.BinaryPath
	if bin == "" {
		bin = "tesseract"
	}
	lang := t.Lang
	if lang == "" {
		lang = "eng"
	}

	cmd := exec.Command(bin, tmp.Name(), "stdout", "-l", lang, "tsv")
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", nil, fmt.Errorf("tesseract failed: %v: %s", err, errOut.String())
	}

	return parseTSV(out.String())
}

// parseTSV parses tesseract's --psm default TSV output
// (level, page_num, block_num, par_num, line_num, word_num, left, top,
// width, height, conf, text) into recognized text plus per-word
// confidences normalized to [0, 1].
func parseTSV(tsv string) (string, []float64, error) {
	lines := strings.Split(tsv, "\n")
	if len(lines) < 2 {
		return "", nil, nil
	}

	var words []string
	var confidences []float64

	for _, line := range lines[1:] {
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}

		confStr := cols[10]
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}

		conf, err := strconv.ParseFloat(confStr, 64)
		if err != nil || conf < 0 {
			continue
		}

		words = append(words, text)
		confidences = append(confidences, conf/100)
	}

	return strings.Join(words, " "), confidences, nil
}
