package extract

import (
	"strings"
	"testing"
)

const sampleTSV = `level	page_num	block_num	par_num	line_num	word_num	left	top	width	height	conf	text
1	1	0	0	0	0	0	0	1000	1400	-1
5	1	1	1	1	1	10	10	120	30	96.5	Office
5	1	1	1	1	2	140	10	110	30	92.0	Depot
5	1	1	1	2	1	10	50	80	30	88.3	113.03
5	1	1	1	2	2	100	50	80	30	-1
`

func TestParseTSV(t *testing.T) {
	text, confs, err := parseTSV(sampleTSV)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Office Depot 113.03" {
		t.Fatalf("expected joined recognized words, got %q", text)
	}
	if len(confs) != 3 {
		t.Fatalf("expected 3 word confidences, got %d", len(confs))
	}
	for _, c := range confs {
		if c < 0 || c > 1 {
			t.Fatalf("expected confidences normalized to [0,1], got %v", confs)
		}
	}
}

func TestParseTSV_SkipsNegativeConfidenceRows(t *testing.T) {
	_, confs, err := parseTSV(sampleTSV)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The -1 conf structural rows carry no word and must not contribute.
	if len(confs) != 3 {
		t.Fatalf("expected structural rows skipped, got %d confidences", len(confs))
	}
}

func TestParseTSV_EmptyInput(t *testing.T) {
	text, confs, err := parseTSV("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" || len(confs) != 0 {
		t.Fatalf("expected empty result for empty TSV, got %q / %v", text, confs)
	}
}

func TestParseTSV_MalformedLinesIgnored(t *testing.T) {
	tsv := "header\nnot\ta\tfull\trow\n"
	text, confs, err := parseTSV(tsv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(text) != "" || len(confs) != 0 {
		t.Fatalf("expected malformed lines ignored, got %q / %v", text, confs)
	}
}
