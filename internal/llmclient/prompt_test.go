package llmclient

import (
	"strings"
	"testing"

	"github.com/syntheit/ledgerflow/internal/models"
)

func TestBuildPrompt_UsesDocumentTypeIntro(t *testing.T) {
	chunk := models.Chunk{ChunkType: models.ChunkSize, Text: "TOTAL $10.00"}
	prompt := buildPrompt(chunk, "receipt", "", false)
	if !strings.Contains(prompt, "retail receipt") {
		t.Fatalf("expected receipt-specific intro, got %q", prompt[:80])
	}
}

func TestBuildPrompt_UnknownTypeFallsBackToGeneric(t *testing.T) {
	chunk := models.Chunk{ChunkType: models.ChunkSize, Text: "hello"}
	prompt := buildPrompt(chunk, "mystery_document", "", false)
	if !strings.Contains(prompt, genericIntro) {
		t.Fatalf("expected generic intro for unregistered type")
	}
}

func TestBuildPrompt_ForceMultiRequestsArrayForm(t *testing.T) {
	chunk := models.Chunk{ChunkType: models.ChunkSize, Text: "rows"}
	prompt := buildPrompt(chunk, "bank_statement", "", true)
	if !strings.Contains(prompt, "MULTIPLE transactions") {
		t.Fatalf("expected force-multi instruction in prompt")
	}
	if !strings.Contains(prompt, `"extraction_type"`) {
		t.Fatalf("expected multi-transaction schema in prompt")
	}
}

func TestBuildPrompt_IncludesCategoryListing(t *testing.T) {
	chunk := models.Chunk{ChunkType: models.ChunkSize, Text: "x"}
	prompt := buildPrompt(chunk, "receipt", "- Office Supplies (expense)", false)
	if !strings.Contains(prompt, "AVAILABLE CATEGORIES:") || !strings.Contains(prompt, "Office Supplies") {
		t.Fatalf("expected category listing in prompt")
	}
}

func TestBuildPrompt_TruncatesLongChunks(t *testing.T) {
	chunk := models.Chunk{ChunkType: models.ChunkSize, Text: strings.Repeat("Z", maxPromptChars*2)}
	prompt := buildPrompt(chunk, "receipt", "", false)
	if strings.Count(prompt, "Z") > maxPromptChars {
		t.Fatalf("expected chunk text truncated to %d chars", maxPromptChars)
	}
}

func TestBuildPrompt_RendersTransactionChunks(t *testing.T) {
	chunk := models.Chunk{
		ChunkType:    models.ChunkTransactions,
		Transactions: []map[string]any{{"amount": 10.0, "vendor": "Acme"}},
	}
	prompt := buildPrompt(chunk, "bank_statement_multi", "", true)
	if !strings.Contains(prompt, "Acme") {
		t.Fatalf("expected transaction rows rendered into prompt text")
	}
}
