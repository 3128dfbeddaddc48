// Package orchestrator drives one document through the full pipeline:
// extract, classify, chunk, LLM-extract, score, materialize, post. It
// owns the worker pool and the per-document overall timeout.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/syntheit/ledgerflow/internal/category"
	"github.com/syntheit/ledgerflow/internal/chunk"
	"github.com/syntheit/ledgerflow/internal/classify"
	"github.com/syntheit/ledgerflow/internal/document"
	"github.com/syntheit/ledgerflow/internal/ledger"
	"github.com/syntheit/ledgerflow/internal/llmclient"
	"github.com/syntheit/ledgerflow/internal/models"
	"github.com/syntheit/ledgerflow/internal/scorer"
	"github.com/syntheit/ledgerflow/internal/store"
	"github.com/syntheit/ledgerflow/internal/transaction"
)

// PerDocumentBudget is the overall per-document deadline: 10 minutes,
// aborting further chunks and marking the document failed with
// processing_error="timeout" if exceeded.
const PerDocumentBudget = 10 * time.Minute

// Storage is the object-storage collaborator; download is the only
// operation the Orchestrator needs.
type Storage interface {
	Download(ctx context.Context, bucket, path string) ([]byte, error)
}

// Orchestrator wires every pipeline stage together and exposes a single
// entrypoint, ProcessDocument, for the worker pool to invoke.
type Orchestrator struct {
	store       *store.Store
	storage     Storage
	bucket      string
	registry    *document.Registry
	categories  *category.Resolver
	llm         *llmclient.Client
	creator     *transaction.Creator
	ledger      *ledger.Service
	chunkParams chunk.Params
	autoApprove float64
}

// New constructs an Orchestrator from its collaborators. autoApprove is
// the configured boundary of the auto-approve band; non-positive values
// fall back to the scorer default.
func New(s *store.Store, storage Storage, bucket string, registry *document.Registry, categories *category.Resolver, llm *llmclient.Client, creator *transaction.Creator, ledgerSvc *ledger.Service, chunkParams chunk.Params, autoApprove float64) *Orchestrator {
	return &Orchestrator{
		store:       s,
		storage:     storage,
		bucket:      bucket,
		registry:    registry,
		categories:  categories,
		llm:         llm,
		creator:     creator,
		ledger:      ledgerSvc,
		chunkParams: chunkParams,
		autoApprove: autoApprove,
	}
}

// ProcessDocument runs the pipeline end to end for one document id,
// always deleting its temporary file on exit regardless of outcome.
func (o *Orchestrator) ProcessDocument(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, PerDocumentBudget)
	defer cancel()

	doc, err := o.loadDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}

	if err := o.setStatus(ctx, documentID, models.ExtractionProcessing, ""); err != nil {
		return fmt.Errorf("mark document %s processing: %w", documentID, err)
	}

	tmpPath, cleanup, err := o.fetchToTempFile(ctx, doc)
	defer cleanup()
	if err != nil {
		o.fail(ctx, documentID, err.Error())
		return err
	}

	dispatch := o.registry.Dispatch(tmpPath, doc.MIME, documentID)
	if dispatch.Err != nil {
		o.fail(ctx, documentID, dispatch.Err.Error())
		return dispatch.Err
	}

	if ctx.Err() != nil {
		o.fail(ctx, documentID, "timeout")
		return ctx.Err()
	}

	extraction := dispatch.ExtractionResult
	classification := classify.Classify(tmpPath, extraction.RawText, extraction.StructuredData)

	outcome, err := o.runChunks(ctx, doc.BusinessID, extraction, classification)
	if err != nil {
		reason := err.Error()
		if ctx.Err() != nil {
			reason = "timeout"
		}
		o.fail(ctx, documentID, reason)
		return err
	}

	confidence := scorer.Score(outcome)
	band := scorer.RecommendAt(confidence, o.autoApprove)

	result := processResult{
		documentType:    classification.DocumentType,
		rawText:         extraction.RawText,
		structuredData:  extraction.StructuredData,
		confidenceScore: confidence,
	}

	var createdIDs []string
	if o.creator.ShouldCreate(confidence, singleOrFirst(outcome)) || outcome.IsMultiTransaction() {
		createdIDs, err = o.materialize(ctx, doc, outcome, confidence, band)
		if err != nil {
			log.Printf("document %s: transaction materialization failed: %v", documentID, err)
		}
	}

	return o.complete(ctx, documentID, result, createdIDs)
}

type processResult struct {
	documentType    string
	rawText         string
	structuredData  map[string]any
	confidenceScore float64
}

// singleOrFirst gives the pre-check a representative record to examine
// even when the outcome is multi-transaction shaped; should_create's
// real multi-transaction gate is per-record, applied inside the creator.
func singleOrFirst(outcome models.ExtractionOutcome) *models.ExtractedRecord {
	if outcome.Single != nil {
		return outcome.Single
	}
	if outcome.Multi != nil && len(outcome.Multi.Transactions) > 0 {
		return &outcome.Multi.Transactions[0]
	}
	return &models.ExtractedRecord{}
}

// runChunks performs classify-driven chunking, sequential per-chunk LLM
// extraction (chunks stay in document order so transaction indices are
// meaningful), and a merge into a single outcome.
func (o *Orchestrator) runChunks(ctx context.Context, businessID string, extraction *models.RawExtraction, classification models.Classification) (models.ExtractionOutcome, error) {
	params := o.chunkParams
	var chunks []models.Chunk
	if chunk.ShouldChunk(extraction.RawText, extraction.StructuredData, params) {
		chunks = chunk.Chunk(extraction.RawText, extraction.StructuredData, params)
	} else {
		chunks = []models.Chunk{{ChunkID: 0, ChunkType: models.ChunkSize, Text: extraction.RawText, CharCount: len(extraction.RawText)}}
	}

	categoryListing := ""
	if businessID != "" {
		if listing, err := o.categories.ListForPrompt(ctx, businessID); err == nil {
			categoryListing = listing
		}
	}

	var merged models.MultiTransactionResult
	var single *models.ExtractedRecord

	for _, c := range chunks {
		if ctx.Err() != nil {
			return models.ExtractionOutcome{}, fmt.Errorf("document processing exceeded the per-document budget: %w", ctx.Err())
		}

		result := o.llm.Extract(ctx, c, classification.DocumentType, categoryListing, classification.IsMultiTransaction)

		if result.IsMultiTransaction() {
			merged.Transactions = append(merged.Transactions, result.Multi.Transactions...)
			merged.TotalRawTransactions += result.Multi.TotalRawTransactions
			merged.ValidTransactions += result.Multi.ValidTransactions
		} else if result.Single != nil {
			if classification.IsMultiTransaction {
				merged.Transactions = append(merged.Transactions, *result.Single)
			} else {
				single = result.Single
			}
		}
	}

	if classification.IsMultiTransaction || len(merged.Transactions) > 0 {
		merged.ExtractionType = "multi_transaction"
		if merged.TotalRawTransactions == 0 {
			merged.TotalRawTransactions = len(merged.Transactions)
		}
		if merged.ValidTransactions == 0 {
			merged.ValidTransactions = len(merged.Transactions)
		}
		return models.ExtractionOutcome{Multi: &merged}, nil
	}

	if single == nil {
		single = &models.ExtractedRecord{ExtractionError: "no extractable content"}
	}
	return models.ExtractionOutcome{Single: single}, nil
}

// materialize resolves the business's primary active account, invokes
// the Transaction Creator, and routes transactions that landed as
// approved through the Ledger inline.
func (o *Orchestrator) materialize(ctx context.Context, doc models.Document, outcome models.ExtractionOutcome, confidence float64, band scorer.ActionBand) ([]string, error) {
	account, err := o.primaryAccount(ctx, doc.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("resolve primary account: %w", err)
	}

	created, err := o.creator.CreateFromOutcome(ctx, doc.BusinessID, account.ID, "system", doc.ID, outcome, confidence)
	if err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, nil
	}
	log.Printf("document %s: materialized %d transaction(s) at confidence %.2f (%s)", doc.ID, len(created), confidence, band)

	if err := o.creator.LinkDocument(ctx, doc.ID, created); err != nil {
		log.Printf("document %s: failed to link transactions: %v", doc.ID, err)
	}

	ids := make([]string, 0, len(created))
	for _, tx := range created {
		ids = append(ids, tx.ID)
		if tx.Status == models.TxApproved {
			if _, err := o.ledger.AppendForApproval(ctx, tx, "system"); err != nil {
				log.Printf("transaction %s: ledger append failed: %v", tx.ID, err)
			}
		}
	}

	return ids, nil
}

func (o *Orchestrator) primaryAccount(ctx context.Context, businessID string) (models.Account, error) {
	rows, err := o.store.SelectWithFilters(ctx, "accounts", []store.Filter{
		{Column: "business_id", Value: businessID},
		{Column: "is_active", Value: true},
	})
	if err != nil {
		return models.Account{}, err
	}
	if len(rows) == 0 {
		return models.Account{}, fmt.Errorf("business %s has no active accounts", businessID)
	}

	best := rows[0]
	for _, r := range rows[1:] {
		if isPrimary, _ := r["is_primary"].(bool); isPrimary {
			best = r
			break
		}
	}

	acct := models.Account{IsActive: true}
	if v, ok := best["id"].(string); ok {
		acct.ID = v
	}
	if v, ok := best["business_id"].(string); ok {
		acct.BusinessID = v
	}
	if v, ok := best["is_primary"].(bool); ok {
		acct.IsPrimary = v
	}
	return acct, nil
}

func (o *Orchestrator) loadDocument(ctx context.Context, documentID string) (models.Document, error) {
	row, err := o.store.SelectByID(ctx, "documents", documentID)
	if err != nil {
		return models.Document{}, err
	}

	doc := models.Document{ID: documentID}
	if v, ok := row["business_id"].(string); ok {
		doc.BusinessID = v
	}
	if v, ok := row["file_path"].(string); ok {
		doc.FilePath = v
	}
	if v, ok := row["mime"].(string); ok {
		doc.MIME = v
	}
	return doc, nil
}

// fetchToTempFile downloads the document's stored bytes to a local temp
// file; the returned cleanup func always removes it.
func (o *Orchestrator) fetchToTempFile(ctx context.Context, doc models.Document) (string, func(), error) {
	data, err := o.storage.Download(ctx, o.bucket, doc.FilePath)
	if err != nil {
		return "", func() {}, fmt.Errorf("download %s: %w", doc.FilePath, err)
	}

	f, err := os.CreateTemp("", "ledgerflow-doc-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", cleanup, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", cleanup, fmt.Errorf("close temp file: %w", err)
	}

	return path, cleanup, nil
}

func (o *Orchestrator) setStatus(ctx context.Context, documentID string, status models.ExtractionStatus, processingError string) error {
	patch := store.Row{"extraction_status": string(status)}
	if processingError != "" {
		patch["processing_error"] = processingError
	}
	_, err := o.store.PatchByID(ctx, "documents", documentID, patch)
	return err
}

// fail records the terminal failure with a context detached from the
// per-document deadline, so a timeout or cancellation never strands the
// document in "processing".
func (o *Orchestrator) fail(ctx context.Context, documentID, reason string) {
	ctx = context.WithoutCancel(ctx)
	_, err := o.store.PatchByID(ctx, "documents", documentID, store.Row{
		"extraction_status": string(models.ExtractionFailed),
		"processing_error":  reason,
		"processed_at":      time.Now().UTC(),
	})
	if err != nil {
		log.Printf("document %s: failed to record failure status: %v", documentID, err)
	}
}

func (o *Orchestrator) complete(ctx context.Context, documentID string, result processResult, transactionIDs []string) error {
	ctx = context.WithoutCancel(ctx)
	patch := store.Row{
		"extraction_status": string(models.ExtractionCompleted),
		"document_type":     result.documentType,
		"raw_text":          result.rawText,
		"structured_data":   result.structuredData,
		"confidence_score":  result.confidenceScore,
		"processed_at":      time.Now().UTC(),
	}
	if len(transactionIDs) > 0 {
		patch["transaction_id"] = transactionIDs[0]
		patch["linked_transaction_ids"] = transactionIDs
		patch["multi_transaction_count"] = len(transactionIDs)
		patch["auto_created_transaction"] = true
	}

	_, err := o.store.PatchByID(ctx, "documents", documentID, patch)
	if err != nil {
		return fmt.Errorf("complete document %s: %w", documentID, err)
	}
	return nil
}
