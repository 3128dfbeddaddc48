// Package category is a business-scoped, read-mostly cache over active
// categories with exact/substring resolution and an LLM-presentable
// listing.
package category

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/syntheit/ledgerflow/internal/models"
	"github.com/syntheit/ledgerflow/internal/store"
)

// DefaultTTL bounds how stale a cached category list may get.
const DefaultTTL = 60 * time.Second

type cacheEntry struct {
	categories []models.Category
	loadedAt   time.Time
}

// Resolver loads and caches a business's active categories and answers
// exact/substring lookups scoped strictly to that business.
type Resolver struct {
	store *store.Store
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewResolver constructs a Resolver backed by s, using ttl as the cache
// freshness window (DefaultTTL if ttl <= 0).
func NewResolver(s *store.Store, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		store:   s,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Categories returns the active categories for businessID, refreshing from
// the store when the cached entry has exceeded its TTL.
func (r *Resolver) Categories(ctx context.Context, businessID string) ([]models.Category, error) {
	r.mu.RLock()
	entry, ok := r.entries[businessID]
	r.mu.RUnlock()

	if ok && time.Since(entry.loadedAt) < r.ttl {
		return entry.categories, nil
	}

	cats, err := r.load(ctx, businessID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[businessID] = cacheEntry{categories: cats, loadedAt: time.Now()}
	r.mu.Unlock()

	return cats, nil
}

func (r *Resolver) load(ctx context.Context, businessID string) ([]models.Category, error) {
	rows, err := r.store.SelectWithFilters(ctx, "categories", []store.Filter{
		{Column: "business_id", Value: businessID},
		{Column: "is_active", Value: true},
	})
	if err != nil {
		return nil, fmt.Errorf("load categories for business %s: %w", businessID, err)
	}

	cats := make([]models.Category, 0, len(rows))
	for _, row := range rows {
		cats = append(cats, rowToCategory(row))
	}
	return cats, nil
}

func rowToCategory(row store.Row) models.Category {
	c := models.Category{IsActive: true}
	if v, ok := row["id"].(string); ok {
		c.ID = v
	}
	if v, ok := row["business_id"].(string); ok {
		c.BusinessID = v
	}
	if v, ok := row["name"].(string); ok {
		c.Name = v
	}
	if v, ok := row["description"].(string); ok {
		c.Description = v
	}
	if v, ok := row["type"].(string); ok {
		c.Type = models.CategoryType(v)
	}
	if v, ok := row["is_system"].(bool); ok {
		c.IsSystem = v
	}
	if v, ok := row["display_order"].(int32); ok {
		c.DisplayOrder = int(v)
	}
	if v, ok := row["parent_id"].(string); ok && v != "" {
		c.ParentID = &v
	}
	return c
}

// ListForPrompt renders a newline-separated listing suitable for
// inclusion in an LLM prompt.
func (r *Resolver) ListForPrompt(ctx context.Context, businessID string) (string, error) {
	cats, err := r.Categories(ctx, businessID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, c := range cats {
		fmt.Fprintf(&b, "- %s (%s)", c.Name, c.Type)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Resolve matches in two passes: exact case-insensitive name match, then
// a symmetric substring match. It never returns a category from a
// business other than businessID.
func (r *Resolver) Resolve(ctx context.Context, businessID, nameOrAlias string) (string, bool, error) {
	cats, err := r.Categories(ctx, businessID)
	if err != nil {
		return "", false, err
	}

	alias := strings.ToLower(strings.TrimSpace(nameOrAlias))
	if alias == "" {
		return "", false, nil
	}

	for _, c := range cats {
		if strings.ToLower(c.Name) == alias {
			return c.ID, true, nil
		}
	}

	for _, c := range cats {
		name := strings.ToLower(c.Name)
		if strings.Contains(name, alias) || strings.Contains(alias, name) {
			return c.ID, true, nil
		}
	}

	return "", false, nil
}

// keywordMappings drive Suggest, used only when Resolve finds nothing.
var keywordMappings = map[string][]string{
	"office":               {"office", "supplies", "stationery", "printer", "paper"},
	"travel":               {"hotel", "flight", "airline", "taxi", "uber", "lyft", "travel", "mileage"},
	"meals":                {"restaurant", "food", "lunch", "dinner", "coffee", "meal", "catering"},
	"software":             {"software", "license", "subscription", "saas", "cloud"},
	"utilities":            {"electric", "gas", "water", "internet", "phone", "utility"},
	"marketing":            {"advertising", "marketing", "social media", "seo", "campaign"},
	"professional services": {"consultant", "legal", "accounting", "audit", "lawyer"},
	"equipment":            {"equipment", "hardware", "computer", "laptop", "furniture"},
	"insurance":            {"insurance", "premium", "coverage"},
	"training":             {"training", "course", "workshop", "seminar", "conference"},
}

// Suggest scores partial keyword overlap between a vendor/description pair
// and the business's category names, returning the best-scoring category
// id when Resolve found no exact/substring match. It never replaces
// Resolve, only supplements it.
func (r *Resolver) Suggest(ctx context.Context, businessID, description, vendor string, isIncome bool) (string, bool, error) {
	cats, err := r.Categories(ctx, businessID)
	if err != nil {
		return "", false, err
	}

	wantType := models.CategoryExpense
	if isIncome {
		wantType = models.CategoryIncome
	}

	text := strings.ToLower(description + " " + vendor)

	var best models.Category
	bestScore := 0
	found := false

	for _, c := range cats {
		if c.Type != wantType {
			continue
		}

		nameLower := strings.ToLower(c.Name)
		score := 0

		for keywordCategory, keywords := range keywordMappings {
			if strings.Contains(nameLower, keywordCategory) {
				for _, kw := range keywords {
					if strings.Contains(text, kw) {
						score++
						break
					}
				}
			}
		}

		if strings.Contains(text, nameLower) {
			score += 2
		}

		if score > bestScore && score >= 1 {
			best = c
			bestScore = score
			found = true
		}
	}

	if !found {
		return "", false, nil
	}
	return best.ID, true, nil
}
