// Package insight produces the short advisory text shown on the dashboard. The text comes
// from an external generator; every failure degrades to a fixed string so dashboards never
// depend on it.
package insight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	FallbackUnavailable = "AI insights are currently unavailable. Please check network connection."
	FallbackEmptyReply  = "Review your inventory levels to ensure optimal performance."
	NoDataAdvice        = "Add products to your inventory to start receiving insights."

	maxLowStock     = 20
	maxRecentTotals = 10
	maxCategories   = 10
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Cache stores generated text per visible branch set.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// ProductFact is the part of a product the snapshot needs.
type ProductFact struct {
	Name          string
	Category      string
	Stock         int
	MinStockLevel int
}

// Snapshot is the summarized data sent to the generator.
type Snapshot struct {
	LowStock     []string
	RecentTotals []decimal.Decimal
	Categories   []string
	Products     int
}

// BuildSnapshot keeps at most 20 low-stock names, 10 recent totals and 10 categories.
// products keep their given order; recent must be newest first.
func BuildSnapshot(products []ProductFact, recent []decimal.Decimal) Snapshot {
	s := Snapshot{Products: len(products)}
	seen := make(map[string]bool)
	for _, p := range products {
		if p.Stock <= p.MinStockLevel && len(s.LowStock) < maxLowStock {
			s.LowStock = append(s.LowStock, p.Name)
		}
		if !seen[p.Category] && len(s.Categories) < maxCategories {
			seen[p.Category] = true
			s.Categories = append(s.Categories, p.Category)
		}
	}
	if len(recent) > maxRecentTotals {
		recent = recent[:maxRecentTotals]
	}
	s.RecentTotals = append(s.RecentTotals, recent...)
	return s
}

func (s Snapshot) Empty() bool { return s.Products == 0 }

func Prompt(s Snapshot) string {
	low := "None"
	if len(s.LowStock) > 0 {
		low = strings.Join(s.LowStock, ", ")
	}
	totals := make([]string, 0, len(s.RecentTotals))
	for _, t := range s.RecentTotals {
		totals = append(totals, t.StringFixed(2))
	}

	var b strings.Builder
	b.WriteString("You are an AI business analyst for a pharmacy named Nexile.\n")
	b.WriteString("Analyze the following brief snapshot of data:\n")
	fmt.Fprintf(&b, "- Top Categories: %s\n", strings.Join(s.Categories, ", "))
	fmt.Fprintf(&b, "- Critical Items needing restock (max 20 listed): %s\n", low)
	fmt.Fprintf(&b, "- Recent transaction values: %s\n\n", strings.Join(totals, ", "))
	b.WriteString("Provide a concise, professional, 2-sentence insight or actionable advice for the pharmacy manager to improve efficiency or sales.\n")
	b.WriteString("Focus on inventory optimization or sales trends. Do not use markdown formatting.")
	return b.String()
}

type Service struct {
	gen   Generator
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewService: gen ve cache nil olabilir
func NewService(gen Generator, cache Cache, ttl time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{gen: gen, cache: cache, ttl: ttl, log: log}
}

// Insight returns advisory text for snapshot. It never fails.
func (s *Service) Insight(ctx context.Context, scopeKey string, snap Snapshot) (text string, cached bool) {
	if snap.Empty() {
		return NoDataAdvice, false
	}
	if s.gen == nil {
		return FallbackUnavailable, false
	}

	key := "insight:" + scopeKey
	if s.cache != nil {
		if v, ok := s.cache.Get(ctx, key); ok {
			return v, true
		}
	}

	out, err := s.gen.Generate(ctx, Prompt(snap))
	if err != nil {
		s.log.Warn("insight generation failed", zap.String("scope", scopeKey), zap.Error(err))
		return FallbackUnavailable, false
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return FallbackEmptyReply, false
	}

	if s.cache != nil && s.ttl > 0 {
		s.cache.Set(ctx, key, out, s.ttl)
	}
	return out, false
}
