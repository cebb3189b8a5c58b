package l1_service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"
	"rebalanceadvisor/internal/repository"
)

type CatalogFilter struct {
	RiskLevel *domain.RiskLevel
	StyleTag  *string
}

// CatalogSnapshot is an immutable view of the strategy catalog. Strategies
// live in one arena slice and the indexes hold positions into it.
type CatalogSnapshot struct {
	LoadedAt time.Time

	strategies  []domain.Strategy
	byID        map[string]int
	byRiskLevel map[domain.RiskLevel][]int
	byTag       map[string][]int
}

// NewCatalogSnapshot copies and normalizes strategies: symbols upper
// cased (duplicates merged), tags lower cased, arena ordered by id.
func NewCatalogSnapshot(strategies []domain.Strategy, loadedAt time.Time) *CatalogSnapshot {
	arena := make([]domain.Strategy, 0, len(strategies))
	seen := map[string]bool{}
	for _, s := range strategies {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		arena = append(arena, normalizeStrategy(s))
	}
	sort.Slice(arena, func(i, j int) bool {
		return arena[i].ID < arena[j].ID
	})

	c := &CatalogSnapshot{
		LoadedAt:    loadedAt,
		strategies:  arena,
		byID:        map[string]int{},
		byRiskLevel: map[domain.RiskLevel][]int{},
		byTag:       map[string][]int{},
	}
	for i, s := range arena {
		c.byID[s.ID] = i
		c.byRiskLevel[s.RiskLevel] = append(c.byRiskLevel[s.RiskLevel], i)
		for _, tag := range s.StyleTags {
			c.byTag[tag] = append(c.byTag[tag], i)
		}
	}

	return c
}

func normalizeStrategy(s domain.Strategy) domain.Strategy {
	allocation := make(map[string]float64, len(s.TargetAllocation))
	for symbol, w := range s.TargetAllocation {
		allocation[strings.ToUpper(strings.TrimSpace(symbol))] += w
	}
	s.TargetAllocation = allocation

	// unknown levels stay as given; the matcher excludes them
	if level, err := domain.NewRiskLevel(string(s.RiskLevel)); err == nil {
		s.RiskLevel = level
	}

	tagSet := map[string]bool{}
	tags := []string{}
	for _, t := range s.StyleTags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || tagSet[t] {
			continue
		}
		tagSet[t] = true
		tags = append(tags, t)
	}
	sort.Strings(tags)
	s.StyleTags = tags
	s.Sources = append([]string{}, s.Sources...)

	return s
}

func (c *CatalogSnapshot) Len() int {
	return len(c.strategies)
}

// All returns the strategies in id order. Callers must not modify them.
func (c *CatalogSnapshot) All() []domain.Strategy {
	return c.strategies
}

func (c *CatalogSnapshot) Get(id string) (domain.Strategy, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Strategy{}, false
	}
	return c.strategies[i], true
}

// Filter returns strategies matching every set field, in id order.
func (c *CatalogSnapshot) Filter(f CatalogFilter) []domain.Strategy {
	var positions []int
	switch {
	case f.RiskLevel != nil && f.StyleTag != nil:
		inTag := map[int]bool{}
		for _, i := range c.byTag[strings.ToLower(*f.StyleTag)] {
			inTag[i] = true
		}
		for _, i := range c.byRiskLevel[*f.RiskLevel] {
			if inTag[i] {
				positions = append(positions, i)
			}
		}
	case f.RiskLevel != nil:
		positions = c.byRiskLevel[*f.RiskLevel]
	case f.StyleTag != nil:
		positions = c.byTag[strings.ToLower(*f.StyleTag)]
	default:
		return append([]domain.Strategy{}, c.strategies...)
	}

	sorted := append([]int{}, positions...)
	sort.Ints(sorted)
	out := make([]domain.Strategy, 0, len(sorted))
	for _, i := range sorted {
		out = append(out, c.strategies[i])
	}
	return out
}

type CatalogService interface {
	// Snapshot returns the current catalog, loading it on first use.
	Snapshot(ctx context.Context) (*CatalogSnapshot, error)
	Reload(ctx context.Context) (*CatalogSnapshot, error)
}

type catalogServiceHandler struct {
	StrategyRepository repository.StrategyRepository
	current            atomic.Pointer[CatalogSnapshot]
}

func NewCatalogService(strategyRepository repository.StrategyRepository) CatalogService {
	return &catalogServiceHandler{
		StrategyRepository: strategyRepository,
	}
}

func (h *catalogServiceHandler) Snapshot(ctx context.Context) (*CatalogSnapshot, error) {
	if c := h.current.Load(); c != nil {
		return c, nil
	}
	return h.Reload(ctx)
}

func (h *catalogServiceHandler) Reload(ctx context.Context) (*CatalogSnapshot, error) {
	strategies, err := h.StrategyRepository.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy catalog: %w", err)
	}

	snapshot := NewCatalogSnapshot(strategies, time.Now().UTC())
	h.current.Store(snapshot)
	logger.FromContext(ctx).Infof("loaded %d strategies into catalog", snapshot.Len())

	return snapshot, nil
}
