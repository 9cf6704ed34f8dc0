package matching

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"picklist/internal"
	"picklist/internal/common"
	"picklist/internal/config"
	"picklist/internal/logging"
	"picklist/internal/util"
)

type Options struct {
	PrefixLen      int
	MinLen         int
	PolishKeywords []string
	ToolKeywords   []string
	StopWords      []string
	Timeout        time.Duration
}

func DefaultOptions() Options {
	return Options{
		PrefixLen:      15,
		MinLen:         3,
		PolishKeywords: []string{"polish", "gel", "lacquer", "color", "duo"},
		ToolKeywords:   []string{"brush", "tool", "dotting", "file", "buffer"},
		StopWords:      []string{"nail", "nails", "polish", "color", "colour", "glue", "lacquer", "coat", "base", "top", "gel"},
		Timeout:        5 * time.Second,
	}
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		PrefixLen:      cfg.MatchPrefixLen,
		MinLen:         cfg.MatchMinLen,
		PolishKeywords: cfg.MatchPolishKeyword,
		ToolKeywords:   cfg.MatchToolKeyword,
		StopWords:      cfg.MatchStopWords,
		Timeout:        cfg.StoreTimeout(),
	}
}

// Matcher runs an ordered strategy chain; the first strategy returning any
// candidate decides the match and later strategies are not invoked.
type Matcher struct {
	strategies []Strategy
	minLen     int
	timeout    time.Duration
	logger     *zap.Logger
}

func NewMatcher(store CatalogStore, opts Options, logger *zap.Logger) *Matcher {
	return NewMatcherWithStrategies(opts, logger, DefaultChain(store, opts)...)
}

func NewMatcherWithStrategies(opts Options, logger *zap.Logger, strategies ...Strategy) *Matcher {
	return &Matcher{
		strategies: strategies,
		minLen:     opts.MinLen,
		timeout:    opts.Timeout,
		logger:     logging.OrNop(logger),
	}
}

// DefaultChain returns exact-substring, brand/category, word-set and
// single-word strategies in that order.
func DefaultChain(store CatalogStore, opts Options) []Strategy {
	return []Strategy{
		exactSubstring{store: store, prefixLen: opts.PrefixLen},
		brandCategory{store: store, opts: opts},
		wordSet{store: store},
		singleWord{store: store, stop: util.SetOf(opts.StopWords)},
	}
}

func (m *Matcher) Match(ctx context.Context, rawText string) (internal.MatchCandidate, error) {
	normalized := util.Normalize(rawText)
	if util.RuneLen(normalized) < m.minLen {
		return internal.MatchCandidate{}, fmt.Errorf("%w: %q is shorter than %d characters", common.ErrInvalidOrderItem, normalized, m.minLen)
	}

	for _, s := range m.strategies {
		candidates, err := common.Call(ctx, m.timeout, func(ctx context.Context) ([]internal.MatchCandidate, error) {
			return s.Candidates(ctx, normalized)
		})
		if err != nil {
			return internal.MatchCandidate{}, fmt.Errorf("%s strategy: %w", s.Name(), err)
		}
		if len(candidates) == 0 {
			continue
		}
		best := pickBest(candidates)
		m.logger.Debug("catalog match",
			zap.String("item", rawText),
			zap.String("strategy", s.Name()),
			zap.Int("productId", best.Product.ID),
			zap.Float64("price", best.ChosenOffer.Price),
			zap.Int("candidates", len(candidates)),
		)
		return best, nil
	}

	return internal.MatchCandidate{}, fmt.Errorf("%w: %q", common.ErrNoMatchFound, normalized)
}

// pickBest prefers the highest score, then the lowest price. Product and
// supplier ids settle the remaining ties so repeated runs agree.
func pickBest(candidates []internal.MatchCandidate) internal.MatchCandidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, best) {
			best = c
		}
	}
	return best
}

func better(a, b internal.MatchCandidate) bool {
	if a.MatchScore != b.MatchScore {
		return a.MatchScore > b.MatchScore
	}
	if a.ChosenOffer.Price != b.ChosenOffer.Price {
		return a.ChosenOffer.Price < b.ChosenOffer.Price
	}
	if a.Product.ID != b.Product.ID {
		return a.Product.ID < b.Product.ID
	}
	return a.ChosenOffer.SupplierID < b.ChosenOffer.SupplierID
}
