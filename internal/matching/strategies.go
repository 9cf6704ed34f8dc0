package matching

import (
	"context"

	"picklist/internal"
	"picklist/internal/util"
)

const (
	StrategyExactSubstring = "exact_substring"
	StrategyBrandCategory  = "brand_category"
	StrategyWordSet        = "word_set"
	StrategySingleWord     = "single_word"
	StrategyPreference     = "preference"
)

// Strategy proposes candidates for normalized item text. An empty result
// hands the text to the next strategy in the chain.
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, normalized string) ([]internal.MatchCandidate, error)
}

// CatalogStore is the search surface the strategies run against.
type CatalogStore interface {
	SearchExactSubstring(ctx context.Context, text string) ([]internal.CatalogRow, error)
	SearchBrandCategory(ctx context.Context, brand string, categoryFilter []string) ([]internal.CatalogRow, error)
	SearchWordSet(ctx context.Context, words []string) ([]internal.RankedRow, error)
	SearchSingleWord(ctx context.Context, words []string) ([]internal.CatalogRow, error)
}

type Category string

const (
	CategoryNone   Category = ""
	CategoryPolish Category = "polish"
	CategoryTool   Category = "tool"
)

// Classify assigns text to the polish-like or tool-like keyword set.
// Polish keywords are checked first so the two classes never overlap.
func (o Options) Classify(normalized string) (Category, []string) {
	if util.ContainsAny(normalized, o.PolishKeywords) {
		return CategoryPolish, o.PolishKeywords
	}
	if util.ContainsAny(normalized, o.ToolKeywords) {
		return CategoryTool, o.ToolKeywords
	}
	return CategoryNone, nil
}

type exactSubstring struct {
	store     CatalogStore
	prefixLen int
}

func (s exactSubstring) Name() string { return StrategyExactSubstring }

func (s exactSubstring) Candidates(ctx context.Context, normalized string) ([]internal.MatchCandidate, error) {
	rows, err := s.store.SearchExactSubstring(ctx, util.Prefix(normalized, s.prefixLen))
	if err != nil {
		return nil, err
	}
	return toCandidates(rows, 10, s.Name()), nil
}

type brandCategory struct {
	store CatalogStore
	opts  Options
}

func (s brandCategory) Name() string { return StrategyBrandCategory }

func (s brandCategory) Candidates(ctx context.Context, normalized string) ([]internal.MatchCandidate, error) {
	words := util.Words(normalized)
	if len(words) == 0 || util.RuneLen(words[0]) <= 2 {
		return nil, nil
	}
	_, filter := s.opts.Classify(normalized)
	rows, err := s.store.SearchBrandCategory(ctx, words[0], filter)
	if err != nil {
		return nil, err
	}
	return toCandidates(rows, 5, s.Name()), nil
}

type wordSet struct {
	store CatalogStore
}

func (s wordSet) Name() string { return StrategyWordSet }

func (s wordSet) Candidates(ctx context.Context, normalized string) ([]internal.MatchCandidate, error) {
	words := util.SignificantWords(normalized, 3, nil)
	if len(words) < 2 {
		return nil, nil
	}
	rows, err := s.store.SearchWordSet(ctx, words)
	if err != nil {
		return nil, err
	}
	out := make([]internal.MatchCandidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, internal.MatchCandidate{
			Product:      r.Product,
			MatchScore:   r.Rank,
			StrategyName: s.Name(),
			ChosenOffer:  r.Offer,
		})
	}
	return out, nil
}

type singleWord struct {
	store CatalogStore
	stop  map[string]struct{}
}

func (s singleWord) Name() string { return StrategySingleWord }

func (s singleWord) Candidates(ctx context.Context, normalized string) ([]internal.MatchCandidate, error) {
	words := util.SignificantWords(normalized, 4, s.stop)
	if len(words) == 0 {
		return nil, nil
	}
	rows, err := s.store.SearchSingleWord(ctx, words)
	if err != nil {
		return nil, err
	}
	return toCandidates(rows, 1, s.Name()), nil
}

func toCandidates(rows []internal.CatalogRow, score float64, strategy string) []internal.MatchCandidate {
	out := make([]internal.MatchCandidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, internal.MatchCandidate{
			Product:      r.Product,
			MatchScore:   score,
			StrategyName: strategy,
			ChosenOffer:  r.Offer,
		})
	}
	return out
}
