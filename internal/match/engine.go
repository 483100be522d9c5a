// Package match scores postings against a candidate profile with a lexical
// TF-IDF stage and an optional language-model stage.
package match

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/metrics"
	"github.com/JakeFAU/jobscout/internal/posting"
)

const (
	lexicalWeight  = 0.1
	semanticWeight = 0.9
	defaultTimeout = 60 * time.Second
)

// EngineConfig configures an Engine. Evaluator may be nil, in which case
// only the lexical stage runs.
type EngineConfig struct {
	Evaluator Evaluator
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Engine blends lexical and semantic scores.
type Engine struct {
	evaluator Evaluator
	timeout   time.Duration
	logger    *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Engine{
		evaluator: cfg.Evaluator,
		timeout:   cfg.Timeout,
		logger:    logging.OrNop(cfg.Logger).With(zap.String("component", "match")),
	}
}

// Score rates p against profile. It never fails: when the semantic stage
// errors, times out or returns nothing usable, the lexical score stands
// alone with empty reasons and suggestions.
func (e *Engine) Score(ctx context.Context, p posting.Posting, profile posting.Profile) posting.MatchResult {
	lexical := Lexical(p.Description, profile.Text)
	result := posting.MatchResult{Score: lexical, Reasons: []string{}, Suggestions: []string{}}

	sem, err := e.semantic(ctx, p.Description, profile.Text)
	switch {
	case err != nil:
		e.logger.Warn("semantic evaluation failed, using lexical score",
			zap.String("url", p.URL), zap.Float64("lexical", lexical), zap.Error(err))
	case sem == nil:
		e.logger.Debug("no semantic result, using lexical score",
			zap.String("url", p.URL), zap.Float64("lexical", lexical))
	default:
		result = posting.MatchResult{
			Score:       round2(clamp(lexicalWeight*lexical+semanticWeight*sem.Score, 0, 10)),
			Reasons:     sem.Reasons,
			Suggestions: sem.Suggestions,
			Semantic:    true,
		}
	}
	metrics.ObserveMatch(result.Score, result.Semantic)
	return result
}

func (e *Engine) semantic(ctx context.Context, description, cv string) (sem *Semantic, err error) {
	if e.evaluator == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			sem, err = nil, fmt.Errorf("evaluator panic: %v", r)
		}
	}()
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.evaluator.Evaluate(callCtx, description, cv)
}
