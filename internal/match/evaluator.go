package match

import (
	"context"
	_ "embed"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/logging"
)

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Semantic is a parsed language-model assessment.
type Semantic struct {
	Score       float64
	Reasons     []string
	Suggestions []string
}

// Evaluator produces a semantic assessment of a description against a CV.
// A nil result with a nil error means the model gave nothing usable.
type Evaluator interface {
	Evaluate(ctx context.Context, description, cv string) (*Semantic, error)
}

// Generator is a text completion backend.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// LLMEvaluator asks a language model to grade the match and parses its JSON reply.
type LLMEvaluator struct {
	generator Generator
	logger    *zap.Logger
	maxLogLen int
}

// NewLLMEvaluator builds an evaluator over generator.
func NewLLMEvaluator(generator Generator, maxLogLength int, logger *zap.Logger) *LLMEvaluator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &LLMEvaluator{
		generator: generator,
		logger:    logging.OrNop(logger).With(zap.String("component", "llm_evaluator")),
		maxLogLen: maxLogLength,
	}
}

// Evaluate implements Evaluator.
func (e *LLMEvaluator) Evaluate(ctx context.Context, description, cv string) (*Semantic, error) {
	if strings.TrimSpace(description) == "" || strings.TrimSpace(cv) == "" {
		return nil, nil
	}
	prompt := buildPrompt(description, cv)
	raw, err := e.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}
	result := parseResponse(raw)
	if result == nil {
		e.logger.Warn("unparsable evaluator response",
			zap.Int("response_length", utf8.RuneCountInString(raw)),
			zap.String("response_preview", logging.Truncate(raw, e.maxLogLen)),
		)
		return nil, nil
	}
	e.logger.Debug("evaluator response",
		zap.Float64("score", result.Score),
		zap.Int("reasons", len(result.Reasons)),
		zap.Int("suggestions", len(result.Suggestions)),
	)
	return result, nil
}

func buildPrompt(description, cv string) string {
	prompt := strings.ReplaceAll(promptTemplate, "{{JOB_DESCRIPTION}}", strings.TrimSpace(description))
	return strings.ReplaceAll(prompt, "{{CV_TEXT}}", strings.TrimSpace(cv))
}

// parseResponse tries the whole reply, then a fenced block, then the first
// balanced object. It returns nil when none of them carries a numeric score.
func parseResponse(raw string) *Semantic {
	raw = strings.TrimSpace(raw)
	candidates := []string{raw}
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if obj, ok := firstObject(raw); ok {
		candidates = append(candidates, obj)
	}
	for _, c := range candidates {
		var data map[string]any
		if err := json.Unmarshal([]byte(c), &data); err != nil {
			continue
		}
		score := coerceFloat(data["score"])
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		return &Semantic{
			Score:       clamp(score, 0, 10),
			Reasons:     coerceList(data["reasons"]),
			Suggestions: coerceList(data["improvement_suggestions"]),
		}
	}
	return nil
}

// firstObject returns the first brace-balanced {...} span in s, honouring
// JSON string quoting.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func coerceList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case nil:
		return []string{}
	default:
		if s := coerceString(val); s != "" {
			return []string{s}
		}
		return []string{}
	}
}
