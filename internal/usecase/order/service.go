// Package order ranks label candidates for human annotation. The ranked
// top-M list is shown first; the "none of these" escape moves an item into
// the full-vocabulary secondary queue.
package order

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

// Strategy names a label-scoring approach.
type Strategy string

const (
	// StrategySimilarity scores labels by embedding similarity to the item.
	StrategySimilarity Strategy = "similarity"
	// StrategyModel scores labels with a trained classifier.
	StrategyModel Strategy = "model"
	// StrategyRules scores labels from keyword rules.
	StrategyRules Strategy = "rules"
	// StrategyGenerative asks an external generative model for a suggestion.
	StrategyGenerative Strategy = "generative"
)

// DefaultTopM is the default size of the narrowed candidate list.
const DefaultTopM = 5

// Rule maps keywords to a label for the rule-based strategy.
type Rule struct {
	Label    string
	Keywords []string
	Weight   float64
}

// Config holds ordering settings.
type Config struct {
	Strategy Strategy
	TopM     int
	Rules    []Rule
}

// Service produces ranked label candidate lists per item.
type Service struct {
	cfg       Config
	embedder  LabelEmbedder
	predictor Predictor
	suggester Suggester
	logger    *zap.Logger

	mu        sync.Mutex
	labelVecs map[string][]float32
}

// New creates an ordering service. Dependencies not used by the configured
// strategy may be nil.
func New(cfg Config, embedder LabelEmbedder, predictor Predictor, suggester Suggester, logger *zap.Logger) *Service {
	if cfg.TopM <= 0 {
		cfg.TopM = DefaultTopM
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySimilarity
	}
	return &Service{
		cfg:       cfg,
		embedder:  embedder,
		predictor: predictor,
		suggester: suggester,
		logger:    logger,
		labelVecs: make(map[string][]float32),
	}
}

// WithPredictor swaps in a trained classifier for the model strategy.
// Called after few-shot training completes.
func (s *Service) WithPredictor(p Predictor) *Service {
	s.predictor = p
	return s
}

// Order returns the top-M labels for one item, ranked by non-increasing
// score under the configured strategy.
func (s *Service) Order(ctx context.Context, item domain.Item, vocab []string) (domain.Ordering, error) {
	if len(vocab) == 0 {
		return domain.Ordering{}, fmt.Errorf("label vocabulary is empty: %w", domain.ErrInvalidSchema)
	}

	var candidates []domain.LabelCandidate
	var err error
	switch s.cfg.Strategy {
	case StrategySimilarity:
		candidates, err = s.orderBySimilarity(ctx, item, vocab)
	case StrategyModel:
		candidates, err = s.orderByModel(item, vocab)
	case StrategyRules:
		candidates = s.orderByRules(item, vocab)
	case StrategyGenerative:
		candidates, err = s.orderByGenerative(ctx, item, vocab)
	default:
		return domain.Ordering{}, fmt.Errorf("unknown ordering strategy %q", s.cfg.Strategy)
	}
	if err != nil {
		return domain.Ordering{}, err
	}

	return domain.NewOrdering(item.ID, candidates, s.cfg.TopM), nil
}

// FullVocabulary returns an unranked ordering over the whole vocabulary,
// used by the secondary queue after a "none of these" escape.
func (s *Service) FullVocabulary(itemID string, vocab []string) domain.Ordering {
	candidates := make([]domain.LabelCandidate, len(vocab))
	for i, label := range vocab {
		candidates[i] = domain.LabelCandidate{Label: label}
	}
	return domain.NewOrdering(itemID, candidates, len(vocab))
}

func (s *Service) orderBySimilarity(ctx context.Context, item domain.Item, vocab []string) ([]domain.LabelCandidate, error) {
	if item.Vector == nil {
		return nil, fmt.Errorf("item %q has no embedding: %w", item.ID, domain.ErrEmbedding)
	}
	vecs, err := s.labelVectors(ctx, vocab)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.LabelCandidate, len(vocab))
	for i, label := range vocab {
		candidates[i] = domain.LabelCandidate{
			Label: label,
			Score: domain.Cosine(item.Vector, vecs[label]),
		}
	}
	return candidates, nil
}

func (s *Service) orderByModel(item domain.Item, vocab []string) ([]domain.LabelCandidate, error) {
	if s.predictor == nil {
		return nil, fmt.Errorf("model strategy requires a trained classifier")
	}
	if item.Vector == nil {
		return nil, fmt.Errorf("item %q has no embedding: %w", item.ID, domain.ErrEmbedding)
	}
	probs := s.predictor.Probabilities(item.Vector)

	candidates := make([]domain.LabelCandidate, len(vocab))
	for i, label := range vocab {
		candidates[i] = domain.LabelCandidate{Label: label, Score: probs[label]}
	}
	return candidates, nil
}

func (s *Service) orderByRules(item domain.Item, vocab []string) []domain.LabelCandidate {
	text := strings.ToLower(item.Text)

	scores := make(map[string]float64, len(vocab))
	for _, rule := range s.cfg.Rules {
		weight := rule.Weight
		if weight == 0 {
			weight = 1
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				scores[rule.Label] += weight
			}
		}
	}

	candidates := make([]domain.LabelCandidate, len(vocab))
	for i, label := range vocab {
		candidates[i] = domain.LabelCandidate{Label: label, Score: scores[label]}
	}
	return candidates
}

func (s *Service) orderByGenerative(ctx context.Context, item domain.Item, vocab []string) ([]domain.LabelCandidate, error) {
	if s.suggester == nil {
		return nil, fmt.Errorf("generative strategy requires a suggester")
	}
	suggested, err := s.suggester.SuggestLabel(ctx, item.Text, vocab)
	if err != nil {
		return nil, fmt.Errorf("suggest label for %q: %w", item.ID, err)
	}

	candidates := make([]domain.LabelCandidate, len(vocab))
	for i, label := range vocab {
		score := 0.0
		if label == suggested {
			score = 1.0
		}
		candidates[i] = domain.LabelCandidate{Label: label, Score: score}
	}
	return candidates, nil
}

// labelVectors embeds the vocabulary once and caches the vectors.
func (s *Service) labelVectors(ctx context.Context, vocab []string) (map[string][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for _, label := range vocab {
		if _, ok := s.labelVecs[label]; !ok {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		if s.embedder == nil {
			return nil, fmt.Errorf("similarity strategy requires a label embedder")
		}
		res, err := s.embedder.BatchEmbed(ctx, labelTexts(missing))
		if err != nil {
			return nil, fmt.Errorf("embed labels: %w", err)
		}
		if len(res.Embeddings) != len(missing) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d labels: %w",
				len(res.Embeddings), len(missing), domain.ErrEmbedding)
		}
		for i, label := range missing {
			s.labelVecs[label] = res.Embeddings[i]
		}
	}

	out := make(map[string][]float32, len(vocab))
	for _, label := range vocab {
		out[label] = s.labelVecs[label]
	}
	return out, nil
}

// labelTexts turns snake_case vocabulary entries into natural text, which
// pretrained embedding models handle better than raw identifiers.
func labelTexts(labels []string) []string {
	out := make([]string, len(labels))
	for i, label := range labels {
		out[i] = strings.ReplaceAll(label, "_", " ")
	}
	return out
}
