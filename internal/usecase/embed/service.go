// Package embed attaches embedding vectors to items. It owns the text
// normalization and length policies; pretrained models expect natural text,
// so normalization never strips stopwords or lemmatizes.
package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

// LengthPolicy decides what happens to texts over the length budget.
type LengthPolicy string

const (
	// Truncate cuts over-long texts at the rune budget.
	Truncate LengthPolicy = "truncate"
	// Reject fails the whole run on the first over-long text.
	Reject LengthPolicy = "reject"
)

// Config holds normalization and batching settings.
type Config struct {
	Lowercase    bool
	MaxTextRunes int
	LengthPolicy LengthPolicy
	BatchSize    int
	Workers      int
}

// Service embeds items through a pluggable batch embedder.
type Service struct {
	embedder Embedder
	cfg      Config
	logger   *zap.Logger
}

// New creates an embedding service.
func New(embedder Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxTextRunes <= 0 {
		cfg.MaxTextRunes = 8192
	}
	if cfg.LengthPolicy == "" {
		cfg.LengthPolicy = Truncate
	}
	return &Service{embedder: embedder, cfg: cfg, logger: logger}
}

// EmbedItems returns a new item slice with vectors attached, in input order.
// Batches run on a bounded worker pool; ordering of the output is unaffected
// by internal parallelism. All vectors in one run must share a dimensionality.
func (s *Service) EmbedItems(ctx context.Context, items []domain.Item) ([]domain.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		text, err := s.normalize(it)
		if err != nil {
			return nil, err
		}
		texts[i] = text
	}

	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(items) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts: %w",
			len(vectors), len(items), domain.ErrEmbedding)
	}

	dim := len(vectors[0])
	out := make([]domain.Item, len(items))
	for i, it := range items {
		if len(vectors[i]) != dim {
			return nil, fmt.Errorf("item %q has dimension %d, expected %d: %w",
				it.ID, len(vectors[i]), dim, domain.ErrVectorDimMismatch)
		}
		out[i] = it.WithVector(vectors[i])
	}

	s.logger.Info("Embedded items",
		zap.Int("count", len(out)),
		zap.Int("dimensions", dim),
	)
	return out, nil
}

// normalize applies the normalization and length policies to one item's text.
func (s *Service) normalize(it domain.Item) (string, error) {
	text := strings.TrimSpace(it.Text)
	if text == "" {
		return "", fmt.Errorf("item %q has empty text: %w", it.ID, domain.ErrEmbedding)
	}
	if s.cfg.Lowercase {
		text = strings.ToLower(text)
	}

	runes := []rune(text)
	if len(runes) > s.cfg.MaxTextRunes {
		if s.cfg.LengthPolicy == Reject {
			return "", fmt.Errorf("item %q exceeds max length (%d > %d runes): %w",
				it.ID, len(runes), s.cfg.MaxTextRunes, domain.ErrEmbedding)
		}
		text = string(runes[:s.cfg.MaxTextRunes])
	}
	return text, nil
}

// embedAll fans batches out over workers and reassembles vectors in input order.
func (s *Service) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	type batch struct {
		offset int
		texts  []string
	}

	var batches []batch
	for off := 0; off < len(texts); off += s.cfg.BatchSize {
		end := off + s.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{offset: off, texts: texts[off:end]})
	}

	vectors := make([][]float32, len(texts))
	jobs := make(chan batch)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	workers := s.cfg.Workers
	if workers > len(batches) {
		workers = len(batches)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				res, err := s.embedder.BatchEmbed(ctx, b.texts)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("batch at offset %d: %w", b.offset, err)
					}
					mu.Unlock()
					continue
				}
				if len(res.Embeddings) != len(b.texts) {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("batch at offset %d returned %d vectors for %d texts: %w",
							b.offset, len(res.Embeddings), len(b.texts), domain.ErrEmbedding)
					}
					mu.Unlock()
					continue
				}
				for i, vec := range res.Embeddings {
					vectors[b.offset+i] = vec
				}
			}
		}()
	}

	for _, b := range batches {
		jobs <- b
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}
