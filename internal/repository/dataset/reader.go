// Package dataset reads the tabular input file and writes run artifacts:
// selection CSV, issue report CSV, scatter JSON and a parquet export of the
// embedded dataset.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

// Schema maps dataset columns and fixes the label vocabulary.
type Schema struct {
	IDColumn    string
	TextColumn  string
	LabelColumn string
	// Labels is the closed vocabulary; non-empty labels outside it fail ingest.
	Labels []string
}

// Repository loads and exports datasets as delimited files.
type Repository struct {
	schema Schema
	logger *zap.Logger
}

// New creates a dataset repository.
func New(schema Schema, logger *zap.Logger) (*Repository, error) {
	if schema.IDColumn == "" || schema.TextColumn == "" {
		return nil, fmt.Errorf("id and text columns are required: %w", domain.ErrInvalidSchema)
	}
	return &Repository{schema: schema, logger: logger}, nil
}

// Load reads items from a CSV or TSV file. The header must contain the id and
// text columns; the label column is optional. Labels are checked against the
// closed vocabulary when one is configured.
func (r *Repository) Load(path string) ([]domain.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		reader.Comma = '\t'
	}

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := r.resolveColumns(header)
	if err != nil {
		return nil, err
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	vocab := make(map[string]struct{}, len(r.schema.Labels))
	for _, l := range r.schema.Labels {
		vocab[l] = struct{}{}
	}

	seen := make(map[string]struct{}, len(records))
	items := make([]domain.Item, 0, len(records))
	for i, rec := range records {
		it := domain.Item{
			ID:   strings.TrimSpace(rec[cols.id]),
			Text: rec[cols.text],
		}
		if it.ID == "" {
			return nil, fmt.Errorf("row %d has an empty id: %w", i+2, domain.ErrInvalidSchema)
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("row %d duplicates id %q: %w", i+2, it.ID, domain.ErrAlreadyExists)
		}
		seen[it.ID] = struct{}{}

		if cols.label >= 0 {
			it.Label = strings.TrimSpace(rec[cols.label])
			if it.Label != "" && len(vocab) > 0 {
				if _, ok := vocab[it.Label]; !ok {
					return nil, fmt.Errorf("row %d label %q is outside the vocabulary: %w",
						i+2, it.Label, domain.ErrInvalidSchema)
				}
			}
		}
		items = append(items, it)
	}

	r.logger.Info("Loaded dataset",
		zap.String("path", path),
		zap.Int("items", len(items)),
	)
	return items, nil
}

type columnIndexes struct {
	id    int
	text  int
	label int
}

func (r *Repository) resolveColumns(header []string) (columnIndexes, error) {
	cols := columnIndexes{id: -1, text: -1, label: -1}
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case r.schema.IDColumn:
			cols.id = i
		case r.schema.TextColumn:
			cols.text = i
		case r.schema.LabelColumn:
			cols.label = i
		}
	}
	if cols.id < 0 {
		return cols, fmt.Errorf("missing column %q: %w", r.schema.IDColumn, domain.ErrInvalidSchema)
	}
	if cols.text < 0 {
		return cols, fmt.Errorf("missing column %q: %w", r.schema.TextColumn, domain.ErrInvalidSchema)
	}
	return cols, nil
}
