package dataset

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

// parquetRow is the export schema for the embedded dataset.
type parquetRow struct {
	ID     string    `parquet:"id"`
	Text   string    `parquet:"text"`
	Label  string    `parquet:"label"`
	Vector []float32 `parquet:"vector,list"`
}

// ExportParquet writes the embedded dataset for downstream analysis.
// Items without vectors export an empty vector column.
func (r *Repository) ExportParquet(path string, items []domain.Item) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[parquetRow](f)
	rows := make([]parquetRow, len(items))
	for i, it := range items {
		rows[i] = parquetRow{
			ID:     it.ID,
			Text:   it.Text,
			Label:  it.Label,
			Vector: it.Vector,
		}
	}
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}

	r.logger.Info("Exported embedded dataset",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
	)
	return nil
}
