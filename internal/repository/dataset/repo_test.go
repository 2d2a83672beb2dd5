package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/curatehq/labelsmith/internal/domain"
)

var happySchema = Schema{
	IDColumn:    "hmid",
	TextColumn:  "cleaned_hm",
	LabelColumn: "ground_truth_category",
	Labels:      []string{"achievement", "affection", "bonding", "leisure", "nature"},
}

func newRepo(t *testing.T, schema Schema) *Repository {
	t.Helper()
	r, err := New(schema, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_CSV(t *testing.T) {
	path := writeFile(t, "moments.csv",
		"hmid,cleaned_hm,ground_truth_category\n"+
			"m1,went hiking in the hills,nature\n"+
			"m2,dinner with my brother,\n")

	items, err := newRepo(t, happySchema).Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != "m1" || items[0].Label != "nature" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].HasLabel() {
		t.Errorf("items[1] should be unlabeled, got %q", items[1].Label)
	}
}

func TestLoad_TSV(t *testing.T) {
	path := writeFile(t, "moments.tsv",
		"hmid\tcleaned_hm\tground_truth_category\n"+
			"m1\twent hiking, then a nap\tnature\n")

	items, err := newRepo(t, happySchema).Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if items[0].Text != "went hiking, then a nap" {
		t.Errorf("text = %q", items[0].Text)
	}
}

func TestLoad_SchemaErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    error
	}{
		{
			"missing text column",
			"hmid,category\nm1,nature\n",
			domain.ErrInvalidSchema,
		},
		{
			"label outside vocabulary",
			"hmid,cleaned_hm,ground_truth_category\nm1,slept all day,sleeping\n",
			domain.ErrInvalidSchema,
		},
		{
			"empty id",
			"hmid,cleaned_hm,ground_truth_category\n,missing id,nature\n",
			domain.ErrInvalidSchema,
		},
		{
			"duplicate id",
			"hmid,cleaned_hm,ground_truth_category\nm1,a,nature\nm1,b,nature\n",
			domain.ErrAlreadyExists,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, "bad.csv", tc.content)
			if _, err := newRepo(t, happySchema).Load(path); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestWriteSelectionCSV(t *testing.T) {
	pool, err := domain.NewPool([]domain.Item{
		{ID: "m1", Text: "went hiking", Label: "nature"},
		{ID: "m2", Text: "dinner with friends", Label: "bonding"},
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	path := filepath.Join(t.TempDir(), "selection.csv")
	repo := newRepo(t, happySchema)
	if err := repo.WriteSelectionCSV(path, pool, domain.Selection{IDs: []string{"m2", "m1"}}); err != nil {
		t.Fatalf("WriteSelectionCSV: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[1][0] != "m2" || rows[2][0] != "m1" {
		t.Errorf("selection order not preserved: %v", rows)
	}

	err = repo.WriteSelectionCSV(path, pool, domain.Selection{IDs: []string{"missing"}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteIssuesCSV(t *testing.T) {
	pool, err := domain.NewPool([]domain.Item{
		{ID: "m1", Text: "went hiking", Label: "bonding"},
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	issues := []domain.LabelIssue{
		{ItemID: "m1", SuggestedLabel: "nature", Margin: -0.42},
	}

	path := filepath.Join(t.TempDir(), "issues.csv")
	repo := newRepo(t, happySchema)
	if err := repo.WriteIssuesCSV(path, pool, issues); err != nil {
		t.Fatalf("WriteIssuesCSV: %v", err)
	}

	rows := readCSV(t, path)
	want := []string{"m1", "went hiking", "bonding", "nature", "-0.420000"}
	for i, cell := range want {
		if rows[1][i] != cell {
			t.Errorf("cell %d = %q, want %q", i, rows[1][i], cell)
		}
	}

	err = repo.WriteIssuesCSV(path, pool, []domain.LabelIssue{{ItemID: "missing"}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteScatterJSON(t *testing.T) {
	items := []domain.Item{
		{ID: "m1", Text: "went hiking", Label: "nature", Coords: []float64{0.5, -1.5}},
	}

	path := filepath.Join(t.TempDir(), "scatter.json")
	if err := newRepo(t, happySchema).WriteScatterJSON(path, items); err != nil {
		t.Fatalf("WriteScatterJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var points []ScatterPoint
	if err := json.Unmarshal(data, &points); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(points) != 1 || points[0].X != 0.5 || points[0].Y != -1.5 {
		t.Errorf("points = %+v", points)
	}

	err = newRepo(t, happySchema).WriteScatterJSON(path, []domain.Item{{ID: "m2"}})
	if !errors.Is(err, domain.ErrReduction) {
		t.Fatalf("expected ErrReduction for missing coords, got %v", err)
	}
}

func TestExportParquet(t *testing.T) {
	items := []domain.Item{
		{ID: "m1", Text: "went hiking", Label: "nature", Vector: []float32{0.1, 0.2}},
		{ID: "m2", Text: "dinner with friends", Label: "bonding", Vector: []float32{0.3, 0.4}},
	}

	path := filepath.Join(t.TempDir(), "dataset.parquet")
	if err := newRepo(t, happySchema).ExportParquet(path, items); err != nil {
		t.Fatalf("ExportParquet: %v", err)
	}

	rows, err := parquet.ReadFile[parquetRow](path)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].ID != "m1" || rows[0].Label != "nature" || len(rows[0].Vector) != 2 {
		t.Errorf("rows[0] = %+v", rows[0])
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return rows
}
