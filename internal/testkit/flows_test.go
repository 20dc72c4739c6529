package testkit

import (
	"context"
	"path/filepath"
	"testing"

	"flowval/adapters/csvgrid"
	"flowval/domain/flow"
	"flowval/domain/site"
)

func TestFlowGenerator_Deterministic(t *testing.T) {
	a := NewFlowGenerator(DefaultFlowConfig()).Historical(3)
	b := NewFlowGenerator(DefaultFlowConfig()).Historical(3)

	if a.Rows() != 3 || a.Cols() != flow.WeeksPerYear {
		t.Fatalf("Expected 3x52 grid, got %dx%d", a.Rows(), a.Cols())
	}
	for i, v := range a.Flatten() {
		if v <= 0 {
			t.Fatalf("Flow %d is not positive: %v", i, v)
		}
		if v != b.Flatten()[i] {
			t.Fatalf("Same seed produced different flow at %d", i)
		}
	}
}

func TestFlowGenerator_Ensemble(t *testing.T) {
	e := NewFlowGenerator(DefaultFlowConfig()).Ensemble(4, 2)
	r, y, w := e.Dims()
	if r != 4 || y != 2 || w != flow.WeeksPerYear {
		t.Errorf("Expected (4, 2, 52), got (%d, %d, %d)", r, y, w)
	}
}

func TestWriteStudy_ReadBack(t *testing.T) {
	catalog := site.Catalog{{Key: "trainingAlphaInflow"}, {Key: "trainingBetaInflow"}}
	for _, compress := range []bool{false, true} {
		root := t.TempDir()
		study, err := WriteStudy(root, StudyConfig{
			Catalog:          catalog,
			HistoricalYears:  2,
			Realizations:     3,
			EnsembleYears:    2,
			HistoricalSuffix: ".csv",
			SyntheticSuffix:  "_SYN01.csv",
			EnsembleSuffix:   "_SYN60.csv",
			Compress:         compress,
			Flow:             DefaultFlowConfig(),
		})
		if err != nil {
			t.Fatalf("WriteStudy failed: %v", err)
		}
		if len(study.Files) != 3*len(catalog) {
			t.Fatalf("Expected %d files, got %d", 3*len(catalog), len(study.Files))
		}

		path, err := csvgrid.Resolve(study.SyntheticDir, "trainingBetaInflow", "_SYN60.csv")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if compress && filepath.Ext(path) != ".gz" {
			t.Errorf("Expected compressed file, got %s", path)
		}
		grid, err := csvgrid.NewReader(nil).ReadGrid(context.Background(), path)
		if err != nil {
			t.Fatalf("ReadGrid failed: %v", err)
		}
		if grid.Rows() != 3 || grid.Cols() != 2*flow.WeeksPerYear {
			t.Errorf("Expected 3x104 ensemble, got %dx%d", grid.Rows(), grid.Cols())
		}
	}
}
