package store

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"binsift/internal/features"
	"binsift/internal/ml"
	"binsift/internal/pipeline"
	"binsift/internal/preprocess"
)

// testPipeline builds a small but fully populated artifact. The model is a
// hand-weighted logistic regression so round-trip predictions are checkable
// without a training run.
func testPipeline(t *testing.T, id string, createdAt time.Time) *pipeline.TrainedPipeline {
	t.Helper()

	extractor := features.NewExtractor(features.Options{})
	records := []features.Record{
		extractor.ExtractAll([]byte("plain text sample, nothing unusual")),
		extractor.ExtractAll([]byte{'M', 'Z', 0x90, 0x00, 0x03, 0xff, 0xee, 0xdd}),
	}
	ft, err := preprocess.Fit(records, []int{0, 1})
	if err != nil {
		t.Fatalf("preprocess.Fit: %v", err)
	}

	model := ml.NewLogisticRegression()
	model.Weights = make([]float64, ft.Columns())
	model.Weights[0] = 1.5
	model.Weights[len(model.Weights)-1] = -0.75
	model.Bias = 0.25

	return &pipeline.TrainedPipeline{
		ID:            id,
		ModelName:     model.Name(),
		Model:         model,
		Transform:     ft,
		FeatureNames:  features.Names(),
		SchemaVersion: features.SchemaVersion,
		Eval:          ml.Evaluation{Accuracy: 0.95, Precision: 0.9, Recall: 1.0, F1: 0.947, Samples: 20},
		Ranking: []pipeline.CandidateSummary{
			{Name: model.Name(), Accuracy: 0.95, F1: 0.947},
			{Name: "KNN", Failed: true, FailReason: "fit: ragged row"},
		},
		TrainSamples: 100,
		CreatedAt:    createdAt,
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	tp := testPipeline(t, "p-1", time.Now().UTC())

	if err := s.Save(tp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load("p-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.ID != tp.ID || got.ModelName != tp.ModelName {
		t.Errorf("identity changed: got %s/%s, want %s/%s", got.ID, got.ModelName, tp.ID, tp.ModelName)
	}
	if got.SchemaVersion != tp.SchemaVersion {
		t.Errorf("schema version = %d, want %d", got.SchemaVersion, tp.SchemaVersion)
	}
	if len(got.FeatureNames) != len(tp.FeatureNames) {
		t.Fatalf("feature names = %d, want %d", len(got.FeatureNames), len(tp.FeatureNames))
	}
	if got.Eval != tp.Eval {
		t.Errorf("evaluation changed: got %+v, want %+v", got.Eval, tp.Eval)
	}
	if len(got.Ranking) != 2 || !got.Ranking[1].Failed {
		t.Errorf("ranking changed: %+v", got.Ranking)
	}

	// The restored model must predict exactly like the original.
	x := make([]float64, tp.Transform.Columns())
	for i := range x {
		x[i] = float64(i%3) - 1
	}
	want, err := tp.Model.PredictProba(x)
	if err != nil {
		t.Fatalf("original PredictProba: %v", err)
	}
	have, err := got.Model.PredictProba(x)
	if err != nil {
		t.Fatalf("restored PredictProba: %v", err)
	}
	for i := range want {
		if math.Abs(want[i]-have[i]) > 1e-12 {
			t.Errorf("proba[%d] = %v after round trip, want %v", i, have[i], want[i])
		}
	}

	// Transform statistics survive too.
	for j, scale := range tp.Transform.Scales {
		if got.Transform.Scales[j] != scale {
			t.Errorf("scale[%d] = %v, want %v", j, got.Transform.Scales[j], scale)
		}
	}
}

func TestSaveSetsActive(t *testing.T) {
	s := openTestStore(t)

	first := testPipeline(t, "p-1", time.Now().UTC().Add(-time.Hour))
	second := testPipeline(t, "p-2", time.Now().UTC())
	if err := s.Save(first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if err := s.Save(second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	active, err := s.LoadActive()
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if active.ID != "p-2" {
		t.Errorf("active = %s, want p-2 (most recent save)", active.ID)
	}

	if err := s.SetActive("p-1"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	active, err = s.LoadActive()
	if err != nil {
		t.Fatalf("LoadActive after SetActive: %v", err)
	}
	if active.ID != "p-1" {
		t.Errorf("active = %s, want p-1", active.ID)
	}

	if err := s.SetActive("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetActive on missing ID: err = %v, want ErrNotFound", err)
	}
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing: err = %v, want ErrNotFound", err)
	}
	if _, err := s.LoadActive(); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadActive on empty store: err = %v, want ErrNotFound", err)
	}
}

func TestSaveRejectsIncomplete(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(nil); err == nil {
		t.Error("Save accepted nil pipeline")
	}
	if err := s.Save(&pipeline.TrainedPipeline{}); err == nil {
		t.Error("Save accepted pipeline without ID")
	}
}

func TestRejectsIncompatibleVersion(t *testing.T) {
	s := openTestStore(t)
	tp := testPipeline(t, "p-future", time.Now().UTC())

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(bundle{Version: artifactVersion + 1, Pipeline: tp}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(artifactsBucket)).Put([]byte(tp.ID), buf.Bytes())
	})
	if err != nil {
		t.Fatalf("seed future artifact: %v", err)
	}

	if _, err := s.Load(tp.ID); !errors.Is(err, ErrIncompatibleArtifact) {
		t.Errorf("Load future artifact: err = %v, want ErrIncompatibleArtifact", err)
	}
}

func TestRejectsCorruptArtifact(t *testing.T) {
	s := openTestStore(t)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(artifactsBucket)).Put([]byte("junk"), []byte("not a gob stream"))
	})
	if err != nil {
		t.Fatalf("seed corrupt artifact: %v", err)
	}
	if _, err := s.Load("junk"); !errors.Is(err, ErrIncompatibleArtifact) {
		t.Errorf("Load corrupt artifact: err = %v, want ErrIncompatibleArtifact", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()
	for i, id := range []string{"p-old", "p-mid", "p-new"} {
		tp := testPipeline(t, id, base.Add(time.Duration(i)*time.Minute))
		if err := s.Save(tp); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	infos, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(infos))
	}
	for i, want := range []string{"p-new", "p-mid", "p-old"} {
		if infos[i].ID != want {
			t.Errorf("infos[%d] = %s, want %s", i, infos[i].ID, want)
		}
	}
	if !infos[0].Active {
		t.Error("most recently saved artifact is not marked active")
	}
	if infos[1].Active || infos[2].Active {
		t.Error("more than one artifact marked active")
	}
	if infos[0].ModelName == "" || infos[0].TrainSamples != 100 {
		t.Errorf("index entry incomplete: %+v", infos[0])
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	tp := testPipeline(t, "p-1", time.Now().UTC())
	if err := s.Save(tp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := s.Delete("p-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load("p-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete: err = %v, want ErrNotFound", err)
	}
	if _, err := s.LoadActive(); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting the active artifact should clear the pointer, got %v", err)
	}
	infos, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("List returned %d entries after delete, want 0", len(infos))
	}

	if err := s.Delete("p-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing: err = %v, want ErrNotFound", err)
	}
}
