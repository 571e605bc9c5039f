// Package store persists trained pipelines to BoltDB so a pipeline trained
// once can serve predictions across process restarts.
//
// Each artifact is a gob-encoded bundle keyed by pipeline ID, with a JSON
// index entry for cheap listing and an "active" pointer naming the pipeline
// inference should use. Saving a pipeline writes all three in one
// transaction, so the active pointer never references a half-written
// artifact.
package store

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"binsift/internal/ml"
	"binsift/internal/pipeline"
)

const (
	artifactsBucket = "artifacts" // pipeline ID -> gob bundle
	indexBucket     = "index"     // pipeline ID -> JSON Info
	metaBucket      = "meta"      // active pointer

	activeKey = "active"

	// artifactVersion gates the on-disk layout. Bump it whenever the
	// bundle encoding changes incompatibly; older artifacts are then
	// rejected instead of being misread.
	artifactVersion = 1
)

var (
	// ErrNotFound is returned when no artifact exists under the requested ID,
	// or when no active pipeline has been set.
	ErrNotFound = errors.New("store: artifact not found")

	// ErrIncompatibleArtifact is returned when a stored artifact was written
	// by an incompatible build and cannot be loaded.
	ErrIncompatibleArtifact = errors.New("store: incompatible artifact")
)

func init() {
	// The bundle carries the selected model behind an interface; gob needs
	// every concrete classifier registered up front.
	gob.Register(&ml.RandomForest{})
	gob.Register(&ml.DecisionTree{})
	gob.Register(&ml.LogisticRegression{})
	gob.Register(&ml.GradientBoosting{})
	gob.Register(&ml.KNN{})
	gob.Register(&ml.LinearSVM{})
}

// bundle is the on-disk envelope around a trained pipeline.
type bundle struct {
	Version  int
	Pipeline *pipeline.TrainedPipeline
}

// Info is the listing view of one stored artifact.
type Info struct {
	ID           string    `json:"id"`
	ModelName    string    `json:"model_name"`
	Accuracy     float64   `json:"accuracy"`
	F1           float64   `json:"f1"`
	TrainSamples int       `json:"train_samples"`
	CreatedAt    time.Time `json:"created_at"`
	Active       bool      `json:"active"`
}

// Store provides persistent storage for trained pipeline artifacts.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the artifact database under dataPath.
func Open(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "binsift-models.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{artifactsBucket, indexBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save persists a trained pipeline and makes it the active one. The
// artifact, its index entry and the active pointer move in a single
// transaction.
func (s *Store) Save(tp *pipeline.TrainedPipeline) error {
	if tp == nil || tp.ID == "" {
		return fmt.Errorf("store: pipeline has no ID")
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(bundle{Version: artifactVersion, Pipeline: tp}); err != nil {
		return fmt.Errorf("encode artifact %s: %w", tp.ID, err)
	}

	info, err := json.Marshal(Info{
		ID:           tp.ID,
		ModelName:    tp.ModelName,
		Accuracy:     tp.Eval.Accuracy,
		F1:           tp.Eval.F1,
		TrainSamples: tp.TrainSamples,
		CreatedAt:    tp.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode index entry %s: %w", tp.ID, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(artifactsBucket)).Put([]byte(tp.ID), buf.Bytes()); err != nil {
			return fmt.Errorf("put artifact %s: %w", tp.ID, err)
		}
		if err := tx.Bucket([]byte(indexBucket)).Put([]byte(tp.ID), info); err != nil {
			return fmt.Errorf("put index entry %s: %w", tp.ID, err)
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), []byte(tp.ID))
	})
}

// Load retrieves the artifact stored under id.
func (s *Store) Load(id string) (*pipeline.TrainedPipeline, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(artifactsBucket)).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decode(id, raw)
}

// LoadActive retrieves the artifact the active pointer names.
func (s *Store) LoadActive() (*pipeline.TrainedPipeline, error) {
	var id string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(metaBucket)).Get([]byte(activeKey))
		if v == nil {
			return fmt.Errorf("%w: no active pipeline", ErrNotFound)
		}
		id = string(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Load(id)
}

// SetActive repoints the active pointer to an existing artifact.
func (s *Store) SetActive(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(artifactsBucket)).Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), []byte(id))
	})
}

// Delete removes an artifact and its index entry. Deleting the active
// artifact clears the active pointer.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(artifactsBucket)).Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := tx.Bucket([]byte(artifactsBucket)).Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(indexBucket)).Delete([]byte(id)); err != nil {
			return err
		}
		meta := tx.Bucket([]byte(metaBucket))
		if string(meta.Get([]byte(activeKey))) == id {
			return meta.Delete([]byte(activeKey))
		}
		return nil
	})
}

// List returns the stored artifacts, newest first.
func (s *Store) List() ([]Info, error) {
	var infos []Info
	err := s.db.View(func(tx *bbolt.Tx) error {
		active := string(tx.Bucket([]byte(metaBucket)).Get([]byte(activeKey)))
		return tx.Bucket([]byte(indexBucket)).ForEach(func(k, v []byte) error {
			var info Info
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("decode index entry %s: %w", k, err)
			}
			info.Active = info.ID == active
			infos = append(infos, info)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// decode unwraps a stored bundle, rejecting artifacts from incompatible
// builds.
func decode(id string, raw []byte) (*pipeline.TrainedPipeline, error) {
	var b bundle
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIncompatibleArtifact, id, err)
	}
	if b.Version != artifactVersion {
		return nil, fmt.Errorf("%w: %s has version %d, this build reads %d",
			ErrIncompatibleArtifact, id, b.Version, artifactVersion)
	}
	if b.Pipeline == nil {
		return nil, fmt.Errorf("%w: %s has no pipeline payload", ErrIncompatibleArtifact, id)
	}
	return b.Pipeline, nil
}
