// Package loader reads binary samples from disk. It produces immutable
// Sample values carrying the raw bytes, two independent content hashes for
// integrity and dedup, and an optional ground-truth label.
//
// Directory loading is partial-failure tolerant: one unreadable file is
// recorded as a warning and skipped, never aborting the batch.
package loader

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Label values for Sample.Label.
const (
	LabelUnknown   = -1
	LabelBenign    = 0
	LabelMalicious = 1
)

// Sample is one loaded binary. Immutable once loaded; hashes are computed
// exactly once and are deterministic for identical content.
type Sample struct {
	Data   []byte
	Source string
	MD5    string
	SHA256 string
	Label  int
}

// Warning records a file that could not be loaded during a batch.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// Loader reads files into samples. MaxBytes, when positive, caps how many
// bytes are read per file; the hash still covers the bytes actually loaded.
type Loader struct {
	MaxBytes int
}

// LoadFile reads one file into a Sample with Label set to LabelUnknown.
func (l *Loader) LoadFile(path string) (Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sample{}, fmt.Errorf("load %s: %w", path, err)
	}
	if l.MaxBytes > 0 && len(data) > l.MaxBytes {
		data = data[:l.MaxBytes]
	}

	md5sum := md5.Sum(data)
	sha := sha256.Sum256(data)
	return Sample{
		Data:   data,
		Source: path,
		MD5:    hex.EncodeToString(md5sum[:]),
		SHA256: hex.EncodeToString(sha[:]),
		Label:  LabelUnknown,
	}, nil
}

// LoadDirectory walks dir recursively and loads every regular file whose
// extension is in the allow-list (case-insensitive, empty list = all
// files). Files that fail to read are skipped with a recorded warning.
func (l *Loader) LoadDirectory(dir string, extensions []string) ([]Sample, []Warning, error) {
	var samples []Sample
	var warnings []Warning

	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			warnings = append(warnings, Warning{Path: path, Err: err})
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		s, err := l.LoadFile(path)
		if err != nil {
			warnings = append(warnings, Warning{Path: path, Err: err})
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable file")
			return nil
		}
		samples = append(samples, s)
		return nil
	})
	if err != nil {
		return nil, warnings, fmt.Errorf("walk %s: %w", dir, err)
	}

	log.Info().Int("samples", len(samples)).Int("warnings", len(warnings)).
		Str("dir", dir).Msg("directory loaded")
	return samples, warnings, nil
}

// LoadLabeledDirectory loads dir and stamps every sample with label.
func (l *Loader) LoadLabeledDirectory(dir string, extensions []string, label int) ([]Sample, []Warning, error) {
	samples, warnings, err := l.LoadDirectory(dir, extensions)
	if err != nil {
		return nil, warnings, err
	}
	for i := range samples {
		samples[i].Label = label
	}
	return samples, warnings, nil
}
