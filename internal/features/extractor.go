// Package features converts raw binary buffers into fixed-schema feature
// records for malware classification. It combines whole-buffer and windowed
// Shannon entropy, magic-number signature detection, executable-container
// structural parsing, byte-histogram statistics and n-gram summaries.
//
// Extraction is a pure function of the buffer: an Extractor carries only
// immutable configuration and is safe for concurrent use.
package features

import "math"

// SchemaVersion identifies the feature schema. It must change whenever a
// feature is added, removed or renamed, so persisted pipelines trained on a
// different schema are rejected instead of silently reindexed.
const SchemaVersion = 1

// StructuralSentinel fills the structural columns when the buffer is not a
// parseable executable container or structural parsing is disabled.
const StructuralSentinel = -1

// Feature column names, in schema order.
const (
	FeatFileSize           = "file_size"
	FeatEntropy            = "entropy"
	FeatMeanByte           = "mean_byte"
	FeatStdByte            = "std_byte"
	FeatMinByte            = "min_byte"
	FeatMaxByte            = "max_byte"
	FeatUniqueBytes        = "unique_bytes"
	FeatUniqueRatio        = "unique_ratio"
	FeatNullCount          = "null_count"
	FeatNullRatio          = "null_ratio"
	FeatPrintableRatio     = "printable_ratio"
	FeatHighByteRatio      = "high_byte_ratio"
	FeatHighEntropyWindows = "high_entropy_windows"
	FeatWindowEntropyMean  = "window_entropy_mean"
	FeatWindowEntropyMax   = "window_entropy_max"
	FeatRepeatedSequences  = "repeated_sequences"
	FeatBigramDistinct     = "bigram_distinct_ratio"
	FeatBigramTop          = "bigram_top_ratio"
	FeatBigramMean         = "bigram_mean"
	FeatBigramStd          = "bigram_std"
	FeatSectionCount       = "section_count"
	FeatImportCount        = "import_count"
	FeatExportCount        = "export_count"
	FeatHasDebug           = "has_debug"
	FeatPackedRatio        = "packed_ratio"
	FeatStructAvailable    = "structural_available"
)

var schemaNames = []string{
	FeatFileSize,
	FeatEntropy,
	FeatMeanByte,
	FeatStdByte,
	FeatMinByte,
	FeatMaxByte,
	FeatUniqueBytes,
	FeatUniqueRatio,
	FeatNullCount,
	FeatNullRatio,
	FeatPrintableRatio,
	FeatHighByteRatio,
	FeatHighEntropyWindows,
	FeatWindowEntropyMean,
	FeatWindowEntropyMax,
	FeatRepeatedSequences,
	FeatBigramDistinct,
	FeatBigramTop,
	FeatBigramMean,
	FeatBigramStd,
	FeatSectionCount,
	FeatImportCount,
	FeatExportCount,
	FeatHasDebug,
	FeatPackedRatio,
	FeatStructAvailable,
}

// Names returns the ordered feature schema. The returned slice is a copy.
func Names() []string {
	out := make([]string, len(schemaNames))
	copy(out, schemaNames)
	return out
}

// Record is one extracted feature record: every schema name maps to a
// numeric value, plus the detected container format as the single
// categorical feature. A Record always carries the complete schema.
type Record struct {
	Values map[string]float64 `json:"values"`
	Format string             `json:"format"`
}

// Vector returns the numeric values in schema order.
func (r Record) Vector() []float64 {
	out := make([]float64, len(schemaNames))
	for i, name := range schemaNames {
		out[i] = r.Values[name]
	}
	return out
}

// Options configures an Extractor. Zero-value fields take defaults.
type Options struct {
	// NGramSize is the sliding-window n-gram width (default 2, bigrams).
	NGramSize int
	// Signatures overrides the magic-number table (default
	// DefaultSignatures). Passed explicitly so tests can substitute
	// tables without cross-test interference.
	Signatures SignatureTable
	// Structural overrides the container parser (default ExeParser).
	Structural StructuralParser
}

// Extractor turns byte buffers into feature records.
type Extractor struct {
	ngramSize  int
	signatures SignatureTable
	structural StructuralParser
}

// NewExtractor builds an extractor from opts.
func NewExtractor(opts Options) *Extractor {
	e := &Extractor{
		ngramSize:  opts.NGramSize,
		signatures: opts.Signatures,
		structural: opts.Structural,
	}
	if e.ngramSize <= 0 {
		e.ngramSize = 2
	}
	if e.signatures == nil {
		e.signatures = DefaultSignatures()
	}
	if e.structural == nil {
		e.structural = ExeParser{}
	}
	return e
}

// StructuralCapable reports whether structural parsing is enabled. When
// false the structural columns carry the sentinel for every record in the
// batch and are non-discriminative.
func (e *Extractor) StructuralCapable() bool {
	return e.structural.Available()
}

// ExtractAll produces the complete feature record for buf. It never fails:
// an empty buffer yields a record with entropy 0 and all ratios 0, and a
// buffer that defeats the structural parser yields sentineled structural
// columns.
func (e *Extractor) ExtractAll(buf []byte) Record {
	r := Record{
		Values: make(map[string]float64, len(schemaNames)),
		Format: e.signatures.Detect(buf),
	}
	for _, name := range schemaNames {
		r.Values[name] = 0
	}

	r.Values[FeatFileSize] = float64(len(buf))
	e.fillStructural(&r, buf)

	if len(buf) == 0 {
		return r
	}

	e.fillByteStats(&r, buf)

	r.Values[FeatEntropy] = Entropy(buf)
	wins := windowEntropies(buf, entropyWindowSize)
	if len(wins) > 0 {
		r.Values[FeatHighEntropyWindows] = float64(countHighEntropy(wins, highEntropyThreshold))
		var sum, max float64
		for _, w := range wins {
			sum += w
			if w > max {
				max = w
			}
		}
		r.Values[FeatWindowEntropyMean] = sum / float64(len(wins))
		r.Values[FeatWindowEntropyMax] = max
	}

	r.Values[FeatRepeatedSequences] = float64(countRepeatedSequences(buf, 4, 3))

	ng := extractNGramStats(buf, e.ngramSize)
	r.Values[FeatBigramDistinct] = ng.DistinctRatio
	r.Values[FeatBigramTop] = ng.TopRatio
	r.Values[FeatBigramMean] = ng.Mean
	r.Values[FeatBigramStd] = ng.Std

	return r
}

// fillByteStats computes the single-pass histogram statistics.
func (e *Extractor) fillByteStats(r *Record, buf []byte) {
	var counts [256]int
	for _, b := range buf {
		counts[b]++
	}

	n := float64(len(buf))
	var sum, sumSq float64
	minByte, maxByte := 255, 0
	unique := 0
	printable := 0
	high := 0
	for v, c := range counts {
		if c == 0 {
			continue
		}
		unique++
		if v < minByte {
			minByte = v
		}
		if v > maxByte {
			maxByte = v
		}
		sum += float64(v) * float64(c)
		sumSq += float64(v) * float64(v) * float64(c)
		if v >= 0x20 && v <= 0x7e {
			printable += c
		}
		if v > 127 {
			high += c
		}
	}

	mean := sum / n
	variance := sumSq/n - mean*mean

	r.Values[FeatMeanByte] = mean
	if variance > 0 {
		r.Values[FeatStdByte] = math.Sqrt(variance)
	}
	r.Values[FeatMinByte] = float64(minByte)
	r.Values[FeatMaxByte] = float64(maxByte)
	r.Values[FeatUniqueBytes] = float64(unique)
	r.Values[FeatUniqueRatio] = float64(unique) / 256.0
	r.Values[FeatNullCount] = float64(counts[0])
	r.Values[FeatNullRatio] = float64(counts[0]) / n
	r.Values[FeatPrintableRatio] = float64(printable) / n
	r.Values[FeatHighByteRatio] = float64(high) / n
}

// fillStructural populates the container columns, sentineling them when
// the parser is absent or the buffer is not a recognized container.
func (e *Extractor) fillStructural(r *Record, buf []byte) {
	info, ok := e.structural.Parse(buf)
	if !e.structural.Available() || !ok {
		r.Values[FeatSectionCount] = StructuralSentinel
		r.Values[FeatImportCount] = StructuralSentinel
		r.Values[FeatExportCount] = StructuralSentinel
		r.Values[FeatHasDebug] = StructuralSentinel
		r.Values[FeatPackedRatio] = StructuralSentinel
		r.Values[FeatStructAvailable] = 0
		return
	}

	r.Values[FeatSectionCount] = float64(info.SectionCount)
	r.Values[FeatImportCount] = float64(info.ImportCount)
	r.Values[FeatExportCount] = float64(info.ExportCount)
	if info.HasDebug {
		r.Values[FeatHasDebug] = 1
	}
	r.Values[FeatPackedRatio] = info.PackedRatio()
	r.Values[FeatStructAvailable] = 1
}
