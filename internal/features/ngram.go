package features

import "math"

// ngramStats summarizes a sliding-window byte n-gram scan into a fixed
// number of statistics, so the schema width stays constant regardless of
// buffer size or n-gram vocabulary.
type ngramStats struct {
	DistinctRatio float64 // distinct n-grams / total n-grams
	TopRatio      float64 // frequency of the most common n-gram / total
	Mean          float64 // mean n-gram count
	Std           float64 // standard deviation of n-gram counts
}

func extractNGramStats(buf []byte, size int) ngramStats {
	if size <= 0 || len(buf) < size {
		return ngramStats{}
	}

	counts := make(map[string]int)
	total := len(buf) - size + 1
	for i := 0; i < total; i++ {
		counts[string(buf[i:i+size])]++
	}

	var sum, sumSq float64
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
		sum += float64(c)
		sumSq += float64(c) * float64(c)
	}

	n := float64(len(counts))
	mean := sum / n
	variance := sumSq/n - mean*mean

	s := ngramStats{
		DistinctRatio: n / float64(total),
		TopRatio:      float64(max) / float64(total),
		Mean:          mean,
	}
	if variance > 0 {
		s.Std = math.Sqrt(variance)
	}
	return s
}

// countRepeatedSequences counts fixed-length chunks seen at least
// minRepeats times, a cheap packing/obfuscation indicator.
func countRepeatedSequences(buf []byte, chunkLen, minRepeats int) int {
	if chunkLen <= 0 || len(buf) < chunkLen {
		return 0
	}

	seen := make(map[string]int)
	count := 0
	for i := 0; i+chunkLen <= len(buf); i += chunkLen {
		key := string(buf[i : i+chunkLen])
		seen[key]++
		if seen[key] == minRepeats {
			count++
		}
	}
	return count
}
