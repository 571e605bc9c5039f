package features

import "math"

const (
	// entropyWindowSize is the window used for sectioned entropy scans.
	entropyWindowSize = 256
	// highEntropyThreshold marks a window as likely encrypted or compressed.
	highEntropyThreshold = 7.5
)

// Entropy returns the Shannon entropy of buf in bits per byte.
// The result is always within [0, 8]; an empty buffer has entropy 0.
func Entropy(buf []byte) float64 {
	if len(buf) == 0 {
		return 0
	}

	var counts [256]int
	for _, b := range buf {
		counts[b]++
	}

	n := float64(len(buf))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// windowEntropies computes the entropy of each full fixed-size window of buf.
// Trailing bytes that do not fill a window are ignored, matching the
// sectioned scan the rest of the extractor expects.
func windowEntropies(buf []byte, window int) []float64 {
	if window <= 0 || len(buf) < window {
		return nil
	}

	out := make([]float64, 0, len(buf)/window)
	for i := 0; i+window <= len(buf); i += window {
		out = append(out, Entropy(buf[i:i+window]))
	}
	return out
}

// countHighEntropy returns how many of the given entropies exceed threshold.
func countHighEntropy(entropies []float64, threshold float64) int {
	n := 0
	for _, e := range entropies {
		if e > threshold {
			n++
		}
	}
	return n
}
