package features

import (
	"math/rand"
	"testing"
)

func TestEntropy_EmptyBuffer(t *testing.T) {
	t.Parallel()

	if got := Entropy(nil); got != 0 {
		t.Errorf("Entropy(nil) = %f, want 0", got)
	}
	if got := Entropy([]byte{}); got != 0 {
		t.Errorf("Entropy(empty) = %f, want 0", got)
	}
}

func TestEntropy_RepeatedByte(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = 0xAB
	}
	if got := Entropy(buf); got != 0 {
		t.Errorf("Entropy of single repeated byte = %f, want 0", got)
	}
}

func TestEntropy_Bounds(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		buf := make([]byte, 1+rng.Intn(2048))
		rng.Read(buf)
		h := Entropy(buf)
		if h < 0 || h > 8 {
			t.Fatalf("entropy %f outside [0, 8] for %d-byte buffer", h, len(buf))
		}
	}
}

func TestEntropy_UniformRandomApproaches8(t *testing.T) {
	t.Parallel()

	// A long buffer cycling through every byte value has exactly 8 bits
	// of entropy per byte.
	buf := make([]byte, 256*64)
	for i := range buf {
		buf[i] = byte(i % 256)
	}
	if got := Entropy(buf); got < 7.999 {
		t.Errorf("uniform buffer entropy = %f, want ~8", got)
	}

	// A large random buffer should get close.
	rng := rand.New(rand.NewSource(42))
	rnd := make([]byte, 1<<16)
	rng.Read(rnd)
	if got := Entropy(rnd); got < 7.9 {
		t.Errorf("random buffer entropy = %f, want > 7.9", got)
	}
}

func TestWindowEntropies(t *testing.T) {
	t.Parallel()

	buf := make([]byte, entropyWindowSize*3+17)
	wins := windowEntropies(buf, entropyWindowSize)
	if len(wins) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(wins))
	}
	for i, w := range wins {
		if w != 0 {
			t.Errorf("window %d: zero buffer should have entropy 0, got %f", i, w)
		}
	}

	if wins := windowEntropies(buf[:10], entropyWindowSize); wins != nil {
		t.Errorf("buffer shorter than window should yield no windows, got %d", len(wins))
	}
}

func TestCountHighEntropy(t *testing.T) {
	t.Parallel()

	got := countHighEntropy([]float64{7.9, 7.2, 7.6, 0}, highEntropyThreshold)
	if got != 2 {
		t.Errorf("countHighEntropy = %d, want 2", got)
	}
}
