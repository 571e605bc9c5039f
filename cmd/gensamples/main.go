// Package main generates a synthetic labeled corpus for exercising the
// training pipeline without distributing real malware: high-entropy
// MZ-prefixed blobs stand in for packed executables, printable text files
// for benign content.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/cheggaaa/pb/v3"
	"github.com/rs/zerolog/log"
)

type args struct {
	Out   string `arg:"required" help:"output directory (malicious/ and benign/ are created under it)"`
	Count int    `arg:"--count" default:"50" help:"samples per class"`
	Size  int    `arg:"--size" default:"8192" help:"approximate sample size in bytes"`
	Seed  int64  `arg:"--seed" default:"1" help:"generator seed"`
}

func (args) Description() string {
	return `Generate a synthetic labeled corpus for pipeline testing.`
}

func main() {
	var a args
	arg.MustParse(&a)

	rng := rand.New(rand.NewSource(a.Seed))
	malDir := filepath.Join(a.Out, "malicious")
	benDir := filepath.Join(a.Out, "benign")
	for _, dir := range []string{malDir, benDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("create output directory")
		}
	}

	bar := pb.StartNew(2 * a.Count)
	for i := 0; i < a.Count; i++ {
		malPath := filepath.Join(malDir, fmt.Sprintf("sample-%04d.bin", i))
		if err := os.WriteFile(malPath, packedBlob(rng, a.Size), 0o600); err != nil {
			log.Fatal().Err(err).Str("path", malPath).Msg("write sample")
		}
		bar.Increment()

		benPath := filepath.Join(benDir, fmt.Sprintf("sample-%04d.bin", i))
		if err := os.WriteFile(benPath, textBlob(rng, a.Size), 0o600); err != nil {
			log.Fatal().Err(err).Str("path", benPath).Msg("write sample")
		}
		bar.Increment()
	}
	bar.Finish()

	log.Info().Int("per_class", a.Count).Str("out", a.Out).Msg("corpus generated")
}

// packedBlob fakes a packed executable: an MZ header followed by
// uniformly random bytes, which drives entropy toward 8 bits per byte.
func packedBlob(rng *rand.Rand, size int) []byte {
	data := make([]byte, size)
	rng.Read(data)
	copy(data, []byte{'M', 'Z'})
	return data
}

// textBlob fakes benign content: repetitive printable configuration text
// with low entropy and a heavy printable-byte ratio.
func textBlob(rng *rand.Rand, size int) []byte {
	var sb strings.Builder
	keys := []string{"interval", "endpoint", "retries", "verbose", "cache", "workers"}
	for sb.Len() < size {
		key := keys[rng.Intn(len(keys))]
		fmt.Fprintf(&sb, "%s_%d = %d\n", key, rng.Intn(100), rng.Intn(10000))
	}
	return []byte(sb.String()[:size])
}
