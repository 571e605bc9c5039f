// Package main is the binsift command line interface: train a classifier
// panel on a labeled corpus, classify unknown binaries with the active
// model, inspect extracted features, and manage stored models.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/cheggaaa/pb/v3"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"binsift/internal/cfg"
	"binsift/internal/features"
	"binsift/internal/intel"
	"binsift/internal/loader"
	"binsift/internal/metrics"
	"binsift/internal/ml"
	"binsift/internal/pipeline"
	"binsift/internal/store"
)

type trainCmd struct {
	Malicious string `arg:"required" help:"directory of malicious samples"`
	Benign    string `arg:"required" help:"directory of benign samples"`
}

type predictCmd struct {
	Paths []string `arg:"positional,required" help:"files or directories to classify"`
	Model string   `arg:"--model" help:"pipeline ID to use instead of the active one"`
	Intel bool     `arg:"--intel" help:"cross-check verdicts against the intel service"`
}

type extractCmd struct {
	Paths []string `arg:"positional,required" help:"files to extract features from"`
}

type modelsCmd struct {
	Activate string `arg:"--activate" help:"make this pipeline ID the active one"`
	Delete   string `arg:"--delete" help:"delete this pipeline ID"`
}

type args struct {
	Train   *trainCmd   `arg:"subcommand:train" help:"train the model panel on a labeled corpus"`
	Predict *predictCmd `arg:"subcommand:predict" help:"classify binaries with a trained pipeline"`
	Extract *extractCmd `arg:"subcommand:extract" help:"print extracted features as JSON"`
	Models  *modelsCmd  `arg:"subcommand:models" help:"list and manage stored pipelines"`
	Serve   bool        `arg:"--serve-metrics" help:"expose Prometheus metrics while running"`
	Verbose bool        `arg:"-v,--verbose" help:"debug logging"`
}

func (args) Version() string {
	return "binsift 1.2.0"
}

func (args) Description() string {
	return `Static binary classification: entropy, byte statistics, structural and
n-gram features feeding an auto-trained model panel.`
}

func main() {
	// Optional .env for local development, same as production ignores it.
	_ = godotenv.Load()

	var a args
	p := arg.MustParse(&a)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if a.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	if a.Serve {
		startMetricsServer(ctx, settings)
	}

	switch {
	case a.Train != nil:
		err = runTrain(ctx, settings, m, a.Train)
	case a.Predict != nil:
		err = runPredict(ctx, settings, m, a.Predict)
	case a.Extract != nil:
		err = runExtract(settings, a.Extract)
	case a.Models != nil:
		err = runModels(settings, a.Models)
	default:
		p.WriteHelp(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		m.ErrorsTotal.Inc()
		log.Fatal().Err(err).Msg("command failed")
	}
}

// startMetricsServer starts the Prometheus metrics HTTP server.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func newOrchestrator(c cfg.Settings, m *metrics.Metrics) (*pipeline.Orchestrator, error) {
	panel := ml.DefaultPanel()
	if len(c.ModelPanel) > 0 {
		var err error
		panel, err = ml.PanelSubset(c.ModelPanel)
		if err != nil {
			return nil, err
		}
	}
	return pipeline.New(pipeline.Options{
		Extractor: features.NewExtractor(features.Options{NGramSize: c.NGramSize}),
		Workers:   c.Workers,
		CacheSize: c.CacheSize,
		Trainer: ml.Config{
			TaskType:        c.TaskType,
			Panel:           panel,
			HeldOutFraction: c.HeldOutFraction,
			PrimaryMetric:   c.PrimaryMetric,
			Seed:            c.Seed,
		},
		Metrics: metrics.NewTracker(m),
	})
}

func runTrain(ctx context.Context, c cfg.Settings, m *metrics.Metrics, cmd *trainCmd) error {
	l := &loader.Loader{MaxBytes: int(c.MaxFileBytes)}
	tracker := metrics.NewTracker(m)

	samples, warnings, err := loadLabeledCorpus(l, c, cmd.Malicious, cmd.Benign)
	if err != nil {
		return err
	}
	tracker.RecordLoad(len(samples), len(warnings), totalBytes(samples))
	for _, d := range pipeline.DiagnosticsFromWarnings(warnings) {
		log.Warn().Str("source", d.Source).Str("detail", d.Detail).Msg("sample skipped")
	}

	o, err := newOrchestrator(c, m)
	if err != nil {
		return err
	}
	tp, diags, err := o.Train(ctx, samples)
	if err != nil {
		return err
	}
	for _, d := range diags {
		log.Warn().Str("source", d.Source).Str("detail", d.Detail).Msg("training diagnostic")
	}

	failures := 0
	for _, cand := range tp.Ranking {
		entry := log.Info().Str("model", cand.Name)
		if cand.Failed {
			failures++
			log.Warn().Str("model", cand.Name).Str("reason", cand.FailReason).Msg("candidate failed")
			continue
		}
		entry.Float64("accuracy", cand.Accuracy).Float64("precision", cand.Precision).
			Float64("recall", cand.Recall).Float64("f1", cand.F1).
			Dur("train_time", cand.TrainTime).Msg("candidate evaluated")
	}
	tracker.RecordTrainingOutcome(tp.Eval.Accuracy, failures)

	s, err := store.Open(c.DataPath)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Save(tp); err != nil {
		return err
	}

	fmt.Printf("trained pipeline %s: %s (accuracy %.3f, f1 %.3f) on %d samples\n",
		tp.ID, tp.ModelName, tp.Eval.Accuracy, tp.Eval.F1, tp.TrainSamples)
	return nil
}

// loadLabeledCorpus reads both corpus halves with a progress bar over the
// two directory walks.
func loadLabeledCorpus(l *loader.Loader, c cfg.Settings, maliciousDir, benignDir string) ([]loader.Sample, []loader.Warning, error) {
	bar := pb.StartNew(2)
	defer bar.Finish()

	malicious, warnMal, err := l.LoadLabeledDirectory(maliciousDir, c.Extensions, loader.LabelMalicious)
	if err != nil {
		return nil, nil, err
	}
	bar.Increment()

	benign, warnBen, err := l.LoadLabeledDirectory(benignDir, c.Extensions, loader.LabelBenign)
	if err != nil {
		return nil, nil, err
	}
	bar.Increment()

	return append(malicious, benign...), append(warnMal, warnBen...), nil
}

func runPredict(ctx context.Context, c cfg.Settings, m *metrics.Metrics, cmd *predictCmd) error {
	s, err := store.Open(c.DataPath)
	if err != nil {
		return err
	}
	defer s.Close()

	var tp *pipeline.TrainedPipeline
	if cmd.Model != "" {
		tp, err = s.Load(cmd.Model)
	} else {
		tp, err = s.LoadActive()
	}
	if err != nil {
		return err
	}
	m.ModelAge.Set(time.Since(tp.CreatedAt).Seconds())

	l := &loader.Loader{MaxBytes: int(c.MaxFileBytes)}
	samples, warnings, err := loadPaths(l, c, cmd.Paths)
	if err != nil {
		return err
	}
	for _, d := range pipeline.DiagnosticsFromWarnings(warnings) {
		log.Warn().Str("source", d.Source).Str("detail", d.Detail).Msg("sample skipped")
	}
	if len(samples) == 0 {
		return fmt.Errorf("no readable samples under the given paths")
	}

	o, err := newOrchestrator(c, m)
	if err != nil {
		return err
	}
	predictions, _, err := o.Predict(ctx, tp, samples)
	if err != nil {
		return err
	}

	var ic *intel.Client
	if cmd.Intel {
		if c.IntelAPIKey == "" {
			return fmt.Errorf("intel cross-check requested but INTEL_API_KEY is not set")
		}
		ic = intel.NewClient(c.IntelAPIKey, c.IntelBaseURL, c.IntelTimeout)
	}

	for _, p := range predictions {
		verdict := "benign"
		if p.Label == loader.LabelMalicious {
			verdict = "malicious"
		}
		fmt.Printf("%s\t%s\t%.3f\t%s\n", p.Source, verdict, p.Confidence, p.SHA256)

		if ic != nil {
			reportAgreement(ctx, m, ic, p)
		}
	}
	return nil
}

func reportAgreement(ctx context.Context, m *metrics.Metrics, ic *intel.Client, p pipeline.Prediction) {
	m.IntelLookups.Inc()
	agree, err := ic.Agreement(ctx, p.SHA256, p.Label)
	switch {
	case errors.Is(err, intel.ErrNotFound):
		log.Debug().Str("sha256", p.SHA256).Msg("hash unknown to intel service")
	case err != nil:
		m.IntelErrors.Inc()
		log.Warn().Err(err).Str("source", p.Source).Msg("intel lookup failed")
	case !agree:
		log.Warn().Str("source", p.Source).Msg("intel verdict disagrees with local prediction")
	}
}

// loadPaths accepts a mix of files and directories.
func loadPaths(l *loader.Loader, c cfg.Settings, paths []string) ([]loader.Sample, []loader.Warning, error) {
	var samples []loader.Sample
	var warnings []loader.Warning
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			dirSamples, dirWarnings, err := l.LoadDirectory(path, c.Extensions)
			if err != nil {
				return nil, nil, err
			}
			samples = append(samples, dirSamples...)
			warnings = append(warnings, dirWarnings...)
			continue
		}
		s, err := l.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		samples = append(samples, s)
	}
	return samples, warnings, nil
}

func runExtract(c cfg.Settings, cmd *extractCmd) error {
	l := &loader.Loader{MaxBytes: int(c.MaxFileBytes)}
	extractor := features.NewExtractor(features.Options{NGramSize: c.NGramSize})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, path := range cmd.Paths {
		s, err := l.LoadFile(path)
		if err != nil {
			return err
		}
		r := extractor.ExtractAll(s.Data)
		out := struct {
			Source string             `json:"source"`
			SHA256 string             `json:"sha256"`
			MD5    string             `json:"md5"`
			Format string             `json:"format"`
			Values map[string]float64 `json:"features"`
		}{s.Source, s.SHA256, s.MD5, r.Format, r.Values}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func runModels(c cfg.Settings, cmd *modelsCmd) error {
	s, err := store.Open(c.DataPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if cmd.Activate != "" {
		if err := s.SetActive(cmd.Activate); err != nil {
			return err
		}
		fmt.Printf("activated %s\n", cmd.Activate)
		return nil
	}
	if cmd.Delete != "" {
		if err := s.Delete(cmd.Delete); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", cmd.Delete)
		return nil
	}

	infos, err := s.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no stored pipelines")
		return nil
	}
	for _, info := range infos {
		marker := " "
		if info.Active {
			marker = "*"
		}
		fmt.Printf("%s %s  %-20s acc=%.3f f1=%.3f samples=%d  %s\n",
			marker, info.ID, info.ModelName, info.Accuracy, info.F1,
			info.TrainSamples, info.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func totalBytes(samples []loader.Sample) int {
	n := 0
	for _, s := range samples {
		n += len(s.Data)
	}
	return n
}
