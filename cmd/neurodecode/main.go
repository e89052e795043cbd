package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"neurodecode/internal/cfg"
	"neurodecode/internal/classify"
	"neurodecode/internal/dataset"
	"neurodecode/internal/decode"
	"neurodecode/internal/metrics"
	"neurodecode/internal/voxel"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	if c.MetricsPort != 0 {
		startMetricsServer(ctx, c.MetricsPort)
	}

	switch os.Args[1] {
	case "classify":
		err = runClassify(c, mw)
	case "decode":
		err = runDecode(c, mw)
	case "fetch":
		err = runFetch(ctx, c, mw)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: neurodecode <classify|decode|fetch>")
	fmt.Fprintln(os.Stderr, "configuration comes from CONFIG_FILE or the environment; see internal/cfg")
}

func runClassify(c cfg.Settings, mw *metrics.Wrapper) error {
	if len(c.Masks) < 2 {
		return fmt.Errorf("classify needs at least two masks, got %d", len(c.Masks))
	}

	store, err := dataset.Open(c.DataPath)
	if err != nil {
		return err
	}
	defer store.Close()
	mw.DatasetStudiesSet(len(store.StudyIDs()))

	opts := classify.Options{
		Method:         c.Method,
		ClassWeight:    c.ClassWeight,
		Regularization: c.Regularization,
		Threshold:      c.Threshold,
		CrossVal:       classify.CrossVal{Name: c.CrossVal},
		Scoring:        c.Scoring,
		Output:         classify.Output(c.Output),
		Features:       c.Features,
		Metrics:        mw,
	}

	res, err := classify.ClassifyRegions(store, c.Masks, opts)
	if err != nil {
		return err
	}
	mw.CrossValScoreObserve(res.Score)

	out, err := json.Marshal(classifyOutput(res))
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	log.Info().Float64("score", res.Score).Int("masks", len(c.Masks)).Msg("classification complete")
	return nil
}

// classifyOutput shapes the JSON document for the configured output kind,
// emitting only the fields the result actually carries.
func classifyOutput(res *classify.Result) map[string]any {
	out := map[string]any{"score": res.Score}
	if res.N != nil {
		out["n"] = res.N
	}
	if res.Clf != nil {
		out["method"] = res.Clf.Method
		out["fitted"] = res.Clf.IsFitted()
	}
	return out
}

func runDecode(c cfg.Settings, mw *metrics.Wrapper) error {
	if len(c.DecodeImages) == 0 {
		return fmt.Errorf("decode needs at least one input image")
	}

	store, err := dataset.Open(c.DataPath)
	if err != nil {
		return err
	}
	defer store.Close()
	mw.DatasetStudiesSet(len(store.StudyIDs()))

	dec, err := decode.New(store, c.DecodeMethod, c.Features, c.Method)
	if err != nil {
		return err
	}

	results := make(map[string]map[string]float64, len(c.DecodeImages))
	for _, path := range c.DecodeImages {
		vol, err := voxel.LoadNIfTI(path)
		if err != nil {
			return err
		}
		res, err := dec.Decode(vol.Data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		results[filepath.Base(path)] = res
		mw.DecodesInc()
	}

	out, err := json.Marshal(results)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	log.Info().Int("images", len(c.DecodeImages)).Str("method", c.DecodeMethod).Msg("decode complete")
	return nil
}

func runFetch(ctx context.Context, c cfg.Settings, mw *metrics.Wrapper) error {
	if c.DatasetURL == "" {
		return fmt.Errorf("DATASET_URL is required for fetch")
	}

	dest := filepath.Join(c.DataPath, "dataset-archive.json")
	fetcher := dataset.NewFetcher(c.FetchTimeout)
	if err := fetcher.FetchArchive(ctx, c.DatasetURL, dest); err != nil {
		mw.FetchFailuresInc()
		return err
	}

	store, err := dataset.Open(c.DataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := dataset.ImportArchive(store, dest); err != nil {
		return err
	}
	mw.DatasetStudiesSet(len(store.StudyIDs()))
	return nil
}

func startMetricsServer(ctx context.Context, port int) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
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
