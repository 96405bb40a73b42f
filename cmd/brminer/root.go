package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hed1ad/brminer/pkg/config"
	"github.com/hed1ad/brminer/pkg/dataset"
	"github.com/hed1ad/brminer/pkg/detectors/brm"
	detio "github.com/hed1ad/brminer/pkg/io"
	csvio "github.com/hed1ad/brminer/pkg/io/csv"
	redisstore "github.com/hed1ad/brminer/pkg/store/redis"
)

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":      "logging.level",
	"log-format":     "logging.format",
	"log-output":     "logging.output",
	"estimators":     "detector.estimators",
	"sample-percent": "detector.sample_percent",
	"sample-count":   "detector.sample_count",
	"smoothing":      "detector.smoothing",
	"contamination":  "detector.contamination",
	"seed":           "detector.seed",
	"workers":        "detector.workers",
	"redis-addr":     "redis.addr",
}

// app carries state shared by subcommands once flags are parsed.
type app struct {
	v      *viper.Viper
	logger *zap.Logger
}

func newRootCmd(a *app) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "brminer",
		Short:         "Bagging Random Miner anomaly detection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, configPath)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&configPath, "config", "", "path to configuration file")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "json", "log format (json, console)")
	f.String("log-output", "stderr", "log destination (stderr or a file path)")
	f.Int("estimators", 100, "number of estimators")
	f.Int("sample-percent", 1, "bootstrap sample size as a percentage of the training set")
	f.Int("sample-count", 0, "bootstrap sample size as an absolute count; overrides --sample-percent")
	f.Bool("smoothing", true, "smooth scores over the last three classifications")
	f.Float64("contamination", 0.1, "expected anomaly proportion used to calibrate the threshold")
	f.Int64("seed", 42, "random seed")
	f.Int("workers", 0, "bandwidth workers (0 uses GOMAXPROCS)")
	f.String("redis-addr", "", "redis address for the model store")

	root.AddCommand(
		newScoreCmd(a),
		newTrainCmd(a),
		newPcapCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, configPath string) error {
	v, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	if flags.Changed("sample-count") {
		v.Set("detector.use_sample_count", true)
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		return err
	}

	a.v = v
	a.logger = logger
	if f := v.ConfigFileUsed(); f != "" {
		logger.Debug("configuration loaded", zap.String("source", f))
	}
	return nil
}

func (a *app) newMiner() *brm.Miner {
	opts := config.Detector(a.v).Options()
	return brm.New(append(opts, brm.WithLogger(a.logger.Named("brm")))...)
}

// store connects to Redis, or returns nil when no address is configured.
func (a *app) store(ctx context.Context) (*redisstore.Store, error) {
	cfg := config.Redis(a.v)
	if cfg.Addr == "" {
		return nil, nil
	}
	s, err := redisstore.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	return s, nil
}

// loadModel restores m from a gob file or, when path is empty, from the
// Redis model store under name.
func (a *app) loadModel(ctx context.Context, m *brm.Miner, path, name string) error {
	var (
		data []byte
		err  error
	)
	switch {
	case path != "":
		data, err = os.ReadFile(path)
	case name != "":
		var s *redisstore.Store
		s, err = a.store(ctx)
		if err != nil {
			return err
		}
		if s == nil {
			return errors.New("--model-name needs a redis address")
		}
		defer s.Close()
		data, err = s.LoadModel(ctx, name)
	default:
		return errors.New("no model source")
	}
	if err != nil {
		return err
	}

	if err := m.Load(data); err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	a.logger.Info("model loaded",
		zap.String("path", path),
		zap.String("name", name),
		zap.Float64("threshold", m.Threshold()),
	)
	return nil
}

func readCSV(path string, opts ...csvio.Option) (*dataset.Schema, []dataset.Instance, error) {
	r, err := csvio.NewReader(path, opts...)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	data, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return r.Schema(), data, nil
}

// classifyAll scores data in order and collects the results.
func classifyAll(m *brm.Miner, data []dataset.Instance) ([]detio.Result, error) {
	results := make([]detio.Result, len(data))
	for i, in := range data {
		score, err := m.Classify(in)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		results[i] = score.Result(i, time.Time{})
	}
	return results, nil
}

func writeResults(w io.Writer, format string, results []detio.Result) error {
	switch format {
	case "plain":
		for _, r := range results {
			if _, err := fmt.Fprintln(w, strconv.FormatFloat(r.Score, 'f', -1, 64)); err != nil {
				return err
			}
		}
		return nil
	case "csv":
		return csvio.NewWriter(w).WriteAll(results)
	case "json":
		enc := json.NewEncoder(w)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// openOutput returns stdout when path is empty.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
