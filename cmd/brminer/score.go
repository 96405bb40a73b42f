package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/brminer/pkg/dataset"
	csvio "github.com/hed1ad/brminer/pkg/io/csv"
)

func newScoreCmd(a *app) *cobra.Command {
	var (
		label     string
		modelPath string
		modelName string
		output    string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "score [TRAIN.csv] TEST.csv",
		Short: "Train on one CSV file and print an anomaly score per row of another",
		Long: `Score trains a miner on TRAIN.csv and prints one anomaly score per row of
TEST.csv, in order. With --model or --model-name a saved model is used
instead and only TEST.csv is given.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.newMiner()
			saved := modelPath != "" || modelName != ""

			var (
				schema   *dataset.Schema
				testPath string
			)
			switch {
			case saved && len(args) == 1:
				if err := a.loadModel(cmd.Context(), m, modelPath, modelName); err != nil {
					return err
				}
				schema = m.Schema()
				testPath = args[0]
			case !saved && len(args) == 2:
				trainSchema, train, err := readCSV(args[0], csvio.WithLabel(label))
				if err != nil {
					return err
				}
				if err := m.Fit(trainSchema, train); err != nil {
					return err
				}
				schema = trainSchema
				testPath = args[1]
			default:
				return errors.New("give TRAIN.csv and TEST.csv, or a saved model and TEST.csv")
			}

			_, test, err := readCSV(testPath, csvio.WithSchema(schema))
			if err != nil {
				return err
			}

			results, err := classifyAll(m, test)
			if err != nil {
				return err
			}

			anomalies := 0
			for _, r := range results {
				if r.IsAnomaly {
					anomalies++
				}
			}
			a.logger.Info("scoring complete",
				zap.String("file", testPath),
				zap.Int("instances", len(results)),
				zap.Int("anomalies", anomalies),
			)

			w, closeOut, err := openOutput(cmd, output)
			if err != nil {
				return err
			}
			if err := writeResults(w, format, results); err != nil {
				closeOut()
				return err
			}
			return closeOut()
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "label column excluded from scoring")
	cmd.Flags().StringVar(&modelPath, "model", "", "saved model file")
	cmd.Flags().StringVar(&modelName, "model-name", "", "saved model name in redis")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "plain", "output format (plain, csv, json)")

	return cmd
}
