package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	csvio "github.com/hed1ad/brminer/pkg/io/csv"
)

func newTrainCmd(a *app) *cobra.Command {
	var (
		label     string
		out       string
		modelName string
	)

	cmd := &cobra.Command{
		Use:   "train TRAIN.csv",
		Short: "Train a miner and save the model to a file or redis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" && modelName == "" {
				return errors.New("need --out or --model-name")
			}

			schema, data, err := readCSV(args[0], csvio.WithLabel(label))
			if err != nil {
				return err
			}

			m := a.newMiner()
			if err := m.Fit(schema, data); err != nil {
				return err
			}

			model, err := m.Save()
			if err != nil {
				return err
			}

			if out != "" {
				if err := os.WriteFile(out, model, 0o644); err != nil {
					return err
				}
				a.logger.Info("model saved", zap.String("path", out), zap.Int("bytes", len(model)))
			}

			if modelName != "" {
				s, err := a.store(cmd.Context())
				if err != nil {
					return err
				}
				if s == nil {
					return errors.New("--model-name needs a redis address")
				}
				defer s.Close()

				if err := s.SaveModel(cmd.Context(), modelName, model); err != nil {
					return err
				}
				a.logger.Info("model stored in redis", zap.String("name", modelName))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "label column excluded from scoring")
	cmd.Flags().StringVar(&out, "out", "", "model output file")
	cmd.Flags().StringVar(&modelName, "model-name", "", "store the model in redis under this name")

	return cmd
}
