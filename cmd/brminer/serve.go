package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/brminer/pkg/config"
	csvio "github.com/hed1ad/brminer/pkg/io/csv"
	"github.com/hed1ad/brminer/pkg/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		label     string
		modelPath string
		modelName string
	)

	cmd := &cobra.Command{
		Use:   "serve [TRAIN.csv]",
		Short: "Serve a model over HTTP",
		Long: `Serve loads a model from --model or --model-name, or trains one on
TRAIN.csv, and scores vectors posted to /classify. With a redis address
configured, results are cached and available under /results/{id}.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.v.BindPFlag("server.port", cmd.Flags().Lookup("port")); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := a.newMiner()
			switch {
			case modelPath != "" || modelName != "":
				if err := a.loadModel(ctx, m, modelPath, modelName); err != nil {
					return err
				}
			case len(args) == 1:
				schema, data, err := readCSV(args[0], csvio.WithLabel(label))
				if err != nil {
					return err
				}
				if err := m.Fit(schema, data); err != nil {
					return err
				}
			default:
				return errors.New("give TRAIN.csv, --model or --model-name")
			}

			opts := []server.Option{
				server.WithConfig(config.Server(a.v)),
				server.WithLogger(a.logger.Named("server")),
			}
			store, err := a.store(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				opts = append(opts, server.WithResultStore(store))
			}

			err = server.New(m, opts...).Run(ctx)
			a.logger.Info("server exited", zap.Error(err))
			return err
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "label column excluded from scoring")
	cmd.Flags().StringVar(&modelPath, "model", "", "saved model file")
	cmd.Flags().StringVar(&modelName, "model-name", "", "saved model name in redis")
	cmd.Flags().Int("port", 8080, "listen port")

	return cmd
}
