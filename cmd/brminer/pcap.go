package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/brminer/pkg/dataset"
	"github.com/hed1ad/brminer/pkg/detectors"
	detio "github.com/hed1ad/brminer/pkg/io"
	csvio "github.com/hed1ad/brminer/pkg/io/csv"
	"github.com/hed1ad/brminer/pkg/io/pcap"
)

func newPcapCmd(a *app) *cobra.Command {
	var (
		iface   string
		filter  string
		snaplen int32
		promisc bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "pcap TRAIN.pcap [TEST.pcap]",
		Short: "Train on packet features from a capture and score another capture or a live interface",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && iface == "" {
				return errors.New("give TEST.pcap or --iface")
			}

			schema, train, err := readPcap(args[0], filter)
			if err != nil {
				return err
			}

			m := a.newMiner()
			if err := m.Fit(schema, train); err != nil {
				return err
			}

			if len(args) == 2 {
				_, test, err := readPcap(args[1], filter)
				if err != nil {
					return err
				}
				results, err := classifyAll(m, test)
				if err != nil {
					return err
				}
				return writeResults(cmd.OutOrStdout(), format, results)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, cmd, m, iface, filter, snaplen, promisc)
		},
	}

	cmd.Flags().StringVar(&iface, "iface", "", "capture live from this interface")
	cmd.Flags().StringVar(&filter, "filter", "", "BPF filter expression")
	cmd.Flags().Int32Var(&snaplen, "snaplen", 1600, "live capture snapshot length")
	cmd.Flags().BoolVar(&promisc, "promisc", false, "live capture in promiscuous mode")
	cmd.Flags().StringVar(&format, "format", "csv", "output format for TEST.pcap (plain, csv, json)")

	return cmd
}

func readPcap(path, filter string) (*dataset.Schema, []dataset.Instance, error) {
	r, err := pcap.NewFileReader(path)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	if filter != "" {
		if err := r.SetFilter(filter); err != nil {
			return nil, nil, err
		}
	}

	data, err := r.Read()
	if err != nil {
		return nil, nil, err
	}
	return r.Schema(), data, nil
}

// watch scores live packets until ctx is cancelled, writing anomalies as
// CSV rows as they arrive.
func (a *app) watch(ctx context.Context, cmd *cobra.Command, m detectors.StreamDetector,
	iface, filter string, snaplen int32, promisc bool) error {
	r, err := pcap.NewLiveReader(iface, snaplen, promisc, 500*time.Millisecond)
	if err != nil {
		return err
	}
	defer r.Close()

	if filter != "" {
		if err := r.SetFilter(filter); err != nil {
			return err
		}
	}

	packets, err := r.Stream(ctx)
	if err != nil {
		return err
	}

	a.logger.Info("watching interface", zap.String("iface", iface), zap.String("filter", filter))

	scores := make(chan detectors.Score, 100)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(scores)
		return m.PredictStream(ctx, packets, scores)
	})
	g.Go(func() error {
		w := csvio.NewWriter(cmd.OutOrStdout())
		i := 0
		for s := range scores {
			if s.IsAnomaly {
				if err := w.WriteAll([]detio.Result{s.Result(i, time.Now())}); err != nil {
					return err
				}
			}
			i++
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
