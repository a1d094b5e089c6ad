package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/inkwell-scan/inkwell/internal/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline workers",
	Long: `Run the conversion and compilation workers until interrupted.

In "local" queue mode the workers consume an in-process queue. In "nats"
mode they join the inkwell-workers queue group on the configured NATS
server, so multiple instances share the work.

Examples:
  inkwell serve                  # local queue
  INKWELL_QUEUE_MODE=nats inkwell serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		a.manager.WatchConfig()

		if a.cfg.Metrics.Enabled {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", a.recorder.Handler())
				srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}
				a.logger.Info("metrics listening", "addr", a.cfg.Metrics.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Error("metrics server", "error", err)
				}
			}()
		}

		switch a.cfg.Queue.Mode {
		case "local":
			local, err := queue.NewLocal(queue.LocalConfig{
				Handler:   a.handler,
				Workers:   a.cfg.Queue.Workers,
				QueueSize: a.cfg.Queue.Buffer,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}
			local.Start(ctx)
			a.logger.Info("workers started", "mode", "local", "workers", a.cfg.Queue.Workers)
			<-ctx.Done()
			local.Wait()
			return nil

		case "nats":
			n, err := queue.NewNATS(queue.NATSConfig{
				URL:    a.cfg.Queue.NATSURL,
				Logger: a.logger,
			})
			if err != nil {
				return err
			}
			defer n.Close()
			a.logger.Info("workers started", "mode", "nats", "url", a.cfg.Queue.NATSURL)
			return n.Subscribe(ctx, a.handler)

		default:
			return fmt.Errorf("unknown queue mode %q", a.cfg.Queue.Mode)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
