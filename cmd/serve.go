package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/placemark/internal/cluster"
	"github.com/sells-group/placemark/internal/ingest"
	"github.com/sells-group/placemark/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the marker event HTTP server",
	Long:  "Serves marker lifecycle events, location reads, hierarchy changes, and the admin repair trigger. Runs the duplicate-cluster merge sweep on an interval.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		svc := ingest.NewService(store)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.New(svc, store, cfg.Server).Router(),
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if cfg.Merge.IntervalSecs > 0 {
			merger := cluster.NewMerger(store, cluster.NewMaintainer(store))
			interval := time.Duration(cfg.Merge.IntervalSecs) * time.Second
			g.Go(func() error {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-ticker.C:
						report, err := merger.Sweep(gctx)
						if err != nil {
							zap.L().Error("merge sweep failed", zap.Error(err))
							continue
						}
						if report.Merged > 0 {
							zap.L().Info("merge sweep complete",
								zap.Int("scanned", report.Scanned),
								zap.Int("merged", report.Merged))
						}
					}
				}
			})
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
