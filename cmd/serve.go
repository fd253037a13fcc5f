package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/foliocache/internal/cacheadmin"
	"github.com/ziadkadry99/foliocache/internal/channel"
	"github.com/ziadkadry99/foliocache/internal/gallery"
	"github.com/ziadkadry99/foliocache/internal/prefetchlog"
	"github.com/ziadkadry99/foliocache/internal/proxy"
	"github.com/ziadkadry99/foliocache/internal/server"
)

var servePort int

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the caching proxy in front of the portfolio site",
	Long: `Starts an HTTP server that proxies the portfolio origin. Image requests
are served cache-first by the cache worker; everything else is passed
through. Home-page visits trigger a prefetch of every manifest image.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			a.cfg.Port = servePort
		}

		recorder := prefetchlog.NewRecorder(a.batches, a.logger)
		ctrl := a.newController(a.cfg.PrefetchDelay, recorder)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctrl.RegisterWorker(ctx)
		if a.reg.Active() == nil {
			a.logger.Warn("no active cache worker, requests will pass through uncached")
		}

		srv := server.New(server.Config{
			Port:     a.cfg.Port,
			AllowAll: a.cfg.CORSAllowAll,
		}, a.reg, a.logger)
		registerRoutes(srv, a)
		srv.Site(proxy.New(a.origin, a.reg, proxy.Options{
			Pages:  ctrl,
			Logger: a.logger,
		}))

		fmt.Fprintf(os.Stderr, "foliocache %s starting on port %d\n", Version, a.cfg.Port)
		fmt.Fprintf(os.Stderr, "  Origin: %s\n", a.origin)
		fmt.Fprintf(os.Stderr, "  Cache: %s\n", a.cfg.CacheName)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", a.database.Path())

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if a.cfg.PrefetchOnStart {
			g.Go(func() error {
				if done := ctrl.PrecacheHome(gctx, a.origin.String()); done != nil {
					_ = done.Wait(gctx)
				}
				return nil
			})
		}

		err = g.Wait()
		ctrl.Wait()
		if cerr := a.Close(shutdownTimeout); err == nil {
			err = cerr
		}
		return err
	},
}

// registerRoutes wires the internal feature routes.
func registerRoutes(srv *server.Server, a *app) {
	// Page channel (websocket and message posts)
	channel.RegisterRoutes(srv.Internal(), "", channel.NewHub(a.reg, a.logger))

	api := srv.API()

	// Cache admin
	cacheadmin.RegisterRoutes(api, "", a.storage)

	// Prefetch history
	prefetchlog.RegisterRoutes(api, "", a.batches)

	// Gallery
	gallery.RegisterRoutes(api, "", gallery.New(a.loader, a.origin, a.logger))
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
