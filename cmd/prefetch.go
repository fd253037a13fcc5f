package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/foliocache/internal/prefetchlog"
	"github.com/ziadkadry99/foliocache/internal/progress"
	"github.com/ziadkadry99/foliocache/internal/worker"
)

const prefetchSource = "cli"

var prefetchCmd = &cobra.Command{
	Use:   "prefetch [url...]",
	Short: "Warm the image cache",
	Long: `Fetches every image listed in the work manifest into the cache, the
same way a home-page visit does. With URL arguments, only those images are
fetched. Images already cached are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reporter := progress.NewReporter()
		recorder := prefetchlog.NewRecorder(a.batches, a.logger)
		ctrl := a.newController(0, reporter, recorder)

		var done *worker.Completion
		if len(args) > 0 {
			ctrl.RegisterWorker(ctx)
			msg, err := worker.NewPrefetchMessage(args)
			if err != nil {
				a.Close(shutdownTimeout)
				return err
			}
			done, err = a.reg.PostMessage(ctx, prefetchSource, msg)
			if err != nil {
				a.Close(shutdownTimeout)
				return fmt.Errorf("posting prefetch: %w", err)
			}
		} else {
			done = ctrl.PrecacheHome(ctx, a.origin.String())
		}

		if done == nil {
			fmt.Fprintln(os.Stderr, "Nothing to prefetch")
			return a.Close(shutdownTimeout)
		}
		waitErr := done.Wait(ctx)
		if err := a.Close(shutdownTimeout); err != nil {
			return err
		}
		if waitErr != nil {
			return waitErr
		}

		if r := done.Report(); r != nil {
			fmt.Fprintf(os.Stderr, "Prefetched into %s: %d stored, %d already cached, %d rejected, %d failed (%s)\n",
				r.CacheName, r.Stored, r.Hits, r.Rejected, r.Failed, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prefetchCmd)
}
