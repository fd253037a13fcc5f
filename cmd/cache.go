package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/foliocache/internal/cachestore"
)

var clearAll bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the named caches",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List caches with entry counts and sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close(shutdownTimeout)

		stats, err := cachestore.Summarize(cmd.Context(), a.storage)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("No caches.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tENTRIES\tBYTES\tCURRENT")
		for _, s := range stats {
			current := ""
			if s.Name == a.cfg.CacheName {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", s.Name, s.Entries, s.Bytes, current)
		}
		return w.Flush()
	},
}

var cacheEntriesCmd = &cobra.Command{
	Use:   "entries [name]",
	Short: "List the entries of a cache (the configured cache by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close(shutdownTimeout)

		name := a.cfg.CacheName
		if len(args) == 1 {
			name = args[0]
		}
		c, err := a.storage.Lookup(cmd.Context(), name)
		if errors.Is(err, cachestore.ErrNotFound) {
			return fmt.Errorf("cache %q does not exist", name)
		}
		if err != nil {
			return err
		}
		entries, err := c.Keys(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "URL\tTYPE\tSTATUS\tBYTES\tSTORED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", e.URL, e.Type, e.StatusCode, e.Size, e.StoredAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [name]",
	Short: "Delete a cache (the configured cache by default), or all with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close(shutdownTimeout)

		names := []string{a.cfg.CacheName}
		switch {
		case clearAll:
			if names, err = a.storage.Names(cmd.Context()); err != nil {
				return err
			}
		case len(args) == 1:
			names = []string{args[0]}
		}

		for _, name := range names {
			deleted, err := a.storage.Delete(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("deleting cache %q: %w", name, err)
			}
			if deleted {
				fmt.Printf("Deleted %s\n", name)
			} else {
				fmt.Printf("No cache named %s\n", name)
			}
		}

		// Batch history for the removed caches is no longer meaningful.
		if clearAll {
			if _, err := a.batches.DeleteBefore(cmd.Context(), time.Now().Add(time.Second)); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().BoolVar(&clearAll, "all", false, "delete every cache and the prefetch history")
	cacheCmd.AddCommand(cacheListCmd, cacheEntriesCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
