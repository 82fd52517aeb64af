package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "List events waiting for a JS listener",
	Long: `List the native events the running bridge cached because no JS
listener could receive them. They are replayed, oldest first, when JS adds
a listener for their name.

  mmbridge cache         List cached events
  mmbridge cache flush   Replay every cached event to the live session`,
	RunE: runCache,
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Replay every cached event to the live JS session",
	RunE:  runCacheFlush,
}

func init() {
	cacheCmd.AddCommand(cacheFlushCmd)
}

func runCache(cmd *cobra.Command, args []string) error {
	entries, err := controlClient().Pending()
	if err != nil {
		return fmt.Errorf("is mmbridge serve running? %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No cached events.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tEVENT\tAGE\tDATA")
	for _, e := range entries {
		data := string(e.Data)
		if len(data) > 60 {
			data = data[:57] + "..."
		}
		if data == "" {
			data = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Seq, e.Name, formatDuration(time.Since(e.RecordedAt)), data)
	}
	w.Flush()
	return nil
}

func runCacheFlush(cmd *cobra.Command, args []string) error {
	n, err := controlClient().Flush()
	if err != nil {
		return fmt.Errorf("flushing cache: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Replayed %d cached events.\n", n)
	return nil
}
