package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuuji/mmbridge/internal/calls"
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "WebRTC calls tooling",
}

var callsPreflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Gather ICE candidates against the configured STUN/TURN servers",
	Long: `Runs the same ICE gathering a call would run at setup and lists the
candidates found. A report with no relay candidates usually means the TURN
server is unreachable or rejects the credentials.`,
	RunE: runCallsPreflight,
}

func init() {
	callsCmd.AddCommand(callsPreflightCmd)
}

func runCallsPreflight(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	report, err := calls.NewPreflighter(cfg.Calls, globalLogger).Run(ctx)
	if errors.Is(err, calls.ErrNoCandidates) {
		fmt.Fprintln(os.Stderr, styleBad.Render("No ICE candidates gathered."))
		return err
	}
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tPROTO\tADDRESS\tPORT")
	for _, c := range report.Candidates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", c.Type, c.Protocol, c.Address, c.Port)
	}
	w.Flush()
	fmt.Println()

	types := make([]string, 0, len(report.ByType))
	for t := range report.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(os.Stdout, "%s %d\n", styleKey.Render(t+":"), report.ByType[t])
	}

	gathered := styleOK.Render("complete")
	if !report.Complete {
		gathered = styleBad.Render("timed out")
	}
	fmt.Fprintf(os.Stdout, "Gathering %s in %s\n", gathered, report.Took.Round(time.Millisecond))
	if report.ByType["relay"] == 0 && len(cfg.Calls.ICEServers) > 0 {
		fmt.Fprintln(os.Stderr, styleDim.Render("No relay candidates: check the TURN servers in [calls].ice_servers."))
	}
	return nil
}
