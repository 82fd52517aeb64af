package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bridge status",
	Long:  `Query the running bridge and display its lifecycle state, the connected JS session, the event cache and pending JWT requests.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := controlClient().Status()
	if err != nil {
		return fmt.Errorf("is mmbridge serve running? %w", err)
	}
	svc := status.Service

	fmt.Fprintf(os.Stdout, "%s     %s\n", styleKey.Render("State:"), svc.State)
	fmt.Fprintf(os.Stdout, "%s  %s\n", styleKey.Render("Platform:"), svc.Platform)
	fmt.Fprintf(os.Stdout, "%s    %s\n", styleKey.Render("Listen:"), status.Listen)
	fmt.Fprintf(os.Stdout, "%s    %s\n", styleKey.Render("Uptime:"), formatDuration(time.Duration(status.UptimeSeconds*float64(time.Second))))
	fmt.Fprintf(os.Stdout, "%s   %s\n", styleKey.Render("Session:"), sessionLine(status.Session != nil, func() string {
		return fmt.Sprintf("%s (%s, api %d)", status.Session.Client, status.Session.Platform, status.Session.APILevel)
	}))
	fmt.Println()

	fmt.Fprintln(os.Stdout, styleHeader.Render("Bridge"))
	fmt.Fprintf(os.Stdout, "  Initialized:        %s\n", yesNo(svc.Configured))
	fmt.Fprintf(os.Stdout, "  Listeners attached: %s\n", yesNo(svc.Cache.ListenersAttached))
	fmt.Fprintf(os.Stdout, "  JS context live:    %s\n", yesNo(svc.Cache.Live))
	fmt.Fprintf(os.Stdout, "  Cached events:      %d\n", svc.Cache.Pending)
	fmt.Fprintf(os.Stdout, "  Pending JWT:        %d\n", svc.JwtPending)
	fmt.Fprintf(os.Stdout, "  Calls available:    %s\n", yesNo(svc.CallsAvailable))
	return nil
}

func sessionLine(connected bool, describe func() string) string {
	if !connected {
		return styleDim.Render("none")
	}
	return describe()
}
