package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kuuji/mmbridge/internal/events"
	"github.com/kuuji/mmbridge/internal/sdk"
)

var (
	emitData string
	emitList bool
)

var emitCmd = &cobra.Command{
	Use:   "emit <native-id | event>",
	Short: "Raise a native SDK event in the running bridge",
	Long: `Inject a broadcast into the running bridge as if the native SDK raised
it. The event is named either by its native identifier (an Android action or
iOS notification name) or by its JS event name.

  mmbridge emit tokenReceived --data '{"registrationId":"abc"}'
  mmbridge emit org.infobip.mobile.messaging.MESSAGE_RECEIVED --data '{"message":{"messageId":"m-1"}}'
  mmbridge emit --list`,
	Args: func(cmd *cobra.Command, args []string) error {
		if emitList {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runEmit,
}

func init() {
	emitCmd.Flags().StringVar(&emitData, "data", "", "broadcast extras as a JSON object")
	emitCmd.Flags().BoolVar(&emitList, "list", false, "list the native identifiers of the configured platform")
}

func runEmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	table := events.Table(cfg.Bridge.Platform)

	if emitList {
		printEventTable(table)
		return nil
	}

	action, err := resolveAction(table, args[0])
	if err != nil {
		return err
	}
	extras, err := parseExtras(emitData)
	if err != nil {
		return err
	}

	client := controlClient()
	if err := client.Inject(sdk.Broadcast{Action: action, Extras: extras}); err != nil {
		return fmt.Errorf("is mmbridge serve running? %w", err)
	}
	fmt.Fprintf(os.Stderr, "Raised %s (%s)\n", styleKey.Render(table[action]), action)
	return nil
}

// resolveAction accepts a native identifier or a JS event name.
func resolveAction(table map[string]string, arg string) (string, error) {
	if _, ok := table[arg]; ok {
		return arg, nil
	}
	for action, name := range table {
		if name == arg {
			return action, nil
		}
	}
	return "", fmt.Errorf("%w: %s (see 'mmbridge emit --list')", events.ErrUnknownAction, arg)
}

func printEventTable(table map[string]string) {
	actions := make([]string, 0, len(table))
	for a := range table {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return table[actions[i]] < table[actions[j]] })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tNATIVE ID")
	for _, a := range actions {
		fmt.Fprintf(w, "%s\t%s\n", table[a], a)
	}
	w.Flush()
}
