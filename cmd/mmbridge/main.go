// Command mmbridge runs the Mobile Messaging bridge outside a phone: a
// simulated native SDK behind the same service, method table and host link
// a JS runtime talks to on a device.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// Global flags shared across subcommands.
var (
	globalConfigPath string
	globalVerbose    bool
	globalLogger     *slog.Logger
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "mmbridge",
	Short: "Mobile Messaging bridge for JavaScript runtimes",
	Long: `mmbridge connects a JavaScript app to the Mobile Messaging SDK. Native
events are cached while no JS listener can take them and replayed once one
attaches; JS calls are forwarded to the SDK over a WebSocket host link.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if globalVerbose {
			level = slog.LevelDebug
		}
		globalLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalConfigPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/mmbridge/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&globalVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(qrCmd)
	rootCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd prints the build version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mmbridge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", styleHeader.Render("mmbridge"), version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
