package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/kuuji/mmbridge/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a new configuration file",
	Long: `Interactive setup: choose the platform whose native identifiers the
bridge uses, where the host link listens, where events are cached while no
JS listener is attached, and how the app configuration is persisted.

If a config file already exists at the target path, you will be asked
before it is overwritten.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cfgPath := resolvedConfigPath()

	if _, err := os.Stat(cfgPath); err == nil {
		overwrite := false
		confirm := huh.NewConfirm().
			Title(fmt.Sprintf("Config file already exists: %s", cfgPath)).
			Description("Overwrite it?").
			Value(&overwrite)
		if err := huh.NewForm(huh.NewGroup(confirm)).WithTheme(customHuhTheme()).Run(); err != nil {
			return fmt.Errorf("form cancelled: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("generating auth token: %w", err)
	}
	cfg.Bridge.AuthToken = token
	limit := strconv.Itoa(cfg.Cache.Limit)

	bridgeForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Platform").
				Description("Native event identifiers the bridge understands").
				Options(
					huh.NewOption("Android", config.PlatformAndroid),
					huh.NewOption("iOS", config.PlatformIOS),
				).
				Value(&cfg.Bridge.Platform),
			huh.NewInput().
				Title("Host link address").
				Description("host:port the JS runtime connects to").
				Value(&cfg.Bridge.Listen).
				Validate(func(s string) error {
					_, _, err := net.SplitHostPort(s)
					return err
				}),
			huh.NewInput().
				Title("Auth token").
				Description("Bearer token the JS runtime must present; empty disables auth").
				Value(&cfg.Bridge.AuthToken),
		),
	).WithTheme(customHuhTheme())

	if err := bridgeForm.Run(); err != nil {
		return fmt.Errorf("form cancelled: %w", err)
	}
	cfg.Cache.Backend, cfg.Persist.Mode = config.PlatformDefaults(cfg.Bridge.Platform)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Event cache").
				Description("Where native events wait for a JS listener").
				Options(
					huh.NewOption("Memory (lost on restart)", config.CacheMemory),
					huh.NewOption("JSON file", config.CacheFile),
					huh.NewOption("SQLite", config.CacheSQLite),
				).
				Value(&cfg.Cache.Backend),
			huh.NewInput().
				Title("Cache limit").
				Description("Oldest events are evicted past this many").
				Value(&limit).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n <= 0 {
						return fmt.Errorf("must be a positive number")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Configuration persistence").
				Description("How the app configuration survives restarts").
				Options(
					huh.NewOption("Plain file", config.PersistFile),
					huh.NewOption("Encrypted, key in the OS keyring", config.PersistSecure),
					huh.NewOption("Do not persist", config.PersistNone),
				).
				Value(&cfg.Persist.Mode),
			huh.NewConfirm().
				Title("Calls").
				Description("Is the native WebRTC calls module linked into the app?").
				Value(&cfg.Calls.Enabled),
		),
	).WithTheme(customHuhTheme())

	if err := form.Run(); err != nil {
		return fmt.Errorf("form cancelled: %w", err)
	}
	cfg.Cache.Limit, _ = strconv.Atoi(limit)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.SaveConfig(cfgPath, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%s %s\n", styleOK.Render("Config written to"), cfgPath)
	fmt.Fprintln(os.Stderr, "Start the bridge with 'mmbridge serve'.")
	return nil
}

// generateToken returns 16 random bytes as hex.
func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
