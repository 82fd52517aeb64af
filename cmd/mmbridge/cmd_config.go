package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/kuuji/mmbridge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config file paths",
	Long: `Print the paths mmbridge reads and writes.

  mmbridge config        Print config and data paths
  mmbridge config show   Print the effective config, defaults applied
  mmbridge config edit   Open config.toml in $EDITOR
  mmbridge config path   Print the config directory path`,
	RunE: runConfig,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config.toml in $EDITOR",
	RunE:  runConfigEdit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config with defaults applied",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config directory path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfgPath := resolvedConfigPath()
	dataDir, err := config.DefaultDataDir()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s  %s\n", styleKey.Render("Config:"), cfgPath)
	fmt.Fprintf(os.Stdout, "%s    %s\n", styleKey.Render("Data:"), dataDir)

	if info, err := os.Stat(cfgPath); err == nil {
		fmt.Fprintf(os.Stdout, "  %s  %s\n", info.Mode().Perm(), cfgPath)
	} else {
		fmt.Fprintln(os.Stdout, styleDim.Render("  no config file yet, run 'mmbridge init'"))
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, styleBad.Render("invalid: "+err.Error()))
	}
	if cfg.Bridge.AuthToken != "" {
		cfg.Bridge.AuthToken = "(set)"
	}
	return toml.NewEncoder(os.Stdout).Encode(cfg)
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		for _, e := range []string{"nano", "vim", "vi"} {
			if _, err := exec.LookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found, set $EDITOR")
	}

	c := exec.Command(editor, resolvedConfigPath())
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	if err := c.Run(); err != nil {
		return fmt.Errorf("editor exited: %w", err)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Println(filepath.Dir(resolvedConfigPath()))
	return nil
}
