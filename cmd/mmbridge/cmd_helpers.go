package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/control"
)

// resolvedConfigPath returns the config file path, using the global flag
// if set, otherwise the default user path.
func resolvedConfigPath() string {
	if globalConfigPath != "" {
		return globalConfigPath
	}
	p, err := config.DefaultConfigPath()
	if err != nil {
		return "config.toml"
	}
	return p
}

// loadConfig loads the TOML config from the resolved path. A missing file
// yields the defaults so `mmbridge serve` works before `mmbridge init`.
func loadConfig() (*config.Config, error) {
	cfgPath := resolvedConfigPath()
	cfg, err := config.LoadConfig(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		globalLogger.Debug("no config file, using defaults", "path", cfgPath)
		return config.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", cfgPath, err)
	}
	return cfg, nil
}

// controlSocket returns the control socket of the running bridge.
func controlSocket(cfg *config.Config) string {
	if cfg != nil && cfg.Bridge.ControlSocket != "" {
		return cfg.Bridge.ControlSocket
	}
	return control.ResolveSocketPath()
}

// controlClient connects to the control socket named by the config file,
// or the default one when there is no usable config.
func controlClient() *control.Client {
	cfg, err := config.LoadConfig(resolvedConfigPath())
	if err != nil {
		cfg = nil
	}
	return control.NewClient(controlSocket(cfg))
}

// linkURL builds the WebSocket URL a JS runtime dials. host replaces the
// listen host, which is needed when the bridge listens on a wildcard
// address.
func linkURL(listen, path, host string) (string, error) {
	h, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("parsing listen address %q: %w", listen, err)
	}
	if host != "" {
		h = host
	}
	if h == "" || h == "0.0.0.0" || h == "::" {
		return "", fmt.Errorf("listen address %q has no reachable host, pass --host", listen)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(h, port), Path: path}
	return u.String(), nil
}

// parseExtras decodes the --data flag of emit.
func parseExtras(data string) (map[string]any, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var extras map[string]any
	if err := json.Unmarshal([]byte(data), &extras); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}
	return extras, nil
}

// formatDuration formats a duration into a human-readable string like "2h15m" or "45s".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
