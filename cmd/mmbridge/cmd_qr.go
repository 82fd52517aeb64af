package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var (
	qrHost      string
	qrWithToken bool
)

var qrCmd = &cobra.Command{
	Use:   "qr",
	Short: "Display a QR code for the host link URL",
	Long: `Displays a QR code containing the WebSocket URL a JS runtime dials
to reach this bridge. A test app can scan it instead of having the address
typed in.

With --with-token the code holds a JSON object with the URL and the auth
token. Without it the token is printed below the code when one is set.`,
	RunE: runQR,
}

func init() {
	qrCmd.Flags().StringVar(&qrHost, "host", "", "host to advertise instead of the listen host")
	qrCmd.Flags().BoolVar(&qrWithToken, "with-token", false, "embed the auth token in the QR code")
}

func runQR(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	link, err := linkURL(cfg.Bridge.Listen, cfg.Bridge.Path, qrHost)
	if err != nil {
		return err
	}

	content := link
	if qrWithToken && cfg.Bridge.AuthToken != "" {
		b, err := json.Marshal(struct {
			URL   string `json:"url"`
			Token string `json:"token"`
		}{link, cfg.Bridge.AuthToken})
		if err != nil {
			return fmt.Errorf("encoding link: %w", err)
		}
		content = string(b)
	}

	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("generating QR code: %w", err)
	}

	fmt.Fprintln(os.Stderr, qr.ToSmallString(false))
	fmt.Fprintf(os.Stderr, "Link: %s\n", link)
	if cfg.Bridge.AuthToken != "" && !qrWithToken {
		fmt.Fprintf(os.Stderr, "Token: %s\n", styleDim.Render(cfg.Bridge.AuthToken))
	}
	return nil
}
