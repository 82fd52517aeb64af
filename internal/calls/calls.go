// Package calls is the optional WebRTC calls capability. Apps built
// without the native calls module get Unavailable; the rest get a
// Capability backed by the SDK's WebRTC API, configured from the
// Configuration handed to init.
package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kuuji/mmbridge/internal/config"
	"github.com/kuuji/mmbridge/internal/sdk"
)

var (
	// ErrCallsUnavailable is returned when the app does not ship the
	// native calls module.
	ErrCallsUnavailable = errors.New("WebRTC calls module is not available in this build")

	// ErrNotConfigured is returned when init carried no webRTCUI section.
	ErrNotConfigured = errors.New("webRTCUI.configurationId is not configured")
)

// Capability enables and disables calls.
type Capability interface {
	Available() bool
	EnableCalls(ctx context.Context, identity string) error
	EnableChatCalls(ctx context.Context) error
	DisableCalls(ctx context.Context) error
}

// ConfigurationFunc returns the configuration accepted by init, or an
// error when init has not run.
type ConfigurationFunc func() (*config.Configuration, error)

// Unavailable is the Capability of builds without the calls module.
type Unavailable struct{}

func (Unavailable) Available() bool                           { return false }
func (Unavailable) EnableCalls(context.Context, string) error { return ErrCallsUnavailable }
func (Unavailable) EnableChatCalls(context.Context) error     { return ErrCallsUnavailable }
func (Unavailable) DisableCalls(context.Context) error        { return ErrCallsUnavailable }

// SDK is the Capability backed by the native WebRTC API.
type SDK struct {
	rtc       sdk.WebRTC
	cfg       ConfigurationFunc
	preflight *Preflighter
	log       *slog.Logger
}

// New returns an SDK capability. A non-nil preflight is run before calls
// are enabled so that unreachable ICE servers fail early.
func New(rtc sdk.WebRTC, cfg ConfigurationFunc, preflight *Preflighter, logger *slog.Logger) *SDK {
	if logger == nil {
		logger = slog.Default()
	}
	return &SDK{
		rtc:       rtc,
		cfg:       cfg,
		preflight: preflight,
		log:       logger.With("component", "calls"),
	}
}

// Available reports true.
func (s *SDK) Available() bool { return true }

// EnableCalls registers identity for incoming calls.
func (s *SDK) EnableCalls(ctx context.Context, identity string) error {
	id, err := s.configurationID(ctx)
	if err != nil {
		return err
	}
	if err := s.rtc.EnableCalls(ctx, id, identity); err != nil {
		return fmt.Errorf("enabling calls: %w", err)
	}
	s.log.Info("calls enabled", "identity", identity)
	return nil
}

// EnableChatCalls enables calls started from the in-app chat.
func (s *SDK) EnableChatCalls(ctx context.Context) error {
	id, err := s.configurationID(ctx)
	if err != nil {
		return err
	}
	if err := s.rtc.EnableChatCalls(ctx, id); err != nil {
		return fmt.Errorf("enabling chat calls: %w", err)
	}
	s.log.Info("chat calls enabled")
	return nil
}

// DisableCalls unregisters from calls.
func (s *SDK) DisableCalls(ctx context.Context) error {
	if err := s.rtc.DisableCalls(ctx); err != nil {
		return fmt.Errorf("disabling calls: %w", err)
	}
	return nil
}

func (s *SDK) configurationID(ctx context.Context) (string, error) {
	cfg, err := s.cfg()
	if err != nil {
		return "", err
	}
	if cfg.WebRTCUI == nil || cfg.WebRTCUI.ConfigurationID == "" {
		return "", ErrNotConfigured
	}
	if s.preflight != nil {
		report, err := s.preflight.Run(ctx)
		if err != nil {
			return "", fmt.Errorf("calls preflight: %w", err)
		}
		s.log.Debug("calls preflight passed", "candidates", len(report.Candidates), "took", report.Took)
	}
	return cfg.WebRTCUI.ConfigurationID, nil
}
