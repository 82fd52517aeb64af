package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/mmbridge/internal/config"
)

// ErrNoCandidates is returned when ICE gathering produced nothing usable.
var ErrNoCandidates = errors.New("no ICE candidates gathered")

// Candidate is one gathered local ICE candidate.
type Candidate struct {
	Type     string `json:"type"`
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
	Port     uint16 `json:"port"`
}

// Report is the outcome of a preflight.
type Report struct {
	Candidates []Candidate    `json:"candidates"`
	Complete   bool           `json:"complete"`
	Took       time.Duration  `json:"took"`
	ByType     map[string]int `json:"byType"`
}

// Preflighter checks that the device can gather ICE candidates against the
// configured STUN/TURN servers, the way a call would at setup.
type Preflighter struct {
	iceServers []string
	timeout    time.Duration
	log        *slog.Logger
}

// NewPreflighter builds a Preflighter from the calls config.
func NewPreflighter(cfg config.CallsConfig, logger *slog.Logger) *Preflighter {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.PreflightTimeout.Duration
	if timeout <= 0 {
		timeout = config.DefaultPreflightTimeout
	}
	return &Preflighter{
		iceServers: cfg.ICEServers,
		timeout:    timeout,
		log:        logger.With("component", "preflight"),
	}
}

// Run creates a throwaway peer connection, starts an offer and collects
// candidates until gathering completes or the timeout passes.
func (p *Preflighter) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	rtcConfig := webrtc.Configuration{}
	if len(p.iceServers) > 0 {
		rtcConfig.ICEServers = []webrtc.ICEServer{{URLs: p.iceServers}}
	}
	pc, err := webrtc.NewPeerConnection(rtcConfig)
	if err != nil {
		return Report{}, fmt.Errorf("creating peer connection: %w", err)
	}
	defer pc.Close()

	var (
		mu         sync.Mutex
		candidates []Candidate
	)
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		p.log.Debug("candidate gathered", "candidate", c.String())
		mu.Lock()
		candidates = append(candidates, Candidate{
			Type:     c.Typ.String(),
			Protocol: c.Protocol.String(),
			Address:  c.Address,
			Port:     c.Port,
		})
		mu.Unlock()
	})

	if _, err := pc.CreateDataChannel("preflight", nil); err != nil {
		return Report{}, fmt.Errorf("creating data channel: %w", err)
	}

	// Must be called before SetLocalDescription so completion is not missed.
	gatherComplete := webrtc.GatheringCompletePromise(pc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return Report{}, fmt.Errorf("creating SDP offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return Report{}, fmt.Errorf("setting local description: %w", err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	report := Report{}
	select {
	case <-gatherComplete:
		report.Complete = true
	case <-timer.C:
		p.log.Warn("ICE gathering timed out", "timeout", p.timeout)
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}

	mu.Lock()
	report.Candidates = append([]Candidate(nil), candidates...)
	mu.Unlock()
	report.Took = time.Since(start)
	report.ByType = make(map[string]int)
	for _, c := range report.Candidates {
		report.ByType[c.Type]++
	}

	if len(report.Candidates) == 0 {
		return report, ErrNoCandidates
	}
	return report, nil
}
