package agent

import (
	"strings"
	"sync"

	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/procwatch"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// RecommendedMode is a process-launch prediction's GPU hint (§4.D).
type RecommendedMode string

const (
	ModeRequired       RecommendedMode = "Required"
	ModePreferred      RecommendedMode = "Preferred"
	ModeIGPUOptimal    RecommendedMode = "IGPUOptimal"
	ModeIGPUSufficient RecommendedMode = "IGPUSufficient"
	ModeUnknown        RecommendedMode = "Unknown"
)

// ProcessLaunchPrediction is published for consumers (the GPU agent) to
// treat as a hint, not a command (§4.D).
type ProcessLaunchPrediction struct {
	PID             uint32
	Comm            string
	RecommendedMode RecommendedMode
	Confidence      int // [0, 100]
}

// builtInClassification maps a known process comm to its classification.
// Not exhaustive; anything absent classifies as Unknown.
var builtInClassification = map[string]RecommendedMode{
	"steam":        ModeRequired,
	"csgo":         ModeRequired,
	"cyberpunk2077": ModeRequired,
	"blender":      ModeRequired,
	"davinci":      ModeRequired,
	"photoshop":    ModePreferred,
	"premiere":     ModePreferred,
	"code":         ModeIGPUSufficient,
	"chrome":       ModeIGPUSufficient,
	"firefox":      ModeIGPUSufficient,
	"slack":        ModeIGPUSufficient,
	"teams":        ModeIGPUOptimal,
	"zoom":         ModeIGPUOptimal,
	"explorer":     ModeIGPUSufficient,
}

// Predictor consumes procwatch exec events and classifies newly launched
// processes against a built-in list. It does not itself propose HAL
// actions; it exposes the latest predictions for the GPU agent to read
// as hints.
type Predictor struct {
	mu    sync.Mutex
	latest []ProcessLaunchPrediction
}

// NewPredictor constructs the process-launch predictor agent.
func NewPredictor() *Predictor { return &Predictor{} }

// Name implements Agent.
func (p *Predictor) Name() string { return "predictor" }

// Consume drains exec events from the channel until it closes,
// classifying each and updating the latest-predictions buffer.
// Run as its own goroutine by cmd/thermopilotd, separate from Propose.
func (p *Predictor) Consume(events <-chan procwatch.ExecEvent) {
	for ev := range events {
		pred := classify(ev)
		p.mu.Lock()
		p.latest = append(p.latest, pred)
		if len(p.latest) > 64 {
			p.latest = p.latest[len(p.latest)-64:]
		}
		p.mu.Unlock()
	}
}

// Latest returns a snapshot of recent predictions.
func (p *Predictor) Latest() []ProcessLaunchPrediction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProcessLaunchPrediction, len(p.latest))
	copy(out, p.latest)
	return out
}

func classify(ev procwatch.ExecEvent) ProcessLaunchPrediction {
	comm := strings.ToLower(ev.Comm)
	mode, ok := builtInClassification[comm]
	confidence := 90
	if !ok {
		mode = ModeUnknown
		confidence = 0
	}
	return ProcessLaunchPrediction{
		PID:             ev.PID,
		Comm:            ev.Comm,
		RecommendedMode: mode,
		Confidence:      confidence,
	}
}

// Propose implements Agent. The predictor does not itself actuate
// hardware and always returns an action-free proposal; cmd/thermopilotd
// does not register it with the orchestrator, but hands it to the GPU
// agent, which reads its predictions via Latest.
func (p *Predictor) Propose(snap snapshot.Snapshot, overrides *override.Registry, hist History) snapshot.Proposal {
	return snapshot.Proposal{Agent: p.Name()}
}
