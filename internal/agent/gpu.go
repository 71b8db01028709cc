package agent

import (
	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// known gaming launchers whose presence in RunningWorkloadHints forces a
// discrete-on proposal even when WorkloadClass hasn't yet converged (§4.D).
var knownGamingLaunchers = map[string]bool{
	"steam":          true,
	"epicgameslauncher": true,
	"battlenet":      true,
	"gog galaxy":     true,
}

// gpuPredictorSignal is the strongest recent process-launch prediction,
// reduced from Predictor.Latest() (§4.D: a hint, not a command).
type gpuPredictorSignal struct {
	required   bool
	confidence int
}

// requiredConfidenceFloor is the confidence a Required prediction must
// clear to force a guaranteed-discrete GPU_HYBRID_MODE=Off proposal at
// Critical priority (§8 scenario 3: "predictor emits Required, mode=Off,
// confidence=95 ... GPU agent proposes GPU_HYBRID_MODE=Off Critical").
const requiredConfidenceFloor = 90

// GPU proposes the hybrid-graphics mode (§4.D). The
// has_external_on_dgpu invariant is design-enforced here: this agent
// must never propose IGPUOnly while an external display is bound to
// the discrete GPU, regardless of any other signal.
type GPU struct {
	predictor *Predictor // optional; nil if procwatch unavailable (§7)
}

// NewGPU constructs the GPU hybrid-mode agent. predictor may be nil.
func NewGPU(predictor *Predictor) *GPU { return &GPU{predictor: predictor} }

// Name implements Agent.
func (g *GPU) Name() string { return "gpu" }

// Propose implements Agent.
func (g *GPU) Propose(snap snapshot.Snapshot, overrides *override.Registry, hist History) snapshot.Proposal {
	sig := g.predictorSignal()
	mode, priority := desiredGPUMode(snap, sig)

	action := snapshot.Action{
		Target:      snapshot.TargetGPUHybridMode,
		Value:       string(mode),
		Priority:    priority,
		OriginAgent: g.Name(),
		Rationale:   string(snap.WorkloadClass),
		DwellCheck:  true,
	}

	return snapshot.Proposal{Agent: g.Name(), Actions: []snapshot.Action{action}, Priority: priority}
}

// predictorSignal reduces the predictor's recent predictions to the
// strongest Required hint seen, if any.
func (g *GPU) predictorSignal() gpuPredictorSignal {
	if g.predictor == nil {
		return gpuPredictorSignal{}
	}
	var sig gpuPredictorSignal
	for _, pred := range g.predictor.Latest() {
		if pred.RecommendedMode == ModeRequired && pred.Confidence > sig.confidence {
			sig = gpuPredictorSignal{required: true, confidence: pred.Confidence}
		}
	}
	return sig
}

// desiredGPUMode computes the desired mode and priority from workload +
// external-display topology + the predictor's Required hint (§4.D).
// A high-confidence Required prediction forces a guaranteed-discrete
// GPUModeOff ("iGPU disabled") at Critical priority, bypassing the
// planner's minimum-dwell rule for GPU_HYBRID_MODE (§4.E rule 3).
func desiredGPUMode(snap snapshot.Snapshot, sig gpuPredictorSignal) (snapshot.GPUMode, snapshot.Priority) {
	heavy := isHeavyWorkload(snap) || sig.required

	if snap.DisplayTopology.HasExternalOnDGPU {
		if heavy {
			return snapshot.GPUModeOn, snapshot.PriorityNormal
		}
		return snapshot.GPUModeAuto, snapshot.PriorityNormal
	}

	if sig.required && sig.confidence >= requiredConfidenceFloor {
		return snapshot.GPUModeOff, snapshot.PriorityCritical
	}

	if heavy {
		return snapshot.GPUModeOn, snapshot.PriorityNormal
	}

	onBattery := !snap.Battery.Charging
	if onBattery && isLightOrIdle(snap.WorkloadClass) {
		return snapshot.GPUModeIGPUOnly, snapshot.PriorityNormal
	}

	return snapshot.GPUModeAuto, snapshot.PriorityNormal
}

func isHeavyWorkload(snap snapshot.Snapshot) bool {
	if snap.WorkloadClass == snapshot.WorkloadGaming || snap.WorkloadClass == snapshot.WorkloadAIWorkload {
		return true
	}
	for _, hint := range snap.RunningWorkloadHints {
		if knownGamingLaunchers[hint] {
			return true
		}
	}
	return false
}

func isLightOrIdle(wc snapshot.WorkloadClass) bool {
	return wc == snapshot.WorkloadLightProductivity || wc == snapshot.WorkloadIdle
}
