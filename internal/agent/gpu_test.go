package agent

import (
	"testing"

	"github.com/thermopilot/thermopilot/internal/procwatch"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func TestDesiredGPUMode_NeverIGPUOnlyWithExternalOnDGPU(t *testing.T) {
	snap := snapshot.Snapshot{
		Battery:         snapshot.Battery{Charging: false, Pct: 20},
		WorkloadClass:   snapshot.WorkloadIdle,
		DisplayTopology: snapshot.DisplayTopology{HasExternalOnDGPU: true},
	}
	got, _ := desiredGPUMode(snap, gpuPredictorSignal{})
	if got == snapshot.GPUModeIGPUOnly {
		t.Error("must never select IGPUOnly while an external display is bound to the dGPU")
	}
}

func TestDesiredGPUMode_HeavyWorkloadForcesOn(t *testing.T) {
	snap := snapshot.Snapshot{WorkloadClass: snapshot.WorkloadGaming}
	got, prio := desiredGPUMode(snap, gpuPredictorSignal{})
	if got != snapshot.GPUModeOn {
		t.Errorf("desiredGPUMode() = %v, want On for gaming workload", got)
	}
	if prio != snapshot.PriorityNormal {
		t.Errorf("priority = %v, want Normal for plain heavy workload", prio)
	}
}

func TestDesiredGPUMode_RequiredPredictionForcesOffCritical(t *testing.T) {
	// §8 scenario 3: cyberpunk2077.exe launch -> Required, confidence=95 ->
	// GPU_HYBRID_MODE=Off at Critical priority.
	snap := snapshot.Snapshot{WorkloadClass: snapshot.WorkloadIdle}
	got, prio := desiredGPUMode(snap, gpuPredictorSignal{required: true, confidence: 95})
	if got != snapshot.GPUModeOff {
		t.Errorf("desiredGPUMode() = %v, want Off for high-confidence Required prediction", got)
	}
	if prio != snapshot.PriorityCritical {
		t.Errorf("priority = %v, want Critical for high-confidence Required prediction", prio)
	}
}

func TestDesiredGPUMode_LowConfidenceRequiredDoesNotEscalate(t *testing.T) {
	snap := snapshot.Snapshot{WorkloadClass: snapshot.WorkloadIdle}
	got, prio := desiredGPUMode(snap, gpuPredictorSignal{required: true, confidence: requiredConfidenceFloor - 1})
	if got != snapshot.GPUModeOn {
		t.Errorf("desiredGPUMode() = %v, want On when confidence is below the escalation floor", got)
	}
	if prio != snapshot.PriorityNormal {
		t.Errorf("priority = %v, want Normal when confidence is below the escalation floor", prio)
	}
}

func TestDesiredGPUMode_RequiredPredictionNeverEscalatesWithExternalOnDGPU(t *testing.T) {
	snap := snapshot.Snapshot{
		WorkloadClass:   snapshot.WorkloadIdle,
		DisplayTopology: snapshot.DisplayTopology{HasExternalOnDGPU: true},
	}
	got, prio := desiredGPUMode(snap, gpuPredictorSignal{required: true, confidence: 95})
	if got != snapshot.GPUModeOn {
		t.Errorf("desiredGPUMode() = %v, want On (never Off) while an external display is bound to the dGPU", got)
	}
	if prio != snapshot.PriorityNormal {
		t.Errorf("priority = %v, want Normal; the has_external_on_dgpu invariant takes precedence over escalation", prio)
	}
}

func TestDesiredGPUMode_BatteryAndLightWorkloadPrefersIGPUOnly(t *testing.T) {
	snap := snapshot.Snapshot{
		Battery:       snapshot.Battery{Charging: false, Pct: 50},
		WorkloadClass: snapshot.WorkloadLightProductivity,
	}
	got, _ := desiredGPUMode(snap, gpuPredictorSignal{})
	if got != snapshot.GPUModeIGPUOnly {
		t.Errorf("desiredGPUMode() = %v, want IGPUOnly on battery with light workload", got)
	}
}

func TestGPU_Propose_SetsDwellCheck(t *testing.T) {
	g := NewGPU(nil)
	prop := g.Propose(snapshot.Snapshot{}, nil, nil)
	if len(prop.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(prop.Actions))
	}
	if !prop.Actions[0].DwellCheck {
		t.Error("expected GPU hybrid mode action to request a dwell check")
	}
}

func TestGPU_Propose_EscalatesToCriticalForRequiredLaunch(t *testing.T) {
	pred := NewPredictor()
	events := make(chan procwatch.ExecEvent, 1)
	events <- procwatch.ExecEvent{PID: 1, Comm: "cyberpunk2077"}
	close(events)
	pred.Consume(events)

	g := NewGPU(pred)
	prop := g.Propose(snapshot.Snapshot{WorkloadClass: snapshot.WorkloadIdle}, nil, nil)
	if len(prop.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(prop.Actions))
	}
	if prop.Actions[0].Value != string(snapshot.GPUModeOff) {
		t.Errorf("Value = %q, want %q", prop.Actions[0].Value, snapshot.GPUModeOff)
	}
	if prop.Actions[0].Priority != snapshot.PriorityCritical {
		t.Errorf("Priority = %v, want Critical", prop.Actions[0].Priority)
	}
	if prop.Priority != snapshot.PriorityCritical {
		t.Errorf("Proposal.Priority = %v, want Critical", prop.Priority)
	}
}

func TestGPU_PredictorSignal_NilPredictorIsZero(t *testing.T) {
	g := NewGPU(nil)
	sig := g.predictorSignal()
	if sig.required || sig.confidence != 0 {
		t.Errorf("predictorSignal() = %+v, want zero value with no predictor configured", sig)
	}
}

func TestGPU_PredictorSignal_KeepsStrongestRequiredConfidence(t *testing.T) {
	pred := NewPredictor()
	events := make(chan procwatch.ExecEvent, 2)
	events <- procwatch.ExecEvent{PID: 1, Comm: "code"}
	events <- procwatch.ExecEvent{PID: 2, Comm: "cyberpunk2077"}
	close(events)
	pred.Consume(events)

	g := NewGPU(pred)
	sig := g.predictorSignal()
	if !sig.required {
		t.Fatal("expected a Required signal from cyberpunk2077")
	}
	if sig.confidence < requiredConfidenceFloor {
		t.Errorf("confidence = %d, want >= %d to trigger escalation", sig.confidence, requiredConfidenceFloor)
	}
}
