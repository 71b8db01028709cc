package agent

import (
	"testing"

	"github.com/thermopilot/thermopilot/internal/procwatch"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func TestPredictor_Consume_ClassifiesKnownProcess(t *testing.T) {
	p := NewPredictor()
	events := make(chan procwatch.ExecEvent, 1)
	events <- procwatch.ExecEvent{PID: 42, Comm: "Blender"}
	close(events)

	p.Consume(events)

	latest := p.Latest()
	if len(latest) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(latest))
	}
	if latest[0].RecommendedMode != ModeRequired {
		t.Errorf("expected blender to classify as Required, got %v", latest[0].RecommendedMode)
	}
}

func TestPredictor_Consume_UnknownProcessIsZeroConfidence(t *testing.T) {
	p := NewPredictor()
	events := make(chan procwatch.ExecEvent, 1)
	events <- procwatch.ExecEvent{PID: 7, Comm: "some_custom_tool"}
	close(events)

	p.Consume(events)

	latest := p.Latest()
	if latest[0].RecommendedMode != ModeUnknown || latest[0].Confidence != 0 {
		t.Errorf("expected unknown classification with 0 confidence, got %+v", latest[0])
	}
}

func TestPredictor_Propose_NeverEmitsActions(t *testing.T) {
	p := NewPredictor()
	prop := p.Propose(snapshot.Snapshot{}, nil, nil)
	if len(prop.Actions) != 0 {
		t.Errorf("expected predictor to never emit HAL actions, got %d", len(prop.Actions))
	}
}
