package agent

import "testing"

func TestComputeSeverity_WeightedSum(t *testing.T) {
	in := Inputs{BatteryUrgency: 1.0, ThermalPressure: 0.5, UtilSignal: 0.2, DwellSignal: 0.0}
	w := DefaultWeights()

	got := ComputeSeverity(in, w)
	want := 0.5*1.0 + 0.3*0.5 + 0.1*0.2 + 0.1*0.0
	if got != want {
		t.Errorf("ComputeSeverity() = %v, want %v", got, want)
	}
}

func TestTargetProfile_SequentialThresholds(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		severity float64
		want     PowerProfile
	}{
		{0.0, ProfileBalanced},
		{0.29, ProfileBalanced},
		{0.3, ProfilePowerSaving},
		{0.5, ProfilePowerSaving},
		{0.7, ProfileMaximumPowerSaving},
		{1.0, ProfileMaximumPowerSaving},
	}

	for _, c := range cases {
		if got := TargetProfile(c.severity, th); got != c.want {
			t.Errorf("TargetProfile(%v) = %v, want %v", c.severity, got, c.want)
		}
	}
}
