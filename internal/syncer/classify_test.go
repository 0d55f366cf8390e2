package syncer

import "testing"

func TestClassifyBoundaries(t *testing.T) {
	th := Thresholds{Accept: 0.05, Reject: 2.5}
	tests := []struct {
		offset float64
		want   Outcome
	}{
		{0, OutcomeAccept},
		{0.05, OutcomeAccept},
		{0.051, OutcomeSoftAccept},
		{1.2, OutcomeSoftAccept},
		{2.5, OutcomeSoftAccept},
		{2.501, OutcomeReject},
		{90, OutcomeReject},
	}
	for _, tc := range tests {
		if got := th.Classify(tc.offset); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.offset, got, tc.want)
		}
	}
}

func TestOutcomeAccepted(t *testing.T) {
	if !OutcomeAccept.Accepted() || !OutcomeSoftAccept.Accepted() {
		t.Fatal("accept outcomes must be accepted")
	}
	if OutcomeReject.Accepted() || OutcomeToolFailure.Accepted() {
		t.Fatal("reject and tool failure must not be accepted")
	}
}
