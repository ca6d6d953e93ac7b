package domain

import (
	"reflect"
	"testing"
)

func TestCheckpointsCrossed(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
		want []Stage
	}{
		{"no movement", 35, 35, nil},
		{"regression", 90, 10, nil},
		{"single checkpoint", 0, 10, []Stage{10}},
		{"intermediate start", 20, 65, []Stage{35, 65}},
		{"jump to terminal", 20, 100, []Stage{35, 65, 90, 100}},
		{"between checkpoints", 36, 64, nil},
		{"exact landing", 65, 90, []Stage{90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckpointsCrossed(tt.from, tt.to)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("CheckpointsCrossed(%d, %d) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCheckpointEffectsOrdered(t *testing.T) {
	complete := Stage(100).Effects()
	want := []string{EffectConfirmHolds, EffectCreateOrder, EffectAdRequests, EffectContract, EffectBillingSchedule}
	if !reflect.DeepEqual(complete, want) {
		t.Fatalf("stage 100 effects = %v, want %v", complete, want)
	}
	if Stage(42).IsCheckpoint() {
		t.Fatal("42 must not be a checkpoint")
	}
	if effects := Stage(42).Effects(); effects != nil {
		t.Fatalf("intermediate stage effects = %v, want nil", effects)
	}
}

func TestIsRegression(t *testing.T) {
	if !IsRegression(90, 35) {
		t.Fatal("90 -> 35 is a regression")
	}
	if IsRegression(35, 90) || IsRegression(35, 35) {
		t.Fatal("forward or equal transitions are not regressions")
	}
}
