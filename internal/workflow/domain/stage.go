// Package domain holds the campaign progress state machine. Progress is an
// ordinal value; only the named checkpoints carry side effects.
package domain

// Stage is a campaign progress value between 0 and 100.
type Stage int

// Canonical checkpoints. Intermediate values are legal progress states but
// have no attached effects.
const (
	StageBuildable Stage = 10
	StageValidated Stage = 35
	StageApproval  Stage = 65
	StageReserved  Stage = 90
	StageComplete  Stage = 100
)

// Checkpoints in ascending order.
var Checkpoints = []Stage{StageBuildable, StageValidated, StageApproval, StageReserved, StageComplete}

// Effect names the trigger records in its idempotency table. One row per
// (campaign, stage, effect) guarantees each runs at most once.
const (
	EffectMarkBuildable     = "mark_buildable"
	EffectValidateSchedule  = "validate_schedule"
	EffectRateTracking      = "begin_rate_tracking"
	EffectRequestApproval   = "request_approval"
	EffectExclusivityCheck  = "exclusivity_check"
	EffectReserveSlots      = "reserve_slots"
	EffectAdminApproval     = "request_admin_approval"
	EffectConfirmHolds      = "confirm_reservations"
	EffectCreateOrder       = "create_order"
	EffectAdRequests        = "generate_ad_requests"
	EffectContract          = "generate_contract"
	EffectBillingSchedule   = "create_billing_schedule"
	EffectReleaseOnRollback = "release_reservations"
)

// effectsByStage maps each checkpoint to its ordered effect steps.
var effectsByStage = map[Stage][]string{
	StageBuildable: {EffectMarkBuildable},
	StageValidated: {EffectValidateSchedule, EffectRateTracking},
	StageApproval:  {EffectRequestApproval, EffectExclusivityCheck},
	StageReserved:  {EffectReserveSlots, EffectAdminApproval},
	StageComplete:  {EffectConfirmHolds, EffectCreateOrder, EffectAdRequests, EffectContract, EffectBillingSchedule},
}

// Valid reports whether s is a representable progress value.
func (s Stage) Valid() bool {
	return s >= 0 && s <= 100
}

// IsCheckpoint reports whether s carries side effects.
func (s Stage) IsCheckpoint() bool {
	_, ok := effectsByStage[s]
	return ok
}

// Effects returns the ordered effect steps for a checkpoint, nil for
// intermediate values.
func (s Stage) Effects() []string {
	return effectsByStage[s]
}

// CheckpointsCrossed returns every checkpoint in (from, to], in order. A
// jump from 20 straight to 100 still executes the 35, 65, 90 and 100
// effects.
func CheckpointsCrossed(from, to Stage) []Stage {
	if to <= from {
		return nil
	}
	var crossed []Stage
	for _, cp := range Checkpoints {
		if cp > from && cp <= to {
			crossed = append(crossed, cp)
		}
	}
	return crossed
}

// IsRegression reports whether the transition moves progress backwards,
// which reverses reservations instead of running checkpoint effects.
func IsRegression(from, to Stage) bool {
	return to < from
}
