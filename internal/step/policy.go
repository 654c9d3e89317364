package step

// UndoPolicy decides, for a given forward action, whether a succeeded
// step can be compensated and whether it is a "non-undoable add" that
// forces MANUAL_REVIEW instead of REVERTING when a later step fails.
// This is a configuration parameter rather than a hardcoded list — see
// internal/planconfig for the YAML-driven implementation loaded at
// startup.
type UndoPolicy interface {
	// RequiresCompensation reports whether a succeeded step for this
	// action should be paired with a compensation step when the saga
	// starts reverting.
	RequiresCompensation(action Action) bool
	// IsNonUndoableAdd reports whether a succeeded step for this
	// action has an external effect that cannot be rolled back at
	// all (e.g. a notification already sent).
	IsNonUndoableAdd(action Action) bool
}

// StaticPolicy is a fixed-table UndoPolicy, used as the default when
// no plan-specific policy is configured.
type StaticPolicy struct {
	Compensable  map[Action]bool
	NonUndoable  map[Action]bool
}

// DefaultPolicy treats shipment creation and notification dispatch as
// non-undoable "add" actions; everything else is assumed compensable.
func DefaultPolicy() StaticPolicy {
	return StaticPolicy{
		NonUndoable: map[Action]bool{
			"CREATE_SHIPMENT":   true,
			"SEND_NOTIFICATION": true,
		},
	}
}

func (p StaticPolicy) RequiresCompensation(action Action) bool {
	if p.NonUndoable[action] {
		return false
	}
	if p.Compensable == nil {
		return true
	}
	return p.Compensable[action]
}

func (p StaticPolicy) IsNonUndoableAdd(action Action) bool {
	return p.NonUndoable[action]
}
