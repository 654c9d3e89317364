package sagacontext

import "github.com/katalystsys/sagaflow/internal/sagastatus"

// edges enumerates the state-machine topology. It is deliberately
// coarse: it says which status groups CAN follow which, not the
// conditions that select among them — those conditions live in the
// handlers. RESUMING/RECOVERY_PROCESSING share PROCESSING's successors
// and RESUMING_REVERTING/RECOVERY_REVERTING share REVERTING's, because
// ResumingHandler runs the same algorithm for all four and simply
// re-enters the forward or reverting branch of the machine once it has
// resolved the in-flight step.
var edges = map[sagastatus.Status][]sagastatus.Status{
	sagastatus.Init: {
		sagastatus.Processing,
		sagastatus.Failed,
		sagastatus.SystemError,
	},
	sagastatus.Processing: {
		sagastatus.Processing,
		sagastatus.Success,
		sagastatus.Pending,
		sagastatus.Reverting,
		sagastatus.Failed,
		sagastatus.ManualReview,
		sagastatus.RevertFailed,
		sagastatus.SystemError,
		sagastatus.Timeout,
		sagastatus.Resuming,
		sagastatus.RecoveryProcessing,
	},
	sagastatus.Pending: {
		sagastatus.Processing,
		sagastatus.Reverting,
		sagastatus.Timeout,
		sagastatus.Resuming,
		sagastatus.RecoveryProcessing,
	},
	sagastatus.Resuming: {
		sagastatus.Processing,
		sagastatus.Success,
		sagastatus.Pending,
		sagastatus.Reverting,
		sagastatus.Failed,
		sagastatus.ManualReview,
		sagastatus.RevertFailed,
		sagastatus.SystemError,
		sagastatus.Timeout,
	},
	sagastatus.RecoveryProcessing: {
		sagastatus.Processing,
		sagastatus.Success,
		sagastatus.Pending,
		sagastatus.Reverting,
		sagastatus.Failed,
		sagastatus.ManualReview,
		sagastatus.RevertFailed,
		sagastatus.SystemError,
		sagastatus.Timeout,
	},
	sagastatus.Reverting: {
		sagastatus.Reverting,
		sagastatus.Reverted,
		sagastatus.RevertingPending,
		sagastatus.RevertFailed,
		sagastatus.SystemError,
		sagastatus.Timeout,
		sagastatus.ResumingReverting,
		sagastatus.RecoveryReverting,
	},
	sagastatus.RevertingPending: {
		sagastatus.Reverting,
		sagastatus.Reverted,
		sagastatus.RevertFailed,
		sagastatus.Timeout,
		sagastatus.ResumingReverting,
		sagastatus.RecoveryReverting,
	},
	sagastatus.ResumingReverting: {
		sagastatus.Reverting,
		sagastatus.Reverted,
		sagastatus.RevertingPending,
		sagastatus.RevertFailed,
		sagastatus.SystemError,
		sagastatus.Timeout,
	},
	sagastatus.RecoveryReverting: {
		sagastatus.Reverting,
		sagastatus.Reverted,
		sagastatus.RevertingPending,
		sagastatus.RevertFailed,
		sagastatus.SystemError,
		sagastatus.Timeout,
	},
}

// CanTransition reports whether next is a topologically valid
// successor of from, per the edge table above. Terminal statuses have
// no entry and therefore no valid successors.
func CanTransition(from, next sagastatus.Status) bool {
	for _, s := range edges[from] {
		if s == next {
			return true
		}
	}
	return false
}
