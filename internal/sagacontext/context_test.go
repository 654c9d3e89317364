package sagacontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

type fakeStep struct {
	id             string
	action         step.Action
	isCompensation bool
	compensationOf string
	status         sagastatus.StepStatus
	result         stepresult.Result
}

func (f *fakeStep) StepID() string               { return f.id }
func (f *fakeStep) OrderID() string              { return "order-1" }
func (f *fakeStep) Index() int                   { return 0 }
func (f *fakeStep) Action() step.Action          { return f.action }
func (f *fakeStep) ServiceType() string          { return "test" }
func (f *fakeStep) IsCompensation() bool         { return f.isCompensation }
func (f *fakeStep) CompensationOf() string       { return f.compensationOf }
func (f *fakeStep) Status() sagastatus.StepStatus { return f.status }
func (f *fakeStep) Result() stepresult.Result    { return f.result }
func (f *fakeStep) Execute(_ context.Context) stepresult.Result { return f.result }
func (f *fakeStep) Query(_ context.Context) stepresult.Result   { return f.result }
func (f *fakeStep) UpdateStatus(r stepresult.Result) bool {
	f.status = r.Status
	f.result = r
	return true
}
func (f *fakeStep) ToLog() step.Log { return step.Log{StepID: f.id, Action: f.action} }

func newSteps(actions ...step.Action) []step.Step {
	out := make([]step.Step, len(actions))
	for i, a := range actions {
		out[i] = &fakeStep{id: string(a), action: a, status: sagastatus.StepPending}
	}
	return out
}

func TestNew_StartsAtInitWithCursorBeforeStart(t *testing.T) {
	steps := newSteps("A", "B")
	sc := New("o1", "order-1", "cust-1", steps, time.Hour, true, nil, step.DefaultPolicy())

	assert.Equal(t, sagastatus.Init, sc.Status)
	assert.Equal(t, -1, sc.CurrentStep)
	assert.NotNil(t, sc.Metadata, "nil metadata should be normalized to an empty map")
}

func TestTransition_RejectsInvalidEdge(t *testing.T) {
	sc := New("o1", "order-1", "cust-1", newSteps("A"), time.Hour, true, nil, step.DefaultPolicy())

	err := sc.Transition(sagastatus.Success)
	require.Error(t, err, "INIT cannot jump directly to SUCCESS")
}

func TestTransition_RejectsLeavingTerminal(t *testing.T) {
	sc := New("o1", "order-1", "cust-1", newSteps("A"), time.Hour, true, nil, step.DefaultPolicy())
	require.NoError(t, sc.Transition(sagastatus.Processing))
	require.NoError(t, sc.Transition(sagastatus.Success))

	err := sc.Transition(sagastatus.Processing)
	require.Error(t, err)
}

func TestNextForwardStep_AdvancesThenExhausts(t *testing.T) {
	sc := New("o1", "order-1", "cust-1", newSteps("A", "B"), time.Hour, true, nil, step.DefaultPolicy())

	s, ok := sc.NextForwardStep()
	require.True(t, ok)
	assert.Equal(t, step.Action("A"), s.Action())
	assert.False(t, sc.IsLastForwardStep())

	s, ok = sc.NextForwardStep()
	require.True(t, ok)
	assert.Equal(t, step.Action("B"), s.Action())
	assert.True(t, sc.IsLastForwardStep())

	_, ok = sc.NextForwardStep()
	assert.False(t, ok)
}

func TestIsExpired(t *testing.T) {
	sc := New("o1", "order-1", "cust-1", newSteps("A"), time.Minute, true, nil, step.DefaultPolicy())
	sc.CreatedAt = time.Now().Add(-2 * time.Minute)

	assert.True(t, sc.IsExpired(time.Now()))
}

func TestExtendTimeoutIfNeeded_GrowsWhenBudgetTight(t *testing.T) {
	sc := New("o1", "order-1", "cust-1", newSteps("A"), time.Minute, true, nil, step.DefaultPolicy())
	before := sc.Timeout
	sc.ExtendTimeoutIfNeeded(time.Now())
	assert.Greater(t, sc.Timeout, before)
}

func TestBuildCompensationSteps_OnlyCompensableSucceededSteps(t *testing.T) {
	sc := New("o1", "order-1", "cust-1", newSteps("RESERVE_INVENTORY", "CREATE_SHIPMENT"), time.Hour, true, nil, step.DefaultPolicy())
	sc.ForwardSteps[0].UpdateStatus(stepresult.Succeeded("ref-1", nil))
	sc.ForwardSteps[1].UpdateStatus(stepresult.Succeeded("ref-2", nil))

	var built []step.Action
	sc.BuildCompensationSteps(func(forward step.Step, index int) step.Step {
		built = append(built, forward.Action())
		return &fakeStep{id: "comp-" + forward.StepID(), action: "COMPENSATE", isCompensation: true, compensationOf: forward.StepID()}
	})

	assert.Equal(t, []step.Action{"RESERVE_INVENTORY"}, built, "CREATE_SHIPMENT is non-undoable and must not be compensated")
	assert.Len(t, sc.CompensationSteps, 1)
}

func TestHasAnyNonUndoableSucceeded(t *testing.T) {
	sc := New("o1", "order-1", "cust-1", newSteps("RESERVE_INVENTORY", "CREATE_SHIPMENT"), time.Hour, true, nil, step.DefaultPolicy())
	assert.False(t, sc.HasAnyNonUndoableSucceeded())

	sc.ForwardSteps[1].UpdateStatus(stepresult.Succeeded("ref", nil))
	assert.True(t, sc.HasAnyNonUndoableSucceeded())
}

func TestFirstStepFailed(t *testing.T) {
	sc := New("o1", "order-1", "cust-1", newSteps("A", "B"), time.Hour, true, nil, step.DefaultPolicy())
	_, _ = sc.NextForwardStep()
	assert.True(t, sc.FirstStepFailed())

	_, _ = sc.NextForwardStep()
	assert.False(t, sc.FirstStepFailed())
}
