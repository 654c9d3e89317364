package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalystsys/sagaflow/internal/engine"
	"github.com/katalystsys/sagaflow/internal/handlers"
	"github.com/katalystsys/sagaflow/internal/hooks"
	"github.com/katalystsys/sagaflow/internal/hookset"
	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/persistence/memstore"
	"github.com/katalystsys/sagaflow/internal/registry"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

// fakeEngineStep is a scripted step.Step: each call to Execute
// consumes the next result in results, repeating the last one once
// exhausted; Query reports the step's current Result without
// consuming anything. It lets each test drive the handler state machine through
// a specific outcome sequence without depending on steplib's demo
// service clients.
type fakeEngineStep struct {
	*step.Base
	results []stepresult.Result
	calls   int
}

func newForwardStep(orderID string, index int, action step.Action, results ...stepresult.Result) *fakeEngineStep {
	return &fakeEngineStep{Base: step.NewBase(orderID, index, action, "test"), results: results}
}

func newCompensationStep(orderID string, index int, action step.Action, forwardStepID string, results ...stepresult.Result) *fakeEngineStep {
	return &fakeEngineStep{Base: step.NewCompensationBase(orderID, index, action, "test", forwardStepID), results: results}
}

func (s *fakeEngineStep) next() stepresult.Result {
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	return s.results[idx]
}

func (s *fakeEngineStep) Execute(ctx context.Context) stepresult.Result {
	return s.RunExecute(ctx, func(context.Context) stepresult.Result { return s.next() })
}

func (s *fakeEngineStep) Query(ctx context.Context) stepresult.Result {
	return s.RunQuery(ctx, func(context.Context) stepresult.Result { return s.Result() })
}

type stepSpec struct {
	action  step.Action
	results []stepresult.Result
}

func buildPlan(specs []stepSpec, timeout time.Duration, compensationAllowed bool, policy step.UndoPolicy) engine.PlanBuilder {
	return func(_ engine.StartCommand, orderID string) ([]step.Step, time.Duration, bool, step.UndoPolicy, error) {
		steps := make([]step.Step, len(specs))
		for i, spec := range specs {
			steps[i] = newForwardStep(orderID, i, spec.action, spec.results...)
		}
		return steps, timeout, compensationAllowed, policy, nil
	}
}

// succeedingCompensation pairs every forward step with a compensation
// that always succeeds on its first attempt.
func succeedingCompensation(forward step.Step, index int) step.Step {
	return newCompensationStep(forward.OrderID(), index, step.Action("UNDO_"+string(forward.Action())), forward.StepID(), stepresult.Succeeded("", nil))
}

// failingCompensation pairs every forward step with a compensation
// that always fails, for exercising REVERT_FAILED.
func failingCompensation(forward step.Step, index int) step.Step {
	return newCompensationStep(forward.OrderID(), index, step.Action("UNDO_"+string(forward.Action())), forward.StepID(), stepresult.Failed("UNDO_FAILED", "compensation rejected"))
}

func setupEngine(plan engine.PlanBuilder, compensation handlers.CompensationBuilder) (*engine.Engine, *memstore.Store) {
	store := memstore.New()
	logStore := logging.New(100)
	hookCh := hooks.NewChain(
		[]hooks.BeforeHook{hookset.NewDedupHook(store), hookset.NewValidationHook(), hookset.NewAuthorizationHook()},
		[]hooks.AfterHook{hookset.NewNotificationHook(logStore)},
	)

	reg := registry.New()
	reg.Register(handlers.NewInitHandler(store, logStore))
	reg.Register(handlers.NewProcessingHandler(store, logStore))
	reg.Register(handlers.NewRevertingHandler(store, logStore, compensation))
	reg.Register(handlers.NewResumingHandler(store, logStore))
	reg.Register(handlers.NewTerminalHandler(hookCh, logStore))

	return engine.New(store, reg, logStore, hookCh, plan), store
}

func startCmd(orderNo string) engine.StartCommand {
	return engine.StartCommand{OrderNo: orderNo, CustomerID: "cust-1", OrderType: "standard"}
}

func TestEngine_HappyPath_ReachesSuccess(t *testing.T) {
	specs := []stepSpec{
		{action: "RESERVE_INVENTORY", results: []stepresult.Result{stepresult.Succeeded("rsv_1", nil)}},
		{action: "CHARGE_PAYMENT", results: []stepresult.Result{stepresult.Succeeded("chg_1", nil)}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc, err := eng.Start(context.Background(), startCmd("order-1"))
	require.NoError(t, err)
	assert.Equal(t, sagastatus.Success, sc.Status)
}

func TestEngine_MidFlowFailure_CompensatesToReverted(t *testing.T) {
	specs := []stepSpec{
		{action: "RESERVE_INVENTORY", results: []stepresult.Result{stepresult.Succeeded("rsv_1", nil)}},
		{action: "CHARGE_PAYMENT", results: []stepresult.Result{stepresult.Failed("DECLINED", "insufficient funds")}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc, err := eng.Start(context.Background(), startCmd("order-2"))
	require.NoError(t, err)
	assert.Equal(t, sagastatus.Reverted, sc.Status)
	assert.Len(t, sc.CompensationSteps, 1, "only the succeeded RESERVE_INVENTORY step is compensated")
}

func TestEngine_MidFlowFailure_CompensationFailsToRevertFailed(t *testing.T) {
	specs := []stepSpec{
		{action: "RESERVE_INVENTORY", results: []stepresult.Result{stepresult.Succeeded("rsv_1", nil)}},
		{action: "CHARGE_PAYMENT", results: []stepresult.Result{stepresult.Failed("DECLINED", "insufficient funds")}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), failingCompensation)

	sc, err := eng.Start(context.Background(), startCmd("order-3"))
	require.NoError(t, err)
	assert.Equal(t, sagastatus.RevertFailed, sc.Status)
}

func TestEngine_FirstStepFailure_RoutesToFailed(t *testing.T) {
	specs := []stepSpec{
		{action: "RESERVE_INVENTORY", results: []stepresult.Result{stepresult.Failed("OUT_OF_STOCK", "no stock")}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc, err := eng.Start(context.Background(), startCmd("order-4"))
	require.NoError(t, err)
	assert.Equal(t, sagastatus.Failed, sc.Status)
}

func TestEngine_NonUndoableSucceededStep_RoutesToManualReview(t *testing.T) {
	specs := []stepSpec{
		{action: "CREATE_SHIPMENT", results: []stepresult.Result{stepresult.Succeeded("shp_1", nil)}},
		{action: "SEND_NOTIFICATION", results: []stepresult.Result{stepresult.Failed("SEND_FAILED", "gateway down")}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc, err := eng.Start(context.Background(), startCmd("order-5"))
	require.NoError(t, err)
	assert.Equal(t, sagastatus.ManualReview, sc.Status)
}

func TestEngine_PendingStep_ParksThenResumeCompletesViaCallback(t *testing.T) {
	specs := []stepSpec{
		{action: "CHARGE_PAYMENT", results: []stepresult.Result{stepresult.Pending("ext-ref-1")}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc, err := eng.Start(context.Background(), startCmd("order-6"))
	require.NoError(t, err)
	require.Equal(t, sagastatus.Pending, sc.Status, "an async step parks the saga awaiting callback")

	stepID := sc.ForwardSteps[0].StepID()
	callback := stepresult.Succeeded("chg_1", nil)
	sc, err = eng.Resume(context.Background(), engine.ResumeCommand{OrderID: sc.OrderID, StepID: stepID, CallbackResult: &callback})
	require.NoError(t, err)
	assert.Equal(t, sagastatus.Success, sc.Status)
}

func TestEngine_Resume_WithNoCallback_ReQueriesCurrentStep(t *testing.T) {
	specs := []stepSpec{
		{action: "CHARGE_PAYMENT", results: []stepresult.Result{stepresult.Pending("ext-ref-1"), stepresult.Succeeded("chg_1", nil)}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc, err := eng.Start(context.Background(), startCmd("order-7"))
	require.NoError(t, err)
	require.Equal(t, sagastatus.Pending, sc.Status)

	sc.ForwardSteps[0].UpdateStatus(stepresult.Succeeded("chg_1", nil))

	sc, err = eng.Resume(context.Background(), engine.ResumeCommand{OrderID: sc.OrderID})
	require.NoError(t, err)
	assert.Equal(t, sagastatus.Success, sc.Status)
}

func TestEngine_Resume_WithIsRecoveryTrue_RoutesThroughRecoveryGroup(t *testing.T) {
	specs := []stepSpec{
		{action: "CHARGE_PAYMENT", results: []stepresult.Result{stepresult.Pending("ext-ref-1")}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc, err := eng.Start(context.Background(), startCmd("order-8"))
	require.NoError(t, err)
	require.Equal(t, sagastatus.Pending, sc.Status)

	sc.ForwardSteps[0].UpdateStatus(stepresult.Succeeded("chg_1", nil))

	sc, err = eng.Resume(context.Background(), engine.ResumeCommand{OrderID: sc.OrderID, IsRecovery: true})
	require.NoError(t, err)
	assert.Equal(t, sagastatus.Success, sc.Status)
}

func TestEngine_Resume_RefusesAlreadyTerminalSaga(t *testing.T) {
	specs := []stepSpec{
		{action: "RESERVE_INVENTORY", results: []stepresult.Result{stepresult.Succeeded("rsv_1", nil)}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc, err := eng.Start(context.Background(), startCmd("order-9"))
	require.NoError(t, err)
	require.Equal(t, sagastatus.Success, sc.Status)

	sc, err = eng.Resume(context.Background(), engine.ResumeCommand{OrderID: sc.OrderID})
	require.NoError(t, err)
	assert.Equal(t, sagastatus.Success, sc.Status, "resuming a terminal saga is a no-op")
}

func TestEngine_Resume_ConcurrentCallsAreMutuallyExclusive(t *testing.T) {
	specs := []stepSpec{
		{action: "CHARGE_PAYMENT", results: []stepresult.Result{stepresult.Pending("ext-ref-1")}},
	}
	eng, store := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc, err := eng.Start(context.Background(), startCmd("order-10"))
	require.NoError(t, err)
	require.Equal(t, sagastatus.Pending, sc.Status)

	locked, err := store.TryLock(context.Background(), sc.OrderID)
	require.NoError(t, err)
	require.True(t, locked, "simulate a concurrent Resume already holding the lock")

	_, err = eng.Resume(context.Background(), engine.ResumeCommand{OrderID: sc.OrderID})
	assert.Error(t, err, "a second Resume cannot acquire the per-saga lock while the first holds it")
}

func TestEngine_Resume_MidRevertPendingDoesNotSkipNextCompensation(t *testing.T) {
	specs := []stepSpec{
		{action: "RESERVE_INVENTORY", results: []stepresult.Result{stepresult.Succeeded("rsv_1", nil)}},
		{action: "CHARGE_PAYMENT", results: []stepresult.Result{stepresult.Succeeded("chg_1", nil)}},
		{action: "CREATE_SHIPMENT", results: []stepresult.Result{stepresult.Failed("CARRIER_DOWN", "no carrier available")}},
	}
	compensation := func(forward step.Step, index int) step.Step {
		cs := newCompensationStep(forward.OrderID(), index, step.Action("UNDO_"+string(forward.Action())), forward.StepID())
		switch forward.Action() {
		case "CHARGE_PAYMENT":
			cs.results = []stepresult.Result{stepresult.Pending("ext-ref-undo-1")}
		default:
			cs.results = []stepresult.Result{stepresult.Succeeded("", nil)}
		}
		return cs
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), compensation)

	sc, err := eng.Start(context.Background(), startCmd("order-12"))
	require.NoError(t, err)
	require.Equal(t, sagastatus.RevertingPending, sc.Status, "compensation for CHARGE_PAYMENT parks awaiting callback")
	require.Len(t, sc.CompensationSteps, 2, "both succeeded forward steps need compensation")

	firstCompensationStepID := sc.CompensationSteps[0].StepID()
	callback := stepresult.Succeeded("undo_chg_1", nil)
	sc, err = eng.Resume(context.Background(), engine.ResumeCommand{OrderID: sc.OrderID, StepID: firstCompensationStepID, CallbackResult: &callback})
	require.NoError(t, err)

	assert.Equal(t, sagastatus.Reverted, sc.Status)
	second := sc.CompensationSteps[1].(*fakeEngineStep)
	assert.Equal(t, 1, second.calls, "the second compensation step must actually execute, not be skipped by a double cursor advance")
}

func TestEngine_Start_RejectsDuplicateOrderNo(t *testing.T) {
	specs := []stepSpec{
		{action: "RESERVE_INVENTORY", results: []stepresult.Result{stepresult.Succeeded("rsv_1", nil)}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc1, err := eng.Start(context.Background(), startCmd("order-dup"))
	require.NoError(t, err)
	assert.Equal(t, sagastatus.Success, sc1.Status)

	sc2, err := eng.Start(context.Background(), startCmd("order-dup"))
	require.NoError(t, err)
	assert.Equal(t, sagastatus.Failed, sc2.Status, "the dedup hook rejects a second saga for the same orderNo")
}

func TestEngine_Start_ValidationHookRejectsMissingCustomerID(t *testing.T) {
	specs := []stepSpec{
		{action: "RESERVE_INVENTORY", results: []stepresult.Result{stepresult.Succeeded("rsv_1", nil)}},
	}
	eng, _ := setupEngine(buildPlan(specs, time.Hour, true, step.DefaultPolicy()), succeedingCompensation)

	sc, err := eng.Start(context.Background(), engine.StartCommand{OrderNo: "order-11", OrderType: "standard"})
	require.NoError(t, err)
	assert.Equal(t, sagastatus.Failed, sc.Status)
}
