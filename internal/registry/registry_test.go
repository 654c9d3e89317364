package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
)

type stubHandler struct {
	statuses []sagastatus.Status
	calls    int
}

func (h *stubHandler) Statuses() []sagastatus.Status { return h.statuses }
func (h *stubHandler) Handle(_ context.Context, sc *sagacontext.SagaContext, _ *Registry) (*sagacontext.SagaContext, error) {
	h.calls++
	return sc, nil
}

func TestDispatch_RoutesToOwningHandler(t *testing.T) {
	reg := New()
	processing := &stubHandler{statuses: []sagastatus.Status{sagastatus.Processing}}
	terminal := &stubHandler{statuses: []sagastatus.Status{sagastatus.Success, sagastatus.Failed}}
	reg.Register(processing)
	reg.Register(terminal)

	sc := &sagacontext.SagaContext{Status: sagastatus.Processing}
	_, err := reg.Dispatch(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, 1, processing.calls)
	assert.Equal(t, 0, terminal.calls)

	sc.Status = sagastatus.Success
	_, err = reg.Dispatch(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, 1, terminal.calls)
}

func TestDispatch_UnregisteredStatusIsAnError(t *testing.T) {
	reg := New()
	sc := &sagacontext.SagaContext{Status: sagastatus.Reverting}

	_, err := reg.Dispatch(context.Background(), sc)
	require.Error(t, err)
	var notFound ErrHandlerNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, sagastatus.Reverting, notFound.Status)
}
