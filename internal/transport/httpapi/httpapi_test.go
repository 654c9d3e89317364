package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/stepresult"
	"github.com/katalystsys/sagaflow/internal/transport/httpapi"
)

type singleStep struct {
	*step.Base
	result stepresult.Result
}

func newSingleStep(orderID string, result stepresult.Result) *singleStep {
	return &singleStep{Base: step.NewBase(orderID, 0, "RESERVE_INVENTORY", "inventory"), result: result}
}

func (s *singleStep) Execute(ctx context.Context) stepresult.Result {
	return s.RunExecute(ctx, func(context.Context) stepresult.Result { return s.result })
}

func (s *singleStep) Query(ctx context.Context) stepresult.Result {
	return s.RunQuery(ctx, func(context.Context) stepresult.Result { return s.Result() })
}

func newTestRouter() http.Handler {
	store := memstore.New()
	logStore := logging.New(100)
	hookCh := hooks.NewChain(
		[]hooks.BeforeHook{hookset.NewDedupHook(store), hookset.NewValidationHook(), hookset.NewAuthorizationHook()},
		[]hooks.AfterHook{hookset.NewNotificationHook(logStore)},
	)

	reg := registry.New()
	reg.Register(handlers.NewInitHandler(store, logStore))
	reg.Register(handlers.NewProcessingHandler(store, logStore))
	reg.Register(handlers.NewRevertingHandler(store, logStore, nil))
	reg.Register(handlers.NewResumingHandler(store, logStore))
	reg.Register(handlers.NewTerminalHandler(hookCh, logStore))

	plan := func(cmd engine.StartCommand, orderID string) ([]step.Step, time.Duration, bool, step.UndoPolicy, error) {
		return []step.Step{newSingleStep(orderID, stepresult.Succeeded("rsv_1", nil))}, time.Hour, true, step.DefaultPolicy(), nil
	}

	eng := engine.New(store, reg, logStore, hookCh, plan)
	return httpapi.NewRouter(eng, logStore)
}

func TestHandleStart_CreatesSagaAndReturnsAccepted(t *testing.T) {
	router := newTestRouter()

	body, _ := json.Marshal(map[string]any{"orderNo": "order-1", "customerId": "cust-1", "orderType": "standard"})
	req := httptest.NewRequest(http.MethodPost, "/sagas/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SUCCESS", resp["status"])
	assert.Equal(t, "order-1", resp["orderNo"])
}

func TestHandleStart_MissingCustomerIDIsRejectedAsFailed(t *testing.T) {
	router := newTestRouter()

	body, _ := json.Marshal(map[string]any{"orderNo": "order-2", "orderType": "standard"})
	req := httptest.NewRequest(http.MethodPost, "/sagas/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "FAILED", resp["status"])
}

func TestHandleQuery_ReturnsExistingSaga(t *testing.T) {
	router := newTestRouter()

	startBody, _ := json.Marshal(map[string]any{"orderNo": "order-3", "customerId": "cust-1", "orderType": "standard"})
	startReq := httptest.NewRequest(http.MethodPost, "/sagas/", bytes.NewReader(startBody))
	startRec := httptest.NewRecorder()
	router.ServeHTTP(startRec, startReq)

	var started map[string]any
	require.NoError(t, json.Unmarshal(startRec.Body.Bytes(), &started))
	orderID := started["orderId"].(string)

	req := httptest.NewRequest(http.MethodGet, "/sagas/"+orderID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orderID, resp["orderId"])
}

func TestHandleQuery_UnknownOrderIDIsNotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/sagas/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleExists_ReflectsPriorSubmission(t *testing.T) {
	router := newTestRouter()

	body, _ := json.Marshal(map[string]any{"orderNo": "order-4", "customerId": "cust-1", "orderType": "standard"})
	req := httptest.NewRequest(http.MethodPost, "/sagas/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	existsReq := httptest.NewRequest(http.MethodGet, "/sagas/by-order-no/order-4/exists", nil)
	existsRec := httptest.NewRecorder()
	router.ServeHTTP(existsRec, existsReq)

	require.Equal(t, http.StatusOK, existsRec.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(existsRec.Body.Bytes(), &resp))
	assert.True(t, resp["exists"])

	missingReq := httptest.NewRequest(http.MethodGet, "/sagas/by-order-no/order-missing/exists", nil)
	missingRec := httptest.NewRecorder()
	router.ServeHTTP(missingRec, missingReq)

	var missingResp map[string]bool
	require.NoError(t, json.Unmarshal(missingRec.Body.Bytes(), &missingResp))
	assert.False(t, missingResp["exists"])
}
