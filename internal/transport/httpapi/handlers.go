// Package httpapi exposes the engine over a chi-routed REST surface:
// submit an order, resume/callback a parked saga, query a saga, and
// check for an existing saga by external order number. Handlers are
// constructor functions taking their collaborators, returning
// http.HandlerFunc — the same factory shape used throughout this
// repository's other transport surfaces.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/katalystsys/sagaflow/internal/engine"
	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

type startRequest struct {
	OrderNo    string           `json:"orderNo"`
	CustomerID string           `json:"customerId"`
	OrderType  string           `json:"orderType"`
	Items      []map[string]any `json:"items"`
	Payment    map[string]any   `json:"payment"`
	Shipping   map[string]any   `json:"shipping"`
	Metadata   map[string]any   `json:"metadata"`
}

type resumeRequest struct {
	StepID         string         `json:"stepId"`
	CallbackStatus string         `json:"callbackStatus"`
	ErrorCode      string         `json:"errorCode"`
	ErrorMessage   string         `json:"errorMessage"`
	ExternalRefID  string         `json:"externalRefId"`
	Metadata       map[string]any `json:"metadata"`
}

type sagaResponse struct {
	OrderID          string   `json:"orderId"`
	OrderNo          string   `json:"orderNo"`
	Status           string   `json:"status"`
	ProcessedStepIDs []string `json:"processedStepIds"`
	ErrorCode        string   `json:"errorCode,omitempty"`
	ErrorMessage     string   `json:"errorMessage,omitempty"`
}

func toResponse(sc *sagacontext.SagaContext) sagaResponse {
	return sagaResponse{
		OrderID:          sc.OrderID,
		OrderNo:          sc.OrderNo,
		Status:           string(sc.Status),
		ProcessedStepIDs: sc.ProcessedStepIDs,
		ErrorCode:        sc.LastResult.ErrorCode,
		ErrorMessage:     sc.LastResult.ErrorMessage,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleStart accepts a new saga submission.
func HandleStart(eng *engine.Engine, logStore *logging.LogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		sc, err := eng.Start(r.Context(), engine.StartCommand{
			OrderNo:    req.OrderNo,
			CustomerID: req.CustomerID,
			OrderType:  req.OrderType,
			Items:      req.Items,
			Payment:    req.Payment,
			Shipping:   req.Shipping,
			Metadata:   req.Metadata,
		})
		if err != nil {
			logStore.LogAndStore("error", "httpapi: start failed for order %s: %v", req.OrderNo, err)
			http.Error(w, "failed to start saga: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, toResponse(sc))
	}
}

// HandleResume accepts an external callback (or a manual nudge) for a
// saga identified by {orderId} in the URL.
func HandleResume(eng *engine.Engine, logStore *logging.LogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderId")

		var req resumeRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
				return
			}
		}

		var callback *stepresult.Result
		if req.StepID != "" {
			result := resultFromCallback(req)
			callback = &result
		}

		sc, err := eng.Resume(r.Context(), engine.ResumeCommand{
			OrderID:        orderID,
			StepID:         req.StepID,
			CallbackResult: callback,
			Source:         "http",
		})
		if err != nil {
			logStore.LogAndStore("error", "httpapi: resume failed for saga %s: %v", orderID, err)
			http.Error(w, "failed to resume saga: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(sc))
	}
}

func resultFromCallback(req resumeRequest) stepresult.Result {
	switch req.CallbackStatus {
	case "SUCCEEDED":
		return stepresult.Succeeded(req.ExternalRefID, req.Metadata)
	case "REJECTED":
		return stepresult.Rejected(req.ErrorCode, req.ErrorMessage)
	default:
		return stepresult.Failed(req.ErrorCode, req.ErrorMessage)
	}
}

// HandleQuery returns the current state of a saga.
func HandleQuery(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderId")
		sc, err := eng.Query(r.Context(), orderID)
		if err != nil {
			http.Error(w, "saga not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(sc))
	}
}

// HandleExists reports whether a saga already exists for {orderNo}.
func HandleExists(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderNo := chi.URLParam(r, "orderNo")
		exists, err := eng.Exists(r.Context(), orderNo)
		if err != nil {
			http.Error(w, "failed to check existence: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
	}
}
