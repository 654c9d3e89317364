package engine

import "github.com/katalystsys/sagaflow/internal/stepresult"

// StartCommand carries the input needed to start a new saga. ItemSpecs
// is left generic (map[string]any) so the demo step library and any
// deployment-specific plan builder can shape it to their own order
// model without this package depending on a concrete catalog type.
type StartCommand struct {
	OrderNo    string
	CustomerID string
	OrderType  string
	Items      []map[string]any
	Payment    map[string]any
	Shipping   map[string]any
	Metadata   map[string]any
}

// ResumeCommand carries the input needed to resume or recover a saga.
type ResumeCommand struct {
	OrderID        string
	StepID         string
	CallbackResult *stepresult.Result
	IsRecovery     bool
	Source         string
}
