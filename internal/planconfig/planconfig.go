// Package planconfig loads YAML-defined step plans per order type and
// builds the forward-step array, timeout, and undo policy an engine
// needs to start a saga. It generalizes a scenario/rule YAML mechanism
// into declarative per-order-type plans: which actions run, in what
// order, and which of them are compensable or non-undoable.
package planconfig

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/katalystsys/sagaflow/internal/engine"
	"github.com/katalystsys/sagaflow/internal/step"
)

// StepFactory builds the concrete step.Step for one action at the
// given forward index from a start command. Deployments register one
// per action name; internal/steplib supplies factories for the demo
// order-fulfillment actions.
type StepFactory func(orderID string, index int, cmd engine.StartCommand) (step.Step, error)

type planFile struct {
	Plans []planSpec `yaml:"plans"`
}

type planSpec struct {
	OrderType           string   `yaml:"orderType"`
	TimeoutSeconds      int      `yaml:"timeoutSeconds"`
	CompensationAllowed bool     `yaml:"compensationAllowed"`
	Steps               []string `yaml:"steps"`
	NonUndoable         []string `yaml:"nonUndoable"`
	Compensable         []string `yaml:"compensable"`
}

// Manager holds the loaded plans and the action -> factory bindings
// needed to realize them as live steps.
type Manager struct {
	plans     map[string]planSpec
	factories map[step.Action]StepFactory
}

// NewManager builds an empty Manager; call Load then RegisterFactory
// for every action the loaded plans reference before calling Build.
func NewManager() *Manager {
	return &Manager{
		plans:     map[string]planSpec{},
		factories: map[step.Action]StepFactory{},
	}
}

// Load reads and parses a plan file from disk.
func (m *Manager) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("planconfig: reading %s: %w", path, err)
	}
	return m.LoadFromBytes(data)
}

// LoadFromBytes parses plan YAML directly, for tests and embedded
// defaults.
func (m *Manager) LoadFromBytes(data []byte) error {
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("planconfig: parsing YAML: %w", err)
	}
	for _, p := range pf.Plans {
		m.plans[p.OrderType] = p
	}
	log.Printf("planconfig: loaded %d plan(s)", len(pf.Plans))
	return nil
}

// RegisterFactory binds a StepFactory to an action name referenced by
// one or more loaded plans.
func (m *Manager) RegisterFactory(action step.Action, factory StepFactory) {
	m.factories[action] = factory
}

// Build implements engine.PlanBuilder: it looks up the plan for
// cmd.OrderType, builds each step in order via its registered factory,
// and derives the UndoPolicy from the plan's nonUndoable/compensable
// lists. A plan with no nonUndoable list gets step.DefaultPolicy()'s
// non-undoable actions.
func (m *Manager) Build(cmd engine.StartCommand, orderID string) ([]step.Step, time.Duration, bool, step.UndoPolicy, error) {
	plan, ok := m.plans[cmd.OrderType]
	if !ok {
		return nil, 0, false, step.StaticPolicy{}, fmt.Errorf("planconfig: no plan registered for order type %q", cmd.OrderType)
	}

	steps := make([]step.Step, 0, len(plan.Steps))
	for i, actionName := range plan.Steps {
		action := step.Action(actionName)
		factory, ok := m.factories[action]
		if !ok {
			return nil, 0, false, step.StaticPolicy{}, fmt.Errorf("planconfig: no step factory registered for action %q", actionName)
		}
		s, err := factory(orderID, i, cmd)
		if err != nil {
			return nil, 0, false, step.StaticPolicy{}, fmt.Errorf("planconfig: building step %q: %w", actionName, err)
		}
		steps = append(steps, s)
	}

	policy := step.StaticPolicy{
		NonUndoable: toActionSet(plan.NonUndoable),
	}
	if policy.NonUndoable == nil {
		policy.NonUndoable = step.DefaultPolicy().NonUndoable
	}
	if len(plan.Compensable) > 0 {
		policy.Compensable = toActionSet(plan.Compensable)
	}

	timeout := time.Duration(plan.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Hour
	}

	return steps, timeout, plan.CompensationAllowed, policy, nil
}

func toActionSet(names []string) map[step.Action]bool {
	if len(names) == 0 {
		return nil
	}
	out := make(map[step.Action]bool, len(names))
	for _, n := range names {
		out[step.Action(n)] = true
	}
	return out
}

// DefaultPlanYAML is the demo order-fulfillment plan this repository
// ships: reserve inventory, charge payment, create shipment, send
// notification, with shipment and notification treated as non-undoable.
const DefaultPlanYAML = `
plans:
  - orderType: standard
    timeoutSeconds: 3600
    compensationAllowed: true
    steps:
      - RESERVE_INVENTORY
      - CHARGE_PAYMENT
      - CREATE_SHIPMENT
      - SEND_NOTIFICATION
    nonUndoable:
      - CREATE_SHIPMENT
      - SEND_NOTIFICATION
`
