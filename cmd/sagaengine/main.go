// Command sagaengine is the composition root: it wires persistence,
// hooks, handlers, the step plan, the HTTP and websocket transports,
// and the recovery sweep into one running engine.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/katalystsys/sagaflow/internal/config"
	"github.com/katalystsys/sagaflow/internal/engine"
	"github.com/katalystsys/sagaflow/internal/handlers"
	"github.com/katalystsys/sagaflow/internal/hooks"
	"github.com/katalystsys/sagaflow/internal/hookset"
	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/persistence"
	"github.com/katalystsys/sagaflow/internal/persistence/memstore"
	"github.com/katalystsys/sagaflow/internal/persistence/sqlstore"
	"github.com/katalystsys/sagaflow/internal/planconfig"
	"github.com/katalystsys/sagaflow/internal/recovery"
	"github.com/katalystsys/sagaflow/internal/registry"
	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/steplib"
	"github.com/katalystsys/sagaflow/internal/stepresult"
	"github.com/katalystsys/sagaflow/internal/transport/httpapi"
	"github.com/katalystsys/sagaflow/internal/transport/wsapi"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg := config.Load()
	logStore := logging.New(cfg.LogStoreCapacity)

	clients := steplib.Clients{
		Inventory:    steplib.NewDemoInventoryClient(),
		Payment:      steplib.NewDemoPaymentClient(),
		Shipping:     steplib.NewDemoShippingClient(),
		Notification: steplib.NewDemoNotificationClient(),
	}

	plans := planconfig.NewManager()
	steplib.RegisterFactories(plans, clients)
	if cfg.PlanFile != "" {
		if err := plans.Load(cfg.PlanFile); err != nil {
			log.Fatalf("sagaengine: loading plan file %s: %v", cfg.PlanFile, err)
		}
	} else if err := plans.LoadFromBytes([]byte(planconfig.DefaultPlanYAML)); err != nil {
		log.Fatalf("sagaengine: loading default plan: %v", err)
	}

	var store persistence.Port
	if cfg.DatabaseURL != "" {
		rehy := stepRehydrator{clients: clients}
		sqlStore, err := sqlstore.New(cfg.DatabaseURL, rehy)
		if err != nil {
			log.Fatalf("sagaengine: opening database %s: %v", cfg.DatabaseURL, err)
		}
		store = sqlStore
		logStore.LogAndStore("info", "sagaengine: using SQL persistence at %s", cfg.DatabaseURL)
	} else {
		store = memstore.New()
		logStore.LogAndStore("info", "sagaengine: using in-memory persistence (set DATABASE_URL for durability)")
	}

	hookCh := hooks.NewChain(
		[]hooks.BeforeHook{
			hookset.NewDedupHook(store),
			hookset.NewValidationHook(),
			hookset.NewAuthorizationHook(),
		},
		[]hooks.AfterHook{
			hookset.NewNotificationHook(logStore),
		},
	)

	reg := registry.New()
	reg.Register(handlers.NewInitHandler(store, logStore))
	reg.Register(handlers.NewProcessingHandler(store, logStore))
	reg.Register(handlers.NewRevertingHandler(store, logStore, handlers.CompensationBuilder(steplib.BuildCompensation(clients))))
	reg.Register(handlers.NewResumingHandler(store, logStore))
	reg.Register(handlers.NewTerminalHandler(hookCh, logStore))

	eng := engine.New(store, reg, logStore, hookCh, plans.Build)

	sweeper := recovery.NewSweeper(store, eng, logStore, recovery.Config{
		Interval:  cfg.RecoveryInterval,
		Staleness: cfg.RecoveryStaleness,
		BatchSize: cfg.RecoveryBatchSize,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sweeper.Run(ctx)

	hub := wsapi.NewHub(eng, logStore, 1000)
	defer hub.Close()

	router := httpapi.NewRouter(eng, logStore)
	router.Get("/ws", hub.HandleConnect())

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logStore.LogAndStore("info", "sagaengine: listening on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("sagaengine: server error: %v", err)
	}
}

// stepRehydrator rebuilds live steps for sqlstore from persisted logs,
// binding each action back to its steplib constructor and the demo
// clients wired at startup.
type stepRehydrator struct {
	clients steplib.Clients
}

func (r stepRehydrator) Rehydrate(logs []step.Log) (forward []step.Step, compensation []step.Step) {
	for _, l := range logs {
		s := r.rebuild(l)
		if s == nil {
			continue
		}
		if l.IsCompensation {
			compensation = append(compensation, s)
		} else {
			forward = append(forward, s)
		}
	}
	return forward, compensation
}

func (r stepRehydrator) rebuild(l step.Log) step.Step {
	switch l.Action {
	case steplib.ActionReserveInventory:
		sku, _ := l.Metadata["sku"].(string)
		qty := intFromMetadata(l.Metadata["qty"])
		s := steplib.NewReserveInventoryStep(l.OrderID, l.Index, r.clients.Inventory, sku, qty)
		s.UpdateStatus(resultFromLog(l))
		return s
	case steplib.ActionReleaseInventory:
		s := steplib.NewReleaseInventoryStep(l.OrderID, l.Index, r.clients.Inventory, l.CompensationOf, l.ExternalRefID)
		s.UpdateStatus(resultFromLog(l))
		return s
	case steplib.ActionChargePayment:
		amount := int64(intFromMetadata(l.Metadata["amountCents"]))
		currency, _ := l.Metadata["currency"].(string)
		s := steplib.NewChargePaymentStep(l.OrderID, l.Index, r.clients.Payment, amount, currency, "")
		s.UpdateStatus(resultFromLog(l))
		return s
	case steplib.ActionRefundPayment:
		s := steplib.NewRefundPaymentStep(l.OrderID, l.Index, r.clients.Payment, l.CompensationOf, l.ExternalRefID)
		s.UpdateStatus(resultFromLog(l))
		return s
	case steplib.ActionCreateShipment:
		address, _ := l.Metadata["address"].(string)
		s := steplib.NewCreateShipmentStep(l.OrderID, l.Index, r.clients.Shipping, address)
		s.UpdateStatus(resultFromLog(l))
		return s
	case steplib.ActionSendNotification:
		s := steplib.NewSendNotificationStep(l.OrderID, l.Index, r.clients.Notification, "", "")
		s.UpdateStatus(resultFromLog(l))
		return s
	default:
		log.Printf("sagaengine: rehydrate: unknown action %s, dropping step %s", l.Action, l.StepID)
		return nil
	}
}

// intFromMetadata tolerates both the in-process representation (int)
// and the round-trip-through-JSON representation (float64) a SQL
// store's metadata column produces.
func intFromMetadata(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// resultFromLog reconstructs the Result a persisted step.Log recorded,
// so a rehydrated step starts back up already holding its last known
// outcome instead of PENDING.
func resultFromLog(l step.Log) stepresult.Result {
	return stepresult.Result{
		Status:        l.Status,
		ErrorCode:     l.ErrorCode,
		ErrorMessage:  l.ErrorMessage,
		ExternalRefID: l.ExternalRefID,
		Metadata:      l.Metadata,
	}
}
