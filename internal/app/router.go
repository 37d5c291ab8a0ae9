package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kivu-erp/kivu-erp/internal/budget"
	"github.com/kivu-erp/kivu-erp/internal/directory"
	"github.com/kivu-erp/kivu-erp/internal/fx"
	"github.com/kivu-erp/kivu-erp/internal/ledger"
	"github.com/kivu-erp/kivu-erp/internal/observability"
	"github.com/kivu-erp/kivu-erp/internal/requisition"
	"github.com/kivu-erp/kivu-erp/internal/stores"
	"github.com/kivu-erp/kivu-erp/internal/treasury"
	"github.com/kivu-erp/kivu-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	DirectoryHandler   *directory.Handler
	FxHandler          *fx.Handler
	LedgerHandler      *ledger.Handler
	TreasuryHandler    *treasury.Handler
	RequisitionHandler *requisition.Handler
	StoresHandler      *stores.Handler
	BudgetHandler      *budget.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Kivu defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.DirectoryHandler != nil {
		r.Route("/directory", params.DirectoryHandler.MountRoutes)
	}
	if params.FxHandler != nil {
		r.Route("/fx", params.FxHandler.MountRoutes)
	}
	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.TreasuryHandler != nil {
		r.Route("/treasury", params.TreasuryHandler.MountRoutes)
	}
	if params.RequisitionHandler != nil {
		r.Route("/requisitions", params.RequisitionHandler.MountRoutes)
	}
	if params.StoresHandler != nil {
		r.Route("/stores", params.StoresHandler.MountRoutes)
	}
	if params.BudgetHandler != nil {
		r.Route("/budgets", params.BudgetHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
