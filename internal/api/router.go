package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/comparaholic/internal/middleware"
	"github.com/soaringjerry/comparaholic/internal/services"
)

// Config wires the router. Store and Auth are required.
type Config struct {
	Store       Store
	Catalog     *services.Catalog
	Auth        *middleware.Authenticator
	Logger      *zap.Logger
	Observer    services.Observer
	Cookies     middleware.CookieConfig
	AdminEmails []string
	TokenTTL    time.Duration
	DraftDelay  time.Duration
	SessionIdle time.Duration
	AuthLimit   middleware.RateLimitConfig
}

type Router struct {
	store         Store
	catalog       *services.Catalog
	auth          *middleware.Authenticator
	logger        *zap.Logger
	cookies       middleware.CookieConfig
	authLimit     middleware.RateLimitConfig
	resolver      *services.IdentityResolver
	forms         *services.FormStore
	sessions      *services.SessionRegistry
	debouncer     *services.SaveDebouncer
	questionnaire *services.Questionnaire
	migration     *services.MigrationService
	results       *services.ResultsService
	exports       *services.ExportService
	analytics     *services.AnalyticsService
	authSvc       *services.AuthService
	profiles      *services.ProfileService
}

func NewRouter(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = services.NewCatalog(nil, 0)
	}
	store := cfg.Store
	if store == nil {
		store = newMemoryStore()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = middleware.NewAuthenticator("")
	}
	forms := services.NewFormStore(store, logger.Named("forms")).WithObserver(cfg.Observer)
	results := services.NewResultsService(store, catalog, logger.Named("results"))
	return &Router{
		store:         store,
		catalog:       catalog,
		auth:          auth,
		logger:        logger,
		cookies:       cfg.Cookies,
		authLimit:     cfg.AuthLimit,
		resolver:      services.NewIdentityResolver(auth.Verify),
		forms:         forms,
		sessions:      services.NewSessionRegistry(forms, cfg.SessionIdle),
		debouncer:     services.NewSaveDebouncer(cfg.DraftDelay, logger.Named("drafts")),
		questionnaire: services.NewQuestionnaire(catalog),
		migration:     services.NewMigrationService(store, logger.Named("migration")).WithObserver(cfg.Observer),
		results:       results,
		exports:       services.NewExportService(results),
		analytics:     services.NewAnalyticsService(results),
		authSvc:       services.NewAuthService(store, auth.SignToken, cfg.TokenTTL).WithAdminEmails(cfg.AdminEmails),
		profiles:      services.NewProfileService(store),
	}
}

// Register mounts every API route on mux.
func (rt *Router) Register(mux *http.ServeMux) {
	limited := middleware.RateLimit(rt.authLimit)

	mux.HandleFunc("GET /api/categories", rt.handleCategories)
	mux.HandleFunc("GET /api/session", rt.handleSession)
	mux.Handle("POST /api/auth/register", limited(http.HandlerFunc(rt.handleRegister)))
	mux.Handle("POST /api/auth/login", limited(http.HandlerFunc(rt.handleLogin)))
	mux.HandleFunc("POST /api/auth/logout", rt.handleLogout)
	mux.HandleFunc("GET /api/profile", rt.handleGetProfile)
	mux.HandleFunc("PUT /api/profile", rt.handleUpdateProfile)

	mux.HandleFunc("GET /api/compare/{category}", rt.handleEntry)
	mux.HandleFunc("GET /api/compare/{category}/steps/{step}", rt.handleRenderStep)
	mux.HandleFunc("POST /api/compare/{category}/steps/{step}", rt.handleAnswerStep)
	mux.HandleFunc("PATCH /api/compare/{category}/draft", rt.handleDraft)

	mux.HandleFunc("GET /api/compare/{category}/results", rt.handleResults)
	mux.HandleFunc("DELETE /api/compare/{category}/results", rt.handleClearResults)
	mux.HandleFunc("DELETE /api/compare/{category}/results/{source}/{id}", rt.handleDeleteResult)
	mux.HandleFunc("GET /api/compare/{category}/results/export", rt.handleExport)
	mux.HandleFunc("GET /api/compare/{category}/results/summary", rt.handleSummary)
	mux.HandleFunc("GET /api/admin/audit", rt.handleAudit)
}

// IdentityMiddleware resolves identities and runs the session-restore migration.
func (rt *Router) IdentityMiddleware() func(http.Handler) http.Handler {
	return middleware.Identity(rt.resolver, rt.cookies, rt.restoreVisitor)
}

// Handler wraps next with identity resolution.
func (rt *Router) Handler(next http.Handler) http.Handler {
	return rt.IdentityMiddleware()(next)
}

// Close persists pending drafts. Call on shutdown after the listener stops.
func (rt *Router) Close(ctx context.Context) error {
	err := rt.debouncer.Flush(ctx)
	rt.debouncer.Stop()
	return err
}

// restoreVisitor migrates a visitor cookie that survived until a session was
// restored. The cookie is kept when migration fails so the next request retries.
func (rt *Router) restoreVisitor(ctx context.Context, account services.Identity, visitorID string) bool {
	_, err := rt.migrate(ctx, account.ID, visitorID)
	return err == nil
}

// migrate flushes pending drafts so the visitor rows are current, then claims them.
func (rt *Router) migrate(ctx context.Context, accountID, visitorID string) (*services.MigrationReport, error) {
	if visitorID == "" {
		return &services.MigrationReport{}, nil
	}
	if err := rt.debouncer.Flush(ctx); err != nil {
		rt.logErr("flush drafts before migration", err)
	}
	report, err := rt.migration.Migrate(ctx, accountID, visitorID)
	if err != nil {
		rt.logger.Warn("visitor migration failed",
			zap.String("account", accountID),
			zap.String("visitor", visitorID),
			zap.Error(err))
		return nil, err
	}
	rt.sessions.DropIdentity(services.VisitorIdentity(visitorID))
	if !report.Empty() {
		rt.logger.Info("visitor migrated",
			zap.String("account", accountID),
			zap.Int("migrated", len(report.Migrated)),
			zap.Int("skipped", len(report.Skipped)),
			zap.Int("failed", len(report.Failed)))
	}
	return report, nil
}

func (rt *Router) logErr(op string, err error) {
	if err != nil {
		rt.logger.Warn(op, zap.Error(err))
	}
}

func identityOf(r *http.Request) services.Identity {
	return middleware.IdentityFromContext(r.Context())
}

func localeOf(r *http.Request) string {
	return middleware.LocaleFromContext(r.Context())
}

func (rt *Router) lookupCategory(w http.ResponseWriter, r *http.Request) (*services.Category, bool) {
	cat, err := rt.catalog.Lookup(r.PathValue("category"))
	if err != nil {
		rt.writeError(w, r, err)
		return nil, false
	}
	return cat, true
}
