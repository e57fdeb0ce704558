package api

import (
	"net/http"

	"github.com/soaringjerry/comparaholic/internal/middleware"
	"github.com/soaringjerry/comparaholic/internal/services"
)

type categoryView struct {
	ID   int                  `json:"id"`
	Slug services.CategoryKey `json:"slug"`
	Name string               `json:"name"`
}

// GET /api/categories
func (rt *Router) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats := rt.catalog.List()
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryView{ID: c.ID, Slug: c.Key, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

// GET /api/session
func (rt *Router) handleSession(w http.ResponseWriter, r *http.Request) {
	id := identityOf(r)
	out := map[string]any{"identity": id, "authenticated": id.IsAccount(), "is_admin": false}
	if id.IsAccount() {
		admin, err := rt.store.IsAdmin(r.Context(), id.ID)
		if err != nil {
			rt.logErr("session admin check", err)
		}
		out["is_admin"] = admin
		if p, err := rt.store.GetProfile(r.Context(), id.ID); err == nil && p != nil {
			out["profile"] = p
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type authResponse struct {
	Token     string                   `json:"token"`
	UserID    string                   `json:"user_id"`
	Email     string                   `json:"email"`
	Migration *services.MigrationReport `json:"migration,omitempty"`
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.authSvc.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.completeSignIn(w, r, res, http.StatusCreated)
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.completeSignIn(w, r, res, http.StatusOK)
}

// completeSignIn sets the session cookie and claims the visitor's rows. A
// failed migration keeps the visitor cookie so the next sign-in retries.
func (rt *Router) completeSignIn(w http.ResponseWriter, r *http.Request, res *services.AuthResult, status int) {
	rt.cookies.SetSession(w, res.Token, rt.authSvc.TokenTTL())
	out := authResponse{Token: res.Token, UserID: res.UserID, Email: res.Email}
	report, err := rt.migrate(r.Context(), res.UserID, pendingVisitor(r))
	if err == nil {
		rt.cookies.Clear(w, middleware.VisitorCookie)
		if !report.Empty() {
			out.Migration = report
		}
	}
	writeJSON(w, status, out)
}

// pendingVisitor is the visitor id the request arrived with, if any.
func pendingVisitor(r *http.Request) string {
	res, ok := middleware.ResolutionFromContext(r.Context())
	if !ok {
		if c, err := r.Cookie(middleware.VisitorCookie); err == nil {
			return c.Value
		}
		return ""
	}
	if res.Identity.IsVisitor() && !res.IssueVisitorCookie {
		return res.Identity.ID
	}
	return res.PendingVisitorID
}

// POST /api/auth/logout
func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := identityOf(r)
	dropped := 0
	if id.ID != "" {
		dropped = rt.sessions.DropIdentity(id)
	}
	rt.cookies.Clear(w, middleware.SessionCookie, middleware.VisitorCookie, middleware.LegacyCountCookie)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions_dropped": dropped})
}

// GET /api/profile
func (rt *Router) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := rt.profiles.Get(r.Context(), identityOf(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PUT /api/profile
func (rt *Router) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := identityOf(r)
	if !id.IsAccount() {
		rt.writeError(w, r, services.NewUnauthorizedError("sign in required"))
		return
	}
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	p, err := rt.profiles.Update(r.Context(), id, services.ProfileUpdate{FullName: req.FullName, Email: req.Email})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
