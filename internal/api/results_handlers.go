package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/soaringjerry/comparaholic/internal/services"
)

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// parseFilters reads filter.<group>=a,b and repeated filter.<group> params.
func parseFilters(r *http.Request) services.Filters {
	out := services.Filters{}
	for key, values := range r.URL.Query() {
		group, ok := strings.CutPrefix(key, "filter.")
		if !ok || group == "" {
			continue
		}
		for _, v := range values {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out[group] = append(out[group], part)
				}
			}
		}
	}
	return out
}

// GET /api/compare/{category}/results?sort=asc|desc&filter.<group>=...&skip=true
// Without skip and without stored answers the caller is sent to step 0.
func (rt *Router) handleResults(w http.ResponseWriter, r *http.Request) {
	cat, ok := rt.lookupCategory(w, r)
	if !ok {
		return
	}
	order, err := services.ParseSortOrder(r.URL.Query().Get("sort"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if !queryBool(r, "skip") {
		sess, ok := rt.session(w, r, cat)
		if !ok {
			return
		}
		if len(sess.Snapshot()) == 0 {
			next := services.StepPath(cat.Key, 0, false)
			w.Header().Set("Location", next)
			writeJSON(w, http.StatusSeeOther, map[string]string{"next": next})
			return
		}
	}
	list, err := rt.results.List(r.Context(), services.ListRequest{
		Category: cat.Key,
		Viewer:   identityOf(r),
		Order:    order,
		Filters:  parseFilters(r),
		Locale:   localeOf(r),
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// DELETE /api/compare/{category}/results
func (rt *Router) handleClearResults(w http.ResponseWriter, r *http.Request) {
	cat, ok := rt.lookupCategory(w, r)
	if !ok {
		return
	}
	n, err := rt.results.ClearCategory(r.Context(), identityOf(r), cat.Key)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": n})
}

// DELETE /api/compare/{category}/results/{source}/{id}
func (rt *Router) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	if _, ok := rt.lookupCategory(w, r); !ok {
		return
	}
	source, ok := services.ParseSource(r.PathValue("source"))
	if !ok {
		rt.writeError(w, r, services.NewInvalidError("source must be account or visitor"))
		return
	}
	if err := rt.results.DeleteRecord(r.Context(), identityOf(r), source, r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GET /api/compare/{category}/results/export?format=wide|long
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	cat, ok := rt.lookupCategory(w, r)
	if !ok {
		return
	}
	res, err := rt.exports.ExportCSV(r.Context(), identityOf(r), services.ExportParams{
		Category: cat.Key,
		Format:   r.URL.Query().Get("format"),
		Locale:   localeOf(r),
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	_, _ = w.Write(res.Data)
}

// GET /api/compare/{category}/results/summary
func (rt *Router) handleSummary(w http.ResponseWriter, r *http.Request) {
	cat, ok := rt.lookupCategory(w, r)
	if !ok {
		return
	}
	summary, err := rt.analytics.Summary(r.Context(), cat.Key, identityOf(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GET /api/admin/audit?limit=n
func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := rt.results.AuditLog(r.Context(), identityOf(r), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
