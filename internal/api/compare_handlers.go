package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/soaringjerry/comparaholic/internal/services"
	"github.com/soaringjerry/comparaholic/internal/utils"
)

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	return err == nil && v
}

func (rt *Router) session(w http.ResponseWriter, r *http.Request, cat *services.Category) (*services.FormSession, bool) {
	sess, err := rt.sessions.Get(r.Context(), identityOf(r), cat.Key)
	if err != nil {
		rt.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func parseStep(r *http.Request) (int, error) {
	step, err := strconv.Atoi(r.PathValue("step"))
	if err != nil {
		return 0, services.NewNotFoundError("step out of range")
	}
	return step, nil
}

// GET /api/compare/{category}?skip=true
func (rt *Router) handleEntry(w http.ResponseWriter, r *http.Request) {
	cat, ok := rt.lookupCategory(w, r)
	if !ok {
		return
	}
	sess, ok := rt.session(w, r, cat)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rt.questionnaire.Entry(cat, sess.Snapshot(), queryBool(r, "skip")))
}

type stepResponse struct {
	*services.StepView
	Message string             `json:"message,omitempty"`
	Form    services.FormState `json:"form"`
}

// GET /api/compare/{category}/steps/{step}?edit=true
func (rt *Router) handleRenderStep(w http.ResponseWriter, r *http.Request) {
	cat, ok := rt.lookupCategory(w, r)
	if !ok {
		return
	}
	step, err := parseStep(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	sess, ok := rt.session(w, r, cat)
	if !ok {
		return
	}
	state := sess.Snapshot()
	view, err := rt.questionnaire.Render(cat, step, state, queryBool(r, "edit"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	out := stepResponse{StepView: view, Form: state}
	if view.NoOptions {
		out.Message = utils.T(localeOf(r), "form.no_options")
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/compare/{category}/steps/{step}?edit=true
func (rt *Router) handleAnswerStep(w http.ResponseWriter, r *http.Request) {
	cat, ok := rt.lookupCategory(w, r)
	if !ok {
		return
	}
	step, err := parseStep(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	sess, ok := rt.session(w, r, cat)
	if !ok {
		return
	}
	res, err := rt.questionnaire.Answer(r.Context(), sess, step, req.Value, queryBool(r, "edit"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PATCH /api/compare/{category}/draft
// Merges partial answers into the live session and schedules a debounced save.
func (rt *Router) handleDraft(w http.ResponseWriter, r *http.Request) {
	cat, ok := rt.lookupCategory(w, r)
	if !ok {
		return
	}
	var req draftRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	var unknown []string
	for name := range req.Answers {
		if cat.FieldIndex(name) < 0 && name != "visitor_name" {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		rt.writeError(w, r, services.NewValidationError("unknown fields", sortedCopy(unknown)))
		return
	}
	sess, ok := rt.session(w, r, cat)
	if !ok {
		return
	}
	sess.Merge(services.FormState(req.Answers))
	rt.debouncer.Schedule(sess)
	writeJSON(w, http.StatusAccepted, map[string]any{"form": sess.Snapshot(), "pending": true})
}
