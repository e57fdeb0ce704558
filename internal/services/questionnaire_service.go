package services

import (
	"context"
	"strconv"
	"strings"
)

// StepView is one rendered questionnaire step. NoOptions is set when a
// dependent field has nothing to offer because its prerequisite is
// unanswered; BackStep then points at that prerequisite.
type StepView struct {
	Category     CategoryKey `json:"category"`
	CategoryName string      `json:"category_name"`
	Step         int         `json:"step"`
	Total        int         `json:"total"`
	Field        string      `json:"field"`
	Label        string      `json:"label"`
	Type         FieldType   `json:"type"`
	Required     bool        `json:"required"`
	Options      []string    `json:"options,omitempty"`
	Value        string      `json:"value"`
	Edit         bool        `json:"edit"`
	ShowSkip     bool        `json:"show_skip"`
	IsLast       bool        `json:"is_last"`
	NoOptions    bool        `json:"no_options"`
	BackStep     *int        `json:"back_step,omitempty"`
}

// AnswerResult tells the caller where to go once the answer was saved.
type AnswerResult struct {
	Next string    `json:"next"`
	Done bool      `json:"done"`
	Step int       `json:"step"`
	Form FormState `json:"form"`
}

// EntryDecision is where a category visit starts.
type EntryDecision struct {
	Next    string `json:"next"`
	Results bool   `json:"results"`
}

type Questionnaire struct {
	catalog *Catalog
}

func NewQuestionnaire(catalog *Catalog) *Questionnaire {
	return &Questionnaire{catalog: catalog}
}

func (q *Questionnaire) Catalog() *Catalog { return q.catalog }

// StepPath is the API path of step n, keeping the edit flag.
func StepPath(category CategoryKey, step int, edit bool) string {
	p := "/api/compare/" + string(category) + "/steps/" + strconv.Itoa(step)
	if edit {
		p += "?edit=true"
	}
	return p
}

func ResultsPath(category CategoryKey) string {
	return "/api/compare/" + string(category) + "/results"
}

// Render builds the view for step given the current answers.
func (q *Questionnaire) Render(cat *Category, step int, state FormState, edit bool) (*StepView, error) {
	if cat == nil {
		return nil, NewNotFoundError("unknown category")
	}
	if step < 0 || step >= len(cat.Fields) {
		return nil, NewNotFoundError("step out of range")
	}
	f := cat.Fields[step]
	view := &StepView{
		Category:     cat.Key,
		CategoryName: cat.Name,
		Step:         step,
		Total:        len(cat.Fields),
		Field:        f.Name,
		Label:        f.Label,
		Type:         f.Type,
		Required:     f.Required,
		Value:        state[f.Name],
		Edit:         edit,
		ShowSkip:     step == 0,
		IsLast:       step == len(cat.Fields)-1,
	}
	if f.Type == FieldSelect {
		view.Options = append([]string(nil), f.OptionsFor(state)...)
		if len(view.Options) == 0 {
			view.NoOptions = true
			if f.DependsOn != "" {
				if back := cat.FieldIndex(f.DependsOn); back >= 0 {
					view.BackStep = &back
				}
			}
		}
	}
	return view, nil
}

// Answer writes value into the session, saves, and continues to the next
// step or, on the last step, validates the merged state and points at the
// results. A failed save returns the error and no destination.
func (q *Questionnaire) Answer(ctx context.Context, sess *FormSession, step int, value string, edit bool) (*AnswerResult, error) {
	if sess == nil {
		return nil, NewInvalidError("no form session")
	}
	cat, ok := q.catalog.Category(sess.Category())
	if !ok {
		return nil, NewNotFoundError("unknown category")
	}
	if step < 0 || step >= len(cat.Fields) {
		return nil, NewNotFoundError("step out of range")
	}
	f := cat.Fields[step]
	if err := validateAnswer(f, sess.Snapshot(), value); err != nil {
		return nil, err
	}
	sess.Update(f.Name, value)
	if err := sess.Save(ctx); err != nil {
		return nil, err
	}
	return q.continueAfterSave(cat, sess, step, edit)
}

func (q *Questionnaire) continueAfterSave(cat *Category, sess *FormSession, step int, edit bool) (*AnswerResult, error) {
	state := sess.Snapshot()
	if step+1 < len(cat.Fields) {
		return &AnswerResult{Next: StepPath(cat.Key, step+1, edit), Step: step + 1, Form: state}, nil
	}
	if missing := MissingRequired(cat, state); len(missing) > 0 {
		return nil, NewValidationError("required fields missing", missing)
	}
	return &AnswerResult{Next: ResultsPath(cat.Key), Done: true, Step: step, Form: state}, nil
}

// Entry decides the first destination for a category visit. Visitors are
// never gated.
func (q *Questionnaire) Entry(cat *Category, state FormState, skip bool) EntryDecision {
	if skip || len(state) > 0 {
		return EntryDecision{Next: ResultsPath(cat.Key), Results: true}
	}
	return EntryDecision{Next: StepPath(cat.Key, 0, false)}
}

// MissingRequired lists required fields that are blank in state, in field order.
func MissingRequired(cat *Category, state FormState) []string {
	var missing []string
	for _, f := range cat.Fields {
		if f.Required && strings.TrimSpace(state[f.Name]) == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

func validateAnswer(f Field, state FormState, value string) error {
	v := strings.TrimSpace(value)
	if v == "" {
		if f.Required {
			return NewValidationError("answer required", []string{f.Name})
		}
		return nil
	}
	if f.Type != FieldSelect {
		return nil
	}
	opts := f.OptionsFor(state)
	if len(opts) == 0 {
		field := f.DependsOn
		if field == "" {
			field = f.Name
		}
		return NewValidationError("no options available", []string{field})
	}
	for _, o := range opts {
		if o == v {
			return nil
		}
	}
	return NewValidationError("value is not one of the options", []string{f.Name})
}
