package utils

// Minimal server-side i18n for fixed keys.
// UI strings should live in the frontend; server provides only essentials.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":             "ok",
		"results.anonymous":     "Anonymous",
		"results.visitor":       "Visitor Submission",
		"form.no_options":       "No options available. Go back and answer the previous question first.",
		"form.required_missing": "Please answer every required question.",
		"error.backend":         "Something went wrong while saving. Your answers are kept; please try again.",
	},
	"fr": {
		"health.ok":             "ok",
		"results.anonymous":     "Anonyme",
		"results.visitor":       "Soumission de visiteur",
		"form.no_options":       "Aucune option disponible. Revenez à la question précédente.",
		"form.required_missing": "Veuillez répondre à toutes les questions obligatoires.",
		"error.backend":         "Une erreur est survenue lors de l'enregistrement. Vos réponses sont conservées; veuillez réessayer.",
	},
}

// SupportedLocales lists locales with a translation table, default first.
var SupportedLocales = []string{"en", "fr"}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations["en"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
