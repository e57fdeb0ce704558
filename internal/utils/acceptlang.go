package utils

import (
	"sort"
	"strconv"
	"strings"
)

type langCandidate struct {
	lang string
	q    float64
}

// DetermineLocale picks the locale for a request: an explicit query param
// wins, then the highest-weighted supported Accept-Language entry, then def.
// A region suffix (fr-CA) matches its base language.
func DetermineLocale(queryLang, acceptLang string, supported []string, def string) string {
	sup := make(map[string]struct{}, len(supported))
	for _, s := range supported {
		sup[strings.ToLower(s)] = struct{}{}
	}
	pick := func(lang string) (string, bool) {
		l := strings.ToLower(strings.TrimSpace(lang))
		if l == "" {
			return "", false
		}
		if _, ok := sup[l]; ok {
			return l, true
		}
		if i := strings.IndexAny(l, "-_"); i > 0 {
			if _, ok := sup[l[:i]]; ok {
				return l[:i], true
			}
		}
		return "", false
	}

	if v, ok := pick(queryLang); ok {
		return v
	}

	var cands []langCandidate
	for _, part := range strings.Split(acceptLang, ",") {
		lang, q := parseLangRange(part)
		if q <= 0 {
			continue
		}
		if l, ok := pick(lang); ok {
			cands = append(cands, langCandidate{lang: l, q: q})
		}
	}
	if len(cands) > 0 {
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].q > cands[j].q })
		return cands[0].lang
	}
	if v, ok := pick(def); ok {
		return v
	}
	if len(supported) > 0 {
		return strings.ToLower(supported[0])
	}
	return "en"
}

// parseLangRange splits "fr-CA;q=0.8" into its tag and weight. A missing or
// unparsable weight counts as 1.
func parseLangRange(part string) (string, float64) {
	part = strings.TrimSpace(part)
	if part == "" {
		return "", 0
	}
	lang, params, found := strings.Cut(part, ";")
	if !found {
		return lang, 1
	}
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.TrimSpace(k) != "q" {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return strings.TrimSpace(lang), 1
		}
		return strings.TrimSpace(lang), q
	}
	return strings.TrimSpace(lang), 1
}
