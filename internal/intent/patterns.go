package intent

import (
	"strings"
	"unicode"

	"github.com/castaldi/frank/internal/catalog"
)

// categoryKeywords maps each tool category to the Italian keyword set
// used by the deterministic fallback path.
var categoryKeywords = map[catalog.Category][]string{
	catalog.CategoryNavigation: {
		"percorso", "rotta", "naviga", "navigazione", "portami",
		"andiamo a", "vai a", "destinazione", "strada per", "route",
		"imposta un percorso", "raggiungere",
	},
	catalog.CategoryWeather: {
		"meteo", "che tempo", "previsioni", "pioggia", "piove",
		"temperatura", "vento", "nevica",
	},
	catalog.CategoryVehicle: {
		"veicolo", "camper", "batteria", "serbatoio", "livello acqua",
		"stato del", "pressione gomme",
	},
	catalog.CategoryMaintenance: {
		"manutenzione", "tagliando", "revisione", "controllo periodico",
		"scadenza", "olio motore",
	},
}

// patternConfidence is the fixed confidence of a keyword match on the
// deterministic path.
const patternConfidence = 0.6

// conversationalConfidence is the fixed confidence of the conversational
// default when nothing matches.
const conversationalConfidence = 0.8

// anaphoraMarkers flag utterances that lean on the previous turn and need
// rewriting before classification.
var anaphoraMarkers = []string{
	"e per", "e domani", "e oggi", "anche", "pure",
	"come va", "come sta", "e quello", "e questo",
	"e dopo", "e prima", "e poi",
}

func hasAnaphora(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, m := range anaphoraMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// questionWords are skipped by the capitalized-phrase extractor so that
// interrogatives are not mistaken for place names.
var questionWords = map[string]bool{
	"come": true, "cosa": true, "chi": true, "dove": true,
	"quando": true, "perché": true, "stai": true, "vai": true,
	"fai": true,
}

// classifyByPatterns is the deterministic fallback: keyword match per
// category, or a conversational default.
func classifyByPatterns(utterance string) Result {
	lower := strings.ToLower(utterance)

	for _, cat := range catalog.KnownCategories {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				params := PatternParams(utterance, cat)
				return Result{
					RequiresTool:        true,
					PrimaryCategory:     string(cat),
					Confidence:          patternConfidence,
					ExtractedParameters: params,
					Reasoning:           "keyword match: " + kw,
					FallbackUsed:        true,
				}
			}
		}
	}

	return Result{
		RequiresTool: false,
		Confidence:   conversationalConfidence,
		Reasoning:    "no tool keywords matched",
		FallbackUsed: true,
	}
}

// PatternParams pulls obvious parameters out of the raw text with no
// model involved. A short capitalized phrase is treated as a place name
// for navigation and weather tools.
func PatternParams(utterance string, cat catalog.Category) map[string]any {
	params := map[string]any{}

	switch cat {
	case catalog.CategoryNavigation:
		if place := capitalizedPhrase(utterance); place != "" {
			params["destination"] = place
		}
		lower := strings.ToLower(utterance)
		for flag, markers := range preferenceMarkers {
			for _, m := range markers {
				if strings.Contains(lower, m) {
					params[flag] = true
				}
			}
		}
	case catalog.CategoryWeather:
		if place := capitalizedPhrase(utterance); place != "" {
			params["location"] = place
		}
	}

	if len(params) == 0 {
		return nil
	}
	return params
}

// preferenceMarkers toggles boolean route preferences on specific
// substrings.
var preferenceMarkers = map[string][]string{
	"avoid_tolls":       {"senza pedaggi", "evita i pedaggi", "no pedaggi"},
	"avoid_motorways":   {"senza autostrada", "evita autostrade", "no autostrada"},
	"avoid_ferries":     {"senza traghetti", "evita traghetti"},
	"avoid_low_bridges": {"ponti bassi", "altezza limitata"},
	"avoid_ztl":         {"ztl", "zona a traffico limitato"},
}

// capitalizedPhrase returns the first run of up to three consecutive
// capitalized words, skipping sentence starts and question words.
func capitalizedPhrase(utterance string) string {
	words := strings.Fields(utterance)
	var phrase []string
	for i, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if trimmed == "" {
			continue
		}
		runes := []rune(trimmed)
		capitalized := unicode.IsUpper(runes[0]) && i > 0
		if capitalized && !questionWords[strings.ToLower(trimmed)] {
			phrase = append(phrase, trimmed)
			if len(phrase) == 3 {
				break
			}
			continue
		}
		if len(phrase) > 0 {
			break
		}
	}
	return strings.Join(phrase, " ")
}
