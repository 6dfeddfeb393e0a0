package schema

import (
	"strings"

	"golang.org/x/text/language"
)

// languageMarkers maps a language tag to high-frequency function words and
// tabular header vocabulary. Detection is a simple token-hit vote; header
// rows and short cell samples are too small for statistical n-gram models.
var languageMarkers = map[language.Tag][]string{
	language.English:    {"the", "and", "of", "in", "at", "date", "title", "name", "location", "city", "description", "address", "event"},
	language.German:     {"der", "die", "das", "und", "von", "mit", "datum", "titel", "ort", "stadt", "beschreibung", "adresse", "veranstaltung", "strasse", "straße"},
	language.French:     {"le", "la", "les", "et", "de", "du", "titre", "lieu", "ville", "adresse", "nom", "événement", "evenement"},
	language.Spanish:    {"el", "los", "las", "y", "de", "del", "fecha", "título", "titulo", "lugar", "ciudad", "nombre", "dirección", "direccion", "evento"},
	language.Italian:    {"il", "lo", "gli", "e", "di", "della", "data", "titolo", "luogo", "città", "citta", "nome", "indirizzo", "evento"},
	language.Dutch:      {"de", "het", "een", "en", "van", "datum", "titel", "plaats", "stad", "naam", "adres", "evenement", "locatie"},
	language.Portuguese: {"o", "os", "as", "e", "de", "do", "da", "data", "título", "titulo", "local", "cidade", "nome", "endereço", "endereco", "evento"},
}

// detectionOrder fixes the tie-break: the first tag with the top score wins,
// so English beats everything on a tie and the rest resolve the same way on
// every run.
var detectionOrder = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Italian,
	language.Dutch,
	language.Portuguese,
}

// DetectLanguage infers the natural language of a dataset from sampled
// header and cell text. Ties and empty input fall back to English.
func DetectLanguage(samples []string) language.Tag {
	scores := make(map[language.Tag]int, len(languageMarkers))

	for _, sample := range samples {
		for _, token := range tokenize(sample) {
			for tag, markers := range languageMarkers {
				for _, marker := range markers {
					if token == marker {
						scores[tag]++
					}
				}
			}
		}
	}

	best := language.English
	bestScore := 0
	for _, tag := range detectionOrder {
		if scores[tag] > bestScore {
			best, bestScore = tag, scores[tag]
		}
	}
	return best
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '_', '-', '.', ',', ';', ':', '/', '(', ')':
			return true
		}
		return false
	})
}
