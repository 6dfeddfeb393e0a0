// Package mapping guesses which physical columns hold the logical roles of
// an event dataset, using per-language lexical patterns and field statistics.
package mapping

import (
	"golang.org/x/text/language"

	"github.com/sells-group/import-engine/internal/model"
)

// lexicon holds lowercase name fragments per logical role.
type lexicon map[model.Role][]string

// englishLexicon is always consulted as a fallback; exported datasets mix
// English headers into localized files constantly.
var englishLexicon = lexicon{
	model.RoleTitle:       {"title", "name", "event", "subject", "headline"},
	model.RoleDescription: {"description", "details", "summary", "notes", "text", "body"},
	model.RoleDate:        {"date", "datetime", "day", "time", "when", "start"},
	model.RoleLocation:    {"location", "address", "place", "venue", "city", "where", "street"},
	model.RoleLatitude:    {"latitude", "lat"},
	model.RoleLongitude:   {"longitude", "lon", "lng", "long"},
	model.RoleCombined:    {"coordinates", "coords", "latlon", "latlng", "position", "geo", "point"},
}

var lexicons = map[language.Tag]lexicon{
	language.English: englishLexicon,
	language.German: {
		model.RoleTitle:       {"titel", "name", "veranstaltung", "bezeichnung"},
		model.RoleDescription: {"beschreibung", "details", "bemerkung", "hinweis"},
		model.RoleDate:        {"datum", "tag", "zeit", "beginn"},
		model.RoleLocation:    {"ort", "adresse", "standort", "stadt", "strasse", "straße", "platz"},
		model.RoleLatitude:    {"breitengrad", "breite", "geobreite"},
		model.RoleLongitude:   {"längengrad", "laengengrad", "länge", "laenge", "geolänge"},
		model.RoleCombined:    {"koordinaten", "geokoordinaten", "position"},
	},
	language.French: {
		model.RoleTitle:       {"titre", "nom", "événement", "evenement"},
		model.RoleDescription: {"description", "détails", "details", "remarque"},
		model.RoleDate:        {"date", "jour", "heure", "début", "debut"},
		model.RoleLocation:    {"lieu", "adresse", "ville", "emplacement", "rue"},
		model.RoleLatitude:    {"latitude"},
		model.RoleLongitude:   {"longitude"},
		model.RoleCombined:    {"coordonnées", "coordonnees", "position"},
	},
	language.Spanish: {
		model.RoleTitle:       {"título", "titulo", "nombre", "evento"},
		model.RoleDescription: {"descripción", "descripcion", "detalles", "notas"},
		model.RoleDate:        {"fecha", "día", "dia", "hora", "inicio"},
		model.RoleLocation:    {"lugar", "dirección", "direccion", "ciudad", "ubicación", "ubicacion", "calle"},
		model.RoleLatitude:    {"latitud"},
		model.RoleLongitude:   {"longitud"},
		model.RoleCombined:    {"coordenadas", "posición", "posicion"},
	},
	language.Italian: {
		model.RoleTitle:       {"titolo", "nome", "evento"},
		model.RoleDescription: {"descrizione", "dettagli", "note"},
		model.RoleDate:        {"data", "giorno", "ora", "inizio"},
		model.RoleLocation:    {"luogo", "indirizzo", "città", "citta", "posizione", "via"},
		model.RoleLatitude:    {"latitudine"},
		model.RoleLongitude:   {"longitudine"},
		model.RoleCombined:    {"coordinate", "posizione"},
	},
	language.Dutch: {
		model.RoleTitle:       {"titel", "naam", "evenement"},
		model.RoleDescription: {"beschrijving", "omschrijving", "details", "opmerking"},
		model.RoleDate:        {"datum", "dag", "tijd", "aanvang"},
		model.RoleLocation:    {"locatie", "adres", "plaats", "stad", "straat"},
		model.RoleLatitude:    {"breedtegraad", "breedte"},
		model.RoleLongitude:   {"lengtegraad", "lengte"},
		model.RoleCombined:    {"coördinaten", "coordinaten", "positie"},
	},
	language.Portuguese: {
		model.RoleTitle:       {"título", "titulo", "nome", "evento"},
		model.RoleDescription: {"descrição", "descricao", "detalhes", "notas"},
		model.RoleDate:        {"data", "dia", "hora", "início", "inicio"},
		model.RoleLocation:    {"local", "endereço", "endereco", "cidade", "localização", "localizacao", "rua"},
		model.RoleLatitude:    {"latitude"},
		model.RoleLongitude:   {"longitude"},
		model.RoleCombined:    {"coordenadas", "posição", "posicao"},
	},
}

// lexiconsFor returns the lexicons to consult for a detected language:
// the language's own table first, English as fallback.
func lexiconsFor(lang language.Tag) []lexicon {
	lx, ok := lexicons[lang]
	if !ok || lang == language.English {
		return []lexicon{englishLexicon}
	}
	return []lexicon{lx, englishLexicon}
}
