package importer

import (
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/servio-ai/prospector-cli/internal/model"
)

// Column names recognized in lead files. Headers are matched after
// lowercasing, stripping accents and collapsing separators to "_".
var headerAliases = map[string]string{
	"name": "name", "nome": "name", "full_name": "name", "contato": "name",
	"email": "email", "e_mail": "email",
	"phone": "phone", "telefone": "phone", "celular": "phone", "whatsapp": "phone",
	"company": "company", "empresa": "company", "business": "company",
	"category": "category", "categoria": "category", "segmento": "category",
	"location": "location", "localizacao": "location", "cidade": "location", "city": "location",
	"stage": "stage", "etapa": "stage", "status": "stage",
	"source": "source", "origem": "source",
	"last_activity": "last_activity", "ultima_atividade": "last_activity", "last_contact": "last_activity",
	"notes": "notes", "notas": "notes", "observacoes": "notes",
	"tags": "tags",
	"external_id": "external_id", "id": "external_id",
}

// stageLabels maps Portuguese pipeline labels to stages.
var stageLabels = map[string]model.Stage{
	"novo":        model.StageNew,
	"contatado":   model.StageContacted,
	"contactado":  model.StageContacted,
	"negociacao":  model.StageNegotiating,
	"negociando":  model.StageNegotiating,
	"ganho":       model.StageWon,
	"fechado":     model.StageWon,
	"perdido":     model.StageLost,
	"negotiation": model.StageNegotiating,
}

var activityLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

// header maps canonical column names to their index in a row.
type header map[string]int

func parseHeader(cols []string) (header, error) {
	h := make(header, len(cols))
	for i, c := range cols {
		canon, ok := headerAliases[normalizeKey(c)]
		if !ok {
			continue
		}
		if _, dup := h[canon]; !dup {
			h[canon] = i
		}
	}
	if _, ok := h["name"]; !ok {
		return nil, eris.New("importer: header has no name column")
	}
	return h, nil
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// leadFromRow builds a lead from a file row. Rows without a name or with an
// unparseable stage or date are rejected.
func leadFromRow(h header, row []string, loc *time.Location) (model.Lead, error) {
	lead := model.Lead{
		Name:       h.get(row, "name"),
		Email:      strings.ToLower(h.get(row, "email")),
		Phone:      h.get(row, "phone"),
		Company:    h.get(row, "company"),
		Category:   h.get(row, "category"),
		Location:   h.get(row, "location"),
		Notes:      h.get(row, "notes"),
		Tags:       splitTags(h.get(row, "tags")),
		ExternalID: h.get(row, "external_id"),
		Source:     model.ParseSource(h.get(row, "source")),
	}
	if lead.Name == "" {
		return model.Lead{}, eris.New("missing name")
	}

	stage, ok := parseStageLabel(h.get(row, "stage"))
	if !ok {
		return model.Lead{}, eris.Errorf("unknown stage %q", h.get(row, "stage"))
	}
	lead.Stage = stage

	if raw := h.get(row, "last_activity"); raw != "" {
		t, err := parseActivityTime(raw, loc)
		if err != nil {
			return model.Lead{}, err
		}
		lead.LastActivity = &t
	}

	if lead.ExternalID == "" {
		lead.ExternalID = contactKey(lead)
	}
	return lead, nil
}

// parseStageLabel accepts stage names and Portuguese labels. Blank means new.
func parseStageLabel(s string) (model.Stage, bool) {
	if strings.TrimSpace(s) == "" {
		return model.StageNew, true
	}
	if st, err := model.ParseStage(s); err == nil {
		return st, true
	}
	st, ok := stageLabels[normalizeKey(s)]
	return st, ok
}

func parseActivityTime(raw string, loc *time.Location) (time.Time, error) {
	for _, layout := range activityLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("unparseable last activity %q", raw)
}

// contactKey derives a stable external ID for rows that carry none, so
// re-importing the same file updates instead of duplicating.
func contactKey(l model.Lead) string {
	if l.Email != "" {
		return "email:" + l.Email
	}
	if digits := onlyDigits(l.Phone); digits != "" {
		return "phone:" + digits
	}
	return "name:" + normalizeKey(l.Name) + "|" + normalizeKey(l.Company)
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' }) {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeKey lowercases, removes accents and joins words with "_".
func normalizeKey(s string) string {
	// Chained transformers keep state, so each call builds its own.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		folded = strings.ToLower(strings.TrimSpace(s))
	}
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), "_")
}
