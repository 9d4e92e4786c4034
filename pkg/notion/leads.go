package notion

import (
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// Lead is a lead row read from a Notion database. Empty fields were absent
// or blank in Notion.
type Lead struct {
	PageID       string
	Name         string
	Email        string
	Phone        string
	Company      string
	Category     string
	Location     string
	Stage        string
	Source       string
	Notes        string
	Tags         []string
	LastActivity *time.Time
	LastEdited   time.Time
}

// Property names accepted for each lead field, in English and Portuguese.
var propertyAliases = map[string][]string{
	"name":         {"Name", "Nome"},
	"email":        {"Email", "E-mail"},
	"phone":        {"Phone", "Telefone", "WhatsApp"},
	"company":      {"Company", "Empresa"},
	"category":     {"Category", "Categoria"},
	"location":     {"Location", "Localização", "Cidade"},
	"stage":        {"Stage", "Etapa", "Status"},
	"source":       {"Source", "Origem"},
	"notes":        {"Notes", "Notas", "Observações"},
	"tags":         {"Tags"},
	"lastActivity": {"Last Activity", "Última atividade"},
}

// LeadFromPage maps a database page to a Lead by property name.
func LeadFromPage(p notionapi.Page) Lead {
	props := foldKeys(p.Properties)
	get := func(field string) notionapi.Property {
		for _, alias := range propertyAliases[field] {
			if prop, ok := props[strings.ToLower(alias)]; ok {
				return prop
			}
		}
		return nil
	}

	lead := Lead{
		PageID:     string(p.ID),
		Name:       propertyText(get("name")),
		Email:      propertyText(get("email")),
		Phone:      propertyText(get("phone")),
		Company:    propertyText(get("company")),
		Category:   propertyText(get("category")),
		Location:   propertyText(get("location")),
		Stage:      propertyText(get("stage")),
		Source:     propertyText(get("source")),
		Notes:      propertyText(get("notes")),
		Tags:       propertyList(get("tags")),
		LastEdited: p.LastEditedTime,
	}
	if dp, ok := get("lastActivity").(*notionapi.DateProperty); ok && dp.Date != nil && dp.Date.Start != nil {
		t := time.Time(*dp.Date.Start)
		lead.LastActivity = &t
	}
	return lead
}

func foldKeys(props notionapi.Properties) map[string]notionapi.Property {
	out := make(map[string]notionapi.Property, len(props))
	for k, v := range props {
		out[strings.ToLower(k)] = v
	}
	return out
}

// propertyText flattens the property kinds a lead database uses into text.
func propertyText(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return plainText(p.Title)
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case *notionapi.EmailProperty:
		return strings.TrimSpace(p.Email)
	case *notionapi.PhoneNumberProperty:
		return strings.TrimSpace(p.PhoneNumber)
	case *notionapi.URLProperty:
		return strings.TrimSpace(p.URL)
	case *notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.StatusProperty:
		return p.Status.Name
	case *notionapi.NumberProperty:
		return strconv.FormatFloat(p.Number, 'f', -1, 64)
	case *notionapi.MultiSelectProperty:
		return strings.Join(optionNames(p.MultiSelect), ", ")
	default:
		return ""
	}
}

func propertyList(prop notionapi.Property) []string {
	switch p := prop.(type) {
	case *notionapi.MultiSelectProperty:
		return optionNames(p.MultiSelect)
	case nil:
		return nil
	default:
		var out []string
		for _, s := range strings.Split(propertyText(prop), ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
}

func optionNames(opts []notionapi.Option) []string {
	if len(opts) == 0 {
		return nil
	}
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Name
	}
	return out
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(b.String())
}
