// Package outreach renders follow-up messages for leads, from Liquid
// templates or with an AI drafter.
package outreach

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/osteele/liquid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/servio-ai/prospector-cli/internal/model"
)

// Channel is the medium a message is written for.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Channels lists the supported channels.
var Channels = []Channel{ChannelEmail, ChannelWhatsApp}

// ParseChannel maps a case-insensitive name to a Channel. Empty means email.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "email", "e-mail":
		return ChannelEmail, nil
	case "whatsapp", "wa":
		return ChannelWhatsApp, nil
	default:
		return "", eris.Errorf("outreach: unknown channel %q", s)
	}
}

// Draft is a rendered message ready for review.
type Draft struct {
	LeadID  string  `json:"lead_id"`
	Channel Channel `json:"channel"`
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
	// Origin is "template" or "ai".
	Origin string `json:"origin"`
}

const (
	OriginTemplate = "template"
	OriginAI       = "ai"
)

// defaultTemplates are keyed by "<channel>/<stage>", with "<channel>/default"
// as the per-channel fallback and "email/subject" for email subjects.
var defaultTemplates = map[string]string{
	"email/subject": `{{ our_company }} | {{ lead.company | default: lead.name }}`,

	"email/default": `Olá {{ lead.name | first_word }},

Sou {{ sender }}, da {{ our_company }}. Gostaria de conversar sobre como podemos ajudar{% if lead.company != "" %} a {{ lead.company }}{% endif %}.

Abraços,
{{ sender }}`,

	"email/new": `Olá {{ lead.name | first_word }},

Sou {{ sender }}, da {{ our_company }}. Vi que vocês atuam com {{ lead.category | default: "serviços" }}{% if lead.location != "" %} em {{ lead.location }}{% endif %} e acredito que podemos trazer mais clientes para a {{ lead.company | default: "sua empresa" }}.

Podemos marcar 15 minutos esta semana?

Abraços,
{{ sender }}`,

	"email/contacted": `Olá {{ lead.name | first_word }},

Passando para retomar nossa conversa. Ficou alguma dúvida sobre a proposta da {{ our_company }}?

Abraços,
{{ sender }}`,

	"email/negotiating": `Olá {{ lead.name | first_word }},

Segue o resumo do que conversamos. Se estiver tudo certo, preparo o contrato para a {{ lead.company | default: "sua empresa" }} ainda hoje.

Abraços,
{{ sender }}`,

	"email/won": `Olá {{ lead.name | first_word }},

Obrigado pela confiança! Qualquer coisa, conte com a equipe {{ our_company }}.

{{ sender }}`,

	"email/lost": `Olá {{ lead.name | first_word }},

Entendo que o momento não era ideal. Se quiser retomar no futuro, é só responder este e-mail.

{{ sender }}`,

	"whatsapp/default": `Oi {{ lead.name | first_word }}! Aqui é {{ sender }}, da {{ our_company }}. Podemos conversar rapidinho?`,

	"whatsapp/new": `Oi {{ lead.name | first_word }}! Aqui é {{ sender }}, da {{ our_company }}. Vi o trabalho da {{ lead.company | default: "sua empresa" }} e queria te mostrar como conseguimos mais clientes para você. Posso te ligar?`,

	"whatsapp/contacted": `Oi {{ lead.name | first_word }}, tudo bem? Conseguiu ver minha mensagem anterior?`,

	"whatsapp/negotiating": `Oi {{ lead.name | first_word }}! Alguma dúvida sobre a proposta? Fico à disposição para fechar hoje.`,
}

// TemplateConfig configures a Templates set.
type TemplateConfig struct {
	SenderName string
	Company    string
	// Dir holds optional overrides named "<channel>_<stage>.liquid",
	// "<channel>.liquid" or "email_subject.liquid".
	Dir string
}

// Templates renders lead messages from parsed Liquid templates.
type Templates struct {
	engine  *liquid.Engine
	sender  string
	company string

	mu     sync.RWMutex
	parsed map[string]*liquid.Template
}

// NewTemplates parses the built-in templates and any overrides in cfg.Dir.
func NewTemplates(cfg TemplateConfig) (*Templates, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("first_word", firstWord)

	t := &Templates{
		engine:  engine,
		sender:  cfg.SenderName,
		company: cfg.Company,
		parsed:  make(map[string]*liquid.Template, len(defaultTemplates)),
	}

	sources := make(map[string]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		sources[k] = v
	}
	if cfg.Dir != "" {
		overrides, err := loadOverrides(cfg.Dir)
		if err != nil {
			return nil, err
		}
		for k, v := range overrides {
			sources[k] = v
		}
	}

	for key, src := range sources {
		if err := t.set(key, src); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Set replaces the template for channel and stage. An empty stage replaces
// the channel fallback.
func (t *Templates) Set(channel Channel, stage model.Stage, src string) error {
	return t.set(templateKey(channel, string(stage)), src)
}

func (t *Templates) set(key, src string) error {
	tpl, err := t.engine.ParseString(src)
	if err != nil {
		return eris.Wrapf(err, "outreach: parse template %s", key)
	}
	t.mu.Lock()
	t.parsed[key] = tpl
	t.mu.Unlock()
	return nil
}

// Render fills the template for the lead's stage on channel. Stages without
// a dedicated template use the channel fallback.
func (t *Templates) Render(lead model.Lead, channel Channel) (Draft, error) {
	tpl := t.lookup(channel, lead.Stage)
	if tpl == nil {
		return Draft{}, eris.Errorf("outreach: no template for channel %q", channel)
	}

	bindings := t.bindings(lead)
	body, err := tpl.RenderString(bindings)
	if err != nil {
		return Draft{}, eris.Wrapf(err, "outreach: render %s for lead %s", channel, lead.ID)
	}

	draft := Draft{
		LeadID:  lead.ID,
		Channel: channel,
		Body:    strings.TrimSpace(body),
		Origin:  OriginTemplate,
	}

	if channel == ChannelEmail {
		t.mu.RLock()
		subj := t.parsed["email/subject"]
		t.mu.RUnlock()
		if subj != nil {
			s, err := subj.RenderString(bindings)
			if err != nil {
				return Draft{}, eris.Wrapf(err, "outreach: render subject for lead %s", lead.ID)
			}
			draft.Subject = strings.TrimSpace(s)
		}
	}
	return draft, nil
}

func (t *Templates) lookup(channel Channel, stage model.Stage) *liquid.Template {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if tpl, ok := t.parsed[templateKey(channel, string(stage))]; ok {
		return tpl
	}
	return t.parsed[templateKey(channel, "")]
}

func (t *Templates) bindings(lead model.Lead) map[string]any {
	tags := make([]any, len(lead.Tags))
	for i, tag := range lead.Tags {
		tags[i] = tag
	}
	return map[string]any{
		"sender":      t.sender,
		"our_company": t.company,
		"lead": map[string]any{
			"id":          lead.ID,
			"name":        lead.Name,
			"email":       lead.Email,
			"phone":       lead.Phone,
			"company":     lead.Company,
			"category":    lead.Category,
			"location":    lead.Location,
			"stage":       string(lead.Stage),
			"source":      string(lead.Source),
			"notes":       lead.Notes,
			"tags":        tags,
			"score":       lead.Score,
			"temperature": string(lead.Temperature),
			"priority":    string(lead.Priority),
		},
	}
}

func templateKey(channel Channel, stage string) string {
	if stage == "" {
		stage = "default"
	}
	return string(channel) + "/" + stage
}

func loadOverrides(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "outreach: read templates dir %s", dir)
	}

	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".liquid" {
			continue
		}
		key, ok := overrideKey(strings.TrimSuffix(e.Name(), ".liquid"))
		if !ok {
			zap.L().Warn("outreach: ignoring template file", zap.String("file", e.Name()))
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "outreach: read template %s", e.Name())
		}
		out[key] = string(data)
	}
	return out, nil
}

// overrideKey maps a file stem such as "whatsapp_new" to a template key.
func overrideKey(stem string) (string, bool) {
	if stem == "email_subject" {
		return "email/subject", true
	}
	channelPart, stagePart, _ := strings.Cut(stem, "_")
	channel, err := ParseChannel(channelPart)
	if err != nil || channelPart == "" {
		return "", false
	}
	if stagePart == "" {
		return templateKey(channel, ""), true
	}
	stage, err := model.ParseStage(stagePart)
	if err != nil {
		return "", false
	}
	return templateKey(channel, string(stage)), true
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return s
}
