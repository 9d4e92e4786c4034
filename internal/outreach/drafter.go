package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/resilience"
	"github.com/servio-ai/prospector-cli/pkg/anthropic"
)

// DrafterConfig configures AI drafting.
type DrafterConfig struct {
	Model     string
	MaxTokens int64
	Retry     resilience.RetryConfig
	// Breaker may be nil.
	Breaker *resilience.Breaker
}

// Drafter writes messages with an AI model and falls back to templates
// when the model is unavailable.
type Drafter struct {
	templates *Templates
	client    anthropic.Client
	cfg       DrafterConfig
	log       *zap.Logger
}

// NewDrafter returns a Drafter. A nil client disables AI drafting.
func NewDrafter(templates *Templates, client anthropic.Client, cfg DrafterConfig) *Drafter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("anthropic", "draft")
	}
	return &Drafter{
		templates: templates,
		client:    client,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "outreach.drafter")),
	}
}

// Draft renders a message for lead. With useAI and a configured client the
// model writes the body from the template draft; any AI failure falls back
// to the template draft.
func (d *Drafter) Draft(ctx context.Context, lead model.Lead, channel Channel, useAI bool) (Draft, error) {
	base, err := d.templates.Render(lead, channel)
	if err != nil {
		return Draft{}, err
	}
	if !useAI || d.client == nil {
		return base, nil
	}

	body, err := d.generate(ctx, lead, channel, base)
	if err != nil {
		if ctx.Err() != nil {
			return Draft{}, eris.Wrap(ctx.Err(), "outreach: draft")
		}
		d.log.Warn("ai draft failed, using template",
			zap.String("lead_id", lead.ID),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
		return base, nil
	}

	base.Body = body
	base.Origin = OriginAI
	return base, nil
}

func (d *Drafter) generate(ctx context.Context, lead model.Lead, channel Channel, base Draft) (string, error) {
	if d.cfg.Breaker != nil {
		if err := d.cfg.Breaker.Allow(); err != nil {
			return "", err
		}
	}

	req := anthropic.MessageRequest{
		Model:     d.cfg.Model,
		MaxTokens: d.cfg.MaxTokens,
		System: []anthropic.SystemBlock{{
			Text:         systemPrompt,
			CacheControl: &anthropic.CacheControl{TTL: "5m"},
		}},
		Messages: []anthropic.Message{{Role: "user", Content: userPrompt(lead, channel, base)}},
	}

	resp, err := resilience.DoVal(ctx, d.cfg.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return d.client.CreateMessage(ctx, req)
	})
	if d.cfg.Breaker != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			d.cfg.Breaker.Release()
		} else {
			d.cfg.Breaker.Record(err)
		}
	}
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(d.cfg.Model, "draft")

	body := strings.TrimSpace(resp.Text())
	if body == "" {
		return "", eris.New("outreach: empty ai draft")
	}
	return body, nil
}

const systemPrompt = `You write short, friendly sales follow-up messages in Brazilian Portuguese for small service businesses.
Keep the facts from the draft you are given. Never invent prices, dates or promises.
Reply with the message body only.`

func userPrompt(lead model.Lead, channel Channel, base Draft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Channel: %s\n", channel)
	fmt.Fprintf(&b, "Pipeline stage: %s\n", lead.Stage)
	fmt.Fprintf(&b, "Lead: %s", lead.Name)
	if lead.Company != "" {
		fmt.Fprintf(&b, " (%s)", lead.Company)
	}
	b.WriteString("\n")
	if lead.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", lead.Category)
	}
	if lead.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", lead.Location)
	}
	if lead.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", lead.Notes)
	}
	if n := len(lead.Activities); n > 0 {
		last := lead.Activities[n-1]
		fmt.Fprintf(&b, "Last activity: %s on %s\n", last.Kind, last.At.Format("2006-01-02"))
	}
	if channel == ChannelWhatsApp {
		b.WriteString("Keep it under 300 characters.\n")
	}
	fmt.Fprintf(&b, "\nDraft to improve:\n%s", base.Body)
	return b.String()
}
