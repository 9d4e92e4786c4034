package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/servio-ai/prospector-cli/internal/crm"
	"github.com/servio-ai/prospector-cli/internal/filter"
	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/outreach"
	"github.com/servio-ai/prospector-cli/internal/resilience"
	"github.com/servio-ai/prospector-cli/internal/store"
	"github.com/servio-ai/prospector-cli/pkg/anthropic"
	"github.com/servio-ai/prospector-cli/pkg/notion"
	sfpkg "github.com/servio-ai/prospector-cli/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prospector.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initService opens the store and wraps it in the CRM service. The caller
// closes the returned store.
func initService(ctx context.Context) (*crm.Service, store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	ev := filter.NewEvaluator[model.Lead](cfg.FilterOptions()...)
	return crm.New(st, crm.WithEvaluator(ev)), st, nil
}

// initDrafter builds the outreach drafter. Without useAI no Anthropic client
// is created and drafts come from templates only.
func initDrafter(useAI bool) (*outreach.Drafter, error) {
	tpl, err := outreach.NewTemplates(outreach.TemplateConfig{
		SenderName: cfg.Outreach.SenderName,
		Company:    cfg.Outreach.Company,
		Dir:        cfg.Outreach.TemplatesDir,
	})
	if err != nil {
		return nil, err
	}

	var client anthropic.Client
	if useAI {
		if err := cfg.Validate("draft-ai"); err != nil {
			return nil, err
		}
		client = anthropic.NewClient(cfg.Anthropic.Key, anthropic.WithRateLimit(cfg.Anthropic.RateLimit))
	}

	return outreach.NewDrafter(tpl, client, outreach.DrafterConfig{
		Model:     cfg.Anthropic.Model,
		MaxTokens: int64(cfg.Anthropic.MaxTokens),
		Retry:     resilience.DefaultRetryConfig(),
		Breaker:   resilience.NewBreaker(5, time.Minute),
	}), nil
}

func initSalesforce() (sfpkg.Client, error) {
	if err := cfg.Validate("import-salesforce"); err != nil {
		return nil, err
	}
	return sfpkg.Connect(sfpkg.JWTConfig{
		LoginURL: cfg.Salesforce.LoginURL,
		Username: cfg.Salesforce.Username,
		ClientID: cfg.Salesforce.ClientID,
		KeyPath:  cfg.Salesforce.KeyPath,
	}, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit))
}

func initNotion() (notion.Client, error) {
	if err := cfg.Validate("import-notion"); err != nil {
		return nil, err
	}
	return notion.NewClient(cfg.Notion.Token), nil
}

// writeJSON prints v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
