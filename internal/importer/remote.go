package importer

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/resilience"
	"github.com/servio-ai/prospector-cli/pkg/notion"
	"github.com/servio-ai/prospector-cli/pkg/salesforce"
)

// SalesforceSource imports unconverted Salesforce leads.
type SalesforceSource struct {
	Client salesforce.Client
	Query  salesforce.LeadQuery
	Retry  resilience.RetryConfig
}

func (s *SalesforceSource) Name() string { return "salesforce" }

func (s *SalesforceSource) Fetch(ctx context.Context) (Batch, error) {
	retry := s.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("salesforce", "list_leads")
	}
	records, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]salesforce.Lead, error) {
		return salesforce.ListLeads(ctx, s.Client, s.Query)
	})
	if err != nil {
		return Batch{}, err
	}

	var b Batch
	for i, r := range records {
		lead, err := leadFromSalesforce(r)
		if err != nil {
			b.Rejected = append(b.Rejected, RowError{Source: s.Name(), Row: i + 1, Err: err.Error()})
			continue
		}
		b.add(lead, i+1)
	}
	return b, nil
}

func leadFromSalesforce(r salesforce.Lead) (model.Lead, error) {
	if strings.TrimSpace(r.Name) == "" {
		return model.Lead{}, eris.Errorf("salesforce lead %s has no name", r.ID)
	}
	phone := r.Phone
	if phone == "" {
		phone = r.MobilePhone
	}
	lead := model.Lead{
		ExternalID: "sf:" + r.ID,
		Name:       strings.TrimSpace(r.Name),
		Email:      strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:      phone,
		Company:    r.Company,
		Category:   r.Industry,
		Location:   joinNonEmpty(", ", r.City, r.State),
		Notes:      r.Description,
		Stage:      stageFromSalesforceStatus(r.Status),
		Source:     sourceFromSalesforce(r.LeadSource),
	}
	if r.LastActivityDate != "" {
		t, err := time.Parse("2006-01-02", r.LastActivityDate)
		if err != nil {
			return model.Lead{}, eris.Wrapf(err, "salesforce lead %s last activity", r.ID)
		}
		lead.LastActivity = &t
	}
	return lead, nil
}

// stageFromSalesforceStatus maps the default Lead Status picklist.
func stageFromSalesforceStatus(status string) model.Stage {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "not contacted"):
		return model.StageNew
	case strings.Contains(s, "unqualified"), strings.Contains(s, "not converted"):
		return model.StageLost
	case strings.Contains(s, "qualified"), strings.Contains(s, "negotiat"):
		return model.StageNegotiating
	case strings.Contains(s, "contacted"), strings.Contains(s, "working"):
		return model.StageContacted
	default:
		return model.StageNew
	}
}

// sourceFromSalesforce maps the default LeadSource picklist.
func sourceFromSalesforce(src string) model.Source {
	s := strings.ToLower(src)
	switch {
	case strings.Contains(s, "referral"), strings.Contains(s, "partner"):
		return model.SourceReferral
	case strings.Contains(s, "trade show"), strings.Contains(s, "seminar"), strings.Contains(s, "event"):
		return model.SourceEvent
	case strings.Contains(s, "web"), strings.Contains(s, "phone inquiry"):
		return model.SourceDirect
	case strings.Contains(s, "social"):
		return model.SourceSocial
	default:
		return model.ParseSource(src)
	}
}

// NotionSource imports the pages of a Notion lead database.
type NotionSource struct {
	Client     notion.Client
	DatabaseID string
}

func (s *NotionSource) Name() string { return "notion" }

func (s *NotionSource) Fetch(ctx context.Context) (Batch, error) {
	if s.DatabaseID == "" {
		return Batch{}, eris.New("notion: lead database id is required")
	}
	records, err := notion.QueryLeads(ctx, s.Client, s.DatabaseID)
	if err != nil {
		return Batch{}, err
	}

	var b Batch
	for i, r := range records {
		if r.Name == "" {
			b.Rejected = append(b.Rejected, RowError{Source: s.Name(), Row: i + 1, Err: "missing name"})
			continue
		}
		// Notion status columns carry workspace-specific labels; unknown
		// ones start at new.
		stage, ok := parseStageLabel(r.Stage)
		if !ok {
			stage = model.StageNew
		}
		b.add(model.Lead{
			ExternalID:   "notion:" + r.PageID,
			Name:         r.Name,
			Email:        strings.ToLower(r.Email),
			Phone:        r.Phone,
			Company:      r.Company,
			Category:     r.Category,
			Location:     r.Location,
			Stage:        stage,
			Source:       model.ParseSource(r.Source),
			Notes:        r.Notes,
			Tags:         r.Tags,
			LastActivity: r.LastActivity,
		}, i+1)
	}
	return b, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
