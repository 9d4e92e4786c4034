package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Lead is a Salesforce Lead record.
type Lead struct {
	ID               string `json:"Id" salesforce:"Id"`
	Name             string `json:"Name" salesforce:"Name"`
	Email            string `json:"Email" salesforce:"Email"`
	Phone            string `json:"Phone" salesforce:"Phone"`
	MobilePhone      string `json:"MobilePhone" salesforce:"MobilePhone"`
	Company          string `json:"Company" salesforce:"Company"`
	Industry         string `json:"Industry" salesforce:"Industry"`
	City             string `json:"City" salesforce:"City"`
	State            string `json:"State" salesforce:"State"`
	Status           string `json:"Status" salesforce:"Status"`
	LeadSource       string `json:"LeadSource" salesforce:"LeadSource"`
	Description      string `json:"Description" salesforce:"Description"`
	LastActivityDate string `json:"LastActivityDate" salesforce:"LastActivityDate"`
	LastModifiedDate string `json:"LastModifiedDate" salesforce:"LastModifiedDate"`
}

// leadFields are the SOQL fields selected for Lead queries.
var leadFields = []string{
	"Id", "Name", "Email", "Phone", "MobilePhone", "Company", "Industry",
	"City", "State", "Status", "LeadSource", "Description",
	"LastActivityDate", "LastModifiedDate",
}

// LeadQuery narrows ListLeads.
type LeadQuery struct {
	// ModifiedSince skips leads not touched since then. Zero means all.
	ModifiedSince time.Time
	// Status restricts to one lead status, e.g. "Open - Not Contacted".
	Status string
	Limit  int
}

// LeadSOQL builds the SOQL statement for q. Converted leads are excluded.
func LeadSOQL(q LeadQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM Lead WHERE IsConverted = false", strings.Join(leadFields, ", "))
	if !q.ModifiedSince.IsZero() {
		fmt.Fprintf(&b, " AND LastModifiedDate >= %s", q.ModifiedSince.UTC().Format(time.RFC3339))
	}
	if q.Status != "" {
		fmt.Fprintf(&b, " AND Status = '%s'", escapeSoql(q.Status))
	}
	b.WriteString(" ORDER BY LastModifiedDate DESC")
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String()
}

// ListLeads queries unconverted Salesforce leads.
func ListLeads(ctx context.Context, c Client, q LeadQuery) ([]Lead, error) {
	var leads []Lead
	if err := c.Query(ctx, LeadSOQL(q), &leads); err != nil {
		return nil, eris.Wrap(err, "sf: list leads")
	}
	return leads, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
