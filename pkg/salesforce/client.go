// Package salesforce reads CRM records from Salesforce over its REST API.
package salesforce

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Salesforce API operations used by the importer.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for SF API calls.
// A burst equal to the integer portion of rps is allowed.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient wraps the go-salesforce/v3 Salesforce struct.
//
// go-salesforce does not take a context, so ctx only bounds the rate
// limiter wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient creates a new Salesforce Client wrapping the given go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// JWTConfig holds the connected-app settings for the JWT bearer flow.
type JWTConfig struct {
	LoginURL string
	Username string
	ClientID string
	KeyPath  string
}

// Connect authenticates with the JWT bearer flow and returns a Client.
func Connect(cfg JWTConfig, opts ...ClientOption) (Client, error) {
	if cfg.ClientID == "" || cfg.Username == "" {
		return nil, eris.New("sf: client id and username are required")
	}
	pemData, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "sf: read JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.LoginURL,
		Username:       cfg.Username,
		ConsumerKey:    cfg.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "sf: init")
	}
	return NewClient(sf, opts...), nil
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "sf: rate limit")
		}
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}
