// Package marketplacer is a client for the catalog's GraphQL API: paging
// golden products by creation time, updating a product's attribute set, and
// resolving the option type that stores complementary-search queries.
package marketplacer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// queriesOptionTypeName is the display name of the option type that holds
// the complementary-search queries on the upstream catalog.
const queriesOptionTypeName = "Bought together queries"

// Client defines the catalog operations used by the pipeline.
type Client interface {
	// FetchProductsPage returns one page of products created inside the
	// request's time window, sorted ascending by creation time.
	FetchProductsPage(ctx context.Context, req PageRequest) (*ProductsPage, error)

	// UpdateProduct replaces a product's mutable attribute set. The catalog
	// treats the attribute set as a full replace, not a patch, so the same
	// request applied twice yields the same upstream state.
	UpdateProduct(ctx context.Context, req UpdateRequest) error

	// QueriesOptionTypeID resolves (and caches) the id of the option type
	// that stores complementary-search queries.
	QueriesOptionTypeID(ctx context.Context) (string, error)
}

// PageRequest identifies one page of the golden products query.
type PageRequest struct {
	After        string // opaque continuation cursor; empty for the first page
	First        int    // page size
	CreatedSince time.Time
	CreatedUntil time.Time
}

// ProductsPage is one page of raw product nodes plus pagination state.
type ProductsPage struct {
	Nodes      []ProductNode
	PageInfo   PageInfo
	TotalCount int
}

// PageInfo mirrors the GraphQL connection page info.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// ProductNode is the raw upstream shape of one golden product.
type ProductNode struct {
	ID           string          `json:"id"`
	LegacyID     int64           `json:"legacyId"`
	Active       bool            `json:"active"`
	Title        string          `json:"title"`
	CreatedAt    time.Time       `json:"createdAt"`
	Description  string          `json:"description"`
	Brand        BrandNode       `json:"brand"`
	Taxon        TaxonNode       `json:"taxon"`
	OptionValues OptionValueConn `json:"optionValues"`
}

// BrandNode is the product's brand reference.
type BrandNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TaxonNode is the product's category tree reference.
type TaxonNode struct {
	ID       string `json:"id"`
	TreeName string `json:"treeName"`
}

// OptionValueConn wraps the option values connection.
type OptionValueConn struct {
	Nodes []OptionValueNode `json:"nodes"`
}

// OptionValueNode is one existing option value on a product.
type OptionValueNode struct {
	ID          string          `json:"id"`
	TextValue   string          `json:"textValue"`
	OptionType  OptionTypeNode  `json:"optionType"`
	OptionValue *OptionValueRef `json:"optionValue"`
}

// OptionTypeNode identifies an option type.
type OptionTypeNode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// OptionValueRef identifies a predefined option value.
type OptionValueRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// UpdateRequest carries a full-replace product update.
type UpdateRequest struct {
	ProductID  string
	Attributes ProductAttributes
}

// ProductAttributes is the attribute set sent to the update mutation.
type ProductAttributes struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	BrandID      string             `json:"brandId,omitempty"`
	TaxonID      string             `json:"taxonId,omitempty"`
	OptionValues []OptionValueInput `json:"optionValues,omitempty"`
}

// OptionValueInput is one option value in an update. Exactly one of
// OptionValueID or OptionTypeID+TextValue is set.
type OptionValueInput struct {
	OptionTypeID  string `json:"optionTypeId,omitempty"`
	OptionValueID string `json:"optionValueId,omitempty"`
	TextValue     string `json:"textValue,omitempty"`
}

// StatusError reports a non-2xx HTTP response from the catalog.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "marketplacer: unexpected status " + http.StatusText(e.StatusCode) + ": " + e.Body
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	endpoint string
	token    string
	http     *http.Client
	limiter  *rate.Limiter

	mu      sync.Mutex
	fieldID string // cached queries option type id
}

// NewClient creates a Marketplacer GraphQL client.
func NewClient(endpoint, token string, opts ...Option) Client {
	c := &httpClient{
		endpoint: endpoint,
		token:    token,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) FetchProductsPage(ctx context.Context, req PageRequest) (*ProductsPage, error) {
	variables := map[string]any{
		"first":        req.First,
		"createdSince": req.CreatedSince.UTC().Format(time.RFC3339),
		"createdUntil": req.CreatedUntil.UTC().Format(time.RFC3339),
	}
	if req.After != "" {
		variables["after"] = req.After
	}

	var payload struct {
		GoldenProducts *struct {
			Nodes      []ProductNode `json:"nodes"`
			PageInfo   PageInfo      `json:"pageInfo"`
			TotalCount int           `json:"totalCount"`
		} `json:"goldenProducts"`
	}
	if err := c.do(ctx, goldenProductsQuery, variables, &payload); err != nil {
		return nil, eris.Wrap(err, "marketplacer: fetch products page")
	}
	if payload.GoldenProducts == nil {
		return nil, eris.New("marketplacer: response missing goldenProducts payload")
	}

	return &ProductsPage{
		Nodes:      payload.GoldenProducts.Nodes,
		PageInfo:   payload.GoldenProducts.PageInfo,
		TotalCount: payload.GoldenProducts.TotalCount,
	}, nil
}

func (c *httpClient) UpdateProduct(ctx context.Context, req UpdateRequest) error {
	variables := map[string]any{
		"input": map[string]any{
			"clientMutationId": "users-also-buy-" + uuid.New().String(),
			"goldenProductId":  req.ProductID,
			"attributes":       req.Attributes,
		},
	}

	var payload struct {
		GoldenProductUpdate *struct {
			GoldenProduct *struct {
				ID string `json:"id"`
			} `json:"goldenProduct"`
			Errors []struct {
				Field    string   `json:"field"`
				Messages []string `json:"messages"`
			} `json:"errors"`
		} `json:"goldenProductUpdate"`
	}
	if err := c.do(ctx, goldenProductUpdateMutation, variables, &payload); err != nil {
		return eris.Wrapf(err, "marketplacer: update product %s", req.ProductID)
	}
	if payload.GoldenProductUpdate == nil {
		return eris.Errorf("marketplacer: update product %s: response missing payload", req.ProductID)
	}
	if errs := payload.GoldenProductUpdate.Errors; len(errs) > 0 {
		return eris.Errorf("marketplacer: update product %s rejected: %s: %v",
			req.ProductID, errs[0].Field, errs[0].Messages)
	}
	return nil
}

func (c *httpClient) QueriesOptionTypeID(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.fieldID != "" {
		id := c.fieldID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var payload struct {
		OptionTypes struct {
			Nodes []struct {
				ID          string `json:"id"`
				DisplayName string `json:"displayName"`
			} `json:"nodes"`
		} `json:"optionTypes"`
	}
	if err := c.do(ctx, optionTypesQuery, nil, &payload); err != nil {
		return "", eris.Wrap(err, "marketplacer: list option types")
	}

	for _, node := range payload.OptionTypes.Nodes {
		if node.DisplayName == queriesOptionTypeName {
			c.mu.Lock()
			c.fieldID = node.ID
			c.mu.Unlock()
			return node.ID, nil
		}
	}
	return "", eris.Errorf("marketplacer: option type %q not found", queriesOptionTypeName)
}

// do posts one GraphQL request and decodes data into out. Top-level GraphQL
// errors and non-2xx statuses become Go errors; 429/5xx surface as
// StatusError so callers can classify them as transient.
func (c *httpClient) do(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	if len(envelope.Errors) > 0 {
		return eris.Errorf("graphql error: %s", envelope.Errors[0].Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return eris.Wrap(err, "unmarshal data")
		}
	}
	return nil
}
