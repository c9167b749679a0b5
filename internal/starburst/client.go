// Package starburst is a thin authenticated client for the Data Product
// control plane REST API (/api/v1/dataProduct).
package starburst

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourceplane/dpfactory/internal/model"
	"golang.org/x/time/rate"
)

const apiPrefix = "/api/v1/dataProduct"

// DefaultTimeout bounds a single HTTP round trip
const DefaultTimeout = 30 * time.Second

// healthTimeout bounds the health check request
const healthTimeout = 5 * time.Second

// ErrNotConfigured is returned when the client is missing its URL or credentials
var ErrNotConfigured = errors.New("starburst client is not configured")

// Options configures a Client
type Options struct {
	BaseURL            string
	User               string
	Password           string
	DomainLocationBase string

	// HTTPClient overrides the default client (DefaultTimeout, pooled transport)
	HTTPClient *http.Client
	// RequestsPerSecond throttles outgoing requests; zero disables throttling
	RequestsPerSecond float64
	Burst             int

	Logger *slog.Logger
}

// Client talks to the control plane. It reuses one HTTP client, and therefore
// one connection pool, for every call.
type Client struct {
	baseURL            string
	user               string
	password           string
	domainLocationBase string

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a client. BaseURL, User and Password are required.
func NewClient(opts Options) (*Client, error) {
	var missing []string
	if strings.TrimSpace(opts.BaseURL) == "" {
		missing = append(missing, "base URL")
	}
	if opts.User == "" {
		missing = append(missing, "user")
	}
	if opts.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}

	c := &Client{
		baseURL:            strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		user:               opts.User,
		password:           opts.Password,
		domainLocationBase: opts.DomainLocationBase,
		httpClient:         opts.HTTPClient,
		logger:             opts.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

// BaseURL returns the normalized base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// DomainLocationBase returns the storage base used to derive domain schema locations
func (c *Client) DomainLocationBase() string {
	return c.domainLocationBase
}

// APIError is returned for any non-2xx response
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// IsConflict reports whether err is an HTTP 409 from the control plane
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsNotFound reports whether err is an HTTP 404 from the control plane
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// apiPath joins path elements under the Data Product API prefix
func (c *Client) apiPath(elems ...string) string {
	escaped := make([]string, len(elems))
	for i, e := range elems {
		escaped[i] = url.PathEscape(e)
	}
	return c.baseURL + apiPrefix + "/" + strings.Join(escaped, "/")
}

// resolve turns a possibly relative status URL into an absolute one
func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	if u.IsAbs() {
		return ref, nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	return base.ResolveReference(u).String(), nil
}

// do sends a request and returns the response with its body fully read.
// Non-2xx statuses become *APIError.
func (c *Client) do(ctx context.Context, method, rawURL string, query url.Values, body interface{}) (*http.Response, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := rawURL
	if len(query) > 0 {
		target = rawURL + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s %s: %w", method, rawURL, err)
	}

	c.logger.Debug("control plane request",
		"method", method,
		"url", rawURL,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, respBody, &APIError{
			Method:     method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	return resp, respBody, nil
}

// doJSON sends a request and decodes a 2xx JSON response into out
func (c *Client) doJSON(ctx context.Context, method, rawURL string, query url.Values, body, out interface{}) error {
	_, data, err := c.do(ctx, method, rawURL, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, rawURL, err)
	}
	return nil
}

// HealthCheck reports whether the control plane answers an authenticated
// request. It never returns an error.
func (c *Client) HealthCheck(ctx context.Context) (bool, string) {
	if c == nil || c.baseURL == "" {
		return false, "control plane URL is not configured"
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	_, _, err := c.do(ctx, http.MethodGet, c.apiPath("domains"), nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return false, fmt.Sprintf("API call failed: HTTP %d", apiErr.StatusCode)
		}
		return false, fmt.Sprintf("connection failed: %v", err)
	}
	return true, "connection successful"
}

// GetDomains lists all Data Product domains
func (c *Client) GetDomains(ctx context.Context) ([]model.Domain, error) {
	var domains []model.Domain
	if err := c.doJSON(ctx, http.MethodGet, c.apiPath("domains"), nil, nil, &domains); err != nil {
		return nil, err
	}
	return domains, nil
}

// SchemaLocation derives the storage location of a domain from base and the
// domain name: lower-cased, spaces to hyphens, '&' to "and".
func SchemaLocation(base, name string) string {
	safe := strings.ToLower(name)
	safe = strings.ReplaceAll(safe, " ", "-")
	safe = strings.ReplaceAll(safe, "&", "and")
	return base + safe + "/"
}

// CreateDomain creates a domain. When the name already exists (HTTP 409) the
// existing domain is looked up and returned instead.
func (c *Client) CreateDomain(ctx context.Context, name, description string) (model.Domain, error) {
	req := model.CreateDomainRequest{
		Name:        name,
		Description: description,
	}
	if c.domainLocationBase != "" {
		req.SchemaLocation = SchemaLocation(c.domainLocationBase, name)
	}

	var created model.Domain
	err := c.doJSON(ctx, http.MethodPost, c.apiPath("domains"), nil, req, &created)
	if err == nil {
		return created, nil
	}
	if !IsConflict(err) {
		return model.Domain{}, err
	}

	c.logger.Debug("domain already exists, looking it up", "domain", name)
	domains, lookupErr := c.GetDomains(ctx)
	if lookupErr != nil {
		return model.Domain{}, fmt.Errorf("domain %s conflicted and lookup failed: %w", name, lookupErr)
	}
	for _, d := range domains {
		if d.Name == name {
			return d, nil
		}
	}
	return model.Domain{}, err
}

type searchOptions struct {
	SearchString string `json:"searchString"`
	Limit        int    `json:"limit"`
}

// SearchProducts runs a fuzzy server-side search. Callers must filter for an
// exact name match.
func (c *Client) SearchProducts(ctx context.Context, search string) ([]model.ProductSummary, error) {
	opts, err := json.Marshal(searchOptions{SearchString: search, Limit: 10})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search options: %w", err)
	}
	query := url.Values{}
	query.Set("searchOptions", string(opts))

	var products []model.ProductSummary
	if err := c.doJSON(ctx, http.MethodGet, c.apiPath("products"), query, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct fetches a product by id
func (c *Client) GetProduct(ctx context.Context, id string) (model.Product, error) {
	var product model.Product
	err := c.doJSON(ctx, http.MethodGet, c.apiPath("products", id), nil, nil, &product)
	return product, err
}

// CreateProduct creates a product
func (c *Client) CreateProduct(ctx context.Context, payload *model.ProductPayload) (model.Product, error) {
	var product model.Product
	err := c.doJSON(ctx, http.MethodPost, c.apiPath("products"), nil, payload, &product)
	return product, err
}

// UpdateProduct replaces a product definition in place
func (c *Client) UpdateProduct(ctx context.Context, id string, payload *model.ProductPayload) (model.Product, error) {
	var product model.Product
	err := c.doJSON(ctx, http.MethodPut, c.apiPath("products", id), nil, payload, &product)
	return product, err
}

// TriggerPublish starts the publish workflow with force=true and returns the
// status URL from the Location header.
func (c *Client) TriggerPublish(ctx context.Context, productID string) (string, error) {
	query := url.Values{}
	query.Set("force", "true")

	resp, _, err := c.do(ctx, http.MethodPost, c.apiPath("products", productID, "workflows", "publish"), query, nil)
	if err != nil {
		return "", err
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("publish of product %s returned HTTP %d without a Location header", productID, resp.StatusCode)
	}
	return c.resolve(location)
}

// GetStatus polls an asynchronous workflow status URL
func (c *Client) GetStatus(ctx context.Context, statusURL string) (model.WorkflowStatus, error) {
	target, err := c.resolve(statusURL)
	if err != nil {
		return model.WorkflowStatus{}, err
	}
	var status model.WorkflowStatus
	err = c.doJSON(ctx, http.MethodGet, target, nil, nil, &status)
	return status, err
}

// UpdateProductTags replaces the whole tag set of a product
func (c *Client) UpdateProductTags(ctx context.Context, productID string, tags []string) error {
	body := make([]model.TagValue, 0, len(tags))
	for _, t := range tags {
		body = append(body, model.TagValue{Value: t})
	}
	return c.doJSON(ctx, http.MethodPut, c.apiPath("tags", "products", productID), nil, body, nil)
}

// GetCatalogs lists target catalogs suitable for Data Products
func (c *Client) GetCatalogs(ctx context.Context) ([]model.Catalog, error) {
	var catalogs []model.Catalog
	if err := c.doJSON(ctx, http.MethodGet, c.apiPath("catalogs"), nil, nil, &catalogs); err != nil {
		return nil, err
	}
	return catalogs, nil
}
