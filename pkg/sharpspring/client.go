// Package sharpspring is a client for the SharpSpring method-call API.
// Every operation is a POST to /pubapi/v1/ with account credentials in the
// query string and a {"method": ..., "params": ...} JSON body.
package sharpspring

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.sharpspring.com"
	apiPath        = "/pubapi/v1/"

	// maxPageSize is the limit the API enforces on getLeads.
	maxPageSize = 500
)

// Client fetches lead records from the platform.
type Client interface {
	GetLeads(ctx context.Context, limit, offset int, where map[string]any) ([]map[string]any, error)
	GetAllLeads(ctx context.Context, where map[string]any) ([]map[string]any, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

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
	accountID string
	secretKey string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a SharpSpring API client.
func NewClient(accountID, secretKey string, opts ...Option) Client {
	c := &httpClient{
		accountID: accountID,
		secretKey: secretKey,
		baseURL:   defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type apiRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
	ID     string         `json:"id"`
}

type apiResponse struct {
	Result *apiResult `json:"result"`
	Error  *apiError  `json:"error"`
}

type apiResult struct {
	Leads []map[string]any `json:"lead"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GetLeads fetches a single page of leads. Limit is clamped to the API's
// page-size cap.
func (c *httpClient) GetLeads(ctx context.Context, limit, offset int, where map[string]any) ([]map[string]any, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if where == nil {
		where = map[string]any{}
	}

	result, err := c.call(ctx, "getLeads", map[string]any{
		"limit":  limit,
		"offset": offset,
		"where":  where,
	})
	if err != nil {
		return nil, err
	}
	return result.Leads, nil
}

// GetAllLeads pages through getLeads until a short page signals the end.
func (c *httpClient) GetAllLeads(ctx context.Context, where map[string]any) ([]map[string]any, error) {
	var all []map[string]any
	offset := 0
	for {
		page, err := c.GetLeads(ctx, maxPageSize, offset, where)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < maxPageSize {
			return all, nil
		}
		offset += maxPageSize
	}
}

func (c *httpClient) call(ctx context.Context, method string, params map[string]any) (*apiResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sharpspring: rate limit wait")
	}

	body, err := json.Marshal(apiRequest{
		Method: method,
		Params: params,
		ID:     method,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "sharpspring: marshal %s request", method)
	}

	endpoint := c.baseURL + apiPath + "?" + url.Values{
		"accountID": {c.accountID},
		"secretKey": {c.secretKey},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "sharpspring: create %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "sharpspring: send %s request", method)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "sharpspring: read %s response", method)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("sharpspring: %s returned status %d: %s", method, resp.StatusCode, string(respBody))
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, eris.Wrapf(err, "sharpspring: unmarshal %s response", method)
	}
	if parsed.Error != nil {
		return nil, eris.Errorf("sharpspring: %s API error %d: %s", method, parsed.Error.Code, parsed.Error.Message)
	}
	if parsed.Result == nil {
		return nil, eris.Errorf("sharpspring: %s returned no result", method)
	}
	return parsed.Result, nil
}
