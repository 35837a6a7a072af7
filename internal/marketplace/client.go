package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jw6ventures/sellerpulse/internal/config"
)

// Upstream endpoint paths.
const (
	pathTokenCreate    = "/auth/token/create"
	pathTokenRefresh   = "/auth/token/refresh"
	pathOrderSearch    = "/orders/search"
	pathCampaignList   = "/campaigns/list"
	pathCampaignReport = "/campaigns/report"
)

// PageSize is the fixed page size for paginated upstream calls. A page with
// fewer rows than this signals exhaustion.
const PageSize = 100

// Client is a stateless signer and executor for upstream REST calls. It holds
// no credentials beyond the application identity; access tokens are passed per
// call.
type Client struct {
	baseURL   string
	appKey    string
	appSecret string

	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.Marketplace.BaseURL, "/"),
		appKey:     cfg.Marketplace.AppKey,
		appSecret:  cfg.Marketplace.AppSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// ExchangeCode trades an OAuth authorization code for seller tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenPayload, error) {
	data, err := c.request(ctx, http.MethodPost, pathTokenCreate, map[string]string{"code": code})
	if err != nil {
		return nil, err
	}
	return parseTokenPayload(pathTokenCreate, data)
}

// RefreshToken exchanges a refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenPayload, error) {
	data, err := c.request(ctx, http.MethodPost, pathTokenRefresh, map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	return parseTokenPayload(pathTokenRefresh, data)
}

// ListOrders fetches one page of orders created at or after createdAfter,
// sorted by creation time descending upstream.
func (c *Client) ListOrders(ctx context.Context, accessToken string, createdAfter time.Time, offset, limit int) ([]Order, error) {
	params := map[string]string{
		"access_token":  accessToken,
		"created_after": strconv.FormatInt(createdAfter.UnixMilli(), 10),
		"offset":        strconv.Itoa(offset),
		"limit":         strconv.Itoa(limit),
		"sort_by":       "created_at",
		"sort_dir":      "desc",
	}
	data, err := c.request(ctx, http.MethodGet, pathOrderSearch, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Orders []json.RawMessage `json:"orders"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", pathOrderSearch, err)
	}

	orders := make([]Order, 0, len(payload.Orders))
	for _, raw := range payload.Orders {
		var o Order
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		o.Raw = raw
		orders = append(orders, o)
	}
	return orders, nil
}

// ListCampaigns fetches one page of ad campaigns.
func (c *Client) ListCampaigns(ctx context.Context, accessToken string, offset, limit int) ([]Campaign, error) {
	params := map[string]string{
		"access_token": accessToken,
		"offset":       strconv.Itoa(offset),
		"limit":        strconv.Itoa(limit),
	}
	data, err := c.request(ctx, http.MethodGet, pathCampaignList, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Campaigns []json.RawMessage `json:"campaigns"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", pathCampaignList, err)
	}

	campaigns := make([]Campaign, 0, len(payload.Campaigns))
	for _, raw := range payload.Campaigns {
		var cp Campaign
		if err := json.Unmarshal(raw, &cp); err != nil {
			return nil, fmt.Errorf("decode campaign: %w", err)
		}
		cp.Raw = raw
		campaigns = append(campaigns, cp)
	}
	return campaigns, nil
}

// CampaignReport fetches the per-campaign performance report for one day.
func (c *Client) CampaignReport(ctx context.Context, accessToken string, date time.Time) ([]CampaignReportRow, error) {
	params := map[string]string{
		"access_token": accessToken,
		"report_date":  date.Format("2006-01-02"),
	}
	data, err := c.request(ctx, http.MethodGet, pathCampaignReport, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Rows []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", pathCampaignReport, err)
	}

	rows := make([]CampaignReportRow, 0, len(payload.Rows))
	for _, raw := range payload.Rows {
		var row CampaignReportRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("decode report row: %w", err)
		}
		row.Raw = raw
		rows = append(rows, row)
	}
	return rows, nil
}

// request signs and executes one upstream call, unwraps the response envelope
// and returns the data payload. A non-zero application code comes back as
// *APIError even when the HTTP status is 200.
func (c *Client) request(ctx context.Context, method, path string, params map[string]string) (json.RawMessage, error) {
	signed := make(map[string]string, len(params)+4)
	for k, v := range params {
		signed[k] = v
	}
	signed["app_key"] = c.appKey
	signed["timestamp"] = strconv.FormatInt(c.now().UnixMilli(), 10)
	signed["sign_method"] = "sha256"
	signed["sign"] = Sign(path, signed, c.appSecret)

	values := url.Values{}
	for k, v := range signed {
		values.Set(k, v)
	}

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+values.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(values.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, &TransportError{Path: path, Err: err}
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &TransportError{Path: path, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Path: path, StatusCode: resp.StatusCode, Body: bodySnippet(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &TransportError{Path: path, StatusCode: resp.StatusCode, Body: bodySnippet(body), Err: err}
	}
	if !env.Code.ok() {
		return nil, &APIError{Code: string(env.Code), Message: env.Message, RequestID: env.RequestID}
	}
	return env.Data, nil
}

func parseTokenPayload(path string, data json.RawMessage) (*TokenPayload, error) {
	var payload TokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", path, err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("%s returned no access token", path)
	}
	return &payload, nil
}

func bodySnippet(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
