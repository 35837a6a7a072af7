package marketplace

import (
	"encoding/json"
	"strings"
)

// TokenPayload is the upstream response to a token create or refresh call.
type TokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	SellerID     string `json:"seller_id"`
	SellerName   string `json:"seller_name"`
	Country      string `json:"country"`
}

// Order is one upstream order as returned by the order search endpoint.
// Raw holds the original JSON object verbatim.
type Order struct {
	OrderID   string   `json:"order_id"`
	OrderNo   string   `json:"order_no"`
	Statuses  []string `json:"statuses"`
	Price     any      `json:"price"`
	Currency  string   `json:"currency"`
	ItemCount int      `json:"item_count"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`

	Raw json.RawMessage `json:"-"`
}

// Campaign is one upstream ad campaign.
type Campaign struct {
	CampaignID  string `json:"campaign_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Objective   string `json:"objective"`
	Status      string `json:"status"`
	DailyBudget any    `json:"daily_budget"`

	Raw json.RawMessage `json:"-"`
}

// CampaignReportRow is one campaign's performance for a single day. Numeric
// fields arrive as strings or numbers depending on the endpoint version, so
// they stay untyped here and are coerced by the sync layer.
type CampaignReportRow struct {
	CampaignID     string `json:"campaign_id"`
	Spend          any    `json:"spend"`
	StoreRevenue   any    `json:"store_revenue"`
	ProductRevenue any    `json:"product_revenue"`
	Orders         any    `json:"orders"`
	Units          any    `json:"units"`
	Impressions    any    `json:"impressions"`
	Clicks         any    `json:"clicks"`

	Raw json.RawMessage `json:"-"`
}

// responseCode is the application-level status embedded in every response
// body. The upstream emits it as either a JSON string or a number.
type responseCode string

func (c *responseCode) UnmarshalJSON(b []byte) error {
	*c = responseCode(strings.Trim(string(b), `"`))
	return nil
}

func (c responseCode) ok() bool { return c == "0" }

type envelope struct {
	Code      responseCode    `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}
