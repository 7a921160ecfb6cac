package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// BillableItem is one chargeable entry from a completed encounter,
// before pricing.
type BillableItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

// ResolvedPrice is the pricing catalog's answer for one billable item.
type ResolvedPrice struct {
	UnitPrice float64 `json:"unit_price"`
	Category  string  `json:"category"`
	SKU       *string `json:"inventory_sku,omitempty"`
}

// PriceResolver maps billable items to priced line items. The catalog
// itself lives in a collaborating service.
type PriceResolver interface {
	Resolve(ctx context.Context, item BillableItem) (ResolvedPrice, error)
}

// HTTPResolver looks prices up over HTTP. Timeouts and transport
// failures fail closed into a retryable classified error so a caller
// can retry the whole trigger.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, item BillableItem) (ResolvedPrice, error) {
	endpoint := fmt.Sprintf("%s/prices/%s", r.baseURL, url.PathEscape(item.Code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ResolvedPrice{}, fmt.Errorf("build pricing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return ResolvedPrice{}, WrapError(KindUpstreamUnavailable, "pricing lookup failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return ResolvedPrice{}, fmt.Errorf("no price for billable code %q", item.Code)
	case resp.StatusCode >= 500:
		return ResolvedPrice{}, NewError(KindUpstreamUnavailable, "pricing service returned %d", resp.StatusCode)
	default:
		return ResolvedPrice{}, fmt.Errorf("pricing service returned %d for code %q", resp.StatusCode, item.Code)
	}

	var price ResolvedPrice
	if err := json.NewDecoder(resp.Body).Decode(&price); err != nil {
		return ResolvedPrice{}, WrapError(KindUpstreamUnavailable, "decode pricing response", err)
	}
	return price, nil
}

// StaticResolver serves prices from a fixed map, keyed by billable code.
type StaticResolver map[string]ResolvedPrice

func (r StaticResolver) Resolve(_ context.Context, item BillableItem) (ResolvedPrice, error) {
	price, ok := r[item.Code]
	if !ok {
		return ResolvedPrice{}, fmt.Errorf("no price for billable code %q", item.Code)
	}
	return price, nil
}
