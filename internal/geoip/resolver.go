package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maplebug/helpdesk/internal/domain"
)

// Resolver maps an IP address to a human-readable location string. Lookups
// are advisory: implementations never return an error, they degrade to
// domain.LocationUnknown instead.
type Resolver interface {
	Resolve(ctx context.Context, ip string) string
}

// HTTPResolver queries an external IP-data service. A failed or slow lookup
// must not stall the surrounding request, so the client carries a hard
// timeout on top of the caller's context.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPResolver builds a resolver against the given service base URL.
func NewHTTPResolver(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPResolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type ipDataResponse struct {
	IPData *struct {
		Info1 string `json:"info1"`
		Info2 string `json:"info2"`
		Info3 string `json:"info3"`
		ISP   string `json:"isp"`
	} `json:"ipdata"`
}

// Resolve returns "region-city-district-isp" for the given address, or
// domain.LocationUnknown on any failure.
func (r *HTTPResolver) Resolve(ctx context.Context, ip string) string {
	cleaned := CleanIP(ip)
	if cleaned == "" || cleaned == domain.LocationUnknown {
		return domain.LocationUnknown
	}

	endpoint := fmt.Sprintf("%s/api/IPdata?ip=%s", r.baseURL, url.QueryEscape(cleaned))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.LocationUnknown
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("ip location lookup failed", zap.String("ip", cleaned), zap.Error(err))
		return domain.LocationUnknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("ip location lookup failed", zap.String("ip", cleaned), zap.Int("status", resp.StatusCode))
		return domain.LocationUnknown
	}

	var payload ipDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		r.logger.Warn("ip location response malformed", zap.String("ip", cleaned), zap.Error(err))
		return domain.LocationUnknown
	}
	if payload.IPData == nil {
		return domain.LocationUnknown
	}

	d := payload.IPData
	return fmt.Sprintf("%s-%s-%s-%s", d.Info1, d.Info2, d.Info3, d.ISP)
}

// CleanIP strips the IPv4-mapped-IPv6 prefix that proxies commonly report.
func CleanIP(ip string) string {
	return strings.TrimPrefix(ip, "::ffff:")
}

// Static always answers with a fixed location. Useful in tests and when no
// lookup service is configured.
type Static struct {
	Location string
}

// Resolve implements Resolver.
func (s Static) Resolve(ctx context.Context, ip string) string {
	if s.Location == "" {
		return domain.LocationUnknown
	}
	return s.Location
}
