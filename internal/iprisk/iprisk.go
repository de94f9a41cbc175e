package iprisk

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Best-effort IP risk lookup.
//
// Informational only: the result is attached to referral responses for
// operator visibility and is never used for blocking. Any failure —
// timeout, transport error, bad payload — degrades to a low-risk
// result; an error never reaches the caller.

// RiskInfo is the lookup result.
type RiskInfo struct {
	IP      string `json:"ip"`
	Level   string `json:"level"` // low/medium/high
	Country string `json:"country,omitempty"`
	Proxy   bool   `json:"proxy,omitempty"`
}

// LowRisk is the fallback result used on any lookup failure.
func LowRisk(ip string) RiskInfo {
	return RiskInfo{IP: ip, Level: "low"}
}

// Client queries a geolocation/risk HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a lookup client. An empty baseURL disables lookups
// entirely (Lookup then always returns the low-risk fallback).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Lookup fetches risk info for the IP. Best-effort with a short
// timeout; failures are logged and swallowed.
func (c *Client) Lookup(ctx context.Context, ip string) RiskInfo {
	if c.baseURL == "" || ip == "" || ip == "unknown" {
		return LowRisk(ip)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return LowRisk(ip)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[IPRisk] Lookup failed for %s: %v", ip, err)
		return LowRisk(ip)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[IPRisk] Lookup for %s returned status %d", ip, resp.StatusCode)
		return LowRisk(ip)
	}

	var payload struct {
		Country string `json:"country"`
		Proxy   bool   `json:"proxy"`
		Risk    string `json:"risk"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Printf("[IPRisk] Bad payload for %s: %v", ip, err)
		return LowRisk(ip)
	}

	level := payload.Risk
	switch level {
	case "low", "medium", "high":
	default:
		level = "low"
	}

	return RiskInfo{IP: ip, Level: level, Country: payload.Country, Proxy: payload.Proxy}
}
