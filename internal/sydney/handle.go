// ABOUTME: Conversation handle acquisition against the backend's creation endpoint.
// ABOUTME: A handle is the identifier triple required on every subsequent exchange.

package sydney

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Handle identifies a backend conversation. All three fields are present on
// a valid handle; a partial handle is treated as no handle at all.
type Handle struct {
	ConversationID        string `json:"conversationId"`
	ClientID              string `json:"clientId"`
	ConversationSignature string `json:"conversationSignature"`
}

// Valid reports whether the handle carries all required fields.
func (h Handle) Valid() bool {
	return h.ConversationID != "" && h.ClientID != "" && h.ConversationSignature != ""
}

// browserHeaders impersonate an Edge browser; the creation endpoint rejects
// requests that do not look like one.
var browserHeaders = map[string]string{
	"accept":                    "application/json",
	"accept-language":           "en-US,en;q=0.9",
	"sec-ch-ua":                 `"Microsoft Edge";v="113", "Chromium";v="113", "Not-A.Brand";v="24"`,
	"sec-ch-ua-mobile":          "?0",
	"sec-ch-ua-platform":        `"Windows"`,
	"sec-fetch-dest":            "empty",
	"sec-fetch-mode":            "cors",
	"sec-fetch-site":            "none",
	"x-ms-useragent":            "azsdk-js-api-client-factory/1.0.0-beta.1 core-rest-pipeline/1.10.0 OS/Win32",
	"user-agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36 Edg/113.0.1774.50",
	"x-edge-shopping-flag":      "1",
	"x-forwarded-for":           "1.1.1.1",
	"referer":                   "https://www.bing.com/search",
	"referrer-policy":           "origin-when-cross-origin",
	"upgrade-insecure-requests": "1",
}

// maxCreateBody caps how much of a creation response is read for diagnostics.
const maxCreateBody = 1 << 20

// createHandle requests a fresh conversation from the backend. A non-2xx
// status yields a BackendUnavailableError carrying the status and body.
func createHandle(ctx context.Context, client *http.Client, createURL, cookie string) (Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, createURL, nil)
	if err != nil {
		return Handle{}, fmt.Errorf("building conversation request: %w", err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("x-ms-client-request-id", uuid.New().String())
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "_U", Value: cookie})
	}

	resp, err := client.Do(req)
	if err != nil {
		return Handle{}, fmt.Errorf("requesting conversation: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCreateBody))
	if err != nil {
		return Handle{}, fmt.Errorf("reading conversation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Handle{}, &BackendUnavailableError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var h Handle
	if err := json.Unmarshal(body, &h); err != nil {
		return Handle{}, fmt.Errorf("parsing conversation response: %w", err)
	}
	if !h.Valid() {
		return Handle{}, fmt.Errorf("backend returned an incomplete conversation handle")
	}
	return h, nil
}
