// Package tags suggests category tags for listings by searching Wikidata.
package tags

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultEndpoint = "https://www.wikidata.org/w/api.php"

// Suggestion is one candidate tag.
type Suggestion struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Client queries the Wikidata entity search API.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds a client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Search []struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		Description string `json:"description"`
	} `json:"search"`
}

// Suggest returns up to limit tag candidates matching q.
func (c *Client) Suggest(ctx context.Context, q string, limit int) ([]Suggestion, error) {
	if limit <= 0 || limit > 20 {
		limit = 10
	}

	params := url.Values{}
	params.Set("action", "wbsearchentities")
	params.Set("format", "json")
	params.Set("language", "en")
	params.Set("type", "item")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("search", q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikidata search failed: status=%d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	out := make([]Suggestion, 0, len(body.Search))
	for _, s := range body.Search {
		out = append(out, Suggestion{ID: s.ID, Label: s.Label, Description: s.Description})
	}
	return out, nil
}
