package peer

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

// wardrobeFetchLimit caps the page requested for user context.
const wardrobeFetchLimit = 200

// WardrobeClient talks to the wardrobe service.
type WardrobeClient struct {
	client
}

// NewWardrobeClient builds a client for baseURL.
func NewWardrobeClient(baseURL string, timeout time.Duration, httpClient *http.Client) *WardrobeClient {
	return &WardrobeClient{client: newClient(baseURL, timeout, "", nil, httpClient)}
}

type wardrobeResponse struct {
	Items []domain.WardrobeSummary `json:"items"`
}

// FetchWardrobe lists the caller's items using their bearer token.
func (c *WardrobeClient) FetchWardrobe(ctx context.Context, _ string, token string) ([]domain.WardrobeSummary, error) {
	var resp wardrobeResponse
	if err := c.get(ctx, "/wardrobe/items?limit="+strconv.Itoa(wardrobeFetchLimit), auth{bearer: token}, &resp); err != nil {
		return nil, classify(err, "wardrobe")
	}
	if resp.Items == nil {
		resp.Items = []domain.WardrobeSummary{}
	}
	return resp.Items, nil
}

var _ port.WardrobeSource = (*WardrobeClient)(nil)
