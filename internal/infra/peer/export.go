package peer

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

// ExportFragmentClient fetches the export slice a peer owns.
type ExportFragmentClient struct {
	client
}

// NewExportFragmentClient builds a fragment client for a peer at baseURL.
func NewExportFragmentClient(baseURL string, timeout time.Duration, caller string, tokens ServiceTokenSource, httpClient *http.Client) *ExportFragmentClient {
	return &ExportFragmentClient{client: newClient(baseURL, timeout, caller, tokens, httpClient)}
}

type fragmentResponse struct {
	Fragment domain.ExportFragment `json:"fragment"`
}

// FetchFragment returns the peer's fragment for userID. A user the peer has
// never seen yields an empty fragment.
func (c *ExportFragmentClient) FetchFragment(ctx context.Context, userID string) (domain.ExportFragment, error) {
	var resp fragmentResponse
	err := c.get(ctx, "/internal/export/"+url.PathEscape(userID), auth{service: true}, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return domain.ExportFragment{}, nil
		}
		return domain.ExportFragment{}, classify(err, "export_fragment")
	}
	return resp.Fragment, nil
}

var _ port.ExportFragmentSource = (*ExportFragmentClient)(nil)
