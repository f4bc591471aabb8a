package peer

import (
	"context"
	"net/http"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

// SocialClient delivers notification requests to the social service when no
// broker is configured.
type SocialClient struct {
	client
}

// NewSocialClient builds a client for baseURL.
func NewSocialClient(baseURL string, timeout time.Duration, caller string, tokens ServiceTokenSource, httpClient *http.Client) *SocialClient {
	return &SocialClient{client: newClient(baseURL, timeout, caller, tokens, httpClient)}
}

// PublishNotification posts msg to the social notification sink.
func (c *SocialClient) PublishNotification(ctx context.Context, msg domain.NotificationMessage) error {
	if err := c.post(ctx, "/internal/notifications", auth{service: true}, msg, nil); err != nil {
		return classify(err, "notification")
	}
	return nil
}

var _ port.NotificationPublisher = (*SocialClient)(nil)
