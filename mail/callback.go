package mail

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// callbackTimeout bounds the optional per-group GET notification so a
// slow or unreachable endpoint never blocks the mail worker.
const callbackTimeout = 10 * time.Second

// callbackClient is the shared HTTP client for a group's optional GetURL
// fire-and-forget notification, styled on the
// webhook.Client — generalized from a POST campaign-result payload to a
// plain GET ping, since spec.md §3's GetURL carries no body.
type callbackClient struct {
	http *http.Client
}

func newCallbackClient() *callbackClient {
	return &callbackClient{http: &http.Client{Timeout: callbackTimeout}}
}

// notify issues a GET to url if non-empty. Failures are returned to the
// caller to log, not retried — the callback is best-effort alongside the
// mail send it accompanies, not a delivery guarantee in its own right.
func (c *callbackClient) notify(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build callback request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "callback request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("callback %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
