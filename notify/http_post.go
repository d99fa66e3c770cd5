package notify

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/chainwallet/syncer/sync"
)

// Poster delivers one webhook notification. Abstracted behind an interface
// so tests can substitute a recording fake instead of a real client.
type Poster interface {
	Post(ctx context.Context, url, addr string, status sync.AddressStatus) error
}

type webhookPayload struct {
	Address string  `json:"address"`
	Status  *string `json:"status"`
}

// FastHTTPPoster POSTs the webhook payload with
// github.com/valyala/fasthttp, matching the teacher's fasthttp-based
// JSON-RPC client rather than net/http (§6 NEW).
type FastHTTPPoster struct {
	client  *fasthttp.Client
	timeout func() context.Context
}

// NewFastHTTPPoster constructs a Poster with a dedicated fasthttp.Client.
func NewFastHTTPPoster() *FastHTTPPoster {
	return &FastHTTPPoster{client: &fasthttp.Client{}}
}

// Post implements Poster.
func (p *FastHTTPPoster) Post(ctx context.Context, url, addr string, status sync.AddressStatus) error {
	payload := webhookPayload{Address: addr}
	if hex := sync.StatusHex(status); hex != "" {
		payload.Status = &hex
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode webhook payload")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, hasDeadline := ctx.Deadline()
	var doErr error
	if hasDeadline {
		doErr = p.client.DoDeadline(req, resp, deadline)
	} else {
		doErr = p.client.DoTimeout(req, resp, PostTimeout)
	}
	if doErr != nil {
		return errors.Wrapf(ErrWebhookPostFailure, "post to %s: %v", url, doErr)
	}
	if resp.StatusCode() >= 300 {
		return errors.Wrapf(ErrWebhookPostFailure, "post to %s: status %d", url, resp.StatusCode())
	}
	return nil
}
