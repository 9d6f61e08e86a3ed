package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxshare/internal/instrumentation"
)

const (
	// DefaultListLimit is the number of messages ListRecent returns by default.
	DefaultListLimit = 10

	// DefaultFetchConcurrency bounds parallel metadata fetches.
	DefaultFetchConcurrency = 5

	inboxLabel = "INBOX"
	me         = "me"
)

// Factory builds Clients for delegated calls.
type Factory struct {
	// Endpoint overrides the Gmail API base URL.
	Endpoint string

	// Concurrency bounds parallel fetches. Zero means DefaultFetchConcurrency.
	Concurrency int

	Metrics *instrumentation.Metrics
}

// New creates a Client that sends every request through hc.
func (f *Factory) New(ctx context.Context, hc *http.Client) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if f.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.Endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	concurrency := f.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultFetchConcurrency
	}
	return &Client{svc: svc.Users, metrics: f.Metrics, concurrency: concurrency}, nil
}

// Client wraps the Gmail Users service for one mailbox.
type Client struct {
	svc         *gmail.UsersService
	metrics     *instrumentation.Metrics
	concurrency int
}

// ListRecent returns up to limit of the newest INBOX messages, newest first.
// An empty inbox yields an empty, non-nil slice.
func (c *Client) ListRecent(ctx context.Context, limit int64) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var list *gmail.ListMessagesResponse
	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		var err error
		list, err = c.svc.Messages.List(me).LabelIds(inboxLabel).MaxResults(limit).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	out := make([]Summary, len(list.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, m := range list.Messages {
		g.Go(func() error {
			var msg *gmail.Message
			err := c.observe(gctx, instrumentation.OperationGet, func(ctx context.Context) error {
				var err error
				msg, err = c.svc.Messages.Get(me, m.Id).
					Format("metadata").
					MetadataHeaders("Subject", "From", "Date").
					Context(ctx).Do()
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to get message %s: %w", m.Id, err)
			}
			out[i] = Summary{
				ID:      m.Id,
				Subject: header(msg, "Subject"),
				From:    header(msg, "From"),
				Date:    header(msg, "Date"),
				Snippet: msg.Snippet,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMessage fetches one message in full and extracts its text/plain body.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("message id is required")
	}

	var msg *gmail.Message
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		msg, err = c.svc.Messages.Get(me, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	return &Message{
		ID:      id,
		Subject: header(msg, "Subject"),
		From:    header(msg, "From"),
		To:      header(msg, "To"),
		Date:    header(msg, "Date"),
		Body:    plainBody(msg.Payload),
		Snippet: msg.Snippet,
	}, nil
}

// observe wraps one API call in a span and records its metrics.
func (c *Client) observe(ctx context.Context, operation string, call func(context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, operation)
	defer span.End()

	start := time.Now()
	err := call(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
	return err
}

// header returns the first header named name, or "".
func header(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// plainBody returns the decoded body of a single-part message, or else the
// first text/plain part found depth-first.
func plainBody(p *gmail.MessagePart) string {
	if p == nil {
		return ""
	}
	if p.Body != nil && p.Body.Data != "" && len(p.Parts) == 0 {
		return decodeBody(p.Body.Data)
	}
	for _, part := range p.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			return decodeBody(part.Body.Data)
		}
	}
	for _, part := range p.Parts {
		if strings.HasPrefix(part.MimeType, "multipart/") {
			if body := plainBody(part); body != "" {
				return body
			}
		}
	}
	return ""
}

// decodeBody decodes Gmail's base64url body data, padded or not.
func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}
