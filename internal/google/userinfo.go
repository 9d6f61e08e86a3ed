package google

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/teemow/inboxshare/internal/instrumentation"
)

// UserEmail resolves the email address of the account that issued tok.
func (o *OAuth) UserEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationUserinfo)
	defer span.End()

	start := time.Now()
	email, err := o.userEmail(ctx, tok)
	o.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationUserinfo, status(err), time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", err
	}
	instrumentation.SetSpanSuccess(span)
	return email, nil
}

func (o *OAuth) userEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	opts := []option.ClientOption{
		option.WithHTTPClient(o.HTTPClient(oauth2.StaticTokenSource(tok))),
	}
	if o.userinfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(o.userinfoEndpoint))
	}

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get user info: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(info.Email))
	if email == "" {
		return "", fmt.Errorf("user info has no email address")
	}
	return email, nil
}
