// Package mailbox chains the access check, the delegated call and the Gmail
// client into the two read operations exposed to callers.
package mailbox

import (
	"context"
	"net/http"

	"github.com/teemow/inboxshare/internal/access"
	"github.com/teemow/inboxshare/internal/delegate"
	"github.com/teemow/inboxshare/internal/gmail"
)

// Inbox is the result of Service.Inbox.
type Inbox struct {
	Emails    []gmail.Summary `json:"emails"`
	Account   string          `json:"account"`
	IsPremium bool            `json:"isPremium"`
}

// Service reads mailboxes on behalf of authorized callers.
type Service struct {
	engine     *access.Engine
	authorizer *delegate.Authorizer
	gmail      *gmail.Factory
}

// NewService creates a Service.
func NewService(engine *access.Engine, authorizer *delegate.Authorizer, factory *gmail.Factory) *Service {
	if factory == nil {
		factory = &gmail.Factory{}
	}
	return &Service{engine: engine, authorizer: authorizer, gmail: factory}
}

// Engine returns the access engine, for listings.
func (s *Service) Engine() *access.Engine {
	return s.engine
}

// Inbox lists the newest INBOX messages of email.
//
// Errors are *access.DenyError when the policy refuses, *delegate.RemoteError
// when Gmail or the credential fails, or the caller's context error.
func (s *Service) Inbox(ctx context.Context, id access.Identity, email string) (*Inbox, error) {
	grant, err := s.engine.Authorize(ctx, email, id)
	if err != nil {
		return nil, err
	}

	var emails []gmail.Summary
	err = s.authorizer.Invoke(ctx, grant, func(ctx context.Context, hc *http.Client) error {
		c, err := s.gmail.New(ctx, hc)
		if err != nil {
			return err
		}
		emails, err = c.ListRecent(ctx, gmail.DefaultListLimit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if emails == nil {
		emails = []gmail.Summary{}
	}

	return &Inbox{
		Emails:    emails,
		Account:   grant.Email(),
		IsPremium: grant.Tier().IsPremium(),
	}, nil
}

// Message fetches one message of email.
func (s *Service) Message(ctx context.Context, id access.Identity, email, messageID string) (*gmail.Message, error) {
	grant, err := s.engine.Authorize(ctx, email, id)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	err = s.authorizer.Invoke(ctx, grant, func(ctx context.Context, hc *http.Client) error {
		c, err := s.gmail.New(ctx, hc)
		if err != nil {
			return err
		}
		msg, err = c.GetMessage(ctx, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}
