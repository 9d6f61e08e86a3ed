package account

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxshare/internal/instrumentation"
)

// Instrument wraps s so that every call runs inside a store.<operation>
// span tagged with backend. NotFound and CredentialRequired are expected
// results and do not mark the span as failed.
func Instrument(s Store, backend string) Store {
	return &instrumentedStore{next: s, backend: backend}
}

type instrumentedStore struct {
	next    Store
	backend string
}

func (s *instrumentedStore) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return instrumentation.StartStoreSpan(ctx, s.backend, op)
}

func finish(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrCredentialRequired) {
		instrumentation.SetSpanError(span, err)
	}
	span.End()
}

func (s *instrumentedStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	ctx, span := s.span(ctx, "find")
	a, err := s.next.FindByEmail(ctx, email)
	finish(span, err)
	return a, err
}

func (s *instrumentedStore) UpsertByEmail(ctx context.Context, email string, update Update) (*Account, error) {
	ctx, span := s.span(ctx, "upsert")
	a, err := s.next.UpsertByEmail(ctx, email, update)
	finish(span, err)
	return a, err
}

func (s *instrumentedStore) UpdateLastAccessed(ctx context.Context, email string, at time.Time) error {
	ctx, span := s.span(ctx, "update_last_accessed")
	err := s.next.UpdateLastAccessed(ctx, email, at)
	finish(span, err)
	return err
}

func (s *instrumentedStore) SetVisibilityTier(ctx context.Context, email string, tier Tier) (*Account, error) {
	ctx, span := s.span(ctx, "set_tier")
	a, err := s.next.SetVisibilityTier(ctx, email, tier)
	finish(span, err)
	return a, err
}

func (s *instrumentedStore) ListAll(ctx context.Context, filter Filter) ([]Summary, error) {
	ctx, span := s.span(ctx, "list")
	list, err := s.next.ListAll(ctx, filter)
	finish(span, err)
	return list, err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.span(ctx, "ping")
	err := s.next.Ping(ctx)
	finish(span, err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
