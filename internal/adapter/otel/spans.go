package otel

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/StudioGate/internal/domain/user"
	"github.com/Strob0t/StudioGate/internal/port/database"
	"github.com/Strob0t/StudioGate/internal/session"
)

const tracerName = "studiogate"

// StartAuthenticateSpan starts a span for one session authentication.
func StartAuthenticateSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session.authenticate")
}

// StartRoleLookupSpan starts a span for a profile role lookup.
func StartRoleLookupSpan(ctx context.Context, userID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "profile.role",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
}

// TracedAuthenticator wraps next with a span and latency metric per call.
func TracedAuthenticator(next session.Authenticator, m *Metrics) session.Authenticator {
	return session.AuthenticatorFunc(func(ctx context.Context, cookies []*http.Cookie) (*session.Result, error) {
		ctx, span := StartAuthenticateSpan(ctx)
		defer span.End()

		start := time.Now()
		res, err := next.Authenticate(ctx, cookies)
		anonymous := res.Anonymous()
		m.RecordAuthDuration(ctx, time.Since(start), anonymous)

		span.SetAttributes(
			attribute.Bool("session.anonymous", anonymous),
			attribute.Int("session.set_cookies", len(resultCookies(res))),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return res, err
	})
}

func resultCookies(res *session.Result) []*http.Cookie {
	if res == nil {
		return nil
	}
	return res.SetCookies
}

// TracedProfiles wraps a profile store with a span per lookup.
func TracedProfiles(next database.ProfileStore) database.ProfileStore {
	return tracedProfiles{next: next}
}

type tracedProfiles struct {
	next database.ProfileStore
}

func (t tracedProfiles) RoleOf(ctx context.Context, userID string) (user.Role, error) {
	ctx, span := StartRoleLookupSpan(ctx, userID)
	defer span.End()

	role, err := t.next.RoleOf(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return role, err
	}
	span.SetAttributes(attribute.String("profile.role", string(role)))
	return role, nil
}
