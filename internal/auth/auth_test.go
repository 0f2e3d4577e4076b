package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthenticateAdminKey(t *testing.T) {
	t.Parallel()

	p, ok := Authenticate("admin", "admin", nil)
	if !ok {
		t.Fatal("expected admin key to authenticate")
	}
	if !HasAnyScope(p, ScopeSessionsRW) {
		t.Fatal("admin key should hold every scope")
	}
}

func TestAuthenticateScopedToken(t *testing.T) {
	t.Parallel()

	tokens := []TokenConfig{{Token: "writer", Scopes: []string{" sessions:rw "}}}
	p, ok := Authenticate("writer", "admin", tokens)
	if !ok {
		t.Fatal("expected scoped token to authenticate")
	}
	if !HasAnyScope(p, ScopeSessionsRO) {
		t.Fatal("sessions:rw should imply sessions:ro")
	}
	if HasAnyScope(p, ScopeEventsRO) {
		t.Fatal("token should not hold events:ro")
	}
}

func TestAuthenticateRejects(t *testing.T) {
	t.Parallel()

	if _, ok := Authenticate("nope", "admin", []TokenConfig{{Token: "writer"}}); ok {
		t.Fatal("expected unknown token to be rejected")
	}
	if _, ok := Authenticate("", "", nil); ok {
		t.Fatal("empty keys must never match")
	}
}

func TestPrincipalRoundTripsThroughContext(t *testing.T) {
	t.Parallel()

	ctx := WithPrincipal(context.Background(), Principal{Scopes: map[string]struct{}{ScopeEventsRO: {}}})
	p, ok := PrincipalFromContext(ctx)
	if !ok || !HasAnyScope(p, ScopeEventsRO) {
		t.Fatalf("principal lost in context: %+v", p)
	}
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal on a bare context")
	}
}

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer test-key", want: "test-key"},
		{header: "Bearer   padded  ", want: "padded"},
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer   ", wantErr: true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		got, err := ExtractBearerToken(req)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.header, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}
