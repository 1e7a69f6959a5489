package tenancy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func newTestResolver() *Resolver {
	return NewResolver(
		[]string{"eduvibe.vip", "localhost"},
		map[string]string{"learn.springfield.edu": "springfield"},
	)
}

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestResolve_Precedence(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name     string
		headers  http.Header
		explicit string
		want     TenantHint
	}{
		{
			name:     "explicit hint wins over everything",
			headers:  headers(HeaderTenantOrgID, "header-id", HeaderTenantOrgSlug, "acme", "Host", "beta.eduvibe.vip"),
			explicit: "query-id",
			want:     TenantHint{OrganizationID: "query-id"},
		},
		{
			name:    "override header before slug header",
			headers: headers(HeaderTenantOrgID, "header-id", HeaderTenantOrgSlug, "acme"),
			want:    TenantHint{OrganizationID: "header-id"},
		},
		{
			name:    "slug header before host",
			headers: headers(HeaderTenantOrgSlug, "ACME", "Host", "beta.eduvibe.vip"),
			want:    TenantHint{OrganizationSlug: "acme"},
		},
		{
			name:    "custom domain",
			headers: headers("Host", "Learn.Springfield.edu:443"),
			want:    TenantHint{OrganizationSlug: "springfield"},
		},
		{
			name:    "platform subdomain",
			headers: headers("Host", "beta.eduvibe.vip"),
			want:    TenantHint{OrganizationSlug: "beta"},
		},
		{
			name:    "local development subdomain with port",
			headers: headers("Host", "acme.localhost:3000"),
			want:    TenantHint{OrganizationSlug: "acme"},
		},
		{
			name:    "forwarded host preferred over host",
			headers: headers("Host", "internal:8002", HeaderForwardedHost, "gamma.eduvibe.vip, proxy.local"),
			want:    TenantHint{OrganizationSlug: "gamma"},
		},
		{
			name:    "www is not a tenant",
			headers: headers("Host", "www.eduvibe.vip"),
			want:    TenantHint{},
		},
		{
			name:    "bare root domain",
			headers: headers("Host", "eduvibe.vip"),
			want:    TenantHint{},
		},
		{
			name:    "unknown host",
			headers: headers("Host", "example.com"),
			want:    TenantHint{},
		},
		{
			name:    "no headers",
			headers: nil,
			want:    TenantHint{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.headers, tt.explicit))
		})
	}
}

func TestResolve_EmptyHint(t *testing.T) {
	hint := newTestResolver().Resolve(http.Header{}, "  ")
	assert.True(t, hint.IsEmpty())
}

func TestRequestHeaders_CopiesHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://acme.eduvibe.vip/organization", nil)

	h := RequestHeaders(req)

	assert.Equal(t, "acme.eduvibe.vip", h.Get("Host"))
	assert.Equal(t, TenantHint{OrganizationSlug: "acme"}, newTestResolver().Resolve(h, ""))
}

func TestProperty_ResolveNeverPanics(t *testing.T) {
	r := newTestResolver()
	properties := gopter.NewProperties(nil)

	properties.Property("arbitrary headers resolve without panicking", prop.ForAll(
		func(host, slug, id, explicit string) bool {
			h := headers("Host", host, HeaderTenantOrgSlug, slug, HeaderTenantOrgID, id)
			hint := r.Resolve(h, explicit)
			return hint.OrganizationID == "" || hint.OrganizationSlug == ""
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
