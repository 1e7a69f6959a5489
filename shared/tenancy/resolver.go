package tenancy

import (
	"net"
	"net/http"
	"strings"
)

const (
	// HeaderTenantOrgID carries an explicit organization override (super admins only)
	HeaderTenantOrgID = "X-Tenant-Org-Id"
	// HeaderTenantOrgSlug carries a slug resolved at the edge
	HeaderTenantOrgSlug = "X-Tenant-Org-Slug"
	// HeaderForwardedHost is preferred over Host when present
	HeaderForwardedHost = "X-Forwarded-Host"
)

// TenantHint is what a request says about its target organization
type TenantHint struct {
	OrganizationID   string `json:"organization_id,omitempty"`
	OrganizationSlug string `json:"organization_slug,omitempty"`
}

// IsEmpty reports whether the hint names no organization
func (h TenantHint) IsEmpty() bool {
	return h.OrganizationID == "" && h.OrganizationSlug == ""
}

// Resolver derives a TenantHint from request headers without any I/O
type Resolver struct {
	rootDomains   []string
	customDomains map[string]string
}

// NewResolver creates a resolver. rootDomains are the platform's own domains
// (subdomains map to slugs); customDomains maps a tenant's own host to its slug.
func NewResolver(rootDomains []string, customDomains map[string]string) *Resolver {
	r := &Resolver{customDomains: make(map[string]string, len(customDomains))}
	for _, d := range rootDomains {
		if d = normalizeHost(d); d != "" {
			r.rootDomains = append(r.rootDomains, d)
		}
	}
	for host, slug := range customDomains {
		if host = normalizeHost(host); host != "" && slug != "" {
			r.customDomains[host] = slug
		}
	}
	return r
}

// Resolve applies the precedence explicit hint, override header, slug header,
// custom domain, platform subdomain. A request with none of these yields an
// empty hint.
func (r *Resolver) Resolve(headers http.Header, explicitOrgHint string) TenantHint {
	if id := strings.TrimSpace(explicitOrgHint); id != "" {
		return TenantHint{OrganizationID: id}
	}
	if headers == nil {
		return TenantHint{}
	}
	if id := strings.TrimSpace(headers.Get(HeaderTenantOrgID)); id != "" {
		return TenantHint{OrganizationID: id}
	}
	if slug := strings.TrimSpace(headers.Get(HeaderTenantOrgSlug)); slug != "" {
		return TenantHint{OrganizationSlug: strings.ToLower(slug)}
	}

	host := headers.Get(HeaderForwardedHost)
	if host == "" {
		host = headers.Get("Host")
	}
	return TenantHint{OrganizationSlug: r.slugForHost(host)}
}

func (r *Resolver) slugForHost(rawHost string) string {
	host := normalizeHost(rawHost)
	if host == "" {
		return ""
	}

	if slug, ok := r.customDomains[host]; ok {
		return slug
	}

	for _, root := range r.rootDomains {
		if !strings.HasSuffix(host, "."+root) {
			continue
		}
		sub := strings.TrimSuffix(host, "."+root)
		label := strings.Split(sub, ".")[0]
		if label == "" || label == "www" {
			return ""
		}
		return label
	}

	return ""
}

// normalizeHost lowercases and strips the port and any trailing dot.
// X-Forwarded-Host may carry a list; the first entry is the client-facing host.
func normalizeHost(raw string) string {
	host := strings.TrimSpace(strings.Split(raw, ",")[0])
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

// RequestHeaders returns the request headers with Host populated, since
// net/http moves it out of the header map.
func RequestHeaders(req *http.Request) http.Header {
	h := req.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get("Host") == "" && req.Host != "" {
		h.Set("Host", req.Host)
	}
	return h
}
