package lenderapi

import (
	"net/url"
	"strings"
)

// ProofResolver turns a stored payment-proof reference into a fetchable URL.
type ProofResolver struct {
	assetHost string
}

// NewProofResolver derives the asset host from base, dropping a trailing API
// path suffix such as "/api".
func NewProofResolver(base, apiSuffix string) ProofResolver {
	host := strings.TrimRight(strings.TrimSpace(base), "/")
	suffix := "/" + strings.Trim(strings.TrimSpace(apiSuffix), "/")
	if suffix != "/" && strings.HasSuffix(host, suffix) {
		host = strings.TrimSuffix(host, suffix)
	}
	return ProofResolver{assetHost: strings.TrimRight(host, "/")}
}

// Resolve returns absolute references unchanged and joins relative ones to the
// asset host. Empty references resolve to "".
func (r ProofResolver) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if isAbsolute(ref) {
		return ref
	}
	path := "/" + strings.TrimLeft(collapseSlashes(ref), "/")
	if r.assetHost == "" {
		return path
	}
	return r.assetHost + path
}

func isAbsolute(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

func collapseSlashes(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}
