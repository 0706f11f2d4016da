package lenderapi_test

import (
	"testing"

	"github.com/loangraph/reconciler/internal/lenderapi"
)

func TestProofResolverResolve(t *testing.T) {
	cases := []struct {
		base, suffix, ref, want string
	}{
		{"https://api.example.com/api", "/api", "https://cdn.example.com/p.jpg", "https://cdn.example.com/p.jpg"},
		{"https://api.example.com/api", "/api", "uploads/proof.jpg", "https://api.example.com/uploads/proof.jpg"},
		{"https://api.example.com/api/", "api", "//uploads//proof.jpg", "https://api.example.com/uploads/proof.jpg"},
		{"https://api.example.com", "/api", "/uploads/p.png", "https://api.example.com/uploads/p.png"},
		{"https://api.example.com/api", "/api", "", ""},
	}
	for _, tc := range cases {
		if got := lenderapi.NewProofResolver(tc.base, tc.suffix).Resolve(tc.ref); got != tc.want {
			t.Fatalf("resolve(%q,%q,%q): expected %q, got %q", tc.base, tc.suffix, tc.ref, tc.want, got)
		}
	}
}
