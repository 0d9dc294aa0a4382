package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/users/abc":             "/v1/users/:id",
		"/v1/users/abc/group-roles": "/v1/users/:id/group-roles",
		"/v1/roles/abc":             "/v1/roles/:id",
		"/v1/user-permissions":      "/v1/user-permissions",
		"/v1/auth/login?x=1":        "/v1/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
