package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/users/abc":                 "/v1/users/:id",
		"/v1/users/abc/roles":           "/v1/users/:id/roles",
		"/v1/roles/r1/permissions":      "/v1/roles/:id/permissions",
		"/v1/role-groups/g1/subtree":    "/v1/role-groups/:id/subtree",
		"/v1/role-groups/g1/move":       "/v1/role-groups/:id/move",
		"/v1/permission-groups/x":       "/v1/permission-groups/:id",
		"/v1/auth/login":                "/v1/auth/login",
		"/v1/role-groups?query=ops":     "/v1/role-groups",
		"/v1/permission-groups/x/extra": "/v1/permission-groups/:id/extra",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
