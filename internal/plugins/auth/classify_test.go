package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultPolicy(t *testing.T) *RoutePolicy {
	t.Helper()
	p, err := NewRoutePolicy(DefaultRouteLists())
	require.NoError(t, err)
	return p
}

func TestClassify(t *testing.T) {
	p := defaultPolicy(t)

	tests := []struct {
		path string
		want RouteClass
	}{
		{"/", RouteProtected},
		{"/profile", RouteProtected},
		{"/profile/edit", RouteProtected},
		{"/profiles", RouteOther},
		{"/auth/login", RoutePublic},
		{"/auth/recovery/step-2", RoutePublic},
		{"/api/auth/login", RouteExcluded},
		{"/api/auth/recovery/verify-pin", RouteExcluded},
		{"/static/app.js", RouteExcluded},
		{"/favicon.ico", RouteExcluded},
		{"/healthz", RouteExcluded},
		{"/api/profile", RouteAPI},
		{"/api", RouteAPI},
		{"/apiary", RouteOther},
		{"/about", RouteOther},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Classify(tt.path))
		})
	}
}

func TestNewRoutePolicy_RejectsOverlap(t *testing.T) {
	_, err := NewRoutePolicy(RouteLists{
		Excluded:  []string{"/api/auth"},
		Protected: []string{"/api/auth/me"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlaps")

	_, err = NewRoutePolicy(RouteLists{
		Protected: []string{"/"},
		Public:    []string{"/auth/login"},
	})
	assert.NoError(t, err, "root entry matches only itself")
}

func TestLoginRedirect(t *testing.T) {
	p := defaultPolicy(t)
	assert.Equal(t, "/auth/login?redirect=/profile", p.LoginRedirect("/profile"))
	assert.Equal(t, "/auth/login?redirect=/", p.LoginRedirect("/"))
	assert.Equal(t, "/auth/login?redirect=/a+b%26c", p.LoginRedirect("/a b&c"))
}

func TestRouteClass_String(t *testing.T) {
	assert.Equal(t, "protected", RouteProtected.String())
	assert.Equal(t, "api", RouteAPI.String())
	assert.Equal(t, "other", RouteOther.String())
}
