package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
)

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc.def":   "abc.def",
		"bearer   token ":  "token",
		"Basic dXNlcjpwdw": "",
		"Bearer":           "",
		"":                 "",
	}
	for header, want := range tests {
		assert.Equal(t, want, BearerToken(header), "header %q", header)
	}
}

func TestCallerContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithCaller(context.Background(), caller.Caller{})
	_, ok = FromContext(ctx)
	assert.False(t, ok, "anonymous caller must not count as authenticated")

	ctx = WithCaller(context.Background(), caller.Caller{UserID: "u1", Plan: "pro"})
	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "pro", got.Plan)
}

func TestEntitlements(t *testing.T) {
	plan, features := entitlements(map[string]interface{}{
		"plan":     " pro ",
		"features": []interface{}{"3_companion_limit", "", 42},
	})
	assert.Equal(t, "pro", plan)
	assert.Equal(t, []string{"3_companion_limit"}, features)

	_, features = entitlements(map[string]interface{}{"features": "a, b,,c"})
	assert.Equal(t, []string{"a", "b", "c"}, features)

	_, features = entitlements(map[string]interface{}{"features": []string{"x"}})
	assert.Equal(t, []string{"x"}, features)

	plan, features = entitlements(nil)
	assert.Empty(t, plan)
	assert.Empty(t, features)
}
