package platform_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/platform"
	"github.com/rolemirror/rolemirror/internal/platform/platformtest"
)

var fastPolicy = platform.RetryPolicy{
	Retries:    2,
	Base:       time.Millisecond,
	Max:        3 * time.Millisecond,
	Multiplier: 2,
	Jitter:     time.Millisecond,
}

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", fmt.Errorf("x: %w", platform.ErrMemberNotFound), false},
		{"typed", &platform.NetworkError{Code: "UND_ERR_SOCKET", Err: errors.New("x")}, true},
		{"reset", fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{"refused", syscall.ECONNREFUSED, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"message", errors.New("socket hang up"), true},
		{"fetch failed", errors.New("TypeError: fetch failed"), true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("missing permissions"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, platform.IsNetworkError(tt.err))
		})
	}
}

func TestRoleHelpers(t *testing.T) {
	everyone := platform.Role{ID: "1", GroupID: "1"}
	assert.True(t, everyone.IsImplicit())
	assert.False(t, platform.Role{ID: "2", GroupID: "1", Managed: true}.IsImplicit())
	assert.True(t, platform.Role{ID: "2", GroupID: "1", Managed: true}.IsManaged())

	assert.Equal(t, []string{"2", "3"}, platform.WithoutImplicit("1", []string{"1", "2", "3"}))
	assert.True(t, platform.Member{RoleIDs: []string{"a"}}.HasRole("a"))
}

func TestRetryOnlyNetworkErrors(t *testing.T) {
	calls := 0

	v, err := platform.Retry(context.Background(), fastPolicy, "op", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ECONNRESET
		}

		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = platform.Retry(context.Background(), fastPolicy, "op", func() (int, error) {
		calls++

		return 0, platform.ErrRoleNotFound
	})
	require.ErrorIs(t, err, platform.ErrRoleNotFound)
	assert.Equal(t, 1, calls)

	calls = 0
	_, err = platform.Retry(context.Background(), fastPolicy, "op", func() (int, error) {
		calls++

		return 0, errors.New("econnreset")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial try plus two retries")
}

func TestRetryingClient(t *testing.T) {
	fake := platformtest.New()
	fake.PutGroup("1", "main")
	fake.PutMember("1", "u", "10")
	fake.FailNext("FetchMember", &platform.NetworkError{Err: errors.New("reset")})

	c := platform.WithRetry(fake, fastPolicy)

	m, err := c.FetchMember(context.Background(), "1", "u")
	require.NoError(t, err)
	assert.True(t, m.HasRole("10"))
	assert.Equal(t, 2, fake.Calls("FetchMember"))

	// mutations are not retried
	fake.FailNext("AddRole", &platform.NetworkError{Err: errors.New("reset")})
	require.Error(t, c.AddRole(context.Background(), "1", "u", "1", "r"))
	assert.Equal(t, 1, fake.Calls("AddRole"))
}

func TestCachedClient(t *testing.T) {
	fake := platformtest.New()
	fake.PutGroup("1", "main")

	c := platform.WithGroupCache(fake, 16, time.Minute)

	for range 3 {
		g, err := c.FetchGroup(context.Background(), "1")
		require.NoError(t, err)
		assert.Equal(t, "main", g.Name)
	}

	assert.Equal(t, 1, fake.Calls("FetchGroup"))

	c.Forget("1")
	_, err := c.FetchGroup(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls("FetchGroup"))

	_, err = c.FetchGroup(context.Background(), "404")
	require.ErrorIs(t, err, platform.ErrGroupNotFound)
}

func TestSafePermissions(t *testing.T) {
	const administrator int64 = 1 << 3

	assert.Zero(t, platform.SafePermissions&administrator)
	assert.NotZero(t, platform.SafePermissions&platform.PermSendMessages)
}
