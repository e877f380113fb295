package platform

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds the read retry wrapper.
type RetryPolicy struct {
	Retries    uint64
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the upper bound of a uniformly random delay added to every wait.
	Jitter time.Duration
}

// DefaultRetryPolicy retries twice starting at 400ms, doubling up to 3s, plus up to 120ms jitter.
var DefaultRetryPolicy = RetryPolicy{ //nolint:gochecknoglobals
	Retries:    2,
	Base:       400 * time.Millisecond,
	Max:        3 * time.Second,
	Multiplier: 2,
	Jitter:     120 * time.Millisecond,
}

type jitterBackOff struct {
	backoff.BackOff
	jitter time.Duration
}

func (j jitterBackOff) NextBackOff() time.Duration {
	d := j.BackOff.NextBackOff()
	if d == backoff.Stop || j.jitter <= 0 {
		return d
	}

	return d + rand.N(j.jitter) //nolint:gosec
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     p.Base,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.Max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()

	return backoff.WithContext(
		backoff.WithMaxRetries(jitterBackOff{BackOff: exp, jitter: p.Jitter}, p.Retries),
		ctx,
	)
}

// Retry runs op and retries it while it fails with a network error.
// Any other error is returned immediately.
func Retry[T any](ctx context.Context, p RetryPolicy, name string, op func() (T, error)) (T, error) {
	return backoff.RetryNotifyWithData(
		func() (T, error) {
			v, err := op()
			if err != nil && !IsNetworkError(err) {
				return v, backoff.Permanent(err)
			}

			return v, err
		},
		p.backOff(ctx),
		func(err error, wait time.Duration) {
			log.Debug().Err(err).Str("op", name).Dur("wait", wait).Msg("retrying platform read")
		},
	)
}

// RetryingClient retries reads on transient network errors. Mutations pass through,
// the job worker owns their retry budget.
type RetryingClient struct {
	Client
	policy RetryPolicy
}

// WithRetry wraps c.
func WithRetry(c Client, p RetryPolicy) *RetryingClient {
	return &RetryingClient{Client: c, policy: p}
}

// FetchGroup implements Client.
func (r *RetryingClient) FetchGroup(ctx context.Context, groupID string) (*Group, error) {
	return Retry(ctx, r.policy, "fetch_group", func() (*Group, error) {
		return r.Client.FetchGroup(ctx, groupID)
	})
}

// FetchMember implements Client.
func (r *RetryingClient) FetchMember(ctx context.Context, groupID, userID string) (*Member, error) {
	return Retry(ctx, r.policy, "fetch_member", func() (*Member, error) {
		return r.Client.FetchMember(ctx, groupID, userID)
	})
}

// FetchRole implements Client.
func (r *RetryingClient) FetchRole(ctx context.Context, groupID, roleID string) (*Role, error) {
	return Retry(ctx, r.policy, "fetch_role", func() (*Role, error) {
		return r.Client.FetchRole(ctx, groupID, roleID)
	})
}

// ListRoles implements Client.
func (r *RetryingClient) ListRoles(ctx context.Context, groupID string) ([]Role, error) {
	return Retry(ctx, r.policy, "list_roles", func() ([]Role, error) {
		return r.Client.ListRoles(ctx, groupID)
	})
}

// ListMembersPage implements Client.
func (r *RetryingClient) ListMembersPage(ctx context.Context, groupID, after string, limit int) ([]Member, error) {
	return Retry(ctx, r.policy, "list_members", func() ([]Member, error) {
		return r.Client.ListMembersPage(ctx, groupID, after, limit)
	})
}
