package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/relayhq/chat-api/authapi"
	"github.com/relayhq/chat-api/domain"
	"github.com/relayhq/chat-api/metrics"
)

// PermissionClient is the authorization service surface the resolver
// calls through the breaker.
type PermissionClient interface {
	CheckPermission(ctx context.Context, orgID, userID, permission string) (*authapi.CheckResult, error)
	CheckPermissionInGroup(ctx context.Context, orgID, userID, groupID, permission string) (*authapi.CheckResult, error)
}

// Decision is the outcome of a permission check. Source is "cache",
// "auth_api" or "fail_open".
type Decision struct {
	Allowed bool
	Cached  bool
	Source  string
}

// CacheTTLs are the per-tier lifetimes for cached decisions. Read
// grants are the most stable, administrative grants the most volatile,
// and denials sit in between so a revoked user stays locked out.
type CacheTTLs struct {
	Read   time.Duration
	Write  time.Duration
	Admin  time.Duration
	Denied time.Duration
}

// Resolver answers permission questions by consulting the decision
// cache first, then the authorization service through the circuit
// breaker.
type Resolver struct {
	cache        Cache
	client       PermissionClient
	breaker      *Breaker
	ttls         CacheTTLs
	cacheEnabled bool
	failOpen     bool
}

func NewResolver(cache Cache, client PermissionClient, breaker *Breaker, ttls CacheTTLs, cacheEnabled, failOpen bool) *Resolver {
	return &Resolver{
		cache:        cache,
		client:       client,
		breaker:      breaker,
		ttls:         ttls,
		cacheEnabled: cacheEnabled,
		failOpen:     failOpen,
	}
}

// Check resolves whether the user holds permission in the org. A
// non-empty resourceID narrows the check to one conversation. Returns
// domain.ErrUnavailable when the authorization service cannot be
// reached and fail-open is off.
func (r *Resolver) Check(ctx context.Context, orgID, userID, permission, resourceID string) (Decision, error) {
	key := cacheKey(orgID, userID, permission, resourceID)

	if r.cacheEnabled {
		if value, ok := r.cache.Get(ctx, key); ok {
			allowed := value == "1"
			if allowed {
				metrics.AuthCacheHitsTotal.WithLabelValues("hit_allowed").Inc()
			} else {
				metrics.AuthCacheHitsTotal.WithLabelValues("hit_denied").Inc()
			}
			return Decision{Allowed: allowed, Cached: true, Source: "cache"}, nil
		}
		metrics.AuthCacheHitsTotal.WithLabelValues("miss").Inc()
	}

	if !r.breaker.ShouldAttempt(ctx) {
		slog.Warn("authorization check skipped, circuit breaker open",
			"org_id", orgID, "user_id", userID, "permission", permission)
		return r.unavailable(orgID, userID, permission)
	}

	result, err := r.callService(ctx, orgID, userID, permission, resourceID)
	if err != nil {
		r.breaker.RecordFailure(ctx)
		slog.Error("authorization check failed",
			"org_id", orgID, "user_id", userID, "permission", permission, "error", err)
		return r.unavailable(orgID, userID, permission)
	}
	r.breaker.RecordSuccess(ctx)

	if r.cacheEnabled {
		value := "0"
		ttl := r.ttls.Denied
		if result.Allowed {
			value = "1"
			ttl = r.ttlFor(permission)
		}
		r.cache.Set(ctx, key, value, ttl)
	}

	return Decision{Allowed: result.Allowed, Source: "auth_api"}, nil
}

// InvalidateUser drops every cached decision for one user in an org,
// forcing the next checks back to the authorization service.
func (r *Resolver) InvalidateUser(ctx context.Context, orgID, userID string) {
	if !r.cacheEnabled {
		return
	}
	pattern := fmt.Sprintf("auth:permission:%s:%s:*", orgID, userID)
	r.cache.InvalidatePattern(ctx, pattern)
}

func (r *Resolver) callService(ctx context.Context, orgID, userID, permission, resourceID string) (*authapi.CheckResult, error) {
	if resourceID != "" {
		return r.client.CheckPermissionInGroup(ctx, orgID, userID, resourceID, permission)
	}
	return r.client.CheckPermission(ctx, orgID, userID, permission)
}

func (r *Resolver) unavailable(orgID, userID, permission string) (Decision, error) {
	if r.failOpen {
		slog.Warn("authorization failing open",
			"org_id", orgID, "user_id", userID, "permission", permission)
		return Decision{Allowed: true, Source: "fail_open"}, nil
	}
	return Decision{}, domain.ErrUnavailable
}

// ttlFor maps a granted permission to a cache lifetime by its action
// suffix, e.g. "chat:read" -> read tier.
func (r *Resolver) ttlFor(permission string) time.Duration {
	action := permission
	if i := strings.LastIndex(permission, ":"); i >= 0 {
		action = permission[i+1:]
	}
	switch action {
	case "read":
		return r.ttls.Read
	case "write", "send_message", "create", "update":
		return r.ttls.Write
	case "delete", "manage_members", "admin":
		return r.ttls.Admin
	default:
		return 60 * time.Second
	}
}

func cacheKey(orgID, userID, permission, resourceID string) string {
	key := fmt.Sprintf("auth:permission:%s:%s:%s", orgID, userID, permission)
	if resourceID != "" {
		key += ":" + resourceID
	}
	return key
}
