package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/metrics"
	"github.com/prn-tf/mvstories/internal/pkg/crypto"
	"github.com/prn-tf/mvstories/internal/repository"
)

// maxUserInfoBytes bounds the userinfo response body.
const maxUserInfoBytes = 1 << 20

// TokenValidator resolves a bearer token to the identity it was issued for.
type TokenValidator interface {
	// Validate returns the identity of token, or an error unwrapping to
	// domain.ErrUnauthorized.
	Validate(ctx context.Context, token string) (*domain.Identity, error)
}

// =============================================================================
// UserInfoValidator
// =============================================================================

// UserInfoValidator validates tokens against an OIDC userinfo endpoint.
type UserInfoValidator struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  zerolog.Logger
}

// NewUserInfoValidator creates a validator for the userinfo endpoint at url.
// A zero timeout defaults to five seconds.
func NewUserInfoValidator(url string, timeout time.Duration, logger zerolog.Logger) *UserInfoValidator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &UserInfoValidator{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "userinfo_validator").Logger(),
	}
}

// userInfo is the subset of the userinfo claims the service uses.
type userInfo struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate calls the userinfo endpoint with token as the bearer credential.
func (v *UserInfoValidator) Validate(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, ErrInvalidTokenFormat
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, v.client),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: BearerScheme}),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		metrics.TokenValidationsTotal.WithLabelValues("error").Inc()
		v.logger.Error().Err(err).Msg("userinfo request failed")
		return nil, validationFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.TokenValidationsTotal.WithLabelValues("rejected").Inc()
		v.logger.Debug().Int("status", resp.StatusCode).Msg("userinfo rejected token")
		return nil, validationFailed(fmt.Errorf("userinfo endpoint returned %d", resp.StatusCode))
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		metrics.TokenValidationsTotal.WithLabelValues("error").Inc()
		return nil, validationFailed(fmt.Errorf("decode userinfo: %w", err))
	}
	if info.Sub == "" {
		metrics.TokenValidationsTotal.WithLabelValues("rejected").Inc()
		return nil, validationFailed(errors.New("userinfo response has no subject"))
	}

	metrics.TokenValidationsTotal.WithLabelValues("valid").Inc()
	v.logger.Debug().Str("user_id", info.Sub).Str("name", info.Name).Msg("token validated")

	return &domain.Identity{Subject: info.Sub, Name: info.Name, Email: info.Email}, nil
}

// =============================================================================
// CachingValidator
// =============================================================================

// CachingValidator caches validated identities by token fingerprint so that
// repeated requests with the same token skip the identity provider.
// Rejections are never cached.
type CachingValidator struct {
	next   TokenValidator
	cache  repository.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachingValidator wraps next with cache.
func NewCachingValidator(next TokenValidator, cache repository.Cache, ttl time.Duration, logger zerolog.Logger) *CachingValidator {
	return &CachingValidator{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "identity_cache").Logger(),
	}
}

// Validate returns the cached identity of token or asks the wrapped validator.
// Cache failures are logged and fall through to the wrapped validator.
func (v *CachingValidator) Validate(ctx context.Context, token string) (*domain.Identity, error) {
	key := repository.CacheKey{}.Identity(crypto.TokenFingerprint(token))

	data, err := v.cache.Get(ctx, key)
	switch {
	case err == nil:
		var identity domain.Identity
		if err := json.Unmarshal(data, &identity); err == nil && identity.Subject != "" {
			return &identity, nil
		}
		v.logger.Warn().Msg("discarding malformed cached identity")
		_ = v.cache.Delete(ctx, key)
	case !errors.Is(err, repository.ErrCacheMiss):
		v.logger.Warn().Err(err).Msg("identity cache lookup failed")
	}

	identity, err := v.next.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(identity); err == nil {
		if err := v.cache.Set(ctx, key, data, v.ttl); err != nil {
			v.logger.Warn().Err(err).Msg("identity cache store failed")
		}
	}
	return identity, nil
}
