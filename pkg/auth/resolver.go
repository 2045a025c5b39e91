package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/a-essam23/socket-gateway/pkg/state"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized is returned by Resolve in enforced mode when the
	// credential is missing or does not verify.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
)

// Mode selects what happens to connections without a valid credential.
type Mode string

const (
	// ModeFallbackOpen binds the fallback identity instead of rejecting.
	ModeFallbackOpen Mode = "fallback-open"
	// ModeEnforced rejects connections without a verified credential.
	ModeEnforced Mode = "enforced"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFallbackOpen, ModeEnforced:
		return Mode(s), nil
	case "":
		return ModeFallbackOpen, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q (want %q or %q)", s, ModeFallbackOpen, ModeEnforced)
	}
}

// Outcome distinguishes the three ways a credential can resolve.
type Outcome int

const (
	OutcomeNoToken Outcome = iota
	OutcomeVerified
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoToken:
		return "no_token"
	case OutcomeVerified:
		return "verified"
	case OutcomeInvalid:
		return "invalid_token"
	default:
		return fmt.Sprintf("outcome_%d", int(o))
	}
}

// Claims is the token body. It mirrors state.Identity plus the registered claims.
type Claims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Resolver struct {
	mode     Mode
	secret   []byte
	fallback state.Identity
	logger   *slog.Logger
}

func NewResolver(logger *slog.Logger, mode Mode, secret string) *Resolver {
	return &Resolver{
		mode:     mode,
		secret:   []byte(secret),
		fallback: state.FallbackIdentity,
		logger:   logger.With(slog.String("component", "identity_resolver")),
	}
}

func (r *Resolver) Mode() Mode {
	return r.mode
}

// Resolve turns a raw credential into an identity. In fallback-open mode it
// never returns an error. The outcome is reported in both modes.
func (r *Resolver) Resolve(credential string) (state.Identity, Outcome, error) {
	if credential == "" {
		if r.mode == ModeEnforced {
			r.logger.Warn("No token provided, rejecting connection")
			return state.Identity{}, OutcomeNoToken, ErrUnauthorized
		}
		r.logger.Warn("No token provided, using fallback identity",
			slog.Int64("userID", r.fallback.ID),
			slog.String("username", r.fallback.Username),
		)
		return r.fallback, OutcomeNoToken, nil
	}

	identity, err := r.Verify(credential)
	if err != nil {
		if r.mode == ModeEnforced {
			r.logger.Error("Invalid token, rejecting connection", slog.Any("error", err))
			return state.Identity{}, OutcomeInvalid, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		r.logger.Error("Invalid token, using fallback identity", slog.Any("error", err))
		return r.fallback, OutcomeInvalid, nil
	}

	r.logger.Info("Token verified", slog.Int64("userID", identity.ID), slog.String("username", identity.Username))
	return identity, OutcomeVerified, nil
}

// Verify parses and validates an HMAC-signed token against the shared secret.
func (r *Resolver) Verify(tokenString string) (state.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return state.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return state.Identity{}, ErrInvalidToken
	}
	if claims.Username == "" {
		return state.Identity{}, fmt.Errorf("%w: missing 'username' claim", ErrInvalidToken)
	}

	return state.Identity{
		ID:       claims.ID,
		Username: claims.Username,
		Role:     state.ParseRole(claims.Role),
	}, nil
}

// Issue signs a token for identity. A zero ttl yields a token without expiry.
func (r *Resolver) Issue(identity state.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:       identity.ID,
		Username: identity.Username,
		Role:     string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(r.secret)
}
