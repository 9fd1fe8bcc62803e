package scheduling

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medrex/booking/pkg/config"
	"github.com/medrex/booking/pkg/logger"
	"github.com/medrex/booking/pkg/monitoring"
	"github.com/medrex/booking/pkg/types"
)

// Headers read in header identity mode
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type actorContextKey struct{}

// ActorFromContext returns the authenticated actor, if any
func ActorFromContext(ctx context.Context) (types.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(types.Actor)
	return actor, ok && actor.ID != ""
}

// ContextWithActor stores actor in ctx
func ContextWithActor(ctx context.Context, actor types.Actor) context.Context {
	ctx = context.WithValue(ctx, actorContextKey{}, actor)
	return context.WithValue(ctx, logger.UserIDKey, actor.ID)
}

// Claims are the JWT claims issued by the identity service
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenValidator validates HS256 bearer tokens
type TokenValidator struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewTokenValidator creates a validator from the JWT configuration
func NewTokenValidator(cfg config.JWTConfig) *TokenValidator {
	return &TokenValidator{
		secret:   []byte(cfg.SecretKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
}

// ValidateJWT parses tokenString and returns the actor it identifies
func (tv *TokenValidator) ValidateJWT(tokenString string) (types.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tv.now),
		jwt.WithExpirationRequired(),
	}
	if tv.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tv.issuer))
	}
	if tv.audience != "" {
		opts = append(opts, jwt.WithAudience(tv.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tv.secret, nil
	}, opts...)
	if err != nil {
		return types.Actor{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return types.Actor{}, fmt.Errorf("invalid token claims")
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	actor := types.Actor{ID: userID, Role: types.UserRole(strings.ToUpper(claims.Role))}
	if actor.ID == "" || !actor.Role.Valid() {
		return types.Actor{}, fmt.Errorf("token does not identify a known user role")
	}
	return actor, nil
}

// IssueToken signs a token for actor valid for ttl
func (tv *TokenValidator) IssueToken(actor types.Actor, ttl time.Duration) (string, error) {
	now := tv.now()
	claims := &Claims{
		UserID: actor.ID,
		Role:   string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    tv.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if tv.audience != "" {
		claims.Audience = jwt.ClaimStrings{tv.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tv.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Authenticator resolves the caller's identity. Requests without
// credentials continue anonymously; invalid credentials are rejected.
type Authenticator struct {
	mode      string
	validator *TokenValidator
	record    func(method string, fn func() error) error
}

// NewAuthenticator creates an authenticator for the configured identity
// mode. monitor may be nil.
func NewAuthenticator(mode string, validator *TokenValidator, monitor *monitoring.MonitoringMiddleware) *Authenticator {
	a := &Authenticator{
		mode:      mode,
		validator: validator,
		record:    func(_ string, fn func() error) error { return fn() },
	}
	if monitor != nil {
		a.record = func(method string, fn func() error) error {
			return monitor.AuthMiddleware(method)(fn)
		}
	}
	return a
}

// Identify extracts the actor from r. ok is false when r carries no
// credentials.
func (a *Authenticator) Identify(r *http.Request) (actor types.Actor, ok bool, err error) {
	switch a.mode {
	case config.AuthModeHeader:
		id := r.Header.Get(HeaderUserID)
		if id == "" {
			return types.Actor{}, false, nil
		}
		err = a.record("header", func() error {
			actor = types.Actor{ID: id, Role: types.UserRole(strings.ToUpper(r.Header.Get(HeaderUserRole)))}
			if !actor.Role.Valid() {
				return fmt.Errorf("unknown role %q", r.Header.Get(HeaderUserRole))
			}
			return nil
		})
		return actor, err == nil, err
	default:
		header := r.Header.Get("Authorization")
		if header == "" {
			return types.Actor{}, false, nil
		}
		err = a.record("jwt", func() error {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return fmt.Errorf("authorization header must be a bearer token")
			}
			var verr error
			actor, verr = a.validator.ValidateJWT(parts[1])
			return verr
		})
		return actor, err == nil, err
	}
}

// Middleware attaches the actor to the request context
func (a *Authenticator) Middleware(onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok, err := a.Identify(r)
			if err != nil {
				onError(w, r, types.NewError(types.ErrUnauthenticated, "invalid credentials: %v", err))
				return
			}
			if ok {
				r = r.WithContext(ContextWithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}
