package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/response"
	"github.com/fatflowers/casperflow/pkg/tool"
)

const (
	authHeaderPrefix = "Bearer "
	// WalletHeader names the caller directly. Only honoured when no JWT
	// secret is configured.
	WalletHeader = "X-Wallet-Address"
)

// CallerClaims is the bearer token payload. Subject is the caller's wallet
// public key.
type CallerClaims struct {
	jwt.StandardClaims
}

// TokenValidator turns a bearer token into its claims.
type TokenValidator interface {
	Validate(token string) (*CallerClaims, error)
}

// HMACValidator checks HS256/384/512 tokens against a shared secret.
type HMACValidator struct {
	Secret []byte
}

func (v *HMACValidator) Validate(token string) (*CallerClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &CallerClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.Secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errors.New("token expired")
		}
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*CallerClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// SignCallerToken issues an HS256 token for wallet. expiresAt is a unix
// timestamp, zero means no expiry.
func SignCallerToken(secret []byte, wallet string, expiresAt int64) (string, error) {
	claims := CallerClaims{StandardClaims: jwt.StandardClaims{Subject: wallet, ExpiresAt: expiresAt}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// AuthMiddleware resolves the calling wallet and stores it under
// logctx.CallerKey on both contexts. Requests without a usable identity are
// rejected with the unauthorized envelope.
func AuthMiddleware(cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	var validator TokenValidator
	if cfg.Auth.JWTSecret != "" {
		validator = &HMACValidator{Secret: []byte(cfg.Auth.JWTSecret)}
	}
	return func(c *gin.Context) {
		caller, err := resolveCaller(c, validator)
		if err != nil {
			logctx.FromGin(c, log).Warnw("authentication failed", "path", c.Request.URL.Path, "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, err.Error()))
			return
		}
		c.Set(logctx.CallerKey, caller)
		c.Request = c.Request.WithContext(logctx.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

func resolveCaller(c *gin.Context, validator TokenValidator) (string, error) {
	if validator == nil {
		wallet := strings.TrimSpace(c.GetHeader(WalletHeader))
		if wallet == "" {
			return "", fmt.Errorf("missing %s header", WalletHeader)
		}
		if !tool.IsCasperPublicKey(wallet) {
			return "", errors.New("caller is not a casper public key")
		}
		return wallet, nil
	}

	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, authHeaderPrefix) {
		return "", errors.New("missing bearer token")
	}
	claims, err := validator.Validate(strings.TrimPrefix(header, authHeaderPrefix))
	if err != nil {
		return "", err
	}
	if !tool.IsCasperPublicKey(claims.Subject) {
		return "", errors.New("token subject is not a casper public key")
	}
	return claims.Subject, nil
}

// Caller returns the wallet AuthMiddleware authenticated.
func Caller(c *gin.Context) string {
	return c.GetString(logctx.CallerKey)
}
