package authgate

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie carrying the signed auth token next to the scs session cookie
const AuthTokenCookieName = "authToken"

// signAuthToken issues an HS256 JWT bound to the user. The session cookie is
// the authoritative credential; this token is the tamper-evident variant for
// API and gRPC callers that don't carry cookies.
func (a *Auth) signAuthToken(userID string) (string, error) {
	if a.Config.SecretKey == "" {
		return "", fmt.Errorf("no secret key configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iss": a.Config.JwtIssuer,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(a.Config.SessionTTL).Unix(),
	})
	return token.SignedString([]byte(a.Config.SecretKey))
}

// VerifyAuthToken validates a signed auth token and returns the subject user
// id. An expired token fails with ErrSessionExpired, anything else invalid
// with ErrNoSession.
func (a *Auth) VerifyAuthToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.Config.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrSessionExpired
		}
		return "", ErrNoSession
	}
	if !token.Valid {
		return "", ErrNoSession
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrNoSession
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrNoSession
	}
	return sub, nil
}

func setAuthCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthTokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    AuthTokenCookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
}
