// Package auth resolves join credentials into an identity. Token
// verification is pluggable; failures fall back to a guest identity bound to
// the transport session unless server policy forbids it.
package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"gridkeep/internal/config"
)

// Claims is the verified identity payload.
type Claims struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

// Profile carries the slower-moving account fields fetched separately from
// token verification.
type Profile struct {
	EmailConfirmed bool
}

// Verifier abstracts the external identity service so rooms can be tested
// against a fake.
type Verifier interface {
	VerifyToken(token string) (Claims, error)
	FetchProfile(token string) (Profile, error)
}

// Identity is the resolved participant identity a room operates on.
type Identity struct {
	ParticipantID string
	DisplayName   string
	Verified      bool
}

// Credentials is what a connecting client presents.
type Credentials struct {
	Token     string // optional identity token
	Secret    string // optional room secret
	Name      string // requested display name (guests)
	SessionID string // transport-assigned session token
}

// jwtClaims is the internal claims type used for JWT parsing.
type jwtClaims struct {
	jwt.RegisteredClaims
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Role          string `json:"role"`
}

// JWTVerifier verifies HMAC-signed identity tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given HMAC secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// VerifyToken parses and validates the token, returning its identity claims.
func (v *JWTVerifier) VerifyToken(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("verify token: %w", err)
	}

	c, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return Claims{}, fmt.Errorf("verify token: invalid claims")
	}
	if c.Subject == "" {
		return Claims{}, fmt.Errorf("verify token: missing subject")
	}
	return Claims{UserID: c.Subject, Name: c.Name, Email: c.Email, Role: c.Role}, nil
}

// FetchProfile reports whether the identity's email is confirmed. With JWT
// identities the claim rides in the token itself.
func (v *JWTVerifier) FetchProfile(token string) (Profile, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	c, ok := parsed.Claims.(*jwtClaims)
	if !ok {
		return Profile{}, fmt.Errorf("fetch profile: invalid claims")
	}
	return Profile{EmailConfirmed: c.EmailVerified}, nil
}

// HashSecret hashes a room secret for storage.
func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(b), nil
}

// CheckSecret compares a supplied secret against the stored hash.
func CheckSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// Resolve turns credentials into an identity under the given policy.
// Token verification failure is non-fatal: the caller falls back to a guest
// identity unless RequireLogin is set. Room-secret checking happens in the
// room, which owns the hash.
func Resolve(creds Credentials, verifier Verifier, policy config.AuthConfig) (Identity, error) {
	if verifier != nil && creds.Token != "" {
		claims, err := verifier.VerifyToken(creds.Token)
		if err == nil {
			if policy.RequireVerifiedEmail {
				profile, perr := verifier.FetchProfile(creds.Token)
				if perr != nil || !profile.EmailConfirmed {
					return Identity{}, &UnverifiedEmailError{}
				}
			}
			name := claims.Name
			if name == "" {
				name = claims.UserID
			}
			return Identity{ParticipantID: claims.UserID, DisplayName: name, Verified: true}, nil
		}
		// Invalid token degrades to guest below.
	}

	if policy.RequireLogin {
		return Identity{}, &LoginRequiredError{}
	}

	name := strings.TrimSpace(creds.Name)
	if name == "" {
		name = "guest-" + shortID(creds.SessionID)
	}
	return Identity{ParticipantID: "guest:" + creds.SessionID, DisplayName: name}, nil
}

func shortID(s string) string {
	if len(s) > 6 {
		return s[:6]
	}
	return s
}
