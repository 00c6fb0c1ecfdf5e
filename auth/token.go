// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var ErrInvalidToken = errors.New("invalid token")

// StaffClaims identifies a logged-in staff member
type StaffClaims struct {
	StaffID string `json:"sid"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	jwt.StandardClaims
}

// IssueStaffToken signs an HS256 token for a staff member
func IssueStaffToken(staffID, name, role, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &StaffClaims{
		StaffID: staffID,
		Name:    name,
		Role:    role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expiresAt.Unix(),
			IssuedAt:  now.Unix(),
			Subject:   staffID,
		},
	})

	token, err := t.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign staff token: %w", err)
	}
	return token, expiresAt, nil
}

// ParseStaffToken validates the signature and expiry of a staff token
func ParseStaffToken(token, secret string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.StaffID == "" || claims.Role == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
