package main

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var errMissingSecret = errors.New("shared secret must be set")

type tokenOptions struct {
	Secret   string
	Subject  string
	Email    string
	Name     string
	Audience string
	Issuer   string
	TTL      time.Duration
}

// signToken returns an HS256 JWT accepted by the API in local auth mode.
func signToken(opts tokenOptions, now time.Time) (string, error) {
	if opts.Secret == "" {
		return "", errMissingSecret
	}
	if opts.Subject == "" {
		return "", errors.New("subject must be set")
	}
	if opts.TTL <= 0 {
		return "", errors.New("ttl must be positive")
	}
	claims := jwt.MapClaims{
		"sub": opts.Subject,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(opts.TTL).Unix(),
	}
	if opts.Email != "" {
		claims["email"] = opts.Email
	}
	if opts.Name != "" {
		claims["name"] = opts.Name
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(opts.Secret))
}
