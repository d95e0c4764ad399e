package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var claimsParser = jwt.NewParser()

// tokenExpiry reads the exp claim of a JWT without verifying it. ok is false
// for opaque tokens and tokens without exp.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := claimsParser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
