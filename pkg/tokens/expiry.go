package tokens

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Expiry returns the exp claim of a JWT access token. The signature is not
// verified; opaque tokens report ok=false.
func Expiry(token string) (time.Time, bool) {
	t, err := jwt.ParseString(token, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return time.Time{}, false
	}
	exp := t.Expiration()
	return exp, !exp.IsZero()
}
