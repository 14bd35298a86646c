package feedapi

import (
	"net/http"

	"github.com/oklog/ulid/v2"
)

const (
	raterCookieName = "sift_rater"
	raterCookieAge  = 365 * 24 * 60 * 60
)

// ensureRater returns the caller's rater ID, minting one and setting the
// cookie when the request does not carry it yet. The ID ties votes from
// the same browser together without accounts.
func (a *API) ensureRater(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(raterCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := ulid.Make().String()
	http.SetCookie(w, &http.Cookie{
		Name:     raterCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   raterCookieAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
