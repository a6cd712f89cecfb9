package api

import "net/http"

// APIKey returns middleware that enforces API-key authentication on the
// wrapped handler.
//
// Behaviour:
//   - If auth.Mode != "apikey" or auth.Key == "", all requests pass through.
//   - Otherwise the request header named auth.Header (default "x-api-key")
//     must equal auth.Key; anything else gets 401.
//
// This is boundary glue in front of the trusted update trigger; the core
// services perform no authorization themselves.
func APIKey(auth AuthConfig) func(http.Handler) http.Handler {
	header := auth.Header
	if header == "" {
		header = "x-api-key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.Mode != "apikey" || auth.Key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get(header) != auth.Key {
				jsonErr(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
