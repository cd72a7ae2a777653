package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"
)

// TwilioSignatureHeader carries Twilio's HMAC-SHA1 request signature
const TwilioSignatureHeader = "X-Twilio-Signature"

// TwilioSignatureMiddleware rejects webhook calls whose X-Twilio-Signature
// does not match the auth token. baseURL is the public origin Twilio posts
// to (for example https://hooks.brighteyes.example); when empty the URL is
// rebuilt from the request and X-Forwarded-Proto.
func TwilioSignatureMiddleware(authToken, baseURL string, logger *slog.Logger) func(http.Handler) http.Handler {
	validator := client.NewRequestValidator(authToken)
	baseURL = strings.TrimRight(baseURL, "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				respondError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
				return
			}

			params := make(map[string]string, len(r.PostForm))
			for key, values := range r.PostForm {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			signedURL := webhookURL(r, baseURL)
			if !validator.Validate(signedURL, params, r.Header.Get(TwilioSignatureHeader)) {
				logger.Warn("rejected webhook with invalid Twilio signature",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				respondError(w, http.StatusForbidden, "INVALID_SIGNATURE", "Request signature is invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// webhookURL is the absolute URL Twilio signed
func webhookURL(r *http.Request, baseURL string) string {
	if baseURL != "" {
		return baseURL + r.URL.RequestURI()
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
