// Package prefs resolves the caller's language preference and writes
// localized API errors.
package prefs

import (
	"context"
	"net/http"

	"github.com/diewo77/studio-console/httpx"
	"github.com/diewo77/studio-console/i18n"
)

type ctxKey struct{}

// CookieName is the cookie holding a chosen language.
const CookieName = "lang"

const cookieMaxAge = 86400 * 30

// Lang stores the request language in the context. Precedence is the lang
// query parameter, then the lang cookie, then Accept-Language. A supported
// query value is persisted in the cookie.
func Lang(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := ""
		if c, err := r.Cookie(CookieName); err == nil && i18n.Supported(c.Value) {
			lang = c.Value
		}
		if q := r.URL.Query().Get("lang"); i18n.Supported(q) {
			lang = q
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    q,
				Path:     "/",
				MaxAge:   cookieMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		if lang == "" {
			lang = i18n.DetectLanguage(r.Header.Get("Accept-Language"))
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, lang)))
	})
}

// LangFrom returns the request language, detecting it from Accept-Language
// when Lang did not run.
func LangFrom(r *http.Request) string {
	if v, ok := r.Context().Value(ctxKey{}).(string); ok && v != "" {
		return v
	}
	return i18n.DetectLanguage(r.Header.Get("Accept-Language"))
}

// Error writes {"error": code, "message": ...} with the message in the
// request language.
func Error(w http.ResponseWriter, r *http.Request, status int, code string, details any) {
	httpx.JSONError(w, status, code, i18n.T(LangFrom(r), code), details)
}
