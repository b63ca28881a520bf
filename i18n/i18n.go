// Package i18n translates machine-readable codes (validation violations and
// auth error codes) into user-facing messages.
package i18n

import "strings"

// DefaultLanguage is used when nothing better can be detected.
const DefaultLanguage = "fr"

var messages = map[string]map[string]string{
	"en": {
		"required":            "Required",
		"invalid_email":       "Invalid email address",
		"too_short":           "Too short",
		"invalid_choice":      "Invalid choice",
		"invalid_credentials": "Invalid email or password",
		"email_in_use":        "An account already exists for this email",
		"weak_password":       "Password is too weak",
		"signup_failed":       "Sign-up failed",
		"logout_failed":       "Sign-out failed, please try again",
		"profile_missing":     "Account not fully set up",
		"transport_failure":   "Service unreachable, please try again",
		"unknown_error":       "Something went wrong",
		"forbidden":           "You do not have access to this page",
		"unauthenticated":     "Please sign in",
		"invalid_token":       "Your session is invalid, please sign in again",
		"session_inactive":    "Your session has ended, please sign in again",
		"validation_failed":   "Some fields are invalid",
		"invalid_body":        "Malformed request",
		"invalid_role":        "Unknown role",
		"role_not_allowed":    "This role cannot be chosen at sign-up",
		"not_found":           "Not found",
		"db_error":            "Storage error, please try again",
		"internal_error":      "Something went wrong",
	},
	"fr": {
		"required":            "Requis",
		"invalid_email":       "Adresse e-mail invalide",
		"too_short":           "Trop court",
		"invalid_choice":      "Choix invalide",
		"invalid_credentials": "E-mail ou mot de passe incorrect",
		"email_in_use":        "Un compte existe déjà pour cet e-mail",
		"weak_password":       "Mot de passe trop faible",
		"signup_failed":       "L'inscription a échoué",
		"logout_failed":       "La déconnexion a échoué, veuillez réessayer",
		"profile_missing":     "Compte non finalisé",
		"transport_failure":   "Service injoignable, veuillez réessayer",
		"unknown_error":       "Une erreur est survenue",
		"forbidden":           "Vous n'avez pas accès à cette page",
		"unauthenticated":     "Veuillez vous connecter",
		"invalid_token":       "Session invalide, veuillez vous reconnecter",
		"session_inactive":    "Votre session a expiré, veuillez vous reconnecter",
		"validation_failed":   "Certains champs sont invalides",
		"invalid_body":        "Requête mal formée",
		"invalid_role":        "Rôle inconnu",
		"role_not_allowed":    "Ce rôle ne peut pas être choisi à l'inscription",
		"not_found":           "Introuvable",
		"db_error":            "Erreur de stockage, veuillez réessayer",
		"internal_error":      "Une erreur est survenue",
	},
}

// Supported reports whether lang has a message table.
func Supported(lang string) bool {
	_, ok := messages[lang]
	return ok
}

// DetectLanguage picks a supported language from an Accept-Language header.
// Only the first entry is considered.
func DetectLanguage(header string) string {
	first, _, _ := strings.Cut(header, ",")
	first, _, _ = strings.Cut(first, ";")
	base, _, _ := strings.Cut(strings.TrimSpace(first), "-")
	lang := strings.ToLower(base)
	if Supported(lang) {
		return lang
	}
	return DefaultLanguage
}

// T returns the message for code in lang, falling back to the default
// language and then to the code itself.
func T(lang, code string) string {
	if msg, ok := messages[lang][code]; ok {
		return msg
	}
	if msg, ok := messages[DefaultLanguage][code]; ok {
		return msg
	}
	return code
}

// Violations translates every value of a field -> code map.
func Violations(lang string, v map[string]string) map[string]string {
	out := make(map[string]string, len(v))
	for field, code := range v {
		out[field] = T(lang, code)
	}
	return out
}
