package config

import (
	"os"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
)

// Getenv allows tests to substitute the process environment.
type Getenv func(key string) string

// Credentials is a resolved client id/secret pair plus the webhook id for the
// same mode.
type Credentials struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
}

// ResolvePayPalMode picks the gateway environment. Order: explicit config
// value, PAYPAL_MODE, its public-facing mirror, then sandbox. The mode is
// deliberately never inferred from a general "is this production" flag so an
// internal deployment cannot accidentally reach live payment endpoints.
func ResolvePayPalMode(cfg PayPalConfig, getenv Getenv) adapter.GatewayMode {
	if getenv == nil {
		getenv = os.Getenv
	}
	candidates := []string{
		cfg.Mode,
		getenv("PAYPAL_MODE"),
		getenv("NEXT_PUBLIC_PAYPAL_MODE"),
	}
	for _, c := range candidates {
		switch c {
		case string(adapter.ModeLive):
			return adapter.ModeLive
		case string(adapter.ModeSandbox):
			return adapter.ModeSandbox
		}
	}
	return adapter.ModeSandbox
}

// ResolvePayPalCredentials resolves the id/secret/webhook-id triple for one
// mode. Explicit config values win; otherwise each field falls back through
// mode-namespaced variables, then the legacy shared names, in order. Earlier
// entries are authoritative when several are set. The order supports gradual
// migration between naming schemes and must not change.
// Variables namespaced to the other mode are never consulted.
func ResolvePayPalCredentials(cfg PayPalConfig, mode adapter.GatewayMode, getenv Getenv) (Credentials, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	var id, secret, webhookID string
	switch mode {
	case adapter.ModeLive:
		id = firstNonEmpty(
			cfg.LiveClientID,
			getenv("PAYPAL_LIVE_CLIENT_ID"),
			getenv("NEXT_PUBLIC_PAYPAL_LIVE_CLIENT_ID"),
			getenv("PAYPAL_CLIENT_ID"),
			getenv("NEXT_PUBLIC_PAYPAL_CLIENT_ID"),
		)
		secret = firstNonEmpty(
			cfg.LiveClientSecret,
			getenv("PAYPAL_LIVE_CLIENT_SECRET"),
			getenv("PAYPAL_CLIENT_SECRET"),
		)
		webhookID = firstNonEmpty(
			cfg.LiveWebhookID,
			getenv("PAYPAL_LIVE_WEBHOOK_ID"),
			getenv("PAYPAL_WEBHOOK_ID"),
		)
	default:
		id = firstNonEmpty(
			cfg.SandboxClientID,
			getenv("PAYPAL_SANDBOX_CLIENT_ID"),
			getenv("NEXT_PUBLIC_PAYPAL_SANDBOX_CLIENT_ID"),
			getenv("PAYPAL_CLIENT_ID"),
			getenv("NEXT_PUBLIC_PAYPAL_CLIENT_ID"),
		)
		secret = firstNonEmpty(
			cfg.SandboxClientSecret,
			getenv("PAYPAL_SANDBOX_CLIENT_SECRET"),
			getenv("PAYPAL_CLIENT_SECRET"),
		)
		webhookID = firstNonEmpty(
			cfg.SandboxWebhookID,
			getenv("PAYPAL_SANDBOX_WEBHOOK_ID"),
			getenv("PAYPAL_WEBHOOK_ID"),
		)
	}

	// Missing halves are fatal for the request; resolution never falls back
	// to the other mode.
	if id == "" || secret == "" {
		return Credentials{}, domain.ErrCredentialsMissing
	}
	return Credentials{ClientID: id, ClientSecret: secret, WebhookID: webhookID}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
