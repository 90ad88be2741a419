package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID": "oakmarket-test",
		"API_PAYPAL_CLIENT_ID":    "client-123",
		"API_PAYPAL_SECRET":       "plain-secret",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(baseEnv()),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("unexpected read timeout %v", cfg.Server.ReadTimeout)
	}
	if cfg.PayPal.BaseURL != "https://api-m.sandbox.paypal.com" {
		t.Fatalf("unexpected paypal base url %q", cfg.PayPal.BaseURL)
	}
	if cfg.Firestore.ProjectID != "oakmarket-test" {
		t.Fatalf("firestore project should default to firebase project, got %q", cfg.Firestore.ProjectID)
	}
	if cfg.Notifications.ProjectID != "oakmarket-test" {
		t.Fatalf("notifications project should default to firebase project, got %q", cfg.Notifications.ProjectID)
	}
	if cfg.Checkout.Currency != "USD" {
		t.Fatalf("unexpected currency %q", cfg.Checkout.Currency)
	}
	if cfg.Checkout.ShippingFlatRate != 1000 {
		t.Fatalf("unexpected shipping flat rate %d", cfg.Checkout.ShippingFlatRate)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency ttl %v", cfg.Idempotency.TTL)
	}
}

func TestLoadOverridesFromEnvMap(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_CHECKOUT_CURRENCY"] = "eur"
	env["API_CHECKOUT_SHIPPING_FLAT_RATE"] = "500"
	env["API_NOTIFICATIONS_TOPIC_ID"] = "custom-topic"

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(env),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected overridden port, got %q", cfg.Server.Port)
	}
	if cfg.Checkout.Currency != "EUR" {
		t.Fatalf("currency should be upper-cased, got %q", cfg.Checkout.Currency)
	}
	if cfg.Checkout.ShippingFlatRate != 500 {
		t.Fatalf("unexpected shipping flat rate %d", cfg.Checkout.ShippingFlatRate)
	}
	if cfg.Notifications.TopicID != "custom-topic" {
		t.Fatalf("unexpected topic %q", cfg.Notifications.TopicID)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["API_PAYPAL_SECRET"] = "secret://projects/test/secrets/paypal/versions/latest"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/test/secrets/paypal/versions/latest" {
			return "", errors.New("unexpected ref")
		}
		return "resolved-secret", nil
	})

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(env),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PayPal.Secret != "resolved-secret" {
		t.Fatalf("secret was not resolved, got %q", cfg.PayPal.Secret)
	}
}

func TestLoadNormalisesSmScheme(t *testing.T) {
	env := baseEnv()
	env["API_PAYPAL_SECRET"] = "sm://projects/test/secrets/paypal/versions/1"

	var seenRef string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		seenRef = ref
		return "value", nil
	})

	if _, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(env),
		WithSecretResolver(resolver),
	); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if seenRef != "secret://projects/test/secrets/paypal/versions/1" {
		t.Fatalf("sm:// ref was not normalised, got %q", seenRef)
	}
}

func TestLoadReportsMissingFields(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{}),
	)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	fields := validation.Fields()
	want := map[string]bool{"Firebase.ProjectID": false, "PayPal.ClientID": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Fatalf("expected %s in validation fields %v", field, fields)
		}
	}
}

func TestLoadEnforcesRequiredSecrets(t *testing.T) {
	env := baseEnv()
	env["API_PAYPAL_SECRET"] = ""

	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(env),
		WithRequiredSecrets("PayPal.Secret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error")
	}

	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	names := missing.Names()
	if len(names) != 1 || names[0] != "PayPal.Secret" {
		t.Fatalf("unexpected missing secret names %v", names)
	}
}
