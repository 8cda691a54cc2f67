// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mailer

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/awnumar/memguard"
)

const (
	defaultRelayURL     = "https://api.emailjs.com/api/v1.0/email/send"
	defaultRelayOrigin  = "http://localhost"
	defaultRelayTimeout = 30 * time.Second
)

// Config holds the EmailJS relay settings.
//
// PlaceboMode defaults to true everywhere: flipping it off is an explicit
// operator action, never a fallback.
type Config struct {
	ServiceID  string
	TemplateID string
	PublicKey  string

	// PrivateKey is the EmailJS access token, sealed at load time.
	// A nil enclave means the relay authenticates with the public key
	// alone.
	PrivateKey *memguard.Enclave

	APIURL  string
	Origin  string
	Timeout time.Duration

	PlaceboMode     bool
	PlaceboInbox    string
	OperationsInbox string
}

// LoadConfig reads the relay configuration from the environment.
//
// Description:
//
//	Credentials come from the EMAILJS_* variables; the private key also
//	falls back to /run/secrets/emailjs_private_key for container
//	deployments. Routing behavior comes from the SENTINEL_MAILER_*
//	variables, with placebo mode on unless explicitly disabled.
//
// Outputs:
//   - Config: The populated configuration. Completeness is checked at
//     send time, not load time.
func LoadConfig() Config {
	cfg := Config{
		ServiceID:       os.Getenv("EMAILJS_SERVICE_ID"),
		TemplateID:      os.Getenv("EMAILJS_TEMPLATE_ID"),
		PublicKey:       os.Getenv("EMAILJS_PUBLIC_KEY"),
		APIURL:          envOr("SENTINEL_MAILER_API_URL", defaultRelayURL),
		Origin:          envOr("SENTINEL_MAILER_ORIGIN", defaultRelayOrigin),
		Timeout:         envSeconds("SENTINEL_MAILER_TIMEOUT_SECONDS", defaultRelayTimeout),
		PlaceboMode:     envBool("SENTINEL_MAILER_PLACEBO", true),
		PlaceboInbox:    os.Getenv("SENTINEL_MAILER_PLACEBO_INBOX"),
		OperationsInbox: os.Getenv("SENTINEL_MAILER_OPERATIONS_INBOX"),
	}

	if raw := readSecret("EMAILJS_PRIVATE_KEY", "emailjs_private_key"); raw != "" {
		cfg.PrivateKey = memguard.NewEnclave([]byte(raw))
	}

	return cfg
}

// configured reports whether the relay can send at all: credentials plus
// an inbox for the active mode.
func (c Config) configured() bool {
	if c.ServiceID == "" || c.TemplateID == "" || c.PublicKey == "" {
		return false
	}
	if c.PlaceboMode {
		return c.PlaceboInbox != ""
	}
	return c.OperationsInbox != ""
}

// readSecret resolves a credential from the environment first, then from
// the conventional Docker secrets mount.
func readSecret(envVar, secretName string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	data, err := os.ReadFile("/run/secrets/" + secretName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		slog.Warn("Invalid boolean in environment, using fallback",
			slog.String("var", key), slog.Bool("fallback", fallback))
		return fallback
	}
	return v
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs <= 0 {
		slog.Warn("Invalid duration in environment, using fallback",
			slog.String("var", key), slog.Duration("fallback", fallback))
		return fallback
	}
	return time.Duration(secs) * time.Second
}
