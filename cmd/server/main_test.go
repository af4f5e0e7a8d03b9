package main

import (
	"testing"

	"salonledger/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRequiresOneSignalKeyWithAppID(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:     "0123456789abcdef0123456789abcdef",
		OneSignalAppID: "app-123",
	})
	if err == nil {
		t.Fatalf("expected half-configured push notifications to be rejected")
	}
}

func TestCommandsAreRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	if !names["serve"] || !names["migrate"] {
		t.Fatalf("expected serve and migrate subcommands, got %v", names)
	}
	if serveCmd.Flags().Lookup("migrate") == nil {
		t.Fatalf("expected --migrate flag on serve")
	}
}
