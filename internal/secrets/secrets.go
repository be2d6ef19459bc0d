// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

// Package secrets keeps API keys in the OS keyring and resolves keyring://
// references found in configuration.
package secrets

// DefaultService is the keyring service engram stores its keys under.
const DefaultService = "engram"

// Store saves and loads secrets by service and key.
type Store interface {
	Set(service, key, value string) error
	// Get fails with CodeSecretNotFound when the key does not exist.
	Get(service, key string) (string, error)
	// Delete fails with CodeSecretNotFound when the key does not exist.
	Delete(service, key string) error
	// List returns the key names stored under service.
	List(service string) ([]string, error)
}
