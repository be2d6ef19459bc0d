// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/zalando/go-keyring"
)

// indexKey holds a JSON list of the key names of a service, since the OS
// keyrings cannot enumerate entries.
const indexKey = "::index"

// Keyring implements Store on the OS keyring: Keychain on macOS,
// secret-service on Linux and Credential Manager on Windows.
type Keyring struct{}

var _ Store = Keyring{}

func (Keyring) Set(service, key, value string) error {
	if err := checkName(service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeSecretKeyringFailure, "storing secret %s/%s", service, key)
	}

	keys, err := loadIndex(service)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return saveIndex(service, append(keys, key))
}

func (Keyring) Get(service, key string) (string, error) {
	if err := checkName(service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", engramerr.Errorf(engramerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", engramerr.Wrapf(err, engramerr.CodeSecretKeyringFailure, "reading secret %s/%s", service, key)
	}
	return val, nil
}

func (Keyring) Delete(service, key string) error {
	if err := checkName(service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return engramerr.Errorf(engramerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return engramerr.Wrapf(err, engramerr.CodeSecretKeyringFailure, "deleting secret %s/%s", service, key)
	}

	keys, err := loadIndex(service)
	if err != nil {
		return err
	}
	return saveIndex(service, slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}

func (Keyring) List(service string) ([]string, error) {
	if service == "" {
		return nil, engramerr.New(engramerr.CodeSecretInvalidInput, "service must not be empty")
	}
	keys, err := loadIndex(service)
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

func checkName(service, key string) error {
	if service == "" || key == "" {
		return engramerr.New(engramerr.CodeSecretInvalidInput, "service and key must not be empty")
	}
	if key == indexKey {
		return engramerr.Errorf(engramerr.CodeSecretInvalidInput, "%q is reserved", key)
	}
	return nil
}

func loadIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeSecretKeyringFailure, "loading key index of %s", service)
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeSecretKeyringFailure, "decoding key index of %s", service)
	}
	return keys, nil
}

func saveIndex(service string, keys []string) error {
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index", "service", service, "error", err)
		}
		return nil
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return engramerr.Wrapf(err, engramerr.CodeSecretKeyringFailure, "encoding key index of %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeSecretKeyringFailure, "saving key index of %s", service)
	}
	return nil
}
