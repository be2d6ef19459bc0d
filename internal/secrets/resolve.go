// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package secrets

import (
	"strings"

	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/spf13/viper"
)

const scheme = "keyring://"

// IsReference reports whether value is a keyring:// reference.
func IsReference(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// ParseReference splits keyring://service/key. The short form keyring://key
// uses DefaultService.
func ParseReference(ref string) (service, key string, err error) {
	if !IsReference(ref) {
		return "", "", engramerr.Errorf(engramerr.CodeSecretInvalidInput, "not a keyring reference: %q", ref)
	}
	path := strings.TrimPrefix(ref, scheme)
	service, key, found := strings.Cut(path, "/")
	if !found {
		service, key = DefaultService, path
	}
	if service == "" || key == "" {
		return "", "", engramerr.Errorf(engramerr.CodeSecretInvalidInput,
			"invalid keyring reference %q: expected keyring://service/key or keyring://key", ref)
	}
	return service, key, nil
}

// Resolve returns value itself, or the secret it references.
func Resolve(store Store, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	service, key, err := ParseReference(value)
	if err != nil {
		return "", err
	}
	secret, err := store.Get(service, key)
	if err != nil {
		return "", engramerr.Wrapf(err, engramerr.CodeSecretResolveFailure, "resolving %s", value)
	}
	return secret, nil
}

// ResolveViper replaces keyring references held by the given keys of v with
// the secrets they name. Keys without a reference are untouched; the first
// reference that cannot be resolved fails the call.
func ResolveViper(v *viper.Viper, store Store, keys ...string) error {
	for _, k := range keys {
		val := v.GetString(k)
		if !IsReference(val) {
			continue
		}
		secret, err := Resolve(store, val)
		if err != nil {
			return engramerr.With(err, engramerr.Field("config_key", k))
		}
		v.Set(k, secret)
	}
	return nil
}
