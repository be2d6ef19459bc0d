// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error. The segment after
// the last dot is the reason and drives the Is* predicates.
type Code string

const (
	CodeStoreObservationNotFound    Code = "store.observation.get.not_found"
	CodeStoreObservationInvalid     Code = "store.observation.write.invalid_input"
	CodeStoreDatabaseFailure        Code = "store.database.failure"
	CodeStoreDatabaseUnavailable    Code = "store.database.unavailable"
	CodeStoreBackendUnsupported     Code = "store.backend.unsupported"
	CodeStoreInvalidInput           Code = "store.invalid_input"
	CodeStoreTextIndexFailure       Code = "store.text_index.failure"
	CodeStoreVectorIndexFailure     Code = "store.vector_index.failure"
	CodeStoreVectorDimensionInvalid Code = "store.vector.dimension.invalid_input"

	CodeIndexInconsistent Code = "index.consistency.inconsistent"

	CodeEmbeddingUnavailable    Code = "embedding.upstream.unavailable"
	CodeEmbeddingTimeout        Code = "embedding.request.timeout"
	CodeEmbeddingResponseFailed Code = "embedding.response.invalid"
	CodeEmbeddingConfigInvalid  Code = "embedding.config.invalid"

	CodeSummarizeUpstreamFailure Code = "summarize.upstream.failure"
	CodeSummarizeConfigInvalid   Code = "summarize.config.invalid"

	CodeMemoryWriteInvalidInput  Code = "memory.write.invalid_input"
	CodeMemorySearchInvalidInput Code = "memory.search.invalid_input"
	CodeMemoryCompressFailure    Code = "memory.compress.failure"
	CodeMemoryLaneClosed         Code = "memory.lane.closed"

	CodeHookEventInvalid Code = "hook.event.invalid"

	CodeRedactContentBlocked Code = "redact.content.invalid"
	CodeRedactRuleInvalid    Code = "redact.rule.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"

	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretNotFound       Code = "secret.keyring.not_found"
	CodeSecretInvalidInput   Code = "secret.input.invalid"
	CodeSecretKeyringFailure Code = "secret.keyring.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldSessionID(value string) Attr {
	return Field("session_id", value)
}

func FieldObservationID(value int64) Attr {
	return Field("observation_id", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain, keeping its code.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	case nil:
		return ""
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

// IsEmbeddingUnavailable reports whether the embedding model could not produce
// a usable vector.
func IsEmbeddingUnavailable(err error) bool {
	switch CodeOf(err) {
	case CodeEmbeddingUnavailable, CodeEmbeddingTimeout, CodeEmbeddingResponseFailed:
		return true
	}
	return false
}

func IsStoreUnavailable(err error) bool {
	code := CodeOf(err)
	return code == CodeStoreDatabaseUnavailable || code == CodeStoreDatabaseFailure
}

func IsInconsistent(err error) bool {
	return reason(CodeOf(err)) == "inconsistent"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	if !strings.Contains(string(code), "upstream") {
		return false
	}
	r := reason(code)
	return r == "failure" || r == "unavailable"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	case IsStoreUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeServerInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
