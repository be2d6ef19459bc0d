// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package server

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

// apiError converts a domain error into a huma status error. Server-side
// failures are logged with their error fields and returned without detail.
func (s *Server) apiError(err error, op string) error {
	status := engramerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		s.logger.Error("request failed",
			"op", op,
			"code", engramerr.CodeOf(err),
			"fields", engramerr.FieldsOf(err),
			"error", err,
		)
		if status == http.StatusInternalServerError {
			return huma.Error500InternalServerError("internal error")
		}
	}
	return huma.NewError(status, err.Error())
}
