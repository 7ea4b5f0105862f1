// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net/http"

	glerrors "github.com/stacklok/glassgate/pkg/errors"
	"github.com/stacklok/glassgate/pkg/logger"
)

// AppHandler is an HTTP handler that can return an error.
// Handlers return errors instead of writing error responses themselves, so
// the failure kind can be handled in one place.
type AppHandler func(http.ResponseWriter, *http.Request) error

// Recover wraps h and converts returned errors into responses:
//   - nil: the handler already wrote the response
//   - revoked, response not yet written: redirect to the login route
//   - anything else, response not yet written: 500 with a generic message
//   - response already written: the error is only logged
func Recover(h AppHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}

		err := h(tw, r)
		if err == nil {
			return
		}

		if tw.written {
			logger.Errorw("handler failed after writing the response",
				"path", r.URL.Path,
				"kind", glerrors.TypeOf(err),
				"error", err,
			)
			return
		}

		if glerrors.IsRevoked(err) {
			logger.Warnw("grant revoked, redirecting to re-authenticate", "path", r.URL.Path, "error", err)
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}

		logger.Errorw("internal server error", "path", r.URL.Path, "kind", glerrors.TypeOf(err), "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	})
}
