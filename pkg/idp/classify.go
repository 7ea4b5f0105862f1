// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"context"
	"errors"
	"net"
	"net/http"

	"golang.org/x/oauth2"

	glerrors "github.com/stacklok/glassgate/pkg/errors"
)

// ErrorCodeInvalidGrant is the token endpoint error for a revoked or expired grant.
const ErrorCodeInvalidGrant = "invalid_grant"

// Classify tags err with its failure kind. Errors that already carry a kind
// are returned unchanged.
//
//   - invalid_grant from the token endpoint is revoked
//   - network failures, timeouts, 429 and 5xx are transient
//   - everything else is fatal
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if glerrors.TypeOf(err) != "" {
		return err
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == ErrorCodeInvalidGrant {
			return glerrors.NewRevokedError("authorization grant revoked", err)
		}
		if re.Response != nil && isTransientStatus(re.Response.StatusCode) {
			return glerrors.NewTransientError("token endpoint unavailable", err)
		}
		return glerrors.NewFatalError("token request rejected", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return glerrors.NewTransientError("token endpoint unreachable", err)
	}
	return glerrors.NewFatalError("token request failed", err)
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
