// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import "net/http"

// trackingWriter wraps http.ResponseWriter to record whether the response
// has been committed.
type trackingWriter struct {
	http.ResponseWriter
	written bool
}

// WriteHeader commits the status code.
func (tw *trackingWriter) WriteHeader(statusCode int) {
	tw.written = true
	tw.ResponseWriter.WriteHeader(statusCode)
}

// Write commits the response and writes data.
func (tw *trackingWriter) Write(data []byte) (int, error) {
	tw.written = true
	return tw.ResponseWriter.Write(data)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (tw *trackingWriter) Flush() {
	if flusher, ok := tw.ResponseWriter.(http.Flusher); ok {
		tw.written = true
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (tw *trackingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}
