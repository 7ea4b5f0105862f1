// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Header names for notification signing.
const (
	SignatureHeader = "X-Glassgate-Signature"
	TimestampHeader = "X-Glassgate-Timestamp"
)

// DefaultSignatureTolerance is how far a signed timestamp may drift from now.
const DefaultSignatureTolerance = 5 * time.Minute

const signaturePrefix = "sha256="

var (
	errMissingSignature = errors.New("missing signature headers")
	errBadTimestamp     = errors.New("malformed signature timestamp")
	errStaleTimestamp   = errors.New("signature timestamp outside tolerance")
	errBadSignature     = errors.New("signature mismatch")
)

func mac(secret []byte, timestamp int64, payload []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	return h.Sum(nil)
}

// SignPayload returns the signature header value for payload sent at
// timestamp, as "sha256=<hex>" over "timestamp.payload".
func SignPayload(secret []byte, timestamp int64, payload []byte) string {
	return signaturePrefix + hex.EncodeToString(mac(secret, timestamp, payload))
}

// VerifySignature checks signature in constant time.
func VerifySignature(secret []byte, timestamp int64, payload []byte, signature string) bool {
	hexSig, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return false
	}
	sig, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	return hmac.Equal(mac(secret, timestamp, payload), sig)
}

// verifyRequest checks the signature headers of r against body.
func verifyRequest(secret []byte, header http.Header, body []byte, now time.Time, tolerance time.Duration) error {
	sig := header.Get(SignatureHeader)
	rawTS := header.Get(TimestampHeader)
	if sig == "" || rawTS == "" {
		return errMissingSignature
	}

	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return errBadTimestamp
	}
	if d := now.Sub(time.Unix(ts, 0)); d > tolerance || d < -tolerance {
		return errStaleTimestamp
	}

	if !VerifySignature(secret, ts, body, sig) {
		return errBadSignature
	}
	return nil
}
