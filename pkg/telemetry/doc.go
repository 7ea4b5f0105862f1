// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry-based metrics for glassgate: a
// meter provider exported through a Prometheus endpoint and an HTTP
// middleware that counts and times requests.
package telemetry
