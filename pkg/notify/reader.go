// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxLines bounds the number of lines read from a notification body.
const DefaultMaxLines = 1000

// ErrTooManyLines is returned when a body has more lines than allowed.
var ErrTooManyLines = errors.New("notification body exceeds the line limit")

// readLines reads r to EOF, failing once more than maxLines lines are seen.
// A trailing line without a newline counts as a line.
func readLines(r io.Reader, maxLines int) ([]byte, error) {
	br := bufio.NewReader(r)
	var buf bytes.Buffer

	for lines := 0; ; {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			lines++
			if lines > maxLines {
				return nil, fmt.Errorf("%w: more than %d lines", ErrTooManyLines, maxLines)
			}
			buf.Write(line)
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read notification body: %w", err)
		}
	}
}
