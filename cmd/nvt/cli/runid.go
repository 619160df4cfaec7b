// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRunID creates a random 16-byte hex string identifying one command
// invocation. Sync and plan tag every log line with it so a single
// run's lines can be pulled out of aggregated logs (the tool typically
// runs from cron, where invocations interleave with everything else
// on the host). Uses crypto/rand for uniqueness without external
// dependencies.
func NewRunID() (string, error) {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer[:]), nil
}
