// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package tables

import "encoding/json"

// RawCell is one undecoded cell of a fetched row. The payload shape
// varies by column kind (string, number, or list of numbers), so it is
// kept raw until the schema is consulted.
type RawCell struct {
	ColumnID int64           `json:"columnId"`
	Value    json.RawMessage `json:"value"`
}

// RawRow is one fetched row.
type RawRow struct {
	ID   int64     `json:"id"`
	Data []RawCell `json:"data"`
}

// Row is a decoded row: cells that survived decoding, keyed by column
// title.
type Row map[string]Cell
