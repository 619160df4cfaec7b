// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package tables

import (
	"bytes"
	"encoding/json"
)

// Decode resolves raw rows against the schema. Every input row produces
// an output row; cells are dropped when no decode rule matches. The
// rules, checked in order per cell:
//
//  1. Text column, string payload: String.
//  2. Check column, string payload exactly "true" or "false": Bool.
//  3. Single-select column, number payload resolving to an option: the
//     option's label as String.
//  4. Multi-select column, list-of-numbers payload: the resolvable
//     labels in order as List (unresolvable IDs skipped).
//
// Cells referencing a column ID absent from the schema, and any other
// kind/payload combination, are dropped. Duplicate column IDs in the
// schema: the first occurrence wins. Two columns sharing a title: the
// row's later cell overwrites the earlier one, matching map insertion.
func Decode(schema *Schema, rows []RawRow) []Row {
	columns := make(map[int64]Column, len(schema.Columns))
	for _, column := range schema.Columns {
		if _, ok := columns[column.ID]; !ok {
			columns[column.ID] = column
		}
	}

	decoded := make([]Row, 0, len(rows))
	for _, raw := range rows {
		row := make(Row, len(raw.Data))
		for _, cell := range raw.Data {
			column, ok := columns[cell.ColumnID]
			if !ok {
				continue
			}
			value, ok := decodeCell(column, cell.Value)
			if !ok {
				continue
			}
			row[column.Title] = value
		}
		decoded = append(decoded, row)
	}
	return decoded
}

// decodeCell applies the kind/payload resolution rules to one cell.
// The bool result reports whether a rule matched; there is no error
// path.
func decodeCell(column Column, payload json.RawMessage) (Cell, bool) {
	payload = bytes.TrimSpace(payload)
	// JSON null unmarshals into Go values as a no-op, which would turn
	// empty cells into zero values. An empty cell has no shape and
	// matches no rule.
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, false
	}

	switch column.Kind {
	case KindText:
		var text string
		if err := json.Unmarshal(payload, &text); err != nil {
			return nil, false
		}
		return String(text), true

	case KindCheck:
		// Check cells arrive as the strings "true"/"false". Anything
		// else, including JSON booleans and other spellings, drops.
		var text string
		if err := json.Unmarshal(payload, &text); err != nil {
			return nil, false
		}
		switch text {
		case "true":
			return Bool(true), true
		case "false":
			return Bool(false), true
		}
		return nil, false

	case KindSingleSelect:
		var optionID int64
		if err := json.Unmarshal(payload, &optionID); err != nil {
			return nil, false
		}
		label, ok := column.option(optionID)
		if !ok {
			return nil, false
		}
		return String(label), true

	case KindMultiSelect:
		var optionIDs []int64
		if err := json.Unmarshal(payload, &optionIDs); err != nil {
			return nil, false
		}
		labels := make(List, 0, len(optionIDs))
		for _, optionID := range optionIDs {
			if label, ok := column.option(optionID); ok {
				labels = append(labels, label)
			}
		}
		return labels, true
	}

	return nil, false
}
