// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package tables

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a column for decoding. Columns whose wire type or
// subtype is not recognized stay KindUnknown; their cells never decode.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindSingleSelect
	KindMultiSelect
	KindCheck
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSingleSelect:
		return "single-select"
	case KindMultiSelect:
		return "multi-select"
	case KindCheck:
		return "check"
	default:
		return "unknown"
	}
}

// Option is one selectable value of a selection column.
type Option struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Column is one column of the table schema.
type Column struct {
	ID      int64
	Title   string
	Kind    Kind
	Options []Option
}

// option resolves an option ID to its label.
func (c Column) option(id int64) (string, bool) {
	for _, option := range c.Options {
		if option.ID == id {
			return option.Label, true
		}
	}
	return "", false
}

// Schema is the table schema as served by the Tables app.
type Schema struct {
	Title   string
	Columns []Column
}

// columnWire is the raw schema entry. The "type" field distinguishes
// text from selection columns; selection columns carry a "subtype"
// ("" single, "multi", "check") and their options.
type columnWire struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Type    string   `json:"type"`
	Subtype string   `json:"subtype"`
	Options []Option `json:"selectionOptions"`
}

// UnmarshalJSON maps wire columns onto the closed Kind set. Columns of
// unrecognized type or subtype are kept with KindUnknown so that their
// presence is visible in logs, but their cells never match a decode
// rule.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var wire struct {
		Title   string       `json:"title"`
		Columns []columnWire `json:"columns"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("parsing table schema: %w", err)
	}

	s.Title = wire.Title
	s.Columns = make([]Column, 0, len(wire.Columns))
	for _, column := range wire.Columns {
		s.Columns = append(s.Columns, Column{
			ID:      column.ID,
			Title:   column.Title,
			Kind:    columnKind(column.Type, column.Subtype),
			Options: column.Options,
		})
	}
	return nil
}

func columnKind(wireType, subtype string) Kind {
	switch wireType {
	case "text":
		return KindText
	case "selection":
		switch subtype {
		case "":
			return KindSingleSelect
		case "multi":
			return KindMultiSelect
		case "check":
			return KindCheck
		}
	}
	return KindUnknown
}
