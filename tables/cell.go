// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package tables

// Cell is one decoded table cell: a String, a Bool, or a List. The set
// of implementations is closed; consumers type-switch over the three
// variants.
type Cell interface {
	isCell()
}

// String is the decoded value of a text column or a resolved
// single-select option label.
type String string

func (String) isCell() {}

// Bool is the decoded value of a check column.
type Bool bool

func (Bool) isCell() {}

// List is the decoded value of a multi-select column: the resolved
// option labels in payload order. A List may be empty.
type List []string

func (List) isCell() {}
