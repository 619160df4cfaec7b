// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package tables

import (
	"encoding/json"
	"reflect"
	"testing"
)

// testSchema covers every decodable column kind plus an unknown one.
func testSchema() *Schema {
	return &Schema{
		Title: "Mitglieder",
		Columns: []Column{
			{ID: 1, Title: "Funktionskennung", Kind: KindText},
			{ID: 2, Title: "Aktiv", Kind: KindCheck},
			{ID: 3, Title: "Fachschaft", Kind: KindSingleSelect, Options: []Option{
				{ID: 10, Label: "Informatik"},
				{ID: 11, Label: "Physik"},
			}},
			{ID: 4, Title: "Funktion", Kind: KindMultiSelect, Options: []Option{
				{ID: 1, Label: "A"},
				{ID: 2, Label: "B"},
			}},
			{ID: 5, Title: "Notizen", Kind: KindUnknown},
		},
	}
}

func rawCell(columnID int64, payload string) RawCell {
	return RawCell{ColumnID: columnID, Value: json.RawMessage(payload)}
}

func TestDecodeCellRules(t *testing.T) {
	schema := testSchema()

	tests := []struct {
		name string
		cell RawCell
		want Cell // nil means the cell must drop
	}{
		{"text string", rawCell(1, `"jdoe"`), String("jdoe")},
		{"text empty string", rawCell(1, `""`), String("")},
		{"text number drops", rawCell(1, `42`), nil},
		{"text null drops", rawCell(1, `null`), nil},
		{"text object drops", rawCell(1, `{"a":1}`), nil},
		{"check true", rawCell(2, `"true"`), Bool(true)},
		{"check false", rawCell(2, `"false"`), Bool(false)},
		{"check yes drops", rawCell(2, `"yes"`), nil},
		{"check capitalized drops", rawCell(2, `"True"`), nil},
		{"check json bool drops", rawCell(2, `true`), nil},
		{"check number drops", rawCell(2, `1`), nil},
		{"single known option", rawCell(3, `10`), String("Informatik")},
		{"single unknown option drops", rawCell(3, `99`), nil},
		{"single string drops", rawCell(3, `"10"`), nil},
		{"single float drops", rawCell(3, `10.5`), nil},
		{"multi all known", rawCell(4, `[1,2]`), List{"A", "B"}},
		{"multi partial resolution", rawCell(4, `[1,99,2]`), List{"A", "B"}},
		{"multi empty list", rawCell(4, `[]`), List{}},
		{"multi none resolvable", rawCell(4, `[98,99]`), List{}},
		{"multi string elements drop", rawCell(4, `["A"]`), nil},
		{"multi number drops", rawCell(4, `7`), nil},
		{"unknown kind drops", rawCell(5, `"text"`), nil},
		{"unknown column drops", rawCell(42, `"text"`), nil},
		{"malformed payload drops", rawCell(1, `{"unclosed`), nil},
		{"empty payload drops", rawCell(1, ``), nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rows := Decode(schema, []RawRow{{ID: 1, Data: []RawCell{test.cell}}})
			if len(rows) != 1 {
				t.Fatalf("expected 1 row, got %d", len(rows))
			}
			if test.want == nil {
				if len(rows[0]) != 0 {
					t.Fatalf("expected cell to drop, got %v", rows[0])
				}
				return
			}
			got, ok := firstCell(rows[0])
			if !ok {
				t.Fatal("expected a surviving cell, row is empty")
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("got %#v, want %#v", got, test.want)
			}
		})
	}
}

func firstCell(row Row) (Cell, bool) {
	for _, cell := range row {
		return cell, true
	}
	return nil, false
}

func TestDecodeIsTotal(t *testing.T) {
	// A row full of mismatched payloads decodes to an empty row; the
	// surrounding rows are unaffected.
	schema := testSchema()
	rows := Decode(schema, []RawRow{
		{ID: 1, Data: []RawCell{rawCell(1, `"ok"`)}},
		{ID: 2, Data: []RawCell{
			rawCell(1, `[1,2]`),
			rawCell(2, `null`),
			rawCell(3, `"Informatik"`),
			rawCell(4, `{"bad":true}`),
			rawCell(99, `"phantom"`),
		}},
		{ID: 3, Data: []RawCell{rawCell(3, `11`)}},
	})

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if got := rows[0]["Funktionskennung"]; got != String("ok") {
		t.Errorf("row 0: got %#v", got)
	}
	if len(rows[1]) != 0 {
		t.Errorf("row 1: expected all cells dropped, got %v", rows[1])
	}
	if got := rows[2]["Fachschaft"]; got != String("Physik") {
		t.Errorf("row 2: got %#v", got)
	}
}

func TestDecodeDuplicateColumnID(t *testing.T) {
	// Two schema columns with the same ID: the first wins.
	schema := &Schema{Columns: []Column{
		{ID: 1, Title: "First", Kind: KindText},
		{ID: 1, Title: "Second", Kind: KindText},
	}}
	rows := Decode(schema, []RawRow{{Data: []RawCell{rawCell(1, `"v"`)}}})
	if got := rows[0]["First"]; got != String("v") {
		t.Errorf(`expected cell under "First", row: %v`, rows[0])
	}
	if _, ok := rows[0]["Second"]; ok {
		t.Error(`cell resolved against the duplicate "Second" column`)
	}
}

func TestDecodeDuplicateTitle(t *testing.T) {
	// Two columns sharing a title: the later cell in the row wins.
	schema := &Schema{Columns: []Column{
		{ID: 1, Title: "Name", Kind: KindText},
		{ID: 2, Title: "Name", Kind: KindText},
	}}
	rows := Decode(schema, []RawRow{{Data: []RawCell{
		rawCell(1, `"first"`),
		rawCell(2, `"second"`),
	}}})
	if got := rows[0]["Name"]; got != String("second") {
		t.Errorf("got %#v, want %#v", got, String("second"))
	}
}
