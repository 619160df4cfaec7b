// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package tables reads the source-of-truth table from the Nextcloud
// Tables app and decodes its rows into typed cells.
//
// The decode model is deliberately lossy and total: a cell survives only
// when the column's schema kind and the raw payload shape agree (text
// column with a string payload, single select with a known option ID,
// and so on). Everything else, including cells of columns missing from
// the schema, is dropped without error. A row never fails to decode;
// it just carries fewer cells. Downstream extraction decides whether a
// row with missing cells is usable.
package tables
