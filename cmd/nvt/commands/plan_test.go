// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/astahhu/nutzerverwaltungstool/reconcile"
)

func TestPrintPlanNoChanges(t *testing.T) {
	var out bytes.Buffer
	summaries := []*reconcile.Summary{
		{Backend: "keycloak"},
		{Backend: "matrix"},
	}
	if err := printPlan(&out, summaries); err != nil {
		t.Fatalf("printPlan: %v", err)
	}
	if !strings.Contains(out.String(), "No changes.") {
		t.Errorf("output = %q", out.String())
	}
	if strings.Contains(out.String(), "BACKEND") {
		t.Error("empty plan should not print the table header")
	}
}

func TestPrintPlanTable(t *testing.T) {
	var out bytes.Buffer
	summaries := []*reconcile.Summary{
		{
			Backend:  "keycloak",
			NewRoles: []string{"Physik"},
			Creates:  []string{"anna"},
			Updates:  []string{"ben"},
			Deletes:  []string{"carl"},
		},
		{Backend: "gitlab", Deletes: []string{"dora"}},
	}
	if err := printPlan(&out, summaries); err != nil {
		t.Fatalf("printPlan: %v", err)
	}
	text := out.String()

	if !strings.Contains(text, "BACKEND") || !strings.Contains(text, "OPERATION") {
		t.Errorf("missing table header:\n%s", text)
	}
	if !strings.Contains(text, "create-role") {
		t.Errorf("missing catalog role row:\n%s", text)
	}
	if !strings.Contains(text, "5 operation(s) pending") {
		t.Errorf("missing pending count:\n%s", text)
	}

	// Rows appear in apply order: roles, creates, updates, deletes.
	order := []string{"Physik", "anna", "ben", "carl", "dora"}
	last := -1
	for _, key := range order {
		index := strings.Index(text, key)
		if index < 0 {
			t.Fatalf("key %q missing from plan output:\n%s", key, text)
		}
		if index < last {
			t.Errorf("key %q out of order:\n%s", key, text)
		}
		last = index
	}
}
