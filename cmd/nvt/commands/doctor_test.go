// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astahhu/nutzerverwaltungstool/cmd/nvt/cli"
)

// writeConfigFile writes config content to a temp file and returns its
// path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// statusFor returns the status of the named check, or "" when the
// checklist has no such line.
func statusFor(results []checkResult, name string) checkStatus {
	for _, result := range results {
		if result.name == name {
			return result.status
		}
	}
	return ""
}

func TestRunChecksHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/groups/7/members" {
			t.Errorf("unexpected probe %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	configPath := writeConfigFile(t, fmt.Sprintf(`{
		"source": {"file": %q},
		"gitlab": {
			"url": %q,
			"token": "gl-token",
			"group_id": 7,
			"owner_role": "IT - Admin",
			"maintainer_role": "IT",
		},
	}`, writeUsersFile(t), server.URL))

	results := runChecks(context.Background(), configPath, testLogger())

	for _, name := range []string{"config", "source", "gitlab"} {
		if got := statusFor(results, name); got != statusPass {
			t.Errorf("%s = %q, want pass (results: %+v)", name, got, results)
		}
	}
	if err := printChecklist(&bytes.Buffer{}, results); err != nil {
		t.Errorf("healthy checklist returned %v", err)
	}
}

func TestRunChecksBadCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"401 Unauthorized"}`)
	}))
	defer server.Close()

	configPath := writeConfigFile(t, fmt.Sprintf(`{
		"source": {"file": %q},
		"gitlab": {
			"url": %q,
			"token": "expired",
			"group_id": 7,
			"owner_role": "IT - Admin",
			"maintainer_role": "IT",
		},
	}`, writeUsersFile(t), server.URL))

	results := runChecks(context.Background(), configPath, testLogger())

	if got := statusFor(results, "source"); got != statusPass {
		t.Errorf("source = %q, a bad backend must not hide the source state", got)
	}
	if got := statusFor(results, "gitlab"); got != statusFail {
		t.Errorf("gitlab = %q, want fail", got)
	}

	var exitErr *cli.ExitError
	err := printChecklist(&bytes.Buffer{}, results)
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Errorf("failed checklist returned %v, want exit code 1", err)
	}
}

func TestRunChecksInvalidConfig(t *testing.T) {
	// Keycloak section missing realm, username, and password.
	configPath := writeConfigFile(t, `{
		"source": {"file": "/etc/nvt/users.json"},
		"keycloak": {"url": "http://keycloak.local"},
	}`)

	results := runChecks(context.Background(), configPath, testLogger())

	if got := statusFor(results, "config"); got != statusFail {
		t.Errorf("config = %q, want fail", got)
	}
	if got := statusFor(results, "source"); got != statusSkip {
		t.Errorf("source = %q, probes must not run with an invalid config", got)
	}
	if got := statusFor(results, "keycloak"); got != statusSkip {
		t.Errorf("keycloak = %q, want skip", got)
	}
}

func TestRunChecksMissingIdentityFile(t *testing.T) {
	configPath := writeConfigFile(t, fmt.Sprintf(`{
		"source": {"file": %q},
		"identity_file": "/nonexistent/identity.txt",
	}`, writeUsersFile(t)))

	results := runChecks(context.Background(), configPath, testLogger())

	if got := statusFor(results, "identity file"); got != statusFail {
		t.Errorf("identity file = %q, want fail", got)
	}
	if got := statusFor(results, "backends"); got != statusWarn {
		t.Errorf("backends = %q, want warn when none are configured", got)
	}
}

func TestPrintChecklistFormat(t *testing.T) {
	var out bytes.Buffer
	err := printChecklist(&out, []checkResult{
		{"config", statusPass, "2 backend(s) configured"},
		{"keycloak", statusFail, "keycloak: ping: boom"},
	})

	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("got %v, want ExitError", err)
	}

	text := out.String()
	if !strings.Contains(text, "[PASS ]") || !strings.Contains(text, "[FAIL ]") {
		t.Errorf("checklist output missing status tags:\n%s", text)
	}
	if !strings.Contains(text, "Some checks failed.") {
		t.Errorf("checklist output missing summary:\n%s", text)
	}
}
