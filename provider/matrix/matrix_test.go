// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/astahhu/nutzerverwaltungstool/directory"
	"github.com/astahhu/nutzerverwaltungstool/lib/secret"
)

// fakeSynapse emulates the admin API endpoints the provider uses. The
// v2 user list serves active accounts only, like Synapse's default
// filter.
type fakeSynapse struct {
	t *testing.T

	users []synapseUser
	calls []string
}

func (f *fakeSynapse) active() []synapseUser {
	users := []synapseUser{}
	for _, u := range f.users {
		if !u.Deactivated {
			users = append(users, u)
		}
	}
	return users
}

func (f *fakeSynapse) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	if got := r.Header.Get("Authorization"); got != "Bearer syn-token" {
		f.t.Errorf("%s %s: Authorization = %q", r.Method, r.URL.Path, got)
	}

	switch {
	case r.URL.Path == "/_synapse/admin/v2/users" && r.Method == http.MethodGet:
		writeJSON(w, map[string]any{"users": f.active(), "total": len(f.active())})
	case strings.HasPrefix(r.URL.Path, "/_synapse/admin/v2/users/") && r.Method == http.MethodPut:
		userID, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/_synapse/admin/v2/users/"))
		if err != nil {
			f.t.Errorf("user id in %q: %v", r.URL.Path, err)
			return
		}
		var body map[string]string
		mustDecode(f.t, r.Body, &body)
		for i := range f.users {
			if f.users[i].Name == userID {
				f.users[i].DisplayName = body["displayname"]
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		f.users = append(f.users, synapseUser{Name: userID, DisplayName: body["displayname"]})
		w.WriteHeader(http.StatusCreated)
	case strings.HasPrefix(r.URL.Path, "/_synapse/admin/v1/deactivate/") && r.Method == http.MethodPost:
		userID, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/_synapse/admin/v1/deactivate/"))
		if err != nil {
			f.t.Errorf("user id in %q: %v", r.URL.Path, err)
			return
		}
		var body map[string]bool
		mustDecode(f.t, r.Body, &body)
		if body["erase"] {
			f.t.Error("deactivation must not erase")
		}
		for i := range f.users {
			if f.users[i].Name == userID {
				f.users[i].Deactivated = true
			}
		}
		writeJSON(w, map[string]string{"id_server_unbind_result": "success"})
	default:
		f.t.Errorf("unhandled request %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func mustDecode(t *testing.T, body io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		t.Fatalf("decoding request body: %v", err)
	}
}

func newTestProvider(t *testing.T, serverURL string) *Provider {
	t.Helper()
	token, err := secret.NewFromBytes([]byte("syn-token"))
	if err != nil {
		t.Fatalf("token buffer: %v", err)
	}
	t.Cleanup(func() { token.Close() })

	p, err := New(Config{
		URL:        serverURL,
		ServerName: "hhu.de",
		Token:      token,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestUserIDDerivation(t *testing.T) {
	p := &Provider{serverName: "hhu.de"}

	tests := []struct {
		identifier string
		user       directory.User
		want       string
	}{
		{"jdoe", directory.User{}, "@jdoe:hhu.de"},
		{"JDoe", directory.User{}, "@jdoe:hhu.de"},
		{"jdoe", directory.User{MatrixID: "@custom:elsewhere.org"}, "@custom:elsewhere.org"},
	}
	for _, test := range tests {
		if got := p.UserID(test.identifier, test.user); got != test.want {
			t.Errorf("UserID(%q) = %q, want %q", test.identifier, got, test.want)
		}
	}
}

func TestSyncConverges(t *testing.T) {
	fake := &fakeSynapse{
		t: t,
		users: []synapseUser{
			{Name: "@stays:hhu.de", DisplayName: "Old"},
			{Name: "@goes:hhu.de"},
			{Name: "@admin:hhu.de", Admin: true},
		},
	}
	server := httptest.NewServer(fake)
	defer server.Close()

	users := directory.Users{
		"stays": {FirstName: "Jane", LastName: "Doe", Enabled: true},
		"comes": {FirstName: "Neu", Enabled: true},
	}

	p := newTestProvider(t, server.URL)
	if err := p.Sync(context.Background(), users); err != nil {
		t.Fatalf("sync: %v", err)
	}

	state := make(map[string]synapseUser)
	for _, u := range fake.users {
		state[u.Name] = u
	}

	if u := state["@stays:hhu.de"]; u.DisplayName != "Jane Doe" || u.Deactivated {
		t.Errorf("updated account: %+v", u)
	}
	if u, ok := state["@comes:hhu.de"]; !ok || u.DisplayName != "Neu" {
		t.Errorf("created account: %+v", u)
	}
	if u := state["@goes:hhu.de"]; !u.Deactivated {
		t.Errorf("stale account not deactivated: %+v", u)
	}
	if u := state["@admin:hhu.de"]; u.Deactivated {
		t.Error("admin account was touched")
	}
}

func TestSyncDeactivatesDisabledUsers(t *testing.T) {
	fake := &fakeSynapse{
		t:     t,
		users: []synapseUser{{Name: "@paused:hhu.de", DisplayName: "Paused"}},
	}
	server := httptest.NewServer(fake)
	defer server.Close()

	users := directory.Users{
		"paused": {FirstName: "Paused", Enabled: false},
	}

	p := newTestProvider(t, server.URL)
	if err := p.Sync(context.Background(), users); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if !fake.users[0].Deactivated {
		t.Errorf("disabled user's account still active: %+v", fake.users[0])
	}
}

func TestMatrixIDOverride(t *testing.T) {
	fake := &fakeSynapse{t: t}
	server := httptest.NewServer(fake)
	defer server.Close()

	users := directory.Users{
		"jdoe": {FirstName: "J", MatrixID: "@legacy:hhu.de", Enabled: true},
	}

	p := newTestProvider(t, server.URL)
	if err := p.Sync(context.Background(), users); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if len(fake.users) != 1 || fake.users[0].Name != "@legacy:hhu.de" {
		t.Errorf("accounts after sync: %+v", fake.users)
	}
}

func TestPlanIsReadOnly(t *testing.T) {
	fake := &fakeSynapse{
		t:     t,
		users: []synapseUser{{Name: "@goes:hhu.de"}},
	}
	server := httptest.NewServer(fake)
	defer server.Close()

	users := directory.Users{"comes": {Enabled: true}}

	p := newTestProvider(t, server.URL)
	summary, err := p.Plan(context.Background(), users)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if summary.Backend != "matrix" {
		t.Errorf("backend = %q", summary.Backend)
	}
	if !reflect.DeepEqual(summary.Creates, []string{"@comes:hhu.de"}) {
		t.Errorf("creates: %v", summary.Creates)
	}
	if !reflect.DeepEqual(summary.Deletes, []string{"@goes:hhu.de"}) {
		t.Errorf("deletes: %v", summary.Deletes)
	}

	for _, call := range fake.calls {
		if !strings.HasPrefix(call, http.MethodGet) {
			t.Errorf("plan issued mutating call %q", call)
		}
	}
}

func TestListAccountsPaging(t *testing.T) {
	const total = pageSize + 2
	mux := http.NewServeMux()
	mux.HandleFunc("/_synapse/admin/v2/users", func(w http.ResponseWriter, r *http.Request) {
		from, err := strconv.Atoi(r.URL.Query().Get("from"))
		if err != nil {
			t.Errorf("from param: %v", err)
		}
		var users []synapseUser
		for i := from; i < total && i < from+pageSize; i++ {
			users = append(users, synapseUser{Name: fmt.Sprintf("@user%03d:hhu.de", i)})
		}
		page := map[string]any{"users": users, "total": total}
		if next := from + pageSize; next < total {
			page["next_token"] = strconv.Itoa(next)
		}
		writeJSON(w, page)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := newTestProvider(t, server.URL)
	accounts, err := p.listAccounts(context.Background())
	if err != nil {
		t.Fatalf("listAccounts: %v", err)
	}
	if len(accounts) != total {
		t.Errorf("got %d accounts, want %d", len(accounts), total)
	}
	names := make([]string, len(accounts))
	for i, u := range accounts {
		names[i] = u.Name
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("pages out of order: %v", names[:3])
	}
}

func TestPing(t *testing.T) {
	fake := &fakeSynapse{t: t, users: []synapseUser{{Name: "@admin:hhu.de", Admin: true}}}
	server := httptest.NewServer(fake)
	defer server.Close()

	p := newTestProvider(t, server.URL)
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"errcode":"M_FORBIDDEN","error":"You are not a server admin"}`)
	}))
	defer denied.Close()

	p = newTestProvider(t, denied.URL)
	err := p.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error for a token without admin rights")
	}
	if !strings.Contains(err.Error(), "M_FORBIDDEN") {
		t.Errorf("error = %v, should carry the API body", err)
	}
}

func TestNewValidation(t *testing.T) {
	token, err := secret.NewFromBytes([]byte("x"))
	if err != nil {
		t.Fatalf("token buffer: %v", err)
	}
	defer token.Close()

	if _, err := New(Config{ServerName: "hhu.de", Token: token}); err == nil {
		t.Error("expected error for missing URL")
	}
	if _, err := New(Config{URL: "http://localhost", Token: token}); err == nil {
		t.Error("expected error for missing server name")
	}
	if _, err := New(Config{URL: "http://localhost", ServerName: "hhu.de"}); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := New(Config{URL: "http://localhost", ServerName: "hhu.de", Token: token}); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
