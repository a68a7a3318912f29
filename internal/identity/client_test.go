package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientLookupOmitsUnknownIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/identities/lookup" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.IDs) != 2 {
			t.Fatalf("expected 2 ids, got %v", body.IDs)
		}
		// Only the first id is known to the directory.
		json.NewEncoder(w).Encode(map[string]any{
			"identities": []Identity{
				{ID: "a@x.com", Email: "a@x.com", Name: "Ada", AvatarURL: "https://img.example/a.png"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	identities, err := client.Lookup(context.Background(), []string{"a@x.com", "b@x.com"})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(identities) != 1 {
		t.Fatalf("expected 1 identity, got %d", len(identities))
	}
	if identities[0].Email != "a@x.com" || identities[0].Name != "Ada" {
		t.Fatalf("unexpected identity: %+v", identities[0])
	}
}

func TestClientLookupSkipsEmptyInput(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	identities, err := client.Lookup(context.Background(), nil)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(identities) != 0 {
		t.Fatalf("expected empty result, got %v", identities)
	}
	if called {
		t.Fatal("expected no HTTP call for empty id set")
	}
}

func TestClientLookupReportsUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Lookup(context.Background(), []string{"a@x.com"})
	if err == nil {
		t.Fatal("expected error for upstream 502")
	}
}
