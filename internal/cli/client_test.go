package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsHeadersAndKeepsExactNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/fish/7/feed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "idem-1" {
			t.Errorf("idempotency key = %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["amount"] != float64(5) {
			t.Errorf("amount = %v", body["amount"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"new_share":18446744073709551615}`))
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL+"/").Feed(context.Background(), "tok", 7, 5, "idem-1")
	if err != nil {
		t.Fatal(err)
	}
	n, ok := out["new_share"].(json.Number)
	if !ok || n.String() != "18446744073709551615" {
		t.Fatalf("new_share = %#v", out["new_share"])
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"hunting on cooldown","code":"HuntingOnCooldown"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Hunt(context.Background(), "tok", 1, 2, 100, "k")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Code != "HuntingOnCooldown" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if !IsAPIError(err) {
		t.Fatalf("IsAPIError should be true")
	}
}

func TestClientNetworkErrorIsNotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Wallet(context.Background(), "tok")
	if err == nil || IsAPIError(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestEventsQueryString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.RawQuery; got != "fish_id=3&kind=fish_fed&limit=10" {
			t.Errorf("query = %q", got)
		}
		_, _ = w.Write([]byte(`{"events":[]}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Events(context.Background(), "tok", EventQuery{Kind: "fish_fed", FishID: 3, Limit: 10}); err != nil {
		t.Fatal(err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("HODLHUNT_HOME", t.TempDir())
	if _, err := LoadSession(); err == nil {
		t.Fatalf("expected error without a saved session")
	}
	in := Session{AccessToken: "tok", Username: "alice", UserID: "u1"}
	if err := SaveSession(in); err != nil {
		t.Fatal(err)
	}
	got, err := LoadSession()
	if err != nil || got != in {
		t.Fatalf("LoadSession = %+v, %v", got, err)
	}
	if err := ClearSession(); err != nil {
		t.Fatal(err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
