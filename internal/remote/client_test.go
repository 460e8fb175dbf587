package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rawblock/babel-engine/internal/generator"
	"github.com/rawblock/babel-engine/pkg/models"
)

func TestFetchPage_ValidPage(t *testing.T) {
	page := generator.AddressToPage("mirror-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pages/deadbeef" {
			t.Errorf("Unexpected request path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to build client: %v", err)
	}

	got, err := client.FetchPage(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if got != page {
		t.Error("Fetched page does not match the served body")
	}
}

func TestFetchPage_MalformedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("A", generator.PageLength))) // uppercase: not in alphabet
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to build client: %v", err)
	}

	if _, err := client.FetchPage(context.Background(), "aa"); !errors.Is(err, models.ErrRemoteFetch) {
		t.Errorf("Expected ErrRemoteFetch for a malformed page. Got: %v", err)
	}
}

func TestFetchPage_ShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("too short"))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to build client: %v", err)
	}

	if _, err := client.FetchPage(context.Background(), "aa"); !errors.Is(err, models.ErrRemoteFetch) {
		t.Errorf("Expected ErrRemoteFetch for a short body. Got: %v", err)
	}
}

func TestFetchPage_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to build client: %v", err)
	}

	if _, err := client.FetchPage(context.Background(), "aa"); !errors.Is(err, models.ErrRemoteFetch) {
		t.Errorf("Expected ErrRemoteFetch for a 404. Got: %v", err)
	}
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not-a-url"}); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for a relative URL. Got: %v", err)
	}
}
