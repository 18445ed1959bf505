package apiclient

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func bytesReader(s string) io.Reader {
	return strings.NewReader(s)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "data": data})
}

func TestListEndpoints(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/endpoints" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		writeEnvelope(w, http.StatusOK, []Endpoint{{Name: "prod", MemoryBudget: 1024}})
	})

	eps, err := c.ListEndpoints()
	if err != nil {
		t.Fatalf("ListEndpoints failed: %v", err)
	}
	if len(eps) != 1 || eps[0].Name != "prod" {
		t.Errorf("endpoints = %+v", eps)
	}
}

func TestBearerTokenSent(t *testing.T) {
	var gotAuth string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeEnvelope(w, http.StatusOK, []Endpoint{})
	})
	c.SetToken("tok123")

	if _, err := c.ListEndpoints(); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want Bearer tok123", gotAuth)
	}
}

func TestErrorEnvelope(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "error": "endpoint not found"})
	})

	_, err := c.GetEndpoint("ghost")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if !apiErr.IsNotFound() {
		t.Errorf("status = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Message != "endpoint not found" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestPublishModel_SendsIdentityHeader(t *testing.T) {
	var gotID, gotBody string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Model-Id")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		writeEnvelope(w, http.StatusCreated, Artifact{ID: gotID, Size: int64(len(body))})
	})

	artifact, err := c.PublishModel("m-v1.tar.gz", bytesReader("archive-bytes"))
	if err != nil {
		t.Fatalf("PublishModel failed: %v", err)
	}
	if gotID != "m-v1.tar.gz" || gotBody != "archive-bytes" {
		t.Errorf("id = %q, body = %q", gotID, gotBody)
	}
	if artifact.Size != int64(len("archive-bytes")) {
		t.Errorf("size = %d", artifact.Size)
	}
}

func TestInvoke_RawBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Target-Model") != "classifier" {
			t.Errorf("target = %q", r.Header.Get("X-Target-Model"))
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})

	out, err := c.Invoke("prod", "classifier", "application/json", []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if string(out) != `{"x":1}` {
		t.Errorf("output = %q", out)
	}
}

func TestInvoke_ErrorStatus(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("overloaded"))
	})

	_, err := c.Invoke("prod", "classifier", "", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsOverloaded() {
		t.Errorf("expected overloaded APIError, got %v", err)
	}
}

func TestRefreshToken(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "refresh-1" {
			t.Errorf("refresh token = %q", req.RefreshToken)
		}
		writeEnvelope(w, http.StatusOK, TokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2", ExpiresIn: 900})
	})

	pair, err := c.RefreshToken("refresh-1")
	if err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	if pair.AccessToken != "access-2" {
		t.Errorf("access token = %q", pair.AccessToken)
	}
	if pair.ExpiresInDuration().Seconds() != 900 {
		t.Errorf("expires in = %v", pair.ExpiresInDuration())
	}
}
