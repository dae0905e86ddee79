package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gmn-data-platform/gmntraj/gmnerr"
)

const testSchema = `{"type":"record","name":"TrajectorySummary","namespace":"gmn","fields":[{"name":"unique_trajectory_identifier","type":"string"}]}`

func TestRegister(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/subjects/TrajectorySummary-value/versions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != mediaType {
			t.Errorf("Content-Type = %q", ct)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "u" || pass != "p" {
			t.Errorf("basic auth = %q %q %v", user, pass, ok)
		}
		var req schemaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SchemaType != SchemaTypeAvro || req.Schema != testSchema {
			t.Errorf("request = %+v", req)
		}
		_, _ = w.Write([]byte(`{"id":17}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithBasicAuth("u", "p"), WithHTTPClient(srv.Client()))
	for range 2 {
		id, err := c.Register(context.Background(), Subject("TrajectorySummary"), testSchema)
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if id != 17 {
			t.Errorf("id = %d, want 17", id)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestRegister_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_code":409}`, http.StatusConflict)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Register(context.Background(), "s-value", testSchema)
	var target *gmnerr.SchemaRegistryError
	if !errors.As(err, &target) {
		t.Fatalf("got %v, want SchemaRegistryError", err)
	}
	if target.StatusCode != http.StatusConflict || target.Operation != "register" || target.Subject != "s-value" {
		t.Errorf("got %+v", target)
	}
}

func TestCheckCompatibility(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr bool
	}{
		{name: "compatible", status: 200, body: `{"is_compatible":true}`, want: true},
		{name: "incompatible", status: 200, body: `{"is_compatible":false}`, want: false},
		{name: "new subject", status: 404, body: `{"error_code":40401}`, want: true},
		{name: "server error", status: 500, body: `oops`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/compatibility/subjects/gmn-value/versions/latest" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := New(srv.URL).CheckCompatibility(context.Background(), "gmn-value", testSchema)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("compatible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/schemas/ids/17" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"schema": testSchema})
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.GetByID(context.Background(), 17)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != testSchema {
		t.Errorf("schema = %s", got)
	}

	_, err = c.GetByID(context.Background(), 18)
	var target *gmnerr.SchemaRegistryError
	if !errors.As(err, &target) || target.StatusCode != http.StatusNotFound {
		t.Errorf("got %v, want 404 SchemaRegistryError", err)
	}
}
