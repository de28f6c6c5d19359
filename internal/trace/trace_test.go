package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewUnique(t *testing.T) {
	seen := make(map[ID]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if len(id) != 16 {
			t.Fatalf("id length = %d, want 16", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background())
	if id == "" {
		t.Fatal("Ensure returned empty id")
	}

	ctx2, id2 := Ensure(ctx)
	if id2 != id {
		t.Errorf("Ensure minted new id %s, want existing %s", id2, id)
	}
	if ctx2 != ctx {
		t.Error("Ensure should return the same context when id present")
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("propagates inbound header", func(t *testing.T) {
		var got ID
		h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = FromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderTraceID, "abc123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got != "abc123" {
			t.Errorf("context id = %q, want abc123", got)
		}
		if rec.Header().Get(HeaderTraceID) != "abc123" {
			t.Errorf("response header = %q, want abc123", rec.Header().Get(HeaderTraceID))
		}
	})

	t.Run("mints when absent", func(t *testing.T) {
		var got ID
		h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = FromContext(r.Context())
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if got == "" {
			t.Error("no trace id minted")
		}
		if rec.Header().Get(HeaderTraceID) != string(got) {
			t.Error("response header does not match context id")
		}
	})
}
