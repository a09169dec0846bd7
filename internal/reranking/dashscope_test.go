package reranking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDashScopeClient_Rerank(t *testing.T) {
	docs := []Document{{ID: "a", Content: "细胞"}, {ID: "b", Content: "光合作用"}, {ID: "c", Content: "叶绿体"}}

	t.Run("Given scored results When reranking Then they come back by score", func(t *testing.T) {
		// Given
		var got rerankRequest
		var auth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.Write([]byte(`{"output":{"results":[{"index":2,"relevance_score":0.4},{"index":1,"relevance_score":0.9},{"index":0,"relevance_score":0.1}]}}`))
		}))
		defer srv.Close()
		c := NewDashScopeClient("sk-1", WithURL(srv.URL), WithModel("qwen3-rerank"))

		// When
		results, err := c.Rerank(context.Background(), "光合作用", docs)

		// Then
		if err != nil {
			t.Fatalf("Rerank failed: %v", err)
		}
		if auth != "Bearer sk-1" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if got.Parameters.TopN != 3 || len(got.Input.Documents) != 3 || got.Input.Query != "光合作用" {
			t.Errorf("unexpected request %+v", got)
		}
		want := []int{1, 2, 0}
		for i, r := range results {
			if r.Index != want[i] {
				t.Errorf("position %d: expected index %d, got %d", i, want[i], r.Index)
			}
		}
	})

	t.Run("Given an API error body When reranking Then an error is returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":"InvalidApiKey","message":"bad key","request_id":"r1"}`))
		}))
		defer srv.Close()
		c := NewDashScopeClient("bad", WithURL(srv.URL))

		if _, err := c.Rerank(context.Background(), "q", docs); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("Given an out of range index When reranking Then an error is returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"output":{"results":[{"index":7,"relevance_score":0.4}]}}`))
		}))
		defer srv.Close()
		c := NewDashScopeClient("k", WithURL(srv.URL))

		if _, err := c.Rerank(context.Background(), "q", docs); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("Given a slow server When the timeout passes Then an error is returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()
		c := NewDashScopeClient("k", WithURL(srv.URL), WithTimeout(20*time.Millisecond))

		if _, err := c.Rerank(context.Background(), "q", docs); err == nil {
			t.Fatal("expected timeout error")
		}
	})
}
