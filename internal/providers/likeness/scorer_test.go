package likeness

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestScorer(url string) *ClipScorer {
	return NewClipScorer(url, nil, zerolog.New(io.Discard))
}

func TestScoreCanonicalField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["imageABase64"] == "" || req["imageBBase64"] == "" {
			t.Error("request is missing image payloads")
		}
		_ = json.NewEncoder(w).Encode(map[string]float64{"similarity_01": 0.87})
	}))
	defer srv.Close()

	score, err := newTestScorer(srv.URL).Score(context.Background(), []byte("a"), []byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if score != 0.87 {
		t.Fatalf("score = %v", score)
	}
}

func TestScoreLegacyField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"similarity": 0.42})
	}))
	defer srv.Close()

	score, err := newTestScorer(srv.URL).Score(context.Background(), []byte("a"), []byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if score != 0.42 {
		t.Fatalf("score = %v", score)
	}
}

func TestScoreCanonicalFieldWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"similarity_01": 0.9, "similarity": 0.1})
	}))
	defer srv.Close()

	score, err := newTestScorer(srv.URL).Score(context.Background(), []byte("a"), []byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if score != 0.9 {
		t.Fatalf("score = %v", score)
	}
}

func TestScoreClampsRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"similarity_01": 1.7})
	}))
	defer srv.Close()

	score, err := newTestScorer(srv.URL).Score(context.Background(), []byte("a"), []byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if score != 1 {
		t.Fatalf("score = %v, want clamp to 1", score)
	}
}

func TestScoreServiceErrorYieldsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	score, err := newTestScorer(srv.URL).Score(context.Background(), []byte("a"), []byte("b"))
	if err != nil {
		t.Fatalf("service error must not propagate: %v", err)
	}
	if score != 0 {
		t.Fatalf("score = %v", score)
	}
}

func TestScoreUnreachableYieldsZero(t *testing.T) {
	score, err := newTestScorer("http://127.0.0.1:1/score").Score(context.Background(), []byte("a"), []byte("b"))
	if err != nil {
		t.Fatalf("unreachable scorer must not propagate: %v", err)
	}
	if score != 0 {
		t.Fatalf("score = %v", score)
	}
}

func TestMockScorer(t *testing.T) {
	score, err := MockScorer{Value: 0.9}.Score(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if score != 0.9 {
		t.Fatalf("score = %v", score)
	}
}
