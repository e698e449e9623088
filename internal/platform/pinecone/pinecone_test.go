package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace(t *testing.T) {
	assert.Equal(t, "report.pdf", Namespace("report.pdf"))
	assert.Equal(t, "rsum-2024.pdf", Namespace("résumé-2024.pdf"))
	assert.Equal(t, ".pdf", Namespace("履歴書.pdf"))
	assert.Equal(t, "", Namespace("日本語"))

	// Idempotent: a stripped key strips to itself.
	once := Namespace("résumé-2024.pdf")
	assert.Equal(t, once, Namespace(once))
}

func TestClient_Upsert(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody struct {
		Vectors   []Record `json:"vectors"`
		Namespace string   `json:"namespace"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"upsertedCount":2}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "pc-key")
	err := client.Upsert(context.Background(), "résumé.pdf", []Record{
		{ID: "aaa", Values: []float32{0.1}, Metadata: Metadata{Text: "one", PageNumber: 1}},
		{ID: "bbb", Values: []float32{0.2}, Metadata: Metadata{Text: "two", PageNumber: 2}},
	})

	require.NoError(t, err)
	assert.Equal(t, "/vectors/upsert", gotPath)
	assert.Equal(t, "pc-key", gotAPIKey)
	assert.Equal(t, "rsum.pdf", gotBody.Namespace)
	require.Len(t, gotBody.Vectors, 2)
	assert.Equal(t, "aaa", gotBody.Vectors[0].ID)
}

func TestClient_UpsertEmptyIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := New(srv.URL, "key")
	require.NoError(t, client.Upsert(context.Background(), "doc.pdf", nil))
	assert.False(t, called, "empty batch must not hit the API")
}

func TestClient_Query(t *testing.T) {
	var gotBody struct {
		Namespace       string    `json:"namespace"`
		Vector          []float32 `json:"vector"`
		TopK            int       `json:"topK"`
		IncludeMetadata bool      `json:"includeMetadata"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"matches":[
			{"id":"aaa","score":0.92,"metadata":{"text":"hit one","pageNumber":3}},
			{"id":"bbb","score":0.81,"metadata":{"text":"hit two","pageNumber":1}}
		]}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "key")
	matches, err := client.Query(context.Background(), "doc.pdf", []float32{0.5, 0.5}, 5)

	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "hit one", matches[0].Metadata.Text)
	assert.Equal(t, 3, matches[0].Metadata.PageNumber)
	assert.InDelta(t, 0.92, matches[0].Score, 1e-6)

	assert.Equal(t, "doc.pdf", gotBody.Namespace)
	assert.Equal(t, 5, gotBody.TopK)
	assert.True(t, gotBody.IncludeMetadata)
}

func TestClient_QueryDefaultsTopK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.EqualValues(t, 5, body["topK"])
		_, _ = w.Write([]byte(`{"matches":[]}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "key")
	matches, err := client.Query(context.Background(), "doc.pdf", []float32{0.1}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "wrong")
	err := client.Upsert(context.Background(), "doc.pdf", []Record{{ID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
