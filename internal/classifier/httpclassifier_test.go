package classifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chim331u/mediabutler/internal/classifier"
)

func TestHTTPClassifyReturnsDecodedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classify", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "show.mkv", body["filename"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"category":   "THE OFFICE",
			"confidence": 0.92,
			"alternatives": []map[string]any{
				{"category": "PARKS AND RECREATION", "confidence": 0.3},
			},
		})
	}))
	defer srv.Close()

	c := classifier.NewHTTP(srv.URL, nil)
	result, err := c.Classify(context.Background(), []string{"the", "office"}, "show.mkv")
	require.NoError(t, err)
	assert.Equal(t, "THE OFFICE", result.Category)
	assert.InDelta(t, 0.92, result.Confidence, 0.0001)
	require.Len(t, result.Alternatives, 1)
	assert.Equal(t, "PARKS AND RECREATION", result.Alternatives[0].Category)
}

func TestHTTPClassifyNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := classifier.NewHTTP(srv.URL, nil)
	_, err := c.Classify(context.Background(), nil, "x.mkv")
	require.Error(t, err)
}

func TestHTTPClassifyMalformedBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := classifier.NewHTTP(srv.URL, nil)
	_, err := c.Classify(context.Background(), nil, "x.mkv")
	require.Error(t, err)
}
