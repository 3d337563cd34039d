package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realm-chat-core/internal/model"
)

func TestHistory(t *testing.T) {
	hallID := uuid.New()
	want := []model.Scroll{
		{ID: uuid.New(), HallID: hallID, AuthorName: "Sam", Content: "first", CreatedAt: time.Now().Add(-time.Hour)},
		{ID: uuid.New(), HallID: hallID, AuthorName: "Frodo", Content: "second", CreatedAt: time.Now()},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/scrolls/hall/"+hallID.String(), r.URL.Path)
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, "tkn")
	got, err := client.History(context.Background(), hallID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0].ID, got[0].ID)
	assert.Equal(t, "second", got[1].Content)
}

func TestHistoryStoreError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, "")
	_, err := client.History(context.Background(), uuid.New())
	assert.ErrorContains(t, err, "status 500")
}

func TestPersistEchoesCID(t *testing.T) {
	sent := model.Scroll{
		CID:        uuid.New(),
		HallID:     uuid.New(),
		AuthorID:   uuid.New(),
		AuthorName: "Frodo",
		Content:    "hello",
		CreatedAt:  time.Now(),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/scrolls", r.URL.Path)

		var received model.Scroll
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		assert.Equal(t, sent.CID, received.CID)

		// Server assigns the id and timestamp and echoes the CID.
		received.ID = uuid.New()
		received.CreatedAt = time.Now()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(received)
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, "")
	confirmed, err := client.Persist(context.Background(), sent)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, confirmed.ID)
	assert.Equal(t, sent.CID, confirmed.CID)
	assert.Equal(t, "hello", confirmed.Content)
}
