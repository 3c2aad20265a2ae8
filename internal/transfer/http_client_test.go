package transfer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadWholeRequest(t *testing.T) {
	var gotRecordID, gotTitle, gotFile string
	var gotPayload []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/uploads", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotRecordID = r.FormValue("record_id")
		gotTitle = r.FormValue("title")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFile = header.Filename
		gotPayload, err = io.ReadAll(file)
		require.NoError(t, err)

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "secret", 5*time.Second)
	meta := Metadata{FileName: "a.jpg", MimeType: "image/jpeg", Title: "notes"}
	err := client.UploadWhole(context.Background(), "rec-1", meta, []byte("payload"))
	require.NoError(t, err)

	assert.Equal(t, "rec-1", gotRecordID)
	assert.Equal(t, "notes", gotTitle)
	assert.Equal(t, "a.jpg", gotFile)
	assert.Equal(t, []byte("payload"), gotPayload)
}

func TestUploadWholeNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTeapot)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	err := client.UploadWhole(context.Background(), "rec-1", Metadata{FileName: "a.jpg"}, []byte("x"))

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, "whole", transferErr.Phase)
	assert.Contains(t, err.Error(), "418")
}

func TestInitChunked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/uploads/chunked/init", r.URL.Path)

		var body struct {
			RecordID    string `json:"record_id"`
			Name        string `json:"name"`
			Size        int64  `json:"size"`
			TotalChunks int    `json:"total_chunks"`
			Token       string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rec-1", body.RecordID)
		assert.Equal(t, 5, body.TotalChunks)
		assert.NotEmpty(t, body.Token)

		_ = json.NewEncoder(w).Encode(InitResult{UploadID: "srv-42", ChunkEndpoint: "/custom/chunks"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	result, err := client.InitChunked(context.Background(), "rec-1", FileDescriptor{
		Name: "big.mp4", Size: 22 * mib, TotalChunks: 5, Token: "tok-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-42", result.UploadID)
	assert.Equal(t, "/custom/chunks", result.ChunkEndpoint)
}

func TestInitChunkedFallsBackToToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(InitResult{})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	result, err := client.InitChunked(context.Background(), "rec-1", FileDescriptor{Token: "tok-7"})
	require.NoError(t, err)
	assert.Equal(t, "tok-7", result.UploadID)
}

func TestUploadChunkHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/uploads/chunked/chunk", r.URL.Path)
		assert.Equal(t, "up-1", r.Header.Get("X-Upload-Id"))
		assert.Equal(t, "2", r.Header.Get("X-Chunk-Index"))
		assert.Equal(t, "5", r.Header.Get("X-Chunk-Total"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte("chunk-bytes"), body)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	// empty endpoint falls back to the well-known path
	err := client.UploadChunk(context.Background(), "", "up-1", 2, 5, []byte("chunk-bytes"))
	require.NoError(t, err)
}

func TestUploadChunkCustomEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/custom/chunks", r.URL.Path)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	require.NoError(t, client.UploadChunk(context.Background(), "custom/chunks", "up-1", 0, 1, []byte("x")))
}

func TestFinalizeChunked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/uploads/chunked/finalize", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "up-1", body["upload_id"])
		assert.Equal(t, "rec-1", body["record_id"])
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	require.NoError(t, client.FinalizeChunked(context.Background(), "up-1", "rec-1"))
}

func TestNetworkFailureIsTransferError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse connections

	client := NewHTTPClient(server.URL, "", time.Second)
	err := client.FinalizeChunked(context.Background(), "up-1", "rec-1")

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, "finalize", transferErr.Phase)
}
