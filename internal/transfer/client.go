package transfer

import (
	"context"
	"fmt"
)

// Metadata is the submission context carried alongside a payload.
type Metadata struct {
	FileName    string `json:"file_name"`
	MimeType    string `json:"mime_type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FileDescriptor opens a chunked upload handshake.
type FileDescriptor struct {
	Name        string `json:"name"`
	MimeType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	TotalChunks int    `json:"total_chunks"`
	Token       string `json:"token"` // locally generated correlation token
}

// InitResult is the server's answer to the init phase. ChunkEndpoint may
// be empty; the client then falls back to the well-known endpoint.
type InitResult struct {
	UploadID      string `json:"upload_id"`
	ChunkEndpoint string `json:"chunk_endpoint,omitempty"`
}

// Client performs the network side of a transfer. Whole-payload for
// small files, init/chunk/finalize for large ones.
type Client interface {
	UploadWhole(ctx context.Context, recordID string, meta Metadata, payload []byte) error
	InitChunked(ctx context.Context, recordID string, desc FileDescriptor) (InitResult, error)
	UploadChunk(ctx context.Context, endpoint, uploadID string, index, totalChunks int, data []byte) error
	FinalizeChunked(ctx context.Context, uploadID, recordID string) error
}

// TransferError marks a retryable protocol failure: network error,
// timeout or a non-2xx response in any phase.
type TransferError struct {
	Phase string // whole, init, chunk, finalize
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s failed: %v", e.Phase, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
