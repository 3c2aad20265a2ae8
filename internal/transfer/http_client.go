package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	wholeUploadPath   = "/api/v1/uploads"
	chunkedInitPath   = "/api/v1/uploads/chunked/init"
	chunkedChunkPath  = "/api/v1/uploads/chunked/chunk"
	chunkedFinishPath = "/api/v1/uploads/chunked/finalize"
)

// HTTPClient talks to the remote media service. Every request carries an
// implementation-defined timeout; a timed-out call counts as a network
// failure for retry purposes.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) UploadWhole(ctx context.Context, recordID string, meta Metadata, payload []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"record_id":   recordID,
		"file_name":   meta.FileName,
		"mime_type":   meta.MimeType,
		"title":       meta.Title,
		"description": meta.Description,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return &TransferError{Phase: "whole", Err: err}
		}
	}

	part, err := writer.CreateFormFile("file", meta.FileName)
	if err != nil {
		return &TransferError{Phase: "whole", Err: err}
	}
	if _, err := part.Write(payload); err != nil {
		return &TransferError{Phase: "whole", Err: err}
	}
	if err := writer.Close(); err != nil {
		return &TransferError{Phase: "whole", Err: err}
	}

	if err := c.do(ctx, http.MethodPost, c.baseURL+wholeUploadPath, &body, writer.FormDataContentType(), nil); err != nil {
		return &TransferError{Phase: "whole", Err: err}
	}
	return nil
}

func (c *HTTPClient) InitChunked(ctx context.Context, recordID string, desc FileDescriptor) (InitResult, error) {
	payload := struct {
		RecordID string `json:"record_id"`
		FileDescriptor
	}{RecordID: recordID, FileDescriptor: desc}

	body, err := json.Marshal(payload)
	if err != nil {
		return InitResult{}, &TransferError{Phase: "init", Err: err}
	}

	var result InitResult
	if err := c.do(ctx, http.MethodPost, c.baseURL+chunkedInitPath, bytes.NewReader(body), "application/json", &result); err != nil {
		return InitResult{}, &TransferError{Phase: "init", Err: err}
	}
	if result.UploadID == "" {
		// Server did not assign one; the correlation token stands in.
		result.UploadID = desc.Token
	}
	return result, nil
}

func (c *HTTPClient) UploadChunk(ctx context.Context, endpoint, uploadID string, index, totalChunks int, data []byte) error {
	url := c.resolveEndpoint(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return &TransferError{Phase: "chunk", Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Upload-Id", uploadID)
	req.Header.Set("X-Chunk-Index", strconv.Itoa(index))
	req.Header.Set("X-Chunk-Total", strconv.Itoa(totalChunks))
	c.authorize(req)

	if err := c.send(req, nil); err != nil {
		return &TransferError{Phase: "chunk", Err: err}
	}
	return nil
}

func (c *HTTPClient) FinalizeChunked(ctx context.Context, uploadID, recordID string) error {
	body, err := json.Marshal(map[string]string{
		"upload_id": uploadID,
		"record_id": recordID,
	})
	if err != nil {
		return &TransferError{Phase: "finalize", Err: err}
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+chunkedFinishPath, bytes.NewReader(body), "application/json", nil); err != nil {
		return &TransferError{Phase: "finalize", Err: err}
	}
	return nil
}

// resolveEndpoint joins a server-relative chunk endpoint onto the base
// URL; absolute endpoints pass through, empty falls back to the default.
func (c *HTTPClient) resolveEndpoint(endpoint string) string {
	if endpoint == "" {
		endpoint = chunkedChunkPath
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)
	return c.send(req, out)
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *HTTPClient) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
