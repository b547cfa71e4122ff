package immich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"retake/internal/config"
)

// HTTPDoer describes the HTTP client used by the Immich service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues Immich API calls with a fixed per-call timeout.
type Client struct {
	baseURL string
	apiKey  string
	http    HTTPDoer
	timeout time.Duration
}

// New constructs a client from configuration.
func New(cfg *config.Config) *Client {
	return NewWithDoer(cfg.Immich.URL, cfg.Immich.APIKey, cfg.RequestTimeout(), http.DefaultClient)
}

// NewWithDoer constructs a client with an explicit HTTP implementation,
// used by tests and instrumented callers.
func NewWithDoer(baseURL, apiKey string, timeout time.Duration, doer HTTPDoer) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    doer,
		timeout: timeout,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, transportError(method+" "+path, err)
	}
	// Tie the timeout's lifetime to the body.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", path, err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(method+" "+path, resp.StatusCode, string(raw))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Ping verifies the server is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/api/server/ping", nil, nil)
}

type searchMetadataRequest struct {
	Page             int    `json:"page,omitempty"`
	Size             int    `json:"size,omitempty"`
	OriginalFileName string `json:"originalFileName,omitempty"`
	WithExif         bool   `json:"withExif,omitempty"`
	WithStacked      bool   `json:"withStacked,omitempty"`
}

type searchMetadataResponse struct {
	Assets struct {
		Items    []Asset `json:"items"`
		NextPage string  `json:"nextPage"`
	} `json:"assets"`
}

// ListAssets fetches every asset with metadata, following pagination.
func (c *Client) ListAssets(ctx context.Context, pageSize int) ([]Asset, error) {
	if pageSize <= 0 {
		pageSize = 500
	}
	var all []Asset
	page := 1
	for {
		req := searchMetadataRequest{Page: page, Size: pageSize, WithExif: true, WithStacked: true}
		var resp searchMetadataResponse
		if err := c.doJSON(ctx, http.MethodPost, "/api/search/metadata", req, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Assets.Items...)
		if resp.Assets.NextPage == "" || len(resp.Assets.Items) == 0 {
			return all, nil
		}
		page++
	}
}

// SearchByFileName returns assets whose original filename matches exactly.
// The search endpoint is fuzzy, so results are filtered to exact hits.
func (c *Client) SearchByFileName(ctx context.Context, fileName string) ([]Asset, error) {
	req := searchMetadataRequest{OriginalFileName: fileName, WithExif: true}
	var resp searchMetadataResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/search/metadata", req, &resp); err != nil {
		return nil, err
	}
	exact := resp.Assets.Items[:0]
	for _, asset := range resp.Assets.Items {
		if asset.OriginalFileName == fileName {
			exact = append(exact, asset)
		}
	}
	return exact, nil
}

// ListAlbums fetches all album summaries.
func (c *Client) ListAlbums(ctx context.Context) ([]Album, error) {
	var albums []Album
	if err := c.doJSON(ctx, http.MethodGet, "/api/albums", nil, &albums); err != nil {
		return nil, err
	}
	return albums, nil
}

// GetAlbum fetches an album with its member assets.
func (c *Client) GetAlbum(ctx context.Context, albumID string) (*AlbumDetail, error) {
	var detail AlbumDetail
	if err := c.doJSON(ctx, http.MethodGet, "/api/albums/"+albumID, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

type bulkCheckRequest struct {
	Assets []CheckItem `json:"assets"`
}

type bulkCheckResponse struct {
	Results []CheckResult `json:"results"`
}

// BulkUploadCheck asks the server which checksums it already holds.
func (c *Client) BulkUploadCheck(ctx context.Context, items []CheckItem) ([]CheckResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var resp bulkCheckResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/assets/bulk-upload-check", bulkCheckRequest{Assets: items}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Upload sends a local file as a new asset. The capture timestamp is
// supplied explicitly so the server records the sidecar-corrected time.
func (c *Client) Upload(ctx context.Context, path string, capturedAt time.Time) (*UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload source: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat upload source: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := map[string]string{
		"deviceAssetId":  fmt.Sprintf("retake-%s-%d", filepath.Base(path), info.Size()),
		"deviceId":       "retake",
		"fileCreatedAt":  capturedAt.Format(time.RFC3339),
		"fileModifiedAt": info.ModTime().UTC().Format(time.RFC3339),
		"isFavorite":     "false",
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write upload field %s: %w", key, err)
		}
	}
	part, err := writer.CreateFormFile("assetData", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create upload part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("buffer upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize upload body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/assets", &buf, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError("upload "+filepath.Base(path), resp.StatusCode, string(raw))
	}
	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &result, nil
}

type deleteAssetsRequest struct {
	IDs   []string `json:"ids"`
	Force bool     `json:"force"`
}

// DeleteAssets removes assets permanently (force bypasses the trash delay).
func (c *Client) DeleteAssets(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/assets", deleteAssetsRequest{IDs: ids, Force: true}, nil)
}

type albumAssetsRequest struct {
	IDs []string `json:"ids"`
}

// AddToAlbum adds assets to an album.
func (c *Client) AddToAlbum(ctx context.Context, albumID string, assetIDs []string) error {
	if albumID == "" || len(assetIDs) == 0 {
		return nil
	}
	return c.doJSON(ctx, http.MethodPut, "/api/albums/"+albumID+"/assets", albumAssetsRequest{IDs: assetIDs}, nil)
}

type updateAssetRequest struct {
	IsFavorite bool `json:"isFavorite"`
}

// SetFavorite sets the favorite flag on an asset.
func (c *Client) SetFavorite(ctx context.Context, assetID string, favorite bool) error {
	return c.doJSON(ctx, http.MethodPut, "/api/assets/"+assetID, updateAssetRequest{IsFavorite: favorite}, nil)
}

type createStackRequest struct {
	AssetIDs []string `json:"assetIds"`
}

// CreateStack stacks assets; the first ID becomes the stack primary.
func (c *Client) CreateStack(ctx context.Context, assetIDs []string) (*Stack, error) {
	if len(assetIDs) < 2 {
		return nil, fmt.Errorf("%w: a stack needs at least two assets", ErrValidation)
	}
	var stack Stack
	if err := c.doJSON(ctx, http.MethodPost, "/api/stacks", createStackRequest{AssetIDs: assetIDs}, &stack); err != nil {
		return nil, err
	}
	return &stack, nil
}

// DeleteStack unstacks a stack without deleting its assets.
func (c *Client) DeleteStack(ctx context.Context, stackID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/stacks/"+stackID, nil, nil)
}

// EmptyTrash flushes the server trash so replaced checksums free up.
func (c *Client) EmptyTrash(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/trash/empty", nil, nil)
}
