package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/rescale/rescale-upload/internal/constants"
	"github.com/rescale/rescale-upload/internal/logging"
	"github.com/rescale/rescale-upload/internal/models"
)

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *nethttp.Client // proxy-aware client from internal/http; nil uses a default
	Logger     *logging.Logger

	// RequestsPerSecond and Burst pace every API call. Zero uses the defaults.
	RequestsPerSecond float64
	Burst             int
}

// Client is the drive API client.
//
// Folder and metadata calls go through retryablehttp so transient 5xx and
// connection errors are retried at the HTTP level. File bodies are streamed
// once and are never replayed.
type Client struct {
	jsonClient   *nethttp.Client
	uploadClient *nethttp.Client
	baseURL      string
	apiKey       string
	limiter      *rate.Limiter
	logger       *logging.Logger
}

// NewClient creates a new API client
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("API base URL is empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API base URL %q: %w", baseURL, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &nethttp.Client{}
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = constants.APIRetryMax
	retryClient.RetryWaitMin = constants.APIRetryWaitMin
	retryClient.RetryWaitMax = constants.APIRetryWaitMax
	retryClient.Logger = &retryLogger{logger: logger}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = constants.APIRequestsPerSecond
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = constants.APIBurst
	}

	return &Client{
		jsonClient:   retryClient.StandardClient(),
		uploadClient: httpClient,
		baseURL:      baseURL,
		apiKey:       opts.APIKey,
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		logger:       logger,
	}, nil
}

// doRequest performs a JSON request with authentication and rate limiting
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.jsonClient.Do(req)
	if err != nil {
		c.logger.Debug().Str("method", method).Str("path", path).Err(err).Msg("API call failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Str("retry_after", resp.Header.Get("Retry-After")).
			Msg("Throttled by API")
	}

	return resp, nil
}

func (c *Client) authorize(req *nethttp.Request) {
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}

// GetRootFolders gets the user's root folders
func (c *Client) GetRootFolders(ctx context.Context) (*models.RootFolders, error) {
	resp, err := c.doRequest(ctx, nethttp.MethodGet, "/api/v3/users/me/folders/", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, fmt.Errorf("get root folders: %w", newAPIError(resp))
	}

	var folders models.RootFolders
	if err := json.NewDecoder(resp.Body).Decode(&folders); err != nil {
		return nil, fmt.Errorf("failed to decode root folders: %w", err)
	}

	return &folders, nil
}

// CreateFolder creates a folder under parentID and returns the new folder id.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	requestBody := map[string]interface{}{
		"name": name,
	}

	path := fmt.Sprintf("/api/v3/folders/%s/", url.PathEscape(parentID))
	resp, err := c.doRequest(ctx, nethttp.MethodPost, path, requestBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusCreated && resp.StatusCode != nethttp.StatusOK {
		return "", newAPIError(resp)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ID == "" {
		return "", errors.New("create folder response has no id")
	}

	return result.ID, nil
}

// UploadFile streams content as a multipart upload into folderID.
// The body is sent once; cancel ctx to abort mid-transfer.
func (c *Client) UploadFile(ctx context.Context, folderID, name string, content io.Reader) (*models.RemoteFile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	// Unblocks the writer goroutine if the request ends before the body is drained.
	defer pr.Close()

	path := fmt.Sprintf("/api/v3/folders/%s/files/", url.PathEscape(folderID))
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusCreated && resp.StatusCode != nethttp.StatusOK {
		return nil, newAPIError(resp)
	}

	var file models.RemoteFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if file.FolderID == "" {
		file.FolderID = folderID
	}
	return &file, nil
}
