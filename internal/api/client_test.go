package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, handler nethttp.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		RequestsPerSecond: 1000,
		Burst:             100,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

// TestNewClientRejectsEmptyBaseURL verifies that NewClient fails with a clear error
// instead of creating a client that fails every request.
func TestNewClientRejectsEmptyBaseURL(t *testing.T) {
	_, err := NewClient(Options{APIKey: "test-key"})
	if err == nil {
		t.Fatal("NewClient() should return error for empty base URL")
	}
	if !strings.Contains(err.Error(), "API base URL is empty") {
		t.Errorf("NewClient() error = %q, want error containing 'API base URL is empty'", err.Error())
	}
}

func TestCreateFolder(t *testing.T) {
	var gotAuth, gotName, gotPath string
	client := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotName = body.Name
		w.WriteHeader(nethttp.StatusCreated)
		fmt.Fprint(w, `{"id":"folder-123"}`)
	}))

	id, err := client.CreateFolder(context.Background(), "results", "root-1")
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	if id != "folder-123" {
		t.Errorf("Expected id folder-123, got %s", id)
	}
	if gotAuth != "Token test-key" {
		t.Errorf("Expected token auth header, got %q", gotAuth)
	}
	if gotPath != "/api/v3/folders/root-1/" {
		t.Errorf("Expected folder path, got %s", gotPath)
	}
	if gotName != "results" {
		t.Errorf("Expected name results, got %s", gotName)
	}
}

func TestCreateFolder_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		calls.Add(1)
		w.WriteHeader(nethttp.StatusBadRequest)
		fmt.Fprint(w, `{"detail":"name is invalid"}`)
	}))

	_, err := client.CreateFolder(context.Background(), "bad/name", "root-1")
	if err == nil {
		t.Fatal("Expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Message != "name is invalid" {
		t.Errorf("Unexpected API error: %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call for a 4xx, got %d", calls.Load())
	}
}

func TestGetRootFolders(t *testing.T) {
	client := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/api/v3/users/me/folders/" {
			w.WriteHeader(nethttp.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"myJobs":"jobs-1","myLibrary":"lib-1"}`)
	}))

	folders, err := client.GetRootFolders(context.Background())
	if err != nil {
		t.Fatalf("GetRootFolders() error = %v", err)
	}
	if folders.MyLibrary != "lib-1" {
		t.Errorf("Expected library lib-1, got %s", folders.MyLibrary)
	}
}

func TestUploadFile(t *testing.T) {
	var gotContent, gotFilename string
	client := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/api/v3/folders/dir-9/files/" {
			w.WriteHeader(nethttp.StatusNotFound)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(nethttp.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotContent = string(data)
		gotFilename = header.Filename
		w.WriteHeader(nethttp.StatusCreated)
		fmt.Fprintf(w, `{"id":"file-1","name":%q,"size":%d}`, header.Filename, len(data))
	}))

	file, err := client.UploadFile(context.Background(), "dir-9", "x.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if gotContent != "hello" || gotFilename != "x.txt" {
		t.Errorf("Server received %q as %q", gotContent, gotFilename)
	}
	if file.ID != "file-1" || file.Size != 5 {
		t.Errorf("Unexpected remote file: %+v", file)
	}
	if file.FolderID != "dir-9" {
		t.Errorf("Expected folder id to default to dir-9, got %s", file.FolderID)
	}
}

func TestUploadFile_QuotaExceeded(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"insufficient storage status", nethttp.StatusInsufficientStorage, "full"},
		{"quota code", nethttp.StatusForbidden, `{"code":"quota_exceeded","detail":"no space"}`},
		{"quota message", nethttp.StatusBadRequest, `{"detail":"Storage quota exceeded for user"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))

			_, err := client.UploadFile(context.Background(), "dir", "big.bin", strings.NewReader("data"))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !errors.Is(err, ErrQuotaExceeded) {
				t.Errorf("Expected quota error, got %v", err)
			}
			if !IsQuotaError(err) {
				t.Error("IsQuotaError() = false, want true")
			}
			if StatusCode(err) != tt.status {
				t.Errorf("StatusCode() = %d, want %d", StatusCode(err), tt.status)
			}
		})
	}
}

func TestUploadFile_ServerErrorIsNotQuota(t *testing.T) {
	client := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(nethttp.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"boom"}`)
	}))

	_, err := client.UploadFile(context.Background(), "dir", "x", strings.NewReader("data"))
	if err == nil {
		t.Fatal("Expected error")
	}
	if IsQuotaError(err) {
		t.Errorf("Expected non-quota error, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected message from body, got %v", err)
	}
}

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrQuotaExceeded, true},
		{fmt.Errorf("upload: %w", ErrQuotaExceeded), true},
		{errors.New("Insufficient storage on account"), true},
		{errors.New("connection reset"), false},
		{&APIError{StatusCode: 500, Message: "oops"}, false},
	}

	for _, tt := range tests {
		if got := IsQuotaError(tt.err); got != tt.want {
			t.Errorf("IsQuotaError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
