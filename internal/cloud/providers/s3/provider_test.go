package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/rescale/rescale-upload/internal/cloud"
)

// fakeS3 records single-part puts. Multipart calls are never reached for the
// small bodies used here.
type fakeS3 struct {
	manager.UploadAPIClient

	mu      sync.Mutex
	objects map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]string)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.ToString(in.Key)] = string(data)
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"":          "",
		"/":         "",
		"uploads":   "uploads/",
		"/uploads/": "uploads/",
		"a/b":       "a/b/",
	}
	for in, want := range tests {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProvider_CreateDirectoryAndTransfer(t *testing.T) {
	fake := newFakeS3()
	p, err := NewProvider(fake, "bucket", "/uploads/")
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	ctx := context.Background()

	home, _ := p.HomeFolderID(ctx)
	if home != "uploads/" {
		t.Errorf("Expected home uploads/, got %q", home)
	}

	dir, err := p.CreateDirectory(ctx, "a", home)
	if err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}
	if dir != "uploads/a/" {
		t.Errorf("Expected uploads/a/, got %q", dir)
	}

	var progress int64
	file, err := p.Transfer(ctx, cloud.TransferRequest{
		DirectoryID: dir,
		FileName:    "x.txt",
		Size:        5,
		Content:     strings.NewReader("hello"),
		OnProgress:  func(n int64) { progress = n },
	})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if file.ID != "uploads/a/x.txt" {
		t.Errorf("Expected key uploads/a/x.txt, got %q", file.ID)
	}
	if got := fake.objects["uploads/a/x.txt"]; got != "hello" {
		t.Errorf("Expected stored content hello, got %q", got)
	}
	if _, ok := fake.objects["uploads/a/"]; !ok {
		t.Error("Expected directory marker object")
	}
	if progress != 5 {
		t.Errorf("Expected progress 5, got %d", progress)
	}
}

func TestProvider_QuotaMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantQuota bool
	}{
		{"quota code", &smithy.GenericAPIError{Code: "QuotaExceeded", Message: "full"}, true},
		{"minio full", &smithy.GenericAPIError{Code: "XMinioStorageFull"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeS3()
			fake.putErr = tt.err
			p, _ := NewProvider(fake, "bucket", "")

			_, err := p.Transfer(context.Background(), cloud.TransferRequest{
				FileName: "x.txt",
				Content:  strings.NewReader("x"),
				Size:     1,
			})
			if err == nil {
				t.Fatal("Expected error")
			}
			if got := errors.Is(err, cloud.ErrQuotaExceeded); got != tt.wantQuota {
				t.Errorf("Expected quota=%v, got %v (%v)", tt.wantQuota, got, err)
			}
		})
	}
}

func TestNewProvider_Validation(t *testing.T) {
	if _, err := NewProvider(nil, "b", ""); err == nil {
		t.Error("Expected error for nil client")
	}
	if _, err := NewProvider(newFakeS3(), "", ""); err == nil {
		t.Error("Expected error for empty bucket")
	}
}
