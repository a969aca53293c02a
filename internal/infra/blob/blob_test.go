package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

func TestLocalStorePutAndOpen(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ref, err := store.Put(context.Background(), "t1/sheet/a.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref != "local://t1/sheet/a.jpg" {
		t.Fatalf("unexpected ref %q", ref)
	}
	f, err := store.Open(ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestLocalStoreRejectsBadInput(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, 4)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"", "../escape.jpg", "/abs.jpg", "a/../../b.jpg"} {
		if _, err := store.Put(context.Background(), key, "", strings.NewReader("x")); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("key %q: expected invalid argument, got %v", key, err)
		}
	}
	if _, err := store.Put(context.Background(), "t1/big.jpg", "", strings.NewReader("too large")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected size error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "t1", "big.jpg")); !os.IsNotExist(err) {
		t.Fatalf("oversized upload must not be kept, stat err=%v", err)
	}
}

type fakeUploader struct {
	s3manageriface.UploaderAPI
	inputs []*s3manager.UploadInput
	err    error
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &s3manager.UploadOutput{Location: "https://bucket.example/" + aws.StringValue(in.Key)}, nil
}

func TestS3StorePut(t *testing.T) {
	up := &fakeUploader{}
	store := NewS3StoreWithUploader(S3Config{Bucket: "photos", MaxBytes: 1024}, up, nil)

	ref, err := store.Put(context.Background(), "t1/s1/p.png", "image/png", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref != "s3://photos/t1/s1/p.png" {
		t.Fatalf("unexpected ref %q", ref)
	}
	if len(up.inputs) != 1 {
		t.Fatalf("expected one upload, got %d", len(up.inputs))
	}
	in := up.inputs[0]
	if aws.StringValue(in.Bucket) != "photos" || aws.StringValue(in.ContentType) != "image/png" {
		t.Fatalf("unexpected upload input %+v", in)
	}

	up.err = errors.New("network down")
	if _, err := store.Put(context.Background(), "t1/s1/q.png", "", strings.NewReader("x")); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(S3Config{}, nil); err == nil {
		t.Fatal("expected error without bucket")
	}
}
