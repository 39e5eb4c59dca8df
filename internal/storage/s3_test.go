package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type stubS3 struct {
	objects map[string]string
	deleted []string
	copied  map[string]string
	puts    map[string]string
}

func newStubS3() *stubS3 {
	return &stubS3{
		objects: map[string]string{},
		copied:  map[string]string{},
		puts:    map[string]string{},
	}
}

func (s *stubS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var contents []types.Object
	for key, body := range s.objects {
		size := int64(len(body))
		contents = append(contents, types.Object{Key: aws.String(key), Size: &size})
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (s *stubS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body := s.objects[aws.ToString(in.Key)]
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (s *stubS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.puts[aws.ToString(in.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (s *stubS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	s.copied[aws.ToString(in.CopySource)] = aws.ToString(in.Key)
	return &s3.CopyObjectOutput{}, nil
}

func (s *stubS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	s.deleted = append(s.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestListPendingFilters(t *testing.T) {
	client := newStubS3()
	client.objects["weekly-2008-40.txt"] = "body"
	client.objects["WEEKLY-2008-41.TXT"] = "body"
	client.objects["processed/weekly-2008-39.txt"] = "body"
	client.objects["notes.pdf"] = "body"
	client.objects["empty.txt"] = ""

	store := NewDumpStoreWithClient(client, "bucket")
	keys, err := store.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}

	if len(keys) != 2 {
		t.Fatalf("keys = %v, want 2 pending dumps", keys)
	}
	for _, key := range keys {
		if strings.HasPrefix(key, "processed/") {
			t.Errorf("processed key leaked: %s", key)
		}
	}
}

func TestGetAndPut(t *testing.T) {
	client := newStubS3()
	client.objects["weekly.txt"] = "BULLETIN BODY"

	store := NewDumpStoreWithClient(client, "bucket")

	body, err := store.Get(context.Background(), "weekly.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if body != "BULLETIN BODY" {
		t.Errorf("body = %q", body)
	}

	if err := store.Put(context.Background(), "upload.txt", []byte("new dump")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if client.puts["upload.txt"] != "new dump" {
		t.Errorf("stored = %q", client.puts["upload.txt"])
	}
}

func TestMoveToProcessed(t *testing.T) {
	client := newStubS3()
	client.objects["weekly.txt"] = "body"

	store := NewDumpStoreWithClient(client, "bucket")
	dest, err := store.MoveToProcessed(context.Background(), "weekly.txt")
	if err != nil {
		t.Fatalf("MoveToProcessed: %v", err)
	}

	if dest != "processed/weekly.txt" {
		t.Errorf("dest = %q", dest)
	}
	if client.copied["bucket/weekly.txt"] != "processed/weekly.txt" {
		t.Errorf("copied = %v", client.copied)
	}
	if len(client.deleted) != 1 || client.deleted[0] != "weekly.txt" {
		t.Errorf("deleted = %v", client.deleted)
	}
}
