// Package storage holds the S3-backed dump store. Raw bulletin dumps land in
// the bucket, the ingest worker drains them, and processed dumps are moved
// under processed/ so the bucket itself shows what is left to do.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const processedPrefix = "processed/"

// S3API is the slice of the S3 client the dump store uses; tests stub it.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// DumpStore reads and writes raw bulletin dumps in one S3 bucket.
type DumpStore struct {
	client S3API
	bucket string
}

// NewDumpStore builds a store against AWS. An empty profile uses the default
// credential chain.
func NewDumpStore(ctx context.Context, bucket, region, profile string) (*DumpStore, error) {
	var cfg aws.Config
	var err error
	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &DumpStore{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// NewDumpStoreWithClient wires an explicit client; tests use it.
func NewDumpStoreWithClient(client S3API, bucket string) *DumpStore {
	return &DumpStore{client: client, bucket: bucket}
}

// ListPending returns the keys of unprocessed .txt dumps in the bucket.
func (d *DumpStore) ListPending(ctx context.Context) ([]string, error) {
	var keys []string
	var token *string
	for {
		page, err := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(d.bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list dumps: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if obj.Size == nil || *obj.Size == 0 {
				continue
			}
			if strings.HasPrefix(key, processedPrefix) {
				continue
			}
			if !strings.HasSuffix(strings.ToLower(key), ".txt") {
				continue
			}
			keys = append(keys, key)
		}
		if page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}
	return keys, nil
}

// Get downloads one dump.
func (d *DumpStore) Get(ctx context.Context, key string) (string, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get dump %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read dump %s: %w", key, err)
	}
	return string(data), nil
}

// Put uploads a raw dump; the API's upload endpoint lands files here.
func (d *DumpStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("put dump %s: %w", key, err)
	}
	return nil
}

// MoveToProcessed renames a drained dump under processed/ via copy+delete
// (S3 has no rename). A failed delete leaves a duplicate, which the
// processed/ prefix filter makes harmless on the next cycle.
func (d *DumpStore) MoveToProcessed(ctx context.Context, key string) (string, error) {
	dest := processedPrefix + strings.TrimPrefix(key, "/")
	_, err := d.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(d.bucket),
		CopySource: aws.String(d.bucket + "/" + key),
		Key:        aws.String(dest),
	})
	if err != nil {
		return "", fmt.Errorf("copy dump %s to %s: %w", key, dest, err)
	}
	if _, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return dest, fmt.Errorf("delete original %s: %w", key, err)
	}
	return dest, nil
}
