package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"newsbrief/research"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (p *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.inputs = append(p.inputs, params)
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveUploadsBundleJSON(t *testing.T) {
	putter := &fakePutter{}
	a := NewS3ArchiveWithClient(putter, "bundles", "research-bundles")

	bundle := &research.Bundle{
		RecordID:    "rec-1",
		Title:       "Council approves transit expansion",
		Iterations:  2,
		Facts:       []string{"the budget is 2 billion"},
		CompletedAt: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	if err := a.Archive(context.Background(), bundle); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if len(putter.inputs) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(putter.inputs))
	}
	input := putter.inputs[0]
	if *input.Bucket != "bundles" {
		t.Errorf("bucket = %s", *input.Bucket)
	}
	if want := "research-bundles/2026-03-15/rec-1.json"; *input.Key != want {
		t.Errorf("key = %s, want %s", *input.Key, want)
	}
	if *input.ContentType != "application/json" {
		t.Errorf("content type = %s", *input.ContentType)
	}

	body, err := io.ReadAll(input.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded research.Bundle
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("uploaded body is not valid JSON: %v", err)
	}
	if decoded.RecordID != "rec-1" || decoded.Iterations != 2 {
		t.Errorf("round-tripped bundle mismatch: %+v", decoded)
	}
}

func TestArchiveWithoutPrefix(t *testing.T) {
	putter := &fakePutter{}
	a := NewS3ArchiveWithClient(putter, "bundles", "")

	bundle := &research.Bundle{
		RecordID:    "rec-2",
		CompletedAt: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	if err := a.Archive(context.Background(), bundle); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if want := "2026-03-15/rec-2.json"; *putter.inputs[0].Key != want {
		t.Errorf("key = %s, want %s", *putter.inputs[0].Key, want)
	}
}

func TestArchivePropagatesUploadError(t *testing.T) {
	a := NewS3ArchiveWithClient(&fakePutter{err: errors.New("denied")}, "bundles", "")

	err := a.Archive(context.Background(), &research.Bundle{RecordID: "rec-3"})
	if err == nil {
		t.Fatal("expected the upload error to surface")
	}
}

func TestNewS3ArchiveDisabledWithoutBucket(t *testing.T) {
	a, err := NewS3Archive(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != nil {
		t.Fatal("expected a nil archive when no bucket is configured")
	}
}
