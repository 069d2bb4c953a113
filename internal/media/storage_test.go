/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"/media/portal_loop.mp4", "portal_loop.mp4"},
		{"media/score.wav", "score.wav"},
		{"/media/../../etc/passwd", "etc/passwd"},
		{"/clips/a.mp4", "clips/a.mp4"},
		{"/mediafx/a.wav", "mediafx/a.wav"},
		{"/media/sub/dir/cue (3).wav", "sub/dir/cue (3).wav"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := objectKey(tt.source); got != tt.want {
				t.Fatalf("objectKey(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}
}

func TestFilesystemStorageStat(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "portal_loop.mp4"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "clips"), 0o755); err != nil {
		t.Fatal(err)
	}
	st := NewFilesystemStorage(root, zerolog.Nop())
	ctx := context.Background()

	obj, err := st.Stat(ctx, "/media/portal_loop.mp4")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if obj.Size != 10 {
		t.Fatalf("object = %+v", obj)
	}
	if _, err := st.Stat(ctx, "/media/missing.wav"); !errors.Is(err, ErrAssetMissing) {
		t.Fatalf("missing err = %v", err)
	}
	if _, err := st.Stat(ctx, "/media/clips"); !errors.Is(err, ErrAssetMissing) {
		t.Fatalf("directory err = %v", err)
	}
	if err := st.CheckAccess(ctx); err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if err := NewFilesystemStorage(filepath.Join(root, "nope"), zerolog.Nop()).CheckAccess(ctx); err == nil {
		t.Fatal("expected missing root to fail")
	}
}

type fakeS3 struct {
	objects   map[string]int64
	headErr   error
	bucketErr error
	keys      []string
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.keys = append(f.keys, key)
	if f.headErr != nil {
		return nil, f.headErr
	}
	size, ok := f.objects[key]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(size), ContentType: aws.String("audio/wav")}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.bucketErr
}

func TestS3StorageStat(t *testing.T) {
	client := &fakeS3{objects: map[string]int64{"exso/score.wav": 2048}}
	st := newS3Storage(client, StorageConfig{Bucket: "portal", Prefix: "exso/", PublicBaseURL: "https://cdn.example.com/"}, zerolog.Nop())
	ctx := context.Background()

	obj, err := st.Stat(ctx, "/media/score.wav")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if obj.Size != 2048 || obj.ContentType != "audio/wav" {
		t.Fatalf("object = %+v", obj)
	}
	if _, err := st.Stat(ctx, "/media/missing.wav"); !errors.Is(err, ErrAssetMissing) {
		t.Fatalf("missing err = %v", err)
	}
	if got := st.URL("/media/score.wav"); got != "https://cdn.example.com/exso/score.wav" {
		t.Fatalf("URL = %q", got)
	}
	if client.keys[0] != "exso/score.wav" {
		t.Fatalf("keys = %v", client.keys)
	}
}

func TestS3StorageErrors(t *testing.T) {
	ctx := context.Background()

	noSuchKey := newS3Storage(&fakeS3{headErr: &smithy.GenericAPIError{Code: "NoSuchKey"}}, StorageConfig{Bucket: "b"}, zerolog.Nop())
	if _, err := noSuchKey.Stat(ctx, "/media/a.wav"); !errors.Is(err, ErrAssetMissing) {
		t.Fatalf("NoSuchKey err = %v", err)
	}

	denied := newS3Storage(&fakeS3{
		headErr:   &smithy.GenericAPIError{Code: "Forbidden"},
		bucketErr: &smithy.GenericAPIError{Code: "Forbidden"},
	}, StorageConfig{Bucket: "b"}, zerolog.Nop())
	if _, err := denied.Stat(ctx, "/media/a.wav"); err == nil || errors.Is(err, ErrAssetMissing) {
		t.Fatalf("Forbidden err = %v", err)
	}
	if err := denied.CheckAccess(ctx); err == nil {
		t.Fatal("expected CheckAccess to fail")
	}
	if got := denied.URL("/media/a.wav"); got != "/media/a.wav" {
		t.Fatalf("URL without base = %q", got)
	}
}

func TestNewStorageSelectsBackend(t *testing.T) {
	ctx := context.Background()
	if _, err := NewStorage(ctx, StorageConfig{}, zerolog.Nop()); !errors.Is(err, ErrNoStorage) {
		t.Fatalf("err = %v, want ErrNoStorage", err)
	}
	st, err := NewStorage(ctx, StorageConfig{MediaRoot: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	if _, ok := st.(*FilesystemStorage); !ok {
		t.Fatalf("storage = %T", st)
	}
}

func TestPreflight(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "loop.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	st := NewFilesystemStorage(root, zerolog.Nop())
	assets := []Asset{
		{ID: ElementPrimary, Source: "/media/loop.mp4"},
		{ID: ElementBedIntro, Source: "/media/intro.wav"},
		{ID: ElementBridgeExit, Source: "https://cdn.example.com/exit.mp4"},
	}

	statuses := Preflight(context.Background(), st, assets)
	if len(statuses) != 3 {
		t.Fatalf("statuses = %d", len(statuses))
	}
	if !statuses[0].Available || statuses[0].Size != 1 {
		t.Fatalf("primary = %+v", statuses[0])
	}
	if statuses[1].Available || statuses[1].Error == "" {
		t.Fatalf("intro = %+v", statuses[1])
	}
	if !statuses[2].External || statuses[2].URL != assets[2].Source {
		t.Fatalf("exit = %+v", statuses[2])
	}
	if missing := Missing(statuses); len(missing) != 1 || missing[0] != ElementBedIntro {
		t.Fatalf("missing = %v", missing)
	}
}
