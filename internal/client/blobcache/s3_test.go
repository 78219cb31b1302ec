package blobcache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket that pages List results two at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
				break
			}
		}
	}
	end := start + 2
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	now := time.Now()
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: &now,
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func newS3(t *testing.T, f *fakeS3, name string) Cache {
	t.Helper()
	c, err := S3Provider{Client: f, Bucket: "bucket", Prefix: "device-1"}.Open(context.Background(), name)
	require.NoError(t, err)
	return c
}

func TestS3Cache_PutGetHasDelete(t *testing.T) {
	f := newFakeS3()
	c := newS3(t, f, Tiles)
	ctx := context.Background()
	key := TileKey(5, 6, 7)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := c.Has(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, key, []byte("png")))
	assert.Contains(t, f.objects, "device-1/map-tiles/tiles/5/6/7.png")

	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), got)

	ok, err = c.Has(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, key))
	ok, err = c.Has(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Cache_ListPaginatesAndIsolatesPrefixes(t *testing.T) {
	f := newFakeS3()
	tilesCache := newS3(t, f, Tiles)
	library := newS3(t, f, Library)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, tilesCache.Put(ctx, TileKey(1, i, 0), make([]byte, 10)))
	}
	require.NoError(t, library.Put(ctx, "album/1.jpg", make([]byte, 7)))

	entries, err := tilesCache.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	assert.True(t, strings.HasPrefix(entries[0].Key, "tiles/"))

	size, err := tilesCache.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), size)

	require.NoError(t, tilesCache.Clear(ctx))
	entries, err = tilesCache.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	libSize, err := library.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), libSize, "clearing one cache leaves the others")
}

func TestS3Cache_ErrorsAndURL(t *testing.T) {
	f := newFakeS3()
	f.failPut = errors.New("network down")
	c := newS3(t, f, Photos)
	ctx := context.Background()

	err := c.Put(ctx, "p1", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")

	assert.ErrorIs(t, c.Put(ctx, "../escape", nil), ErrInvalidKey)
	assert.Equal(t, "s3://bucket/device-1/photo-full/p1", c.URL("p1"))

	_, err = S3Provider{Client: f}.Open(ctx, Photos)
	require.Error(t, err)
}
