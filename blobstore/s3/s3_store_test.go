package s3

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/seals/blobstore"
)

// fakeS3Client is an in-memory S3 for testing. It implements enough
// of the API to drive the real transfer manager: ranged GETs with
// Content-Range, multipart uploads, and list pagination.
type fakeS3Client struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	uploads  map[string]map[int32][]byte
	nextID   int
	pageSize int
}

func newFakeS3Client() *fakeS3Client {
	return &fakeS3Client{
		objects: make(map[string][]byte),
		uploads: make(map[string]map[int32][]byte),
	}
}

func (f *fakeS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	size := int64(len(data))
	start, end := int64(0), size-1

	ranged := params.Range != nil
	if ranged {
		if _, err := fmt.Sscanf(aws.ToString(params.Range), "bytes=%d-%d", &start, &end); err != nil {
			return nil, fmt.Errorf("malformed range %q", aws.ToString(params.Range))
		}

		if start >= size {
			return nil, fmt.Errorf("range %q starts past object size %d", aws.ToString(params.Range), size)
		}

		if end >= size {
			end = size - 1
		}
	}

	chunk := data[start : end+1]

	out := &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(chunk)),
		ContentLength: aws.Int64(int64(len(chunk))),
	}
	if ranged {
		out.ContentRange = aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	}

	return out, nil
}

func (f *fakeS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.objects[aws.ToString(params.Key)] = data

	return &s3.PutObjectOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = make(map[int32][]byte)

	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	parts, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, fmt.Errorf("unknown upload %q", aws.ToString(params.UploadId))
	}

	num := aws.ToInt32(params.PartNumber)
	parts[num] = data

	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", num))}, nil
}

func (f *fakeS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(params.UploadId)

	parts, ok := f.uploads[id]
	if !ok {
		return nil, fmt.Errorf("unknown upload %q", id)
	}

	nums := make([]int, 0, len(parts))
	for num := range parts {
		nums = append(nums, int(num))
	}

	sort.Ints(nums)

	var buf bytes.Buffer
	for _, num := range nums {
		buf.Write(parts[int32(num)])
	}

	f.objects[aws.ToString(params.Key)] = buf.Bytes()
	delete(f.uploads, id)

	return &s3.CompleteMultipartUploadOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.uploads, aws.ToString(params.UploadId))

	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	prefix := aws.ToString(params.Prefix)

	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	if token := aws.ToString(params.ContinuationToken); token != "" {
		i := sort.SearchStrings(keys, token)
		if i < len(keys) && keys[i] == token {
			i++
		}

		keys = keys[i:]
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}

	if f.pageSize > 0 && len(keys) > f.pageSize {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[f.pageSize-1])
		keys = keys[:f.pageSize]
	}

	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}

	return out, nil
}

func (f *fakeS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, aws.ToString(params.Key))

	return &s3.DeleteObjectOutput{}, nil
}

func TestStore_PutOpen(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeS3Client(), "test-bucket", "exp/")

	require.NoError(t, store.Put(ctx, "shards/a.seas", []byte("hello world")))

	t.Run("Open and ReadAt", func(t *testing.T) {
		blob, err := store.Open(ctx, "shards/a.seas")
		require.NoError(t, err)
		defer blob.Close()

		assert.Equal(t, int64(11), blob.Size())

		buf := make([]byte, 5)
		n, err := blob.ReadAt(ctx, buf, 6)
		require.NoError(t, err)
		assert.Equal(t, "world", string(buf[:n]))
	})

	t.Run("Short tail read", func(t *testing.T) {
		blob, err := store.Open(ctx, "shards/a.seas")
		require.NoError(t, err)
		defer blob.Close()

		buf := make([]byte, 5)
		n, err := blob.ReadAt(ctx, buf, 8)
		assert.Equal(t, 3, n)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, "rld", string(buf[:n]))
	})

	t.Run("Past end", func(t *testing.T) {
		blob, err := store.Open(ctx, "shards/a.seas")
		require.NoError(t, err)
		defer blob.Close()

		n, err := blob.ReadAt(ctx, make([]byte, 4), blob.Size())
		assert.Zero(t, n)
		assert.ErrorIs(t, err, io.EOF)

		n, err = blob.ReadAt(ctx, nil, 0)
		assert.Zero(t, n)
		assert.NoError(t, err)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Open(ctx, "shards/missing.seas")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}

func TestStore_Create(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeS3Client(), "test-bucket", "exp")

	w, err := store.Create(ctx, "reports/r1.json")
	require.NoError(t, err)

	_, err = w.Write([]byte(`{"precision":`))
	require.NoError(t, err)
	require.NoError(t, w.Sync())

	_, err = w.Write([]byte(`0.5}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := blobstore.ReadAll(ctx, store, "reports/r1.json")
	require.NoError(t, err)
	assert.Equal(t, `{"precision":0.5}`, string(data))

	ok, err := store.Exists(ctx, "reports/r1.json")
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("Double close", func(t *testing.T) {
		w, err := store.Create(ctx, "reports/r2.json")
		require.NoError(t, err)
		require.NoError(t, w.Close())
		assert.ErrorIs(t, w.Close(), io.ErrClosedPipe)
	})
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3Client()
	client.pageSize = 2 // force pagination

	store := NewStore(client, "test-bucket", "root")

	for _, name := range []string{"data.bin", "reports/r1.json", "reports/r2.json", "reportsextra.bin", "shards/s1.seas"} {
		require.NoError(t, store.Put(ctx, name, []byte(name)))
	}

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"data.bin", "reports/r1.json", "reports/r2.json", "reportsextra.bin", "shards/s1.seas"}, names)

	names, err = store.List(ctx, "reports/")
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/r1.json", "reports/r2.json"}, names)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeS3Client(), "test-bucket", "exp")

	require.NoError(t, store.Put(ctx, "a.bin", []byte("x")))
	require.NoError(t, store.Delete(ctx, "a.bin"))

	ok, err := store.Exists(ctx, "a.bin")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing object succeeds.
	require.NoError(t, store.Delete(ctx, "a.bin"))
}

func TestStore_Fetch(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3Client()

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i * 31)
	}

	writer := NewStore(client, "test-bucket", "pre")
	require.NoError(t, writer.Put(ctx, "big.bin", data))

	// Small download parts force the transfer manager to stitch the
	// object from several ranged GETs.
	reader := NewStore(client, "test-bucket", "pre", func(o *Options) {
		o.PartSize = 64
		o.Concurrency = 3
	})

	got, err := reader.Fetch(ctx, "big.bin")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = reader.Fetch(ctx, "missing.bin")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_MultipartUpload(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeS3Client(), "test-bucket", "exp", func(o *Options) {
		o.PartSize = manager.MinUploadPartSize
		o.Concurrency = 2
	})

	data := make([]byte, manager.MinUploadPartSize+4096)
	for i := range data {
		data[i] = byte(i * 7)
	}

	w, err := store.Create(ctx, "shards/big.seas")
	require.NoError(t, err)

	n, err := w.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	require.NoError(t, w.Close())

	got, err := store.Fetch(ctx, "shards/big.seas")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()

	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg)

	prefix := fmt.Sprintf("seals-test-%d/", time.Now().UnixNano())
	store := NewStore(client, bucket, prefix)

	t.Run("Create and Read", func(t *testing.T) {
		name := "test.blob"
		data := make([]byte, 1024*1024)
		_, err := rand.Read(data)
		require.NoError(t, err)

		w, err := store.Create(ctx, name)
		require.NoError(t, err)

		n, err := w.Write(data)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
		require.NoError(t, w.Close())

		names, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Contains(t, names, name)

		r, err := store.Open(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), r.Size())

		buf := make([]byte, 100)
		n, err = r.ReadAt(ctx, buf, 1024)
		require.NoError(t, err)
		assert.Equal(t, 100, n)
		assert.Equal(t, data[1024:1124], buf)

		fetched, err := store.Fetch(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, data, fetched)

		require.NoError(t, store.Delete(ctx, name))
		require.NoError(t, r.Close())
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Open(ctx, "nonexistent")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}
