package documents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]Blob
	buckets map[string]bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]Blob{}, buckets: map[string]bool{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[aws.ToString(in.Bucket)] = true
	f.objects[aws.ToString(in.Key)] = Blob{Data: data, ContentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(b.Data)),
		ContentType: aws.String(b.ContentType),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func testBlobStore(t *testing.T, store BlobStore) {
	ctx := context.Background()
	key := Key("p-1", "Proposal", "Project Proposal", "Proposal v2.PDF")

	_, err := store.Get(ctx, key)
	require.True(t, errors.Is(err, ErrNotFound), "get missing: %v", err)

	require.NoError(t, store.Put(ctx, key, Blob{Data: []byte("%PDF-1.7"), ContentType: "application/pdf"}))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), got.Data)
	assert.Equal(t, "application/pdf", got.ContentType)

	require.NoError(t, store.Put(ctx, key, Blob{Data: []byte("replaced")}))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), got.Data)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting twice is fine")
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBlobStore(t *testing.T) {
	testBlobStore(t, NewMemoryBlobStore())
}

func TestMemoryBlobStore_CopiesData(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()
	data := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", Blob{Data: data}))
	data[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got.Data))
}

func TestS3BlobStore(t *testing.T) {
	fake := newFakeS3()
	testBlobStore(t, NewS3BlobStoreFromClient(fake, "abemis-documents"))
	assert.True(t, fake.buckets["abemis-documents"])
}

func TestNewS3BlobStore_RequiresBucket(t *testing.T) {
	_, err := NewS3BlobStore(context.Background(), S3Options{Region: "ap-southeast-1"})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	tests := []struct {
		project, stage, doc, file string
		want                      string
	}{
		{"p-1", "Proposal", "Project Proposal", "proposal.pdf", "projects/p-1/proposal/project-proposal/proposal.pdf"},
		{"p-1", "For Delivery", "Delivery Schedule", "Sched (final).XLSX", "projects/p-1/for-delivery/delivery-schedule/sched-final.xlsx"},
		{"p-1", "Proposal", "Letter", "../../etc/passwd", "projects/p-1/proposal/letter/passwd"},
		{"p-1", "Proposal", "Letter", "", "projects/p-1/proposal/letter/file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Key(tt.project, tt.stage, tt.doc, tt.file))
	}
}
