package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cyclone1070/artifactsync/internal/config"
)

// mockS3 is an in-memory s3API.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// exerciseStore runs the common contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "conv-1", []byte(`{"a":1}`)))
	require.NoError(t, s.Set(ctx, "conv-2", []byte(`{"b":2}`)))

	data, ok, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(data))

	// Overwrite
	require.NoError(t, s.Set(ctx, "conv-1", []byte(`{"a":3}`)))
	data, _, err = s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":3}`, string(data))

	require.NoError(t, s.Delete(ctx, "conv-1"))
	_, ok, err = s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other keys untouched
	_, ok, err = s.Get(ctx, "conv-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_CopiesOnSet(t *testing.T) {
	m := NewMemory()
	buf := []byte("abc")
	require.NoError(t, m.Set(context.Background(), "k", buf))
	buf[0] = 'z'

	data, _, _ := m.Get(context.Background(), "k")
	assert.Equal(t, "abc", string(data))
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "blobs.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	assert.Equal(t, path, s.Path())
	exerciseStore(t, s)
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "conv", []byte("persisted")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	data, ok, err := s.Get(ctx, "conv")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", string(data))
}

func TestS3(t *testing.T) {
	api := newMockS3()
	s := newS3WithClient(api, "bucket", "conversations/")
	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "x", []byte("y")))
	_, ok := api.objects["bucket/conversations/x.json"]
	assert.True(t, ok)
}

func TestS3_PutError(t *testing.T) {
	api := newMockS3()
	api.putErr = errors.New("access denied")
	s := newS3WithClient(api, "bucket", "")

	err := s.Set(context.Background(), "x", []byte("y"))
	require.Error(t, err)
	assert.ErrorIs(t, err, api.putErr)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.StoreConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = New(ctx, config.StoreConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "b.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	s.(*SQLite).Close()

	_, err = New(ctx, config.StoreConfig{Backend: "etcd"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
