package store

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/exposure/config"
)

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	// pageSize limits ListObjectsV2 results to exercise continuation.
	pageSize int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), pageSize: 2}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
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
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		i := sort.SearchStrings(keys, tok)
		keys = keys[i:]
	}
	out := &s3.ListObjectsV2Output{}
	if len(keys) > f.pageSize {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[f.pageSize])
		keys = keys[:f.pageSize]
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db")),
		"badger": NewBadgerStore(InMemoryBadgerConfig()),
		"s3":     NewS3StoreWithClient(S3Config{Bucket: "runs", Prefix: "exposure"}, newFakeS3()),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Init(ctx))
			defer s.Close()

			_, ok, err := s.Latest(ctx, "run-a")
			require.NoError(t, err)
			assert.False(t, ok, "latest of empty run")

			for _, tick := range []int32{24, 0, 12, 48, 9} {
				require.NoError(t, s.Save(ctx, Checkpoint{
					Run:     "run-a",
					Tick:    tick,
					Time:    float64(tick) * 3600,
					Payload: []byte{byte(tick), 1, 2},
				}))
			}
			require.NoError(t, s.Save(ctx, Checkpoint{Run: "run-b", Tick: 99, Payload: []byte{7}}))

			ticks, err := s.List(ctx, "run-a")
			require.NoError(t, err)
			assert.Equal(t, []int32{0, 9, 12, 24, 48}, ticks)

			cp, ok, err := s.Load(ctx, "run-a", 12)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 12.0*3600, cp.Time)
			assert.Equal(t, []byte{12, 1, 2}, cp.Payload)

			_, ok, err = s.Load(ctx, "run-a", 13)
			require.NoError(t, err)
			assert.False(t, ok)

			latest, ok, err := s.Latest(ctx, "run-a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int32(48), latest.Tick)
			assert.Equal(t, []byte{48, 1, 2}, latest.Payload)

			// Overwrite in place.
			require.NoError(t, s.Save(ctx, Checkpoint{Run: "run-a", Tick: 48, Time: 1, Payload: []byte{0}}))
			latest, _, err = s.Latest(ctx, "run-a")
			require.NoError(t, err)
			assert.Equal(t, []byte{0}, latest.Payload)
			assert.Equal(t, 1.0, latest.Time)
		})
	}
}

func TestStoreNotInitialized(t *testing.T) {
	ctx := context.Background()
	for name, s := range map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore("unused.db"),
		"badger": NewBadgerStore(InMemoryBadgerConfig()),
		"s3":     NewS3Store(S3Config{Bucket: "runs"}),
	} {
		t.Run(name, func(t *testing.T) {
			err := s.Save(ctx, Checkpoint{Run: "r"})
			assert.ErrorIs(t, err, ErrNotInitialized)
		})
	}
}

func TestBadgerStoreOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := DefaultBadgerConfig(dir)
	cfg.GCInterval = 0
	s := NewBadgerStore(cfg)
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Save(ctx, Checkpoint{Run: "r", Tick: 3, Time: 2.5, Payload: []byte("state")}))
	require.NoError(t, s.Close())

	s = NewBadgerStore(cfg)
	require.NoError(t, s.Init(ctx))
	defer s.Close()
	cp, ok, err := s.Latest(ctx, "r")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "state", string(cp.Payload))
	assert.Equal(t, 2.5, cp.Time)
}

func TestDecodeRecordCorrupt(t *testing.T) {
	_, err := decodeRecord("r", 1, []byte{0x05, 1})
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		driver  string
		want    any
		wantErr bool
	}{
		{"", &MemoryStore{}, false},
		{"memory", &MemoryStore{}, false},
		{"sqlite", &SQLiteStore{}, false},
		{"badger", &BadgerStore{}, false},
		{"s3", &S3Store{}, false},
		{"postgres", nil, true},
	}
	for _, tt := range tests {
		s, err := NewStore(config.StoreConfig{Driver: tt.driver, Path: "x"}, nil)
		if tt.wantErr {
			assert.Error(t, err, tt.driver)
			continue
		}
		require.NoError(t, err, tt.driver)
		assert.IsType(t, tt.want, s, tt.driver)
	}
}
