package s3

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/seals/blobstore"
)

// fakeDynamoDB is an in-memory DynamoDB for testing. It evaluates the
// commit store's conditional write, and beforePut lets a test splice
// a competing commit between the pointer read and the write.
type fakeDynamoDB struct {
	mu        sync.RWMutex
	items     map[string]map[string]ddbtypes.AttributeValue
	beforePut func()
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{
		items: make(map[string]map[string]ddbtypes.AttributeValue),
	}
}

func (m *fakeDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pk := params.Key["base_uri"].(*ddbtypes.AttributeValueMemberS).Value

	if item, ok := m.items[pk]; ok {
		return &dynamodb.GetItemOutput{Item: item}, nil
	}

	return &dynamodb.GetItemOutput{}, nil
}

func (m *fakeDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if hook := m.beforePut; hook != nil {
		m.beforePut = nil
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pk := params.Item["base_uri"].(*ddbtypes.AttributeValueMemberS).Value

	// Evaluates "attribute_not_exists(base_uri) OR version = :expected".
	if params.ConditionExpression != nil {
		if stored, exists := m.items[pk]; exists {
			expected := params.ExpressionAttributeValues[":expected"].(*ddbtypes.AttributeValueMemberN).Value
			current := stored["version"].(*ddbtypes.AttributeValueMemberN).Value

			if current != expected {
				return nil, &ddbtypes.ConditionalCheckFailedException{Message: aws.String("condition failed")}
			}
		}
	}

	m.items[pk] = params.Item

	return &dynamodb.PutItemOutput{}, nil
}

func newTestCommitStore(ddb *fakeDynamoDB, baseURI string) *CommitStore {
	return NewCommitStore(blobstore.NewMemoryStore(), ddb, "seals-commits", baseURI)
}

func TestCommitStore_FirstCommit(t *testing.T) {
	ctx := context.Background()
	store := newTestCommitStore(newFakeDynamoDB(), "s3://test-bucket/exp/")

	_, err := store.Open(ctx, CurrentKey)
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	ok, err := store.Exists(ctx, CurrentKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, CurrentKey, []byte("reports/r-00001.json")))

	version, target, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, "reports/r-00001.json", target)

	blob, err := store.Open(ctx, CurrentKey)
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, blob.Size())
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "reports/r-00001.json", string(buf[:n]))

	ok, err = store.Exists(ctx, CurrentKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCommitStore_Advance(t *testing.T) {
	ctx := context.Background()
	store := newTestCommitStore(newFakeDynamoDB(), "s3://test-bucket/exp/")

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Put(ctx, CurrentKey, []byte(fmt.Sprintf("reports/r-%05d.json", i))))
	}

	version, target, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), version)
	assert.Equal(t, "reports/r-00003.json", target)

	data, err := blobstore.ReadAll(ctx, store, CurrentKey)
	require.NoError(t, err)
	assert.Equal(t, "reports/r-00003.json", string(data))
}

func TestCommitStore_ConflictingCommit(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamoDB()
	store := newTestCommitStore(ddb, "s3://test-bucket/exp/")

	require.NoError(t, store.Put(ctx, CurrentKey, []byte("reports/r1.json")))

	// A rival publishes between our pointer read and conditional write.
	ddb.beforePut = func() {
		rival := newTestCommitStore(ddb, "s3://test-bucket/exp/")
		require.NoError(t, rival.Put(ctx, CurrentKey, []byte("reports/rival.json")))
	}

	err := store.Put(ctx, CurrentKey, []byte("reports/r2.json"))
	assert.ErrorIs(t, err, ErrConcurrentCommit)

	// The rival's pointer survived.
	version, target, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, "reports/rival.json", target)
}

func TestCommitStore_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	store := newTestCommitStore(newFakeDynamoDB(), "s3://test-bucket/exp/")

	require.NoError(t, store.Put(ctx, CurrentKey, []byte("reports/r1.json")))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < 4; i++ {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			err := store.Put(ctx, CurrentKey, []byte(fmt.Sprintf("reports/r%d.json", id+2)))

			mu.Lock()
			defer mu.Unlock()

			switch err {
			case nil:
				successes++
			case ErrConcurrentCommit:
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	assert.Greater(t, successes, 0, "at least one writer should succeed")

	// Every successful commit advanced the version by exactly one.
	version, _, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1+successes), version)
}

func TestCommitStore_Passthrough(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	store := NewCommitStore(inner, newFakeDynamoDB(), "seals-commits", "s3://test-bucket/exp/")

	require.NoError(t, store.Put(ctx, "reports/r1.json", []byte("body")))

	// Landed in the wrapped store, not DynamoDB.
	data, err := blobstore.ReadAll(ctx, inner, "reports/r1.json")
	require.NoError(t, err)
	assert.Equal(t, "body", string(data))

	w, err := store.Create(ctx, "shards/s1.seas")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, store.Put(ctx, CurrentKey, []byte("reports/r1.json")))

	// The pointer lives in DynamoDB and is not listed.
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/r1.json", "shards/s1.seas"}, names)

	data, err = store.Fetch(ctx, "shards/s1.seas")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, store.Delete(ctx, "shards/s1.seas"))

	ok, err := store.Exists(ctx, "shards/s1.seas")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommitStore_GuardedNames(t *testing.T) {
	ctx := context.Background()
	store := newTestCommitStore(newFakeDynamoDB(), "s3://test-bucket/exp/")

	_, err := store.Create(ctx, CurrentKey)
	assert.Error(t, err)

	assert.Error(t, store.Delete(ctx, CurrentKey))
}

func TestCommitStore_IsolatedPrefixes(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamoDB()

	store1 := newTestCommitStore(ddb, "s3://bucket-a/exp/")
	store2 := newTestCommitStore(ddb, "s3://bucket-b/exp/")

	require.NoError(t, store1.Put(ctx, CurrentKey, []byte("reports/a.json")))
	require.NoError(t, store2.Put(ctx, CurrentKey, []byte("reports/b.json")))

	_, target1, err := store1.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reports/a.json", target1)

	_, target2, err := store2.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reports/b.json", target2)
}

func TestIntegration_CommitStore(t *testing.T) {
	table := os.Getenv("COMMITS_TABLE")
	if table == "" {
		t.Skip("Skipping DynamoDB integration test: COMMITS_TABLE not set")
	}

	ctx := context.Background()

	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	client := dynamodb.NewFromConfig(cfg)

	baseURI := fmt.Sprintf("seals-test-%d", time.Now().UnixNano())
	store := NewCommitStore(blobstore.NewMemoryStore(), client, table, baseURI)

	require.NoError(t, store.Put(ctx, CurrentKey, []byte("reports/a.json")))

	version, target, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, "reports/a.json", target)

	require.NoError(t, store.Put(ctx, CurrentKey, []byte("reports/b.json")))

	version, target, err = store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, "reports/b.json", target)
}
