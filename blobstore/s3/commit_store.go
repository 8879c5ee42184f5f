package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/seals/blobstore"
)

// CurrentKey is the reserved blob name holding the published report
// pointer. Reads and writes of this name go through DynamoDB instead
// of the wrapped store.
const CurrentKey = blobstore.CurrentKey

// ErrConcurrentCommit is returned when another writer published a new
// version between reading the pointer and committing.
var ErrConcurrentCommit = errors.New("concurrent commit detected")

// DynamoDBAPI is the slice of the DynamoDB API the commit store
// relies on. *dynamodb.Client satisfies it.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// CommitStore wraps a BlobStore and replaces reads and writes of
// CurrentKey with a DynamoDB compare-and-swap, so concurrent
// publishers cannot silently overwrite each other's pointer. All
// other names pass through to the wrapped store unchanged.
//
// The table holds one item per experiment prefix:
//   - Partition key: base_uri (string)
//   - Attributes: version (number), target (string)
//
// Create it with:
//
//	aws dynamodb create-table \
//	  --table-name seals-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S \
//	  --key-schema AttributeName=base_uri,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	inner   blobstore.BlobStore
	ddb     DynamoDBAPI
	table   string
	baseURI string
}

// Compile-time checks to ensure CommitStore satisfies the store interfaces.
var _ blobstore.BlobStore = (*CommitStore)(nil)
var _ blobstore.Fetcher = (*CommitStore)(nil)

// NewCommitStore wraps inner with DynamoDB-coordinated pointer
// updates. baseURI identifies the experiment prefix, conventionally
// "s3://bucket/prefix", and is the table's partition key.
func NewCommitStore(inner blobstore.BlobStore, ddb DynamoDBAPI, table, baseURI string) *CommitStore {
	return &CommitStore{
		inner:   inner,
		ddb:     ddb,
		table:   table,
		baseURI: baseURI,
	}
}

// Current returns the committed pointer version and its target blob
// name. Version 0 with an empty target means nothing has been
// published yet.
func (s *CommitStore) Current(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"base_uri": &ddbtypes.AttributeValueMemberS{Value: s.baseURI},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, "", fmt.Errorf("get commit pointer: %w", err)
	}

	if resp.Item == nil {
		return 0, "", nil
	}

	versionAttr, ok := resp.Item["version"].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("commit item missing version attribute")
	}

	targetAttr, ok := resp.Item["target"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("commit item missing target attribute")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse commit version: %w", err)
	}

	return version, targetAttr.Value, nil
}

// commit advances the pointer to target with a conditional write. The
// condition holds when no item exists yet or when the stored version
// still matches the one read above, so exactly one of any set of
// racing writers wins.
func (s *CommitStore) commit(ctx context.Context, target string) error {
	expected, _, err := s.Current(ctx)
	if err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]ddbtypes.AttributeValue{
			"base_uri": &ddbtypes.AttributeValueMemberS{Value: s.baseURI},
			"version":  &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(expected+1, 10)},
			"target":   &ddbtypes.AttributeValueMemberS{Value: target},
		},
		ConditionExpression: aws.String("attribute_not_exists(base_uri) OR version = :expected"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":expected": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(expected, 10)},
		},
	})
	if err != nil {
		var condErr *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentCommit
		}

		return fmt.Errorf("commit pointer: %w", err)
	}

	return nil
}

// Open opens a blob for reading. Opening CurrentKey serves the
// committed target name from DynamoDB.
func (s *CommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name == CurrentKey {
		version, target, err := s.Current(ctx)
		if err != nil {
			return nil, err
		}

		if version == 0 {
			return nil, blobstore.ErrNotFound
		}

		return &pointerBlob{content: []byte(target)}, nil
	}

	return s.inner.Open(ctx, name)
}

// Put writes a blob. Writing CurrentKey commits data as the new
// pointer target and may fail with ErrConcurrentCommit.
func (s *CommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name == CurrentKey {
		return s.commit(ctx, string(data))
	}

	return s.inner.Put(ctx, name, data)
}

// Create starts a streaming write on the wrapped store. The pointer
// cannot be streamed; commit it with Put.
func (s *CommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if name == CurrentKey {
		return nil, fmt.Errorf("%s must be written with Put", CurrentKey)
	}

	return s.inner.Create(ctx, name)
}

// Delete removes a blob. The pointer itself cannot be deleted; the
// commit history stays authoritative.
func (s *CommitStore) Delete(ctx context.Context, name string) error {
	if name == CurrentKey {
		return fmt.Errorf("%s cannot be deleted", CurrentKey)
	}

	return s.inner.Delete(ctx, name)
}

// List lists blobs in the wrapped store. The pointer lives in
// DynamoDB and is not listed.
func (s *CommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Exists reports whether a blob exists, consulting DynamoDB for
// CurrentKey.
func (s *CommitStore) Exists(ctx context.Context, name string) (bool, error) {
	if name == CurrentKey {
		version, _, err := s.Current(ctx)
		if err != nil {
			return false, err
		}

		return version > 0, nil
	}

	return s.inner.Exists(ctx, name)
}

// Fetch reads a whole blob, taking the wrapped store's fast path when
// it offers one.
func (s *CommitStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	if name == CurrentKey {
		version, target, err := s.Current(ctx)
		if err != nil {
			return nil, err
		}

		if version == 0 {
			return nil, blobstore.ErrNotFound
		}

		return []byte(target), nil
	}

	return blobstore.ReadAll(ctx, s.inner, name)
}

// pointerBlob serves the committed target name as a read-only blob.
type pointerBlob struct {
	content []byte
}

func (b *pointerBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if off < 0 {
		return 0, fmt.Errorf("invalid offset %d", off)
	}

	if off >= int64(len(b.content)) {
		return 0, io.EOF
	}

	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (b *pointerBlob) Size() int64 {
	return int64(len(b.content))
}

func (b *pointerBlob) Close() error {
	return nil
}
