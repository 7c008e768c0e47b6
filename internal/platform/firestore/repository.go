package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
)

// Document is a decoded snapshot plus its server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository reads and writes one collection as T. Each call goes through the
// transaction carried by ctx when there is one.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
}

func NewBaseRepository[T any](provider *Provider, collection string) *BaseRepository[T] {
	return &BaseRepository[T]{provider: provider, collection: strings.TrimSpace(collection)}
}

// Create fails with KindConflict when id already exists.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	return r.write(ctx, "create", id,
		func(tx *firestore.Transaction, ref *firestore.DocumentRef) error { return tx.Create(ref, value) },
		func(ref *firestore.DocumentRef) error { return writeErr(ref.Create(ctx, value)) },
	)
}

func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T) error {
	return r.write(ctx, "set", id,
		func(tx *firestore.Transaction, ref *firestore.DocumentRef) error { return tx.Set(ref, value) },
		func(ref *firestore.DocumentRef) error { return writeErr(ref.Set(ctx, value)) },
	)
}

// Delete of a missing document succeeds.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	return r.write(ctx, "delete", id,
		func(tx *firestore.Transaction, ref *firestore.DocumentRef) error { return tx.Delete(ref) },
		func(ref *firestore.DocumentRef) error { return writeErr(ref.Delete(ctx)) },
	)
}

func (r *BaseRepository[T]) write(ctx context.Context, op, id string, inTx func(*firestore.Transaction, *firestore.DocumentRef) error, direct func(*firestore.DocumentRef) error) error {
	ref, err := r.doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		return WrapError(r.op(op), inTx(tx, ref))
	}
	return WrapError(r.op(op), direct(ref))
}

func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := r.doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	var snap *firestore.DocumentSnapshot
	if tx, ok := TransactionFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return decode[T](snap)
}

func (r *BaseRepository[T]) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// GetAll keeps the order of ids and returns the ids that had no document separately.
func (r *BaseRepository[T]) GetAll(ctx context.Context, ids []string) ([]Document[T], []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	client, err := r.client(ctx)
	if err != nil {
		return nil, nil, err
	}
	coll := client.Collection(r.collection)
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, nil, WrapError(r.op("getall"), errors.New("firestore: document id is required"))
		}
		refs[i] = coll.Doc(id)
	}

	var snaps []*firestore.DocumentSnapshot
	if tx, ok := TransactionFromContext(ctx); ok {
		snaps, err = tx.GetAll(refs)
	} else {
		snaps, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, nil, WrapError(r.op("getall"), err)
	}

	docs := make([]Document[T], 0, len(snaps))
	var missing []string
	for i, snap := range snaps {
		if snap == nil || !snap.Exists() {
			missing = append(missing, ids[i])
			continue
		}
		doc, err := decode[T](snap)
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, doc)
	}
	return docs, missing, nil
}

func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	query, err := r.query(ctx, build)
	if err != nil {
		return nil, err
	}
	var it *firestore.DocumentIterator
	if tx, ok := TransactionFromContext(ctx); ok {
		it = tx.Documents(query)
	} else {
		it = query.Documents(ctx)
	}
	defer it.Stop()

	var docs []Document[T]
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		doc, err := decode[T](snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// Count is a server-side aggregation and never joins a transaction.
func (r *BaseRepository[T]) Count(ctx context.Context, build QueryBuilder) (int, error) {
	query, err := r.query(ctx, build)
	if err != nil {
		return 0, err
	}
	result, err := query.NewAggregationQuery().WithCount("n").Get(ctx)
	if err != nil {
		return 0, WrapError(r.op("count"), err)
	}
	switch v := result["n"].(type) {
	case *firestorepb.Value:
		return int(v.GetIntegerValue()), nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("firestore: unexpected count result %T", v)
	}
}

func (r *BaseRepository[T]) client(ctx context.Context) (*firestore.Client, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("client"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("client"), errors.New("firestore: collection name is required"))
	}
	return r.provider.Client(ctx)
}

func (r *BaseRepository[T]) query(ctx context.Context, build QueryBuilder) (firestore.Query, error) {
	client, err := r.client(ctx)
	if err != nil {
		return firestore.Query{}, err
	}
	query := client.Collection(r.collection).Query
	if build != nil {
		query = build(query)
	}
	return query, nil
}

func (r *BaseRepository[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	client, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection).Doc(id), nil
}

func (r *BaseRepository[T]) op(action string) string {
	if r == nil || r.collection == "" {
		return "firestore." + action
	}
	return r.collection + "." + action
}

func writeErr(_ *firestore.WriteResult, err error) error { return err }

func decode[T any](snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode document %s: %w", snap.Ref.ID, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, CreateTime: snap.CreateTime, UpdateTime: snap.UpdateTime}, nil
}
