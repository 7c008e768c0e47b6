package idempotency

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/stockline/api/internal/platform/firestore"
)

const (
	defaultCollection   = "idempotency_keys"
	defaultCleanupLimit = 200
)

// FirestoreOption customises a FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding entries.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithTxOptions forwards options to every reserve and complete transaction.
func WithTxOptions(opts ...pfirestore.TxOption) FirestoreOption {
	return func(s *FirestoreStore) {
		s.txOpts = append(s.txOpts, opts...)
	}
}

// FirestoreStore keeps entries in a Firestore collection keyed by Key.ID.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	txOpts     []pfirestore.TxOption
}

func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	s := &FirestoreStore{client: client, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *FirestoreStore) doc(key Key) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(key.ID())
}

func (s *FirestoreStore) Reserve(ctx context.Context, claim Claim) (Outcome, Entry, error) {
	claim = claim.normalised()
	ref := s.doc(claim.Key)

	var (
		outcome Outcome
		result  Entry
	)
	err := pfirestore.RunTransaction(ctx, s.client, func(_ context.Context, tx *firestore.Transaction) error {
		current, err := loadEntry(tx, ref)
		if err != nil {
			return err
		}
		outcome, result, err = decide(current, claim)
		if err != nil || outcome != OutcomeAcquired {
			return err
		}
		return tx.Set(ref, encodeEntry(result))
	}, s.txOpts...)
	if err != nil {
		return 0, Entry{}, unwrapMismatch(err)
	}
	return outcome, result, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, claim Claim, resp Response) error {
	claim = claim.normalised()
	ref := s.doc(claim.Key)

	err := pfirestore.RunTransaction(ctx, s.client, func(_ context.Context, tx *firestore.Transaction) error {
		current, err := loadEntry(tx, ref)
		if err != nil {
			return err
		}
		entry, err := completed(current, claim, resp)
		if err != nil {
			return err
		}
		return tx.Set(ref, encodeEntry(entry))
	}, s.txOpts...)
	return unwrapMismatch(err)
}

func (s *FirestoreStore) Release(ctx context.Context, key Key) error {
	_, err := s.doc(key).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return pfirestore.WrapError("idempotency.release", err)
}

func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	docs, err := s.client.Collection(s.collection).
		Where("expiresAt", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.cleanup", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	writer := s.client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := writer.Delete(doc.Ref); err != nil {
			writer.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
	}
	writer.End()
	return len(docs), nil
}

func unwrapMismatch(err error) error {
	if errors.Is(err, ErrFingerprintMismatch) {
		return ErrFingerprintMismatch
	}
	return err
}

type entryDoc struct {
	Scope          string              `firestore:"scope"`
	Fingerprint    string              `firestore:"fingerprint"`
	Route          string              `firestore:"route"`
	State          string              `firestore:"state"`
	ResponseStatus int                 `firestore:"responseStatus"`
	Headers        map[string][]string `firestore:"responseHeaders"`
	Body           []byte              `firestore:"responseBody"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	ExpiresAt      time.Time           `firestore:"expiresAt"`
}

func loadEntry(tx *firestore.Transaction, ref *firestore.DocumentRef) (*Entry, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc entryDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return &Entry{
		Scope:       doc.Scope,
		Fingerprint: doc.Fingerprint,
		Route:       doc.Route,
		State:       State(doc.State),
		Response:    Response{Status: doc.ResponseStatus, Headers: http.Header(doc.Headers), Body: doc.Body},
		CreatedAt:   doc.CreatedAt,
		ExpiresAt:   doc.ExpiresAt,
	}, nil
}

func encodeEntry(e Entry) entryDoc {
	return entryDoc{
		Scope:          e.Scope,
		Fingerprint:    e.Fingerprint,
		Route:          e.Route,
		State:          string(e.State),
		ResponseStatus: e.Response.Status,
		Headers:        e.Response.Headers,
		Body:           e.Response.Body,
		CreatedAt:      e.CreatedAt,
		ExpiresAt:      e.ExpiresAt,
	}
}
