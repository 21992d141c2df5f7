package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/deal-radar/internal/models"
)

// DefaultCollection holds one document per deal, the document ID being the dedupe key.
const DefaultCollection = "deals"

// snapshotFields are the only fields the health checker reads back.
var snapshotFields = []string{"status", "evidence_urls", "seen_count", "last_seen_at"}

type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore connects to Firestore. An empty collection selects DefaultCollection.
// When FIRESTORE_EMULATOR_HOST is set the client library talks to the emulator.
func NewFirestore(ctx context.Context, projectID, collection string, opts ...option.ClientOption) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

func (c *FirestoreStore) Close() error {
	return c.client.Close()
}

func (c *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return c.client.Collection(c.collection).Doc(key)
}

// GetDeal retrieves a deal by its dedupe key. A missing document is (nil, nil).
func (c *FirestoreStore) GetDeal(ctx context.Context, key string) (*models.Deal, error) {
	doc, err := c.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, classify(models.ErrLookup, key, err)
	}
	return decodeDeal(doc)
}

// CreateDeal fails with models.ErrDealExists if another writer got there first.
func (c *FirestoreStore) CreateDeal(ctx context.Context, deal models.Deal) error {
	_, err := c.doc(deal.DedupeKey).Create(ctx, deal)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return models.ErrDealExists
		}
		return classify(models.ErrWrite, deal.DedupeKey, err)
	}
	return nil
}

// PutDeal overwrites the whole document.
func (c *FirestoreStore) PutDeal(ctx context.Context, deal models.Deal) error {
	if _, err := c.doc(deal.DedupeKey).Set(ctx, deal); err != nil {
		return classify(models.ErrWrite, deal.DedupeKey, err)
	}
	return nil
}

// UpdateDealTx runs fn inside a Firestore transaction. The read takes a lock on the document
// (or its absence), so a concurrent curator write either lands before the read or aborts
// and retries the transaction.
func (c *FirestoreStore) UpdateDealTx(ctx context.Context, key string, fn UpdateFunc) error {
	ref := c.doc(key)
	err := c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var existing *models.Deal
		doc, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return classify(models.ErrLookup, key, err)
		default:
			existing, err = decodeDeal(doc)
			if err != nil {
				return err
			}
		}

		next, err := fn(existing)
		if err != nil || next == nil {
			return err
		}
		if err := tx.Set(ref, *next); err != nil {
			return classify(models.ErrWrite, key, err)
		}
		return nil
	})
	return classify(models.ErrWrite, key, err)
}

func (c *FirestoreStore) ScanDeals(ctx context.Context, fn func(models.Deal) error) error {
	iter := c.client.Collection(c.collection).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to iterate deals: %w", err)
		}
		deal, err := decodeDeal(doc)
		if err != nil {
			return err
		}
		if err := fn(*deal); err != nil {
			return err
		}
	}
}

type firestoreSnapshot struct {
	Status       models.Status `firestore:"status"`
	EvidenceURLs []string      `firestore:"evidence_urls"`
	SeenCount    *int          `firestore:"seen_count"`
	LastSeenAt   *time.Time    `firestore:"last_seen_at"`
}

// ScanSnapshots projects only the audited fields, so a missing seen_count stays nil.
func (c *FirestoreStore) ScanSnapshots(ctx context.Context, fn func(models.DealSnapshot) error) error {
	iter := c.client.Collection(c.collection).Select(snapshotFields...).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to iterate deal snapshots: %w", err)
		}
		var s firestoreSnapshot
		if err := doc.DataTo(&s); err != nil {
			return fmt.Errorf("failed to unmarshal deal snapshot %s: %w", doc.Ref.ID, err)
		}
		if err := fn(models.DealSnapshot{
			DedupeKey:    doc.Ref.ID,
			Status:       s.Status,
			EvidenceURLs: len(s.EvidenceURLs),
			SeenCount:    s.SeenCount,
			LastSeenAt:   s.LastSeenAt,
		}); err != nil {
			return err
		}
	}
}

func (c *FirestoreStore) DealsByStatus(ctx context.Context, st models.Status) ([]models.Deal, error) {
	iter := c.client.Collection(c.collection).Where("status", "==", string(st)).Documents(ctx)
	defer iter.Stop()
	var out []models.Deal
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query %s deals: %w", st, err)
		}
		deal, err := decodeDeal(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *deal)
	}
}

// CountDeals uses a server-side count aggregation.
func (c *FirestoreStore) CountDeals(ctx context.Context) (int, error) {
	res, err := c.client.Collection(c.collection).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count deals: %w", err)
	}
	v, ok := res["all"]
	if !ok {
		return 0, errors.New("count aggregation result was invalid: 'all' key missing")
	}
	return countValue(v)
}

func countValue(v interface{}) (int, error) {
	switch val := v.(type) {
	case int64:
		return int(val), nil
	case *firestorepb.Value:
		return int(val.GetIntegerValue()), nil
	}
	return 0, fmt.Errorf("count aggregation result has unexpected type %T", v)
}

func decodeDeal(doc *firestore.DocumentSnapshot) (*models.Deal, error) {
	if !doc.Exists() {
		return nil, nil
	}
	var deal models.Deal
	if err := doc.DataTo(&deal); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal deal %s: %w", models.ErrLookup, doc.Ref.ID, err)
	}
	if deal.DedupeKey == "" {
		deal.DedupeKey = doc.Ref.ID
	}
	return &deal, nil
}
