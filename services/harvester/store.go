package harvester

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockharvest-backend/lib/record"
	"stockharvest-backend/services/harvester/db"
)

// SnapshotStore persists harvested documents and per-target harvest
// metadata. Documents are stored as JSON blobs keyed by identity.
type SnapshotStore struct {
	qry *db.Queries
}

func NewSnapshotStore(qry *db.Queries) *SnapshotStore {
	return &SnapshotStore{qry: qry}
}

// GetDocument returns the stored snapshot for a target, or nil when the
// target has never been harvested.
func (s *SnapshotStore) GetDocument(ctx context.Context, key IdentityKey) (*record.Record, error) {
	raw, err := s.qry.GetDocument(ctx, key.String())
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc, err := DecodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", key.String(), err)
	}
	return doc, nil
}

func (s *SnapshotStore) PutDocument(ctx context.Context, key IdentityKey, doc *record.Record) error {
	raw, err := EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", key.String(), err)
	}
	return s.qry.UpsertDocument(ctx, db.UpsertDocumentParams{
		Key:       key.String(),
		Document:  raw,
		UpdatedAt: time.Now().Unix(),
	})
}

// ListDocuments loads every stored snapshot, keyed by identity.
func (s *SnapshotStore) ListDocuments(ctx context.Context) (map[IdentityKey]*record.Record, error) {
	rows, err := s.qry.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	docs := make(map[IdentityKey]*record.Record, len(rows))
	for _, row := range rows {
		doc, err := DecodeDocument(row.Document)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot %q: %w", row.Key, err)
		}
		docs[ParseIdentityKey(row.Key)] = doc
	}
	return docs, nil
}

// LastSuccess returns the last successful harvest time per target. Targets
// with no row have never been harvested.
func (s *SnapshotStore) LastSuccess(ctx context.Context) (map[IdentityKey]time.Time, error) {
	rows, err := s.qry.ListHarvestMetadata(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[IdentityKey]time.Time, len(rows))
	for _, row := range rows {
		key := IdentityKey{BSE: row.Bse, NSE: row.Nse, ISIN: row.Isin}
		out[key] = time.Unix(row.UpdatedAt, 0)
	}
	return out, nil
}

// RecordHarvest marks a target as successfully harvested now.
func (s *SnapshotStore) RecordHarvest(ctx context.Context, target Target, slug string) error {
	key := target.Key()
	return s.qry.UpsertHarvestMetadata(ctx, db.UpsertHarvestMetadataParams{
		Bse:       key.BSE,
		Nse:       key.NSE,
		Isin:      key.ISIN,
		Name:      target.Name,
		Slug:      slug,
		UpdatedAt: time.Now().Unix(),
	})
}
