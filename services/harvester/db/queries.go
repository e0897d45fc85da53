package db

import (
	"context"
	"database/sql"
)

const getDocument = `
SELECT document FROM documents WHERE key = ?
`

func (q *Queries) GetDocument(ctx context.Context, key string) (string, error) {
	row := q.db.QueryRowContext(ctx, getDocument, key)
	var document string
	err := row.Scan(&document)
	return document, err
}

const upsertDocument = `
INSERT INTO documents (key, document, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
    document = excluded.document,
    updated_at = excluded.updated_at
`

type UpsertDocumentParams struct {
	Key       string
	Document  string
	UpdatedAt int64
}

func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	_, err := q.db.ExecContext(ctx, upsertDocument, arg.Key, arg.Document, arg.UpdatedAt)
	return err
}

const listDocuments = `
SELECT key, document FROM documents ORDER BY key
`

type ListDocumentsRow struct {
	Key      string
	Document string
}

func (q *Queries) ListDocuments(ctx context.Context) ([]ListDocumentsRow, error) {
	rows, err := q.db.QueryContext(ctx, listDocuments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListDocumentsRow
	for rows.Next() {
		var i ListDocumentsRow
		if err := rows.Scan(&i.Key, &i.Document); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertHarvestMetadata = `
INSERT INTO harvest_metadata (bse, nse, isin, name, slug, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (bse, nse, isin) DO UPDATE SET
    name = excluded.name,
    slug = excluded.slug,
    updated_at = excluded.updated_at
`

type UpsertHarvestMetadataParams struct {
	Bse       string
	Nse       string
	Isin      string
	Name      string
	Slug      string
	UpdatedAt int64
}

func (q *Queries) UpsertHarvestMetadata(ctx context.Context, arg UpsertHarvestMetadataParams) error {
	_, err := q.db.ExecContext(ctx, upsertHarvestMetadata,
		arg.Bse, arg.Nse, arg.Isin, arg.Name, arg.Slug, arg.UpdatedAt)
	return err
}

const listHarvestMetadata = `
SELECT bse, nse, isin, name, slug, updated_at FROM harvest_metadata
`

type ListHarvestMetadataRow struct {
	Bse       string
	Nse       string
	Isin      string
	Name      string
	Slug      string
	UpdatedAt int64
}

func (q *Queries) ListHarvestMetadata(ctx context.Context) ([]ListHarvestMetadataRow, error) {
	rows, err := q.db.QueryContext(ctx, listHarvestMetadata)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListHarvestMetadataRow
	for rows.Next() {
		var i ListHarvestMetadataRow
		if err := rows.Scan(&i.Bse, &i.Nse, &i.Isin, &i.Name, &i.Slug, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var ErrNoRows = sql.ErrNoRows
