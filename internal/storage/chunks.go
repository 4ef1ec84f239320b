package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Document is one ingested knowledge source.
type Document struct {
	Source     string    `json:"source"`
	Hash       string    `json:"hash"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk is one searchable passage of a document.
type Chunk struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Page    int    `json:"page,omitempty"`
	Section string `json:"section,omitempty"`
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// ReplaceDocument swaps all chunks of source for the given ones in one transaction.
func (db *DB) ReplaceDocument(ctx context.Context, source, hash string, chunks []Chunk) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM knowledge_chunks WHERE source = ?", source); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_documents (source, hash, chunk_count, ingested_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(source) DO UPDATE SET hash = excluded.hash,
			   chunk_count = excluded.chunk_count, ingested_at = excluded.ingested_at`,
			source, hash, len(chunks), time.Now(),
		)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO knowledge_chunks (id, source, page, section, chunk_index, content)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, c.ID, source, c.Page, c.Section, c.Index, c.Content); err != nil {
				return err
			}
		}
		return nil
	})
}

// DocumentHash returns the content hash recorded for source.
func (db *DB) DocumentHash(ctx context.Context, source string) (string, error) {
	var hash string
	err := db.QueryRowContext(ctx,
		"SELECT hash FROM knowledge_documents WHERE source = ?", source,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return hash, err
}

// DeleteDocument removes a document and, by cascade, its chunks.
func (db *DB) DeleteDocument(ctx context.Context, source string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM knowledge_documents WHERE source = ?", source)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocuments returns every ingested document ordered by source.
func (db *DB) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT source, hash, chunk_count, ingested_at FROM knowledge_documents ORDER BY source")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Source, &d.Hash, &d.ChunkCount, &d.IngestedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// AllChunks loads every chunk, ordered by source and position.
func (db *DB) AllChunks(ctx context.Context) ([]Chunk, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, source, page, section, chunk_index, content
		 FROM knowledge_chunks ORDER BY source, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Source, &c.Page, &c.Section, &c.Index, &c.Content); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
