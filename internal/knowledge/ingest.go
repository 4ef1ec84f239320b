package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"pawbot/internal/storage"
	"pawbot/pkg/logger"
)

// docEntry is one element of a prepared docs.json list.
type docEntry struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	SourceFile string `json:"source_file,omitempty"`
	Page       *int   `json:"page,omitempty"`
	Section    string `json:"section,omitempty"`
}

// IngestStats summarizes one ingest run.
type IngestStats struct {
	Files   int `json:"files"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Removed int `json:"removed"`
	Chunks  int `json:"chunks"`
}

// Ingester loads documents from a directory into the chunk table.
type Ingester struct {
	db      *storage.DB
	index   *SQLiteIndex
	chunker *Chunker
	root    string
}

// NewIngester creates an Ingester for the documents under root. index, if
// not nil, is refreshed after changes.
func NewIngester(db *storage.DB, index *SQLiteIndex, root string, opts ChunkerOptions) *Ingester {
	return &Ingester{db: db, index: index, chunker: NewChunker(opts), root: root}
}

// Root returns the documents directory.
func (in *Ingester) Root() string { return in.root }

// Supported reports whether the ingester reads files with this name.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt", ".json":
		return true
	}
	return false
}

// Sync ingests every supported file under the root and removes documents
// whose files are gone.
func (in *Ingester) Sync(ctx context.Context) (IngestStats, error) {
	var stats IngestStats
	if _, err := os.Stat(in.root); errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Str("dir", in.root).Msg("documents directory missing, nothing to ingest")
		return stats, nil
	}
	seen := make(map[string]bool)

	err := filepath.WalkDir(in.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != in.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !Supported(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		sources, err := in.ingestFile(ctx, path, &stats)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("ingest failed")
			return nil
		}
		for _, s := range sources {
			seen[s] = true
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("knowledge: walk %s: %w", in.root, err)
	}

	docs, err := in.db.ListDocuments(ctx)
	if err != nil {
		return stats, fmt.Errorf("knowledge: list documents: %w", err)
	}
	for _, d := range docs {
		if seen[d.Source] {
			continue
		}
		if err := in.db.DeleteDocument(ctx, d.Source); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return stats, fmt.Errorf("knowledge: remove %s: %w", d.Source, err)
		}
		stats.Removed++
	}

	return stats, in.refresh(ctx, stats)
}

// IngestFiles re-reads the given paths. Paths that no longer exist are
// removed from the index.
func (in *Ingester) IngestFiles(ctx context.Context, paths []string) (IngestStats, error) {
	var stats IngestStats
	var errs []error

	for _, path := range paths {
		if !Supported(path) {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			source, err := in.source(path)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := in.db.DeleteDocument(ctx, source); err == nil {
				stats.Removed++
			} else if !errors.Is(err, storage.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		if _, err := in.ingestFile(ctx, path, &stats); err != nil {
			errs = append(errs, err)
		}
	}

	if err := in.refresh(ctx, stats); err != nil {
		errs = append(errs, err)
	}
	return stats, errors.Join(errs...)
}

func (in *Ingester) refresh(ctx context.Context, stats IngestStats) error {
	logger.Info().
		Int("files", stats.Files).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("removed", stats.Removed).
		Int("chunks", stats.Chunks).
		Msg("knowledge ingest finished")

	if in.index == nil || (stats.Updated == 0 && stats.Removed == 0 && in.index.Size() > 0) {
		return nil
	}
	return in.index.Refresh(ctx)
}

// ingestFile stores one file and returns the sources it produced.
func (in *Ingester) ingestFile(ctx context.Context, path string, stats *IngestStats) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stats.Files++

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return in.ingestJSON(ctx, path, data, stats)
	}

	source, err := in.source(path)
	if err != nil {
		return nil, err
	}
	markdown := strings.EqualFold(filepath.Ext(path), ".md") || strings.EqualFold(filepath.Ext(path), ".markdown")
	return []string{source}, in.store(ctx, source, hashBytes(data), Pieces(string(data), markdown), stats)
}

func (in *Ingester) ingestJSON(ctx context.Context, path string, data []byte, stats *IngestStats) ([]string, error) {
	var entries []docEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s is not a document list: %v", ErrUnsupportedFile, path, err)
	}

	groups := make(map[string][]Piece)
	var order []string
	for _, e := range entries {
		source := e.Source
		if source == "" {
			source = e.SourceFile
		}
		if source == "" || strings.TrimSpace(e.Text) == "" {
			continue
		}
		if _, ok := groups[source]; !ok {
			order = append(order, source)
		}
		p := Piece{Text: e.Text, Section: e.Section}
		if e.Page != nil {
			p.Page = *e.Page
		}
		groups[source] = append(groups[source], p)
	}
	sort.Strings(order)

	for _, source := range order {
		pieces := groups[source]
		raw, err := json.Marshal(pieces)
		if err != nil {
			return nil, err
		}
		if err := in.store(ctx, source, hashBytes(raw), pieces, stats); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// store replaces a document's chunks unless its hash is unchanged.
func (in *Ingester) store(ctx context.Context, source, hash string, pieces []Piece, stats *IngestStats) error {
	old, err := in.db.DocumentHash(ctx, source)
	if err == nil && old == hash {
		stats.Skipped++
		return nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	var chunks []storage.Chunk
	for _, p := range pieces {
		for _, text := range in.chunker.Split(p.Text) {
			idx := len(chunks)
			chunks = append(chunks, storage.Chunk{
				ID:      chunkID(source, idx),
				Source:  source,
				Page:    p.Page,
				Section: p.Section,
				Index:   idx,
				Content: text,
			})
		}
	}

	if err := in.db.ReplaceDocument(ctx, source, hash, chunks); err != nil {
		return fmt.Errorf("knowledge: store %s: %w", source, err)
	}
	stats.Updated++
	stats.Chunks += len(chunks)
	logger.Debug().Str("source", source).Int("chunks", len(chunks)).Msg("document ingested")
	return nil
}

func (in *Ingester) source(path string) (string, error) {
	root, err := filepath.Abs(in.root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return filepath.ToSlash(rel), nil
}

func chunkID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"#"+strconv.Itoa(index))).String()
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
