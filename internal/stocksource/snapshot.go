package stocksource

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPageSize is the number of records a snapshot returns per catalog page
const DefaultPageSize = 500

// snapshotFile is the on-disk layout of a marketplace catalog export
type snapshotFile struct {
	Records []StockRecord `yaml:"records"`
}

// SnapshotSource serves stock from a YAML export of the marketplace catalog.
type SnapshotSource struct {
	records  []StockRecord
	bySKU    map[string]int
	pageSize int
}

// LoadSnapshot reads a catalog export from path
func LoadSnapshot(path string, pageSize int) (*SnapshotSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	return ParseSnapshot(f, pageSize)
}

// ParseSnapshot decodes a catalog export. A SKU listed twice keeps its last record.
func ParseSnapshot(r io.Reader, pageSize int) (*SnapshotSource, error) {
	var file snapshotFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return NewSnapshotSource(file.Records, pageSize)
}

// NewSnapshotSource serves the given records
func NewSnapshotSource(records []StockRecord, pageSize int) (*SnapshotSource, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	s := &SnapshotSource{
		records:  make([]StockRecord, 0, len(records)),
		bySKU:    make(map[string]int, len(records)),
		pageSize: pageSize,
	}

	for i, rec := range records {
		rec.SKU = strings.TrimSpace(rec.SKU)
		if rec.SKU == "" {
			return nil, fmt.Errorf("snapshot record %d has no sku", i)
		}
		if pos, ok := s.bySKU[rec.SKU]; ok {
			s.records[pos] = rec
			continue
		}
		s.bySKU[rec.SKU] = len(s.records)
		s.records = append(s.records, rec)
	}

	return s, nil
}

// Len returns the number of distinct SKUs in the snapshot
func (s *SnapshotSource) Len() int {
	return len(s.records)
}

// FetchBulkStock returns the records for the requested SKUs that exist in the snapshot
func (s *SnapshotSource) FetchBulkStock(ctx context.Context, skus []string) (map[string]StockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found := make(map[string]StockRecord, len(skus))
	for _, sku := range skus {
		if pos, ok := s.bySKU[sku]; ok {
			found[sku] = s.records[pos]
		}
	}
	return found, nil
}

// FetchFullCatalog pages through the snapshot. The cursor is the offset of the
// next record; an empty cursor starts from the beginning.
func (s *SnapshotSource) FetchFullCatalog(ctx context.Context, cursor string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(s.records) {
			return Page{}, fmt.Errorf("invalid catalog cursor %q", cursor)
		}
		offset = n
	}

	end := min(offset+s.pageSize, len(s.records))
	page := Page{
		Records: append([]StockRecord(nil), s.records[offset:end]...),
		Done:    end >= len(s.records),
	}
	if !page.Done {
		page.Next = strconv.Itoa(end)
	}
	return page, nil
}
