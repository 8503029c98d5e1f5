package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/livinlefevreloca/stocksync/internal/stocksource"
)

// ErrSourceDown is returned by FakeSource when failure is enabled
var ErrSourceDown = errors.New("fake source: marketplace unreachable")

// FakeSource is an in-memory stocksource.Source that records every call
type FakeSource struct {
	mu        sync.Mutex
	records   map[string]stocksource.StockRecord
	pageSize  int
	bulkErr   error
	pageErr   error
	failPage  int
	block     chan struct{}
	bulkCalls [][]string
	pageCalls []string
}

func NewFakeSource(records ...stocksource.StockRecord) *FakeSource {
	f := &FakeSource{
		records:  make(map[string]stocksource.StockRecord, len(records)),
		pageSize: 2,
		failPage: -1,
	}
	for _, r := range records {
		f.records[r.SKU] = r
	}
	return f
}

// Available builds a record carrying only an available quantity
func Available(sku string, qty int) stocksource.StockRecord {
	return stocksource.StockRecord{SKU: sku, ProductName: "Product " + sku, AvailableStock: &qty}
}

func (f *FakeSource) SetPageSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSize = n
}

// SetBulkError makes FetchBulkStock fail with err until cleared with nil
func (f *FakeSource) SetBulkError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkErr = err
}

// SetPageError makes the page-th FetchFullCatalog call (0-based) fail with err
func (f *FakeSource) SetPageError(page int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPage = page
	f.pageErr = err
}

// Block makes every call wait until the returned release func is called or ctx ends
func (f *FakeSource) Block() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.block = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *FakeSource) wait(ctx context.Context) error {
	f.mu.Lock()
	ch := f.block
	f.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeSource) FetchBulkStock(ctx context.Context, skus []string) (map[string]stocksource.StockRecord, error) {
	f.mu.Lock()
	f.bulkCalls = append(f.bulkCalls, append([]string(nil), skus...))
	err := f.bulkErr
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	found := make(map[string]stocksource.StockRecord, len(skus))
	for _, sku := range skus {
		if r, ok := f.records[sku]; ok {
			found[sku] = r
		}
	}
	return found, nil
}

func (f *FakeSource) FetchFullCatalog(ctx context.Context, cursor string) (stocksource.Page, error) {
	f.mu.Lock()
	call := len(f.pageCalls)
	f.pageCalls = append(f.pageCalls, cursor)
	failPage, pageErr, pageSize := f.failPage, f.pageErr, f.pageSize
	skus := make([]string, 0, len(f.records))
	for sku := range f.records {
		skus = append(skus, sku)
	}
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return stocksource.Page{}, err
	}
	if call == failPage {
		return stocksource.Page{}, pageErr
	}

	sort.Strings(skus)
	start := 0
	if cursor != "" {
		start = sort.SearchStrings(skus, cursor)
	}
	end := min(start+pageSize, len(skus))

	f.mu.Lock()
	defer f.mu.Unlock()
	page := stocksource.Page{Done: end >= len(skus)}
	for _, sku := range skus[start:end] {
		page.Records = append(page.Records, f.records[sku])
	}
	if !page.Done {
		page.Next = skus[end]
	}
	return page, nil
}

// BulkCalls returns the SKU sets passed to FetchBulkStock
func (f *FakeSource) BulkCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.bulkCalls...)
}

// PageCalls returns how many catalog pages were requested
func (f *FakeSource) PageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pageCalls)
}

// MockClock provides controllable time for testing
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{
		current: start,
	}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}
