package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories"
)

// memoryStore is an in-memory canonical store with the same uniqueness rule as MySQL
type memoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []*models.Transaction
	// raceOnInsert makes ExistsBySource miss so the insert hits the unique key
	raceOnInsert bool
	insertErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

func (m *memoryStore) find(system models.SourceSystem, sourceID string) *models.Transaction {
	for _, t := range m.rows {
		if t.SourceSystem == system && t.SourceTransactionID != "" && t.SourceTransactionID == sourceID {
			return t
		}
	}
	return nil
}

func (m *memoryStore) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if t.SourceTransactionID != "" && m.find(t.SourceSystem, t.SourceTransactionID) != nil {
		return repositories.ErrDuplicateSource
	}
	m.nextID++
	stored := *t
	stored.ID = m.nextID
	m.rows = append(m.rows, &stored)
	t.ID = stored.ID
	return nil
}

func (m *memoryStore) ExistsBySource(ctx context.Context, system models.SourceSystem, sourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raceOnInsert {
		return false, nil
	}
	return m.find(system, sourceID) != nil, nil
}

func backfill(t *models.Transaction, links models.Links) bool {
	changed := false
	fill := func(dst *sql.NullInt64, src sql.NullInt64) {
		if !dst.Valid && src.Valid {
			*dst = src
			changed = true
		}
	}
	fill(&t.PropertyID, links.PropertyID)
	fill(&t.InvoiceID, links.InvoiceID)
	fill(&t.TenantID, links.TenantID)
	fill(&t.OwnerID, links.OwnerID)
	fill(&t.BeneficiaryID, links.BeneficiaryID)
	if !t.PaymentBatchID.Valid && links.PaymentBatchID.Valid {
		t.PaymentBatchID = links.PaymentBatchID
		changed = true
	}
	return changed
}

func (m *memoryStore) BackfillLinksBySource(ctx context.Context, system models.SourceSystem, sourceID string, links models.Links) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(system, sourceID)
	if t == nil {
		return false, nil
	}
	return backfill(t, links), nil
}

func (m *memoryStore) BackfillLinksByID(ctx context.Context, id int64, links models.Links) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.rows {
		if t.ID == id {
			return backfill(t, links), nil
		}
	}
	return false, nil
}

func (m *memoryStore) GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.rows {
		if t.ID == id {
			c := *t
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func scopeValue(t *models.Transaction, kind models.ScopeKind) sql.NullInt64 {
	switch kind {
	case models.ScopeLease:
		return t.InvoiceID
	case models.ScopeProperty:
		return t.PropertyID
	case models.ScopeOwner:
		return t.OwnerID
	}
	return sql.NullInt64{}
}

func (m *memoryStore) ListByScope(ctx context.Context, scope models.Scope, through time.Time) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, t := range m.rows {
		v := scopeValue(t, scope.Kind)
		if v.Valid && v.Int64 == scope.ID && !t.TransactionDate.After(through) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.Before(out[j].TransactionDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) ListScopeIDs(ctx context.Context, kind models.ScopeKind) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[int64]bool{}
	var ids []int64
	for _, t := range m.rows {
		v := scopeValue(t, kind)
		if v.Valid && !seen[v.Int64] {
			seen[v.Int64] = true
			ids = append(ids, v.Int64)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memoryStore) ListPropertyIDsForOwner(ctx context.Context, ownerID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[int64]bool{}
	var ids []int64
	for _, t := range m.rows {
		if t.OwnerID.Valid && t.OwnerID.Int64 == ownerID && t.PropertyID.Valid && !seen[t.PropertyID.Int64] {
			seen[t.PropertyID.Int64] = true
			ids = append(ids, t.PropertyID.Int64)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memoryStore) GetStatistics(ctx context.Context) ([]models.SourceStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySystem := map[models.SourceSystem]*models.SourceStatistics{}
	for _, t := range m.rows {
		s, ok := bySystem[t.SourceSystem]
		if !ok {
			s = &models.SourceStatistics{SourceSystem: t.SourceSystem, TotalAmount: decimal.Zero}
			bySystem[t.SourceSystem] = s
		}
		s.Count++
		s.TotalAmount = s.TotalAmount.Add(t.Amount)
	}
	var out []models.SourceStatistics
	for _, s := range bySystem {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceSystem < out[j].SourceSystem })
	return out, nil
}

// identities returns the stored (system, source id, amount) set, ignoring row ids
func (m *memoryStore) identities() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for _, t := range m.rows {
		out[string(t.SourceSystem)+"/"+t.SourceTransactionID] = t.Amount.String()
	}
	return out
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type fakePropertyRepo struct {
	byID map[int64]*models.Property
	err  error
}

func newFakePropertyRepo(props ...*models.Property) *fakePropertyRepo {
	r := &fakePropertyRepo{byID: map[int64]*models.Property{}}
	for _, p := range props {
		r.byID[p.ID] = p
	}
	return r
}

func (r *fakePropertyRepo) FindByExternalID(ctx context.Context, externalID string) (*models.Property, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, p := range r.byID {
		if p.ExternalID.Valid && p.ExternalID.String == externalID {
			return p, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakePropertyRepo) FindByID(ctx context.Context, id int64) (*models.Property, error) {
	if r.err != nil {
		return nil, r.err
	}
	if p, ok := r.byID[id]; ok {
		return p, nil
	}
	return nil, repositories.ErrNotFound
}

// fakeSource serves source records, filtering on UpdatedAt like the MySQL readers
type fakeSource struct {
	system  models.SourceSystem
	records []*models.SourceRecord
	err     error
}

func (f *fakeSource) SourceSystem() models.SourceSystem { return f.system }

func (f *fakeSource) ListUpdatedSince(ctx context.Context, since *time.Time) ([]*models.SourceRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.SourceRecord
	for _, r := range f.records {
		if since == nil || !r.UpdatedAt.Before(*since) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

type fakeRunRepo struct {
	mu   sync.Mutex
	runs []*models.RebuildResult
}

func (f *fakeRunRepo) CreateRun(ctx context.Context, result *models.RebuildResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *result
	c.ID = int64(len(f.runs) + 1)
	result.ID = c.ID
	f.runs = append(f.runs, &c)
	return nil
}

func (f *fakeRunRepo) GetRunByBatchID(ctx context.Context, batchID string) (*models.RebuildRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.runs {
		if r.BatchID == batchID {
			return &models.RebuildRun{ID: r.ID, BatchID: r.BatchID, Mode: string(r.Mode), Status: r.Status}, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeRunRepo) ListRecentRuns(ctx context.Context, limit int) ([]*models.RebuildRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RebuildRun
	for i := len(f.runs) - 1; i >= 0 && len(out) < limit; i-- {
		r := f.runs[i]
		out = append(out, &models.RebuildRun{ID: r.ID, BatchID: r.BatchID, Mode: string(r.Mode), Status: r.Status})
	}
	return out, nil
}

func (f *fakeRunRepo) LastRunAt(ctx context.Context) (sql.NullTime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].Status == models.StatusSucceeded {
			return sql.NullTime{Time: f.runs[i].StartedAt, Valid: true}, nil
		}
	}
	return sql.NullTime{}, nil
}

var errStoreDown = errors.New("store unavailable")

func date(s string) time.Time {
	t, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func amount(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func id(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func historicalRecord(sourceID, day, value, txType, category, role string, updated time.Time) *models.SourceRecord {
	return &models.SourceRecord{
		SourceSystem:     models.SourceHistorical,
		SourceID:         sourceID,
		TransactionDate:  sql.NullTime{Time: date(day), Valid: true},
		Amount:           amount(value),
		TransactionType:  txType,
		Category:         category,
		CounterpartyRole: role,
		UpdatedAt:        updated,
	}
}

var (
	_ repositories.TransactionRepository = (*memoryStore)(nil)
	_ repositories.PropertyRepository    = (*fakePropertyRepo)(nil)
	_ repositories.SourceReader          = (*fakeSource)(nil)
	_ repositories.RebuildRunRepository  = (*fakeRunRepo)(nil)
)
