package services

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"ledger-service/internal/logger"
	"ledger-service/internal/models"
	"ledger-service/internal/repositories"
)

type rebuildFixture struct {
	store      *memoryStore
	historical *fakeSource
	platform   *fakeSource
	runs       *fakeRunRepo
	service    *RebuildService
}

func newRebuildFixture() *rebuildFixture {
	f := &rebuildFixture{
		store:      newMemoryStore(),
		historical: &fakeSource{system: models.SourceHistorical},
		platform:   &fakeSource{system: models.SourcePlatform},
		runs:       &fakeRunRepo{},
	}
	normalizer := NewNormalizerService(f.store, newFakePropertyRepo(), logger.Nop())
	f.service = NewRebuildService(
		[]repositories.SourceReader{f.historical, f.platform},
		normalizer,
		f.store,
		f.runs,
		logger.Nop(),
	)
	return f
}

var (
	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(1 * time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func TestIncrementalRebuildIsIdempotent(t *testing.T) {
	f := newRebuildFixture()
	f.historical.records = []*models.SourceRecord{
		historicalRecord("H-1", "2024-03-01", "950", "payment", "rent", "", t1),
		historicalRecord("H-2", "2024-03-10", "120", "expense", "repairs", "contractor", t1),
	}
	since := t0

	first, err := f.service.Rebuild(context.Background(), models.RebuildIncremental, &since)
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	second, err := f.service.Rebuild(context.Background(), models.RebuildIncremental, &since)
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}

	if first.RecordsInserted != 2 {
		t.Errorf("first inserted = %d, want 2", first.RecordsInserted)
	}
	if second.RecordsInserted != 0 || second.RecordsSkipped != 2 {
		t.Errorf("second = %+v, want 0 inserted / 2 skipped", second)
	}
	if first.BatchID == second.BatchID {
		t.Error("batch ids must be unique per run")
	}
	if !strings.HasPrefix(first.BatchID, "INCREMENTAL-") {
		t.Errorf("batch id = %s", first.BatchID)
	}
	if len(f.runs.runs) != 2 {
		t.Errorf("persisted runs = %d, want 2", len(f.runs.runs))
	}
}

func TestIncrementalRebuildHonoursWatermark(t *testing.T) {
	f := newRebuildFixture()
	f.historical.records = []*models.SourceRecord{
		historicalRecord("H-old", "2024-02-01", "100", "payment", "rent", "", t0),
		historicalRecord("H-new", "2024-03-01", "200", "payment", "rent", "", t2),
	}
	since := t1

	res, err := f.service.Rebuild(context.Background(), models.RebuildIncremental, &since)
	if err != nil {
		t.Fatal(err)
	}
	if res.RecordsProcessed != 1 || res.RecordsInserted != 1 {
		t.Errorf("result = %+v, want one processed and inserted", res)
	}
	if _, ok := f.store.identities()["HISTORICAL/H-new"]; !ok {
		t.Error("record inside the window was not inserted")
	}
}

func TestRebuildCountsDuplicateAsSkipped(t *testing.T) {
	f := newRebuildFixture()
	f.platform.records = []*models.SourceRecord{
		{SourceSystem: models.SourcePlatform, SourceID: "P-1", DataSource: "INCOMING_PAYMENT",
			TransactionDate: sql.NullTime{Time: date("2024-03-01"), Valid: true}, Amount: amount("950"), UpdatedAt: t1},
		{SourceSystem: models.SourcePlatform, SourceID: "P-1", DataSource: "INCOMING_PAYMENT",
			TransactionDate: sql.NullTime{Time: date("2024-03-01"), Valid: true}, Amount: amount("905"), UpdatedAt: t1},
	}

	res, err := f.service.Rebuild(context.Background(), models.RebuildFull, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.RecordsInserted != 1 || res.RecordsSkipped != 1 {
		t.Errorf("result = %+v, want 1 inserted / 1 skipped", res)
	}
	if got := f.store.identities()["EXTERNAL_PLATFORM/P-1"]; got != "950" {
		t.Errorf("stored amount = %s, want first-seen 950", got)
	}
}

func TestRebuildContinuesPastBadRecords(t *testing.T) {
	f := newRebuildFixture()
	bad := historicalRecord("H-bad", "2024-03-01", "1", "payment", "rent", "", t1)
	bad.Amount.Valid = false
	f.historical.records = []*models.SourceRecord{
		historicalRecord("H-1", "2024-03-01", "950", "payment", "rent", "", t1),
		bad,
		historicalRecord("H-2", "2024-03-02", "50", "payment", "rent", "", t1),
	}

	res, err := f.service.Rebuild(context.Background(), models.RebuildFull, nil)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if res.RecordsProcessed != 3 || res.RecordsInserted != 2 || res.RecordsFailed != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.Status != models.StatusSucceeded {
		t.Errorf("status = %s", res.Status)
	}
}

func TestRebuildKeepsPartialProgressOnFailure(t *testing.T) {
	f := newRebuildFixture()
	f.historical.records = []*models.SourceRecord{
		historicalRecord("H-1", "2024-03-01", "950", "payment", "rent", "", t1),
	}
	f.platform.err = errStoreDown

	res, err := f.service.Rebuild(context.Background(), models.RebuildFull, nil)
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("err = %v, want errStoreDown", err)
	}
	if res == nil || res.Status != models.StatusFailed || res.RecordsInserted != 1 {
		t.Fatalf("result = %+v", res)
	}
	if f.store.count() != 1 {
		t.Error("rows inserted before the failure must be kept")
	}
	if len(f.runs.runs) != 1 || f.runs.runs[0].Status != models.StatusFailed {
		t.Error("failed run was not recorded")
	}
}

func TestFullAndIncrementalRebuildsAgree(t *testing.T) {
	records := []*models.SourceRecord{
		historicalRecord("H-1", "2024-01-01", "100", "payment", "rent", "", t0),
		historicalRecord("H-2", "2024-02-01", "200", "payment", "rent", "", t1),
		historicalRecord("H-3", "2024-03-01", "300", "expense", "repairs", "", t2),
	}

	full := newRebuildFixture()
	full.historical.records = records
	if _, err := full.service.Rebuild(context.Background(), models.RebuildFull, nil); err != nil {
		t.Fatal(err)
	}

	incremental := newRebuildFixture()
	for _, batch := range [][]*models.SourceRecord{records[:1], records[:2], records} {
		incremental.historical.records = batch
		since := batch[len(batch)-1].UpdatedAt
		if _, err := incremental.service.Rebuild(context.Background(), models.RebuildIncremental, &since); err != nil {
			t.Fatal(err)
		}
	}

	if !reflect.DeepEqual(full.store.identities(), incremental.store.identities()) {
		t.Errorf("full = %v\nincremental = %v", full.store.identities(), incremental.store.identities())
	}
}

func TestFullRebuildBackfillsLinks(t *testing.T) {
	f := newRebuildFixture()
	rec := historicalRecord("H-1", "2024-03-01", "950", "payment", "rent", "", t1)
	f.historical.records = []*models.SourceRecord{rec}
	if _, err := f.service.Rebuild(context.Background(), models.RebuildFull, nil); err != nil {
		t.Fatal(err)
	}

	linked := *rec
	linked.InvoiceID = id(42)
	f.historical.records = []*models.SourceRecord{&linked}

	since := t0
	inc, err := f.service.Rebuild(context.Background(), models.RebuildIncremental, &since)
	if err != nil {
		t.Fatal(err)
	}
	if inc.RecordsLinked != 0 {
		t.Errorf("incremental linked = %d, want 0", inc.RecordsLinked)
	}

	full, err := f.service.Rebuild(context.Background(), models.RebuildFull, nil)
	if err != nil {
		t.Fatal(err)
	}
	if full.RecordsLinked != 1 || full.RecordsInserted != 0 {
		t.Errorf("full = %+v, want 1 linked and nothing inserted", full)
	}
	stored, _ := f.store.GetTransactionByID(context.Background(), 1)
	if stored.InvoiceID != id(42) {
		t.Errorf("invoice = %+v, want 42", stored.InvoiceID)
	}
}

func TestRebuildRejectsBadRequests(t *testing.T) {
	f := newRebuildFixture()
	if _, err := f.service.Rebuild(context.Background(), models.RebuildIncremental, nil); err == nil {
		t.Error("incremental without since should fail")
	}
	if _, err := f.service.Rebuild(context.Background(), "partial", nil); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestRebuildStatistics(t *testing.T) {
	f := newRebuildFixture()
	f.historical.records = []*models.SourceRecord{
		historicalRecord("H-1", "2024-03-01", "950", "payment", "rent", "", t1),
		historicalRecord("H-2", "2024-03-02", "-50", "expense", "", "", t1),
	}
	if _, err := f.service.Rebuild(context.Background(), models.RebuildFull, nil); err != nil {
		t.Fatal(err)
	}

	stats, err := f.service.GetStatistics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.Sources) != 1 || stats.Sources[0].Count != 2 || stats.Sources[0].TotalAmount.String() != "900" {
		t.Errorf("stats = %+v", stats.Sources)
	}
	if stats.LastRebuiltAt == nil {
		t.Error("last rebuild time missing")
	}

	runs, err := f.service.ListRuns(context.Background(), 0)
	if err != nil || len(runs) != 1 {
		t.Errorf("runs = %v, err = %v", runs, err)
	}
}
