package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"poultrypro/backend/internal/database"
)

// newDBServer connects to TEST_DATABASE_URL, applies the schema and returns
// a Server backed by it with the batch and log tables reset. Tests using it
// are skipped when no database is configured.
func newDBServer(t *testing.T) *Server {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.EnsureSchema(ctx, pool, "../../db/schema.sql"); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE TABLE daily_logs, coop_allocations, batches RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("reset tables: %v", err)
	}

	s := testServer()
	s.db = pool
	return s
}

func createBatch(t *testing.T, s *Server, payload string) batchRecord {
	t.Helper()
	r := httptest.NewRequest("POST", "/api/batches", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.handleCreateBatch(rec, r)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create batch: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var b batchRecord
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	return b
}

func getBatch(t *testing.T, s *Server, id int64) batchRecord {
	t.Helper()
	r := httptest.NewRequest("GET", "/api/batches/"+strconv.FormatInt(id, 10), nil)
	r.SetPathValue("id", strconv.FormatInt(id, 10))
	rec := httptest.NewRecorder()
	s.handleGetBatch(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("get batch: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var b batchRecord
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	return b
}

func putBatch(t *testing.T, s *Server, id int64, payload string) batchRecord {
	t.Helper()
	r := httptest.NewRequest("PUT", "/api/batches/"+strconv.FormatInt(id, 10), strings.NewReader(payload))
	r.SetPathValue("id", strconv.FormatInt(id, 10))
	rec := httptest.NewRecorder()
	s.handleUpdateBatch(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("update batch: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var b batchRecord
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	return b
}

func postDailyLog(t *testing.T, s *Server, payload string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest("POST", "/api/daily-logs", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.handleCreateDailyLog(rec, r)
	return rec
}

func countDailyLogs(t *testing.T, s *Server) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(context.Background(), `SELECT COUNT(*) FROM daily_logs`).Scan(&n); err != nil {
		t.Fatalf("count daily logs: %v", err)
	}
	return n
}

const juneLayersPayload = `{"batch_name": "June Layers", "supplier": "Kukuchic", "breed": "Layers",
	"arrival_date": "2025-06-01", "intake_age_days": 0, "initial_quantity": 100,
	"cost_per_bird": 100, "transport_cost": 500, "equipment_cost": 250, "amount_paid_upfront": 5000}`

func TestCreateBatchStartsFullFlock(t *testing.T) {
	s := newDBServer(t)

	b := createBatch(t, s, juneLayersPayload)
	if b.CurrentCount != 100 || b.InitialQuantity != 100 {
		t.Errorf("counts = (%d, %d), want (100, 100)", b.CurrentCount, b.InitialQuantity)
	}
	if b.BatchID != "batch_layers_20250601" {
		t.Errorf("batchId = %q, want batch_layers_20250601", b.BatchID)
	}
	if b.TotalInitialCost != 10750 || b.BalanceDue != 5750 || b.PaymentStatus != "partial" {
		t.Errorf("financials = (%v, %v, %q), want (10750, 5750, partial)", b.TotalInitialCost, b.BalanceDue, b.PaymentStatus)
	}

	// Same breed and arrival date gets a suffixed identifier.
	b2 := createBatch(t, s, juneLayersPayload)
	if b2.BatchID != "batch_layers_20250601_2" {
		t.Errorf("second batchId = %q, want batch_layers_20250601_2", b2.BatchID)
	}
}

func TestDailyLogMortalityConservation(t *testing.T) {
	s := newDBServer(t)
	b := createBatch(t, s, juneLayersPayload)

	logPayload := func(batchID int64, mortality int) string {
		return fmt.Sprintf(`{"batch_id": %d, "log_date": "2025-06-03", "mortality_count": %d,
			"feed_type": "Layers Mash", "feed_input_mode": "kg", "feed_kg": 50,
			"water_intake_liters": 20, "logged_by": "Jane"}`, batchID, mortality)
	}

	if rec := postDailyLog(t, s, logPayload(b.ID, 10)); rec.Code != http.StatusCreated {
		t.Fatalf("first log: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := getBatch(t, s, b.ID); got.CurrentCount != 90 {
		t.Fatalf("after 10 deaths: current = %d, want 90", got.CurrentCount)
	}

	if rec := postDailyLog(t, s, logPayload(b.ID, 90)); rec.Code != http.StatusCreated {
		t.Fatalf("second log: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := getBatch(t, s, b.ID); got.CurrentCount != 0 {
		t.Fatalf("after 100 deaths: current = %d, want 0", got.CurrentCount)
	}

	// Excess mortality is rejected, the count stays put and no log row lands.
	rec := postDailyLog(t, s, logPayload(b.ID, 1))
	if rec.Code != http.StatusConflict {
		t.Fatalf("excess mortality: status = %d, want 409", rec.Code)
	}
	if got := getBatch(t, s, b.ID); got.CurrentCount != 0 {
		t.Errorf("after rejection: current = %d, want 0", got.CurrentCount)
	}
	if n := countDailyLogs(t, s); n != 2 {
		t.Errorf("log rows = %d, want 2", n)
	}

	// Unknown batch: 404 and nothing inserted.
	rec = postDailyLog(t, s, logPayload(999999, 1))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown batch: status = %d, want 404", rec.Code)
	}
	if n := countDailyLogs(t, s); n != 2 {
		t.Errorf("log rows after 404 = %d, want 2", n)
	}
}

func TestBatchAllocationReplaceAll(t *testing.T) {
	s := newDBServer(t)

	b := createBatch(t, s, `{"batch_name": "June Broilers", "supplier": "Kukuchic", "breed": "Broilers",
		"arrival_date": "2025-06-05", "intake_age_days": 0, "initial_quantity": 100,
		"coop_allocations": [
			{"coop_id": "coop-a", "allocated_quantity": 60},
			{"coop_id": "coop-b", "allocated_quantity": 40}
		]}`)
	if len(b.CoopAllocations) != 2 {
		t.Fatalf("created allocations = %d, want 2", len(b.CoopAllocations))
	}

	replace := `{"coop_allocations": [{"coop_id": "coop-c", "allocated_quantity": 50}]}`
	replaced := putBatch(t, s, b.ID, replace)
	if len(replaced.CoopAllocations) != 1 || replaced.CoopAllocations[0].CoopID != "coop-c" {
		t.Fatalf("replaced allocations = %+v, want single coop-c", replaced.CoopAllocations)
	}

	// Replaying the same set is idempotent: still exactly one row.
	replayed := putBatch(t, s, b.ID, replace)
	if len(replayed.CoopAllocations) != 1 || replayed.CoopAllocations[0].AllocatedQuantity != 50 {
		t.Fatalf("replayed allocations = %+v, want single coop-c of 50", replayed.CoopAllocations)
	}

	// Conservation holds on replace too.
	r := httptest.NewRequest("PUT", "/api/batches/"+strconv.FormatInt(b.ID, 10),
		strings.NewReader(`{"coop_allocations": [{"coop_id": "coop-d", "allocated_quantity": 150}]}`))
	r.SetPathValue("id", strconv.FormatInt(b.ID, 10))
	rec := httptest.NewRecorder()
	s.handleUpdateBatch(rec, r)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("over-allocation on update: status = %d, want 400", rec.Code)
	}
	if got := getBatch(t, s, b.ID); len(got.CoopAllocations) != 1 {
		t.Errorf("rejected update must not touch allocations, got %+v", got.CoopAllocations)
	}

	// An explicit empty set clears all allocations.
	cleared := putBatch(t, s, b.ID, `{"coop_allocations": []}`)
	if len(cleared.CoopAllocations) != 0 {
		t.Errorf("cleared allocations = %+v, want none", cleared.CoopAllocations)
	}
}

func TestUpdateDailyLogRejectsUnknownBatch(t *testing.T) {
	s := newDBServer(t)

	rec := postDailyLog(t, s, `{"log_date": "2025-06-03", "feed_type": "Layers Mash",
		"feed_input_mode": "kg", "feed_kg": 25, "water_intake_liters": 10, "logged_by": "Jane"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create log: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var l dailyLogRecord
	if err := json.NewDecoder(rec.Body).Decode(&l); err != nil {
		t.Fatalf("decode log: %v", err)
	}

	r := httptest.NewRequest("PUT", "/api/daily-logs/"+strconv.FormatInt(l.ID, 10),
		strings.NewReader(`{"batch_id": 999999}`))
	r.SetPathValue("id", strconv.FormatInt(l.ID, 10))
	upd := httptest.NewRecorder()
	s.handleUpdateDailyLog(upd, r)

	if upd.Code != http.StatusNotFound {
		t.Fatalf("dangling batch patch: status = %d, want 404", upd.Code)
	}
	if got := decodeError(t, upd); got != "Batch not found" {
		t.Errorf("error = %q, want Batch not found", got)
	}
}
