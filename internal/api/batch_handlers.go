package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const batchColumns = `id, batch_id, name, supplier, breed, arrival_date, intake_age_days, initial_quantity, current_count,
	cost_per_bird, transport_cost, equipment_cost, total_initial_cost, amount_paid_upfront, balance_due,
	payment_status, currency, is_active, created_at, updated_at`

type batchRecord struct {
	ID                int64                  `json:"id"`
	BatchID           string                 `json:"batchId"`
	Name              string                 `json:"name"`
	Supplier          string                 `json:"supplier"`
	Breed             string                 `json:"breed"`
	ArrivalDate       string                 `json:"arrivalDate"`
	IntakeAgeDays     int                    `json:"intakeAgeDays"`
	InitialQuantity   int                    `json:"initialQuantity"`
	CurrentCount      int                    `json:"currentCount"`
	CostPerBird       float64                `json:"costPerBird"`
	TransportCost     float64                `json:"transportCost"`
	EquipmentCost     float64                `json:"equipmentCost"`
	TotalInitialCost  float64                `json:"totalInitialCost"`
	AmountPaidUpfront float64                `json:"amountPaidUpfront"`
	BalanceDue        float64                `json:"balanceDue"`
	PaymentStatus     string                 `json:"paymentStatus"`
	Currency          string                 `json:"currency"`
	IsActive          bool                   `json:"isActive"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
	CoopAllocations   []coopAllocationRecord `json:"coopAllocations"`
}

type coopAllocationRecord struct {
	ID                int64  `json:"id"`
	BatchID           int64  `json:"batchId"`
	CoopID            string `json:"coopId"`
	AllocatedQuantity int    `json:"allocatedQuantity"`
	PlacementDate     string `json:"placementDate"`
	InitialMortality  int    `json:"initialMortality"`
	Notes             string `json:"notes"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (batchRecord, error) {
	var b batchRecord
	var arrival time.Time
	err := row.Scan(&b.ID, &b.BatchID, &b.Name, &b.Supplier, &b.Breed, &arrival, &b.IntakeAgeDays,
		&b.InitialQuantity, &b.CurrentCount, &b.CostPerBird, &b.TransportCost, &b.EquipmentCost,
		&b.TotalInitialCost, &b.AmountPaidUpfront, &b.BalanceDue, &b.PaymentStatus, &b.Currency,
		&b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return batchRecord{}, err
	}
	b.ArrivalDate = arrival.Format(dateLayout)
	b.CoopAllocations = []coopAllocationRecord{}
	return b, nil
}

func (s *Server) batchWithAllocations(ctx context.Context, id int64) (batchRecord, error) {
	b, err := scanBatch(s.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id))
	if err != nil {
		return batchRecord{}, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, batch_id, coop_id, allocated_quantity, placement_date, initial_mortality, COALESCE(notes, '')
		FROM coop_allocations
		WHERE batch_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return batchRecord{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var a coopAllocationRecord
		var placement time.Time
		if err := rows.Scan(&a.ID, &a.BatchID, &a.CoopID, &a.AllocatedQuantity, &placement, &a.InitialMortality, &a.Notes); err != nil {
			return batchRecord{}, err
		}
		a.PlacementDate = placement.Format(dateLayout)
		b.CoopAllocations = append(b.CoopAllocations, a)
	}
	return b, rows.Err()
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	isActive := strings.TrimSpace(r.URL.Query().Get("isActive"))

	rows, err := s.db.Query(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE ($1 = '' OR is_active = ($1 = 'true'))
		ORDER BY arrival_date DESC
	`, isActive)
	if err != nil {
		s.logger.Error("list batches failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch batches"})
		return
	}
	defer rows.Close()

	out := make([]batchRecord, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			s.logger.Error("scan batch failed", zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch batches"})
			return
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("list batches failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch batches"})
		return
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b, err := s.batchWithAllocations(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Batch not found"})
			return
		}
		s.logger.Error("get batch failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch batch"})
		return
	}

	respondJSON(w, http.StatusOK, b)
}

type batchCreateInput struct {
	BatchName         string            `json:"batch_name"`
	Supplier          string            `json:"supplier"`
	Breed             string            `json:"breed"`
	ArrivalDate       string            `json:"arrival_date"`
	IntakeAgeDays     *int              `json:"intake_age_days"`
	InitialQuantity   int               `json:"initial_quantity"`
	Currency          string            `json:"currency"`
	CostPerBird       float64           `json:"cost_per_bird"`
	TransportCost     float64           `json:"transport_cost"`
	EquipmentCost     float64           `json:"equipment_cost"`
	AmountPaidUpfront float64           `json:"amount_paid_upfront"`
	CoopAllocations   []allocationInput `json:"coop_allocations"`
}

// validate trims and checks the required fields. Money totals supplied by the
// client (total_acquisition_cost, balance_due, payment_status) are ignored by
// decoding: the service recomputes them.
func (in *batchCreateInput) validate() (string, bool) {
	in.BatchName = strings.TrimSpace(in.BatchName)
	in.Supplier = strings.TrimSpace(in.Supplier)
	in.Breed = strings.TrimSpace(in.Breed)
	in.ArrivalDate = strings.TrimSpace(in.ArrivalDate)
	in.Currency = strings.TrimSpace(in.Currency)

	if in.BatchName == "" || in.Supplier == "" || in.Breed == "" || in.ArrivalDate == "" ||
		in.IntakeAgeDays == nil || in.InitialQuantity <= 0 {
		return "Missing required fields", false
	}
	if !isValidBreed(in.Breed) {
		return "breed must be Layers, Broilers or Kenbro", false
	}
	if *in.IntakeAgeDays < 0 {
		return "intake_age_days cannot be negative", false
	}
	if in.CostPerBird < 0 || in.TransportCost < 0 || in.EquipmentCost < 0 || in.AmountPaidUpfront < 0 {
		return "cost values cannot be negative", false
	}
	return "", true
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var in batchCreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}
	if msg, ok := in.validate(); !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	arrivalDate, err := time.Parse(dateLayout, in.ArrivalDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "arrival_date must be YYYY-MM-DD"})
		return
	}

	allocs := wellFormedAllocations(in.CoopAllocations)
	if total := allocationTotal(allocs); total > in.InitialQuantity {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "allocated birds exceed batch size"})
		return
	}
	placements, err := allocationPlacementDates(allocs, arrivalDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "placement_date must be YYYY-MM-DD"})
		return
	}

	fin := computeBatchFinancials(in.CostPerBird, in.TransportCost, in.EquipmentCost, in.AmountPaidUpfront, in.InitialQuantity)
	currency := in.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logger.Error("begin create batch failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}
	defer tx.Rollback(ctx)

	slug, ok, err := s.freeBatchSlug(ctx, tx, in.Breed, arrivalDate)
	if err != nil {
		s.logger.Error("probe batch slug failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}
	if !ok {
		respondJSON(w, http.StatusConflict, map[string]string{"error": "batch id already exists"})
		return
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO batches(batch_id, name, supplier, breed, arrival_date, intake_age_days, initial_quantity, current_count,
			cost_per_bird, transport_cost, equipment_cost, total_initial_cost, amount_paid_upfront, balance_due,
			payment_status, currency, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9, $10, $11, $12, $13, $14, $15, true)
		RETURNING id
	`, slug, in.BatchName, in.Supplier, in.Breed, arrivalDate, *in.IntakeAgeDays, in.InitialQuantity,
		in.CostPerBird, in.TransportCost, in.EquipmentCost, fin.TotalInitialCost, fin.AmountPaidUpfront,
		fin.BalanceDue, fin.PaymentStatus, currency).Scan(&id)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "duplicate key") {
			respondJSON(w, http.StatusConflict, map[string]string{"error": "batch id already exists"})
			return
		}
		s.logger.Error("insert batch failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}

	if err := insertAllocations(ctx, tx, id, allocs, placements); err != nil {
		s.logger.Error("insert coop allocations failed", zap.Int64("batch", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("commit create batch failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}

	b, err := s.batchWithAllocations(ctx, id)
	if err != nil {
		s.logger.Error("fetch created batch failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}

	respondJSON(w, http.StatusCreated, b)
}

type batchUpdateInput struct {
	Name              *string            `json:"name"`
	Supplier          *string            `json:"supplier"`
	Breed             *string            `json:"breed"`
	ArrivalDate       *string            `json:"arrival_date"`
	IntakeAgeDays     *int               `json:"intake_age_days"`
	InitialQuantity   *int               `json:"initial_quantity"`
	CurrentCount      *int               `json:"current_count"`
	CostPerBird       *float64           `json:"cost_per_bird"`
	TransportCost     *float64           `json:"transport_cost"`
	EquipmentCost     *float64           `json:"equipment_cost"`
	AmountPaidUpfront *float64           `json:"amount_paid_upfront"`
	Currency          *string            `json:"currency"`
	IsActive          *bool              `json:"is_active"`
	CoopAllocations   *[]allocationInput `json:"coop_allocations"`
}

func (s *Server) handleUpdateBatch(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	var in batchUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logger.Error("begin update batch failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update batch"})
		return
	}
	defer tx.Rollback(ctx)

	var (
		name, supplier, breed, currency string
		arrivalDate                     time.Time
		intakeAgeDays                   int
		initialQuantity, currentCount   int
		costPerBird, transportCost      float64
		equipmentCost, amountPaid       float64
		isActive                        bool
	)
	err = tx.QueryRow(ctx, `
		SELECT name, supplier, breed, arrival_date, intake_age_days, initial_quantity, current_count,
			cost_per_bird, transport_cost, equipment_cost, amount_paid_upfront, currency, is_active
		FROM batches
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&name, &supplier, &breed, &arrivalDate, &intakeAgeDays, &initialQuantity, &currentCount,
		&costPerBird, &transportCost, &equipmentCost, &amountPaid, &currency, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Batch not found"})
			return
		}
		s.logger.Error("read batch for update failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update batch"})
		return
	}

	var allocCount int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM coop_allocations WHERE batch_id = $1`, id).Scan(&allocCount); err != nil {
		s.logger.Error("count allocations failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update batch"})
		return
	}

	// Sparse patch: only supplied fields change.
	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		name = strings.TrimSpace(*in.Name)
	}
	if in.Supplier != nil && strings.TrimSpace(*in.Supplier) != "" {
		supplier = strings.TrimSpace(*in.Supplier)
	}
	if in.Breed != nil {
		v := strings.TrimSpace(*in.Breed)
		if !isValidBreed(v) {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "breed must be Layers, Broilers or Kenbro"})
			return
		}
		breed = v
	}
	if in.ArrivalDate != nil {
		d, err := time.Parse(dateLayout, strings.TrimSpace(*in.ArrivalDate))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "arrival_date must be YYYY-MM-DD"})
			return
		}
		arrivalDate = d
	}
	if in.IntakeAgeDays != nil {
		if *in.IntakeAgeDays < 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "intake_age_days cannot be negative"})
			return
		}
		intakeAgeDays = *in.IntakeAgeDays
	}
	if in.InitialQuantity != nil && *in.InitialQuantity != initialQuantity {
		if *in.InitialQuantity <= 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "initial_quantity must be positive"})
			return
		}
		// Batch size is fixed once birds are placed in coops, unless this
		// request also replaces the allocation set.
		if allocCount > 0 && in.CoopAllocations == nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "initial_quantity cannot change while birds are allocated"})
			return
		}
		initialQuantity = *in.InitialQuantity
	}
	if in.CurrentCount != nil {
		if *in.CurrentCount < 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "current_count cannot be negative"})
			return
		}
		currentCount = *in.CurrentCount
	}
	if currentCount > initialQuantity {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "current_count cannot exceed initial_quantity"})
		return
	}
	if in.CostPerBird != nil {
		costPerBird = *in.CostPerBird
	}
	if in.TransportCost != nil {
		transportCost = *in.TransportCost
	}
	if in.EquipmentCost != nil {
		equipmentCost = *in.EquipmentCost
	}
	if in.AmountPaidUpfront != nil {
		amountPaid = *in.AmountPaidUpfront
	}
	if costPerBird < 0 || transportCost < 0 || equipmentCost < 0 || amountPaid < 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "cost values cannot be negative"})
		return
	}
	if in.Currency != nil && strings.TrimSpace(*in.Currency) != "" {
		currency = strings.TrimSpace(*in.Currency)
	}
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	var allocs []allocationInput
	var placements []time.Time
	if in.CoopAllocations != nil {
		allocs = wellFormedAllocations(*in.CoopAllocations)
		if total := allocationTotal(allocs); total > initialQuantity {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "allocated birds exceed batch size"})
			return
		}
		placements, err = allocationPlacementDates(allocs, arrivalDate)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "placement_date must be YYYY-MM-DD"})
			return
		}
	}

	// Derived money fields are recomputed from the merged inputs on every
	// update, so a cost_per_bird patch can never leave the total stale.
	fin := computeBatchFinancials(costPerBird, transportCost, equipmentCost, amountPaid, initialQuantity)

	_, err = tx.Exec(ctx, `
		UPDATE batches
		SET name = $1, supplier = $2, breed = $3, arrival_date = $4, intake_age_days = $5,
			initial_quantity = $6, current_count = $7, cost_per_bird = $8, transport_cost = $9,
			equipment_cost = $10, total_initial_cost = $11, amount_paid_upfront = $12, balance_due = $13,
			payment_status = $14, currency = $15, is_active = $16, updated_at = NOW()
		WHERE id = $17
	`, name, supplier, breed, arrivalDate, intakeAgeDays, initialQuantity, currentCount,
		costPerBird, transportCost, equipmentCost, fin.TotalInitialCost, fin.AmountPaidUpfront,
		fin.BalanceDue, fin.PaymentStatus, currency, isActive, id)
	if err != nil {
		s.logger.Error("update batch failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update batch"})
		return
	}

	// coop_allocations present (even empty) replaces the whole set.
	if in.CoopAllocations != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM coop_allocations WHERE batch_id = $1`, id); err != nil {
			s.logger.Error("clear coop allocations failed", zap.Int64("id", id), zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update batch"})
			return
		}
		if err := insertAllocations(ctx, tx, id, allocs, placements); err != nil {
			s.logger.Error("replace coop allocations failed", zap.Int64("id", id), zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update batch"})
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("commit update batch failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update batch"})
		return
	}

	b, err := s.batchWithAllocations(ctx, id)
	if err != nil {
		s.logger.Error("fetch updated batch failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update batch"})
		return
	}

	respondJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := s.db.Exec(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("delete batch failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete batch"})
		return
	}
	if res.RowsAffected() == 0 {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Batch not found"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Batch deleted successfully"})
}

// freeBatchSlug probes slug candidates until one is unused. The unique index
// on batch_id still backs the remaining race window between probe and insert.
func (s *Server) freeBatchSlug(ctx context.Context, tx pgx.Tx, breed string, arrivalDate time.Time) (string, bool, error) {
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		candidate := batchSlug(breed, arrivalDate, attempt)
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM batches WHERE batch_id = $1)`, candidate).Scan(&exists); err != nil {
			return "", false, err
		}
		if !exists {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

func allocationPlacementDates(allocs []allocationInput, fallback time.Time) ([]time.Time, error) {
	dates := make([]time.Time, len(allocs))
	for i, alloc := range allocs {
		d, err := optionalDate(alloc.PlacementDate)
		if err != nil {
			return nil, err
		}
		if d == nil {
			dates[i] = fallback
			continue
		}
		dates[i] = *d
	}
	return dates, nil
}

func insertAllocations(ctx context.Context, tx pgx.Tx, batchID int64, allocs []allocationInput, placements []time.Time) error {
	for i, alloc := range allocs {
		var notes *string
		if v := strings.TrimSpace(alloc.Notes); v != "" {
			notes = &v
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO coop_allocations(batch_id, coop_id, allocated_quantity, placement_date, initial_mortality, notes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, batchID, alloc.CoopID, alloc.AllocatedQuantity, placements[i], alloc.InitialMortality, notes)
		if err != nil {
			return err
		}
	}
	return nil
}
