package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const feedIntakeColumns = `id, supplier_id, delivery_date, feed_type, input_mode, bags, kg, total_cost,
	COALESCE(invoice_number, ''), received_by, COALESCE(notes, ''), created_at, updated_at`

type feedIntakeRecord struct {
	ID            int64     `json:"id"`
	SupplierID    *int64    `json:"supplierId"`
	DeliveryDate  string    `json:"deliveryDate"`
	FeedType      string    `json:"feedType"`
	InputMode     string    `json:"inputMode"`
	Bags          float64   `json:"bags"`
	Kg            float64   `json:"kg"`
	TotalCost     float64   `json:"totalCost"`
	InvoiceNumber string    `json:"invoiceNumber"`
	ReceivedBy    string    `json:"receivedBy"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func scanFeedIntake(row rowScanner) (feedIntakeRecord, error) {
	var f feedIntakeRecord
	var delivery time.Time
	err := row.Scan(&f.ID, &f.SupplierID, &delivery, &f.FeedType, &f.InputMode, &f.Bags, &f.Kg, &f.TotalCost,
		&f.InvoiceNumber, &f.ReceivedBy, &f.Notes, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return feedIntakeRecord{}, err
	}
	f.DeliveryDate = delivery.Format(dateLayout)
	return f, nil
}

type feedIntakeInput struct {
	SupplierID    *int64   `json:"supplier_id"`
	DeliveryDate  string   `json:"delivery_date"`
	FeedType      string   `json:"feed_type"`
	InputMode     string   `json:"input_mode"`
	Bags          float64  `json:"bags"`
	Kg            float64  `json:"kg"`
	TotalCost     *float64 `json:"total_cost"`
	InvoiceNumber string   `json:"invoice_number"`
	ReceivedBy    string   `json:"received_by"`
	Notes         string   `json:"notes"`
}

func (in *feedIntakeInput) validate() (string, bool) {
	in.DeliveryDate = strings.TrimSpace(in.DeliveryDate)
	in.FeedType = strings.TrimSpace(in.FeedType)
	in.InputMode = strings.TrimSpace(in.InputMode)
	in.ReceivedBy = strings.TrimSpace(in.ReceivedBy)

	if in.DeliveryDate == "" || in.FeedType == "" || in.InputMode == "" || in.ReceivedBy == "" || in.TotalCost == nil {
		return "Missing required fields", false
	}
	if !isValidFeedType(in.FeedType) {
		return "feed_type is not a known feed type", false
	}
	if !isValidFeedInputMode(in.InputMode) {
		return "input_mode must be bags or kg", false
	}
	if *in.TotalCost < 0 || in.Bags < 0 || in.Kg < 0 {
		return "quantities cannot be negative", false
	}
	return "", true
}

func (s *Server) handleFeedIntakes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var supplierID int64
	if v := strings.TrimSpace(r.URL.Query().Get("supplierId")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			supplierID = n
		}
	}
	startDate, err := optionalDate(r.URL.Query().Get("startDate"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "startDate must be YYYY-MM-DD"})
		return
	}
	endDate, err := optionalDate(r.URL.Query().Get("endDate"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "endDate must be YYYY-MM-DD"})
		return
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+feedIntakeColumns+`
		FROM feed_intakes
		WHERE ($1 = 0 OR supplier_id = $1)
			AND ($2::date IS NULL OR delivery_date >= $2)
			AND ($3::date IS NULL OR delivery_date <= $3)
		ORDER BY delivery_date DESC, id DESC
	`, supplierID, startDate, endDate)
	if err != nil {
		s.logger.Error("list feed intakes failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch feed intakes"})
		return
	}
	defer rows.Close()

	out := make([]feedIntakeRecord, 0)
	for rows.Next() {
		f, err := scanFeedIntake(rows)
		if err != nil {
			s.logger.Error("scan feed intake failed", zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch feed intakes"})
			return
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("list feed intakes failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch feed intakes"})
		return
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFeedIntake(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	f, err := scanFeedIntake(s.db.QueryRow(ctx, `SELECT `+feedIntakeColumns+` FROM feed_intakes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Feed intake not found"})
			return
		}
		s.logger.Error("get feed intake failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch feed intake"})
		return
	}

	respondJSON(w, http.StatusOK, f)
}

func (s *Server) handleCreateFeedIntake(w http.ResponseWriter, r *http.Request) {
	var in feedIntakeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}
	if msg, ok := in.validate(); !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	delivery, err := time.Parse(dateLayout, in.DeliveryDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "delivery_date must be YYYY-MM-DD"})
		return
	}

	bags, kg := feedQuantities(in.InputMode, in.Bags, in.Kg)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if in.SupplierID != nil {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1)`, *in.SupplierID).Scan(&exists); err != nil {
			s.logger.Error("check supplier failed", zap.Int64("supplier", *in.SupplierID), zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create feed intake"})
			return
		}
		if !exists {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Supplier not found"})
			return
		}
	}

	var id int64
	err = s.db.QueryRow(ctx, `
		INSERT INTO feed_intakes(supplier_id, delivery_date, feed_type, input_mode, bags, kg, total_cost,
			invoice_number, received_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NULLIF($10, ''))
		RETURNING id
	`, in.SupplierID, delivery, in.FeedType, in.InputMode, bags, kg, *in.TotalCost,
		strings.TrimSpace(in.InvoiceNumber), in.ReceivedBy, strings.TrimSpace(in.Notes)).Scan(&id)
	if err != nil {
		s.logger.Error("insert feed intake failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create feed intake"})
		return
	}

	f, err := scanFeedIntake(s.db.QueryRow(ctx, `SELECT `+feedIntakeColumns+` FROM feed_intakes WHERE id = $1`, id))
	if err != nil {
		s.logger.Error("fetch created feed intake failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create feed intake"})
		return
	}

	respondJSON(w, http.StatusCreated, f)
}

type feedIntakeUpdateInput struct {
	SupplierID    *int64   `json:"supplier_id"`
	DeliveryDate  *string  `json:"delivery_date"`
	FeedType      *string  `json:"feed_type"`
	InputMode     *string  `json:"input_mode"`
	Bags          *float64 `json:"bags"`
	Kg            *float64 `json:"kg"`
	TotalCost     *float64 `json:"total_cost"`
	InvoiceNumber *string  `json:"invoice_number"`
	ReceivedBy    *string  `json:"received_by"`
	Notes         *string  `json:"notes"`
}

func (s *Server) handleUpdateFeedIntake(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	var in feedIntakeUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	existing, err := scanFeedIntake(s.db.QueryRow(ctx, `SELECT `+feedIntakeColumns+` FROM feed_intakes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Feed intake not found"})
			return
		}
		s.logger.Error("read feed intake for update failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update feed intake"})
		return
	}

	supplierID := existing.SupplierID
	if in.SupplierID != nil {
		supplierID = in.SupplierID
	}
	deliveryDate := existing.DeliveryDate
	if in.DeliveryDate != nil && strings.TrimSpace(*in.DeliveryDate) != "" {
		deliveryDate = strings.TrimSpace(*in.DeliveryDate)
	}
	delivery, err := time.Parse(dateLayout, deliveryDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "delivery_date must be YYYY-MM-DD"})
		return
	}
	feedType := existing.FeedType
	if in.FeedType != nil {
		v := strings.TrimSpace(*in.FeedType)
		if !isValidFeedType(v) {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "feed_type is not a known feed type"})
			return
		}
		feedType = v
	}
	inputMode := existing.InputMode
	if in.InputMode != nil {
		v := strings.TrimSpace(*in.InputMode)
		if !isValidFeedInputMode(v) {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "input_mode must be bags or kg"})
			return
		}
		inputMode = v
	}
	bags := existing.Bags
	if in.Bags != nil {
		bags = *in.Bags
	}
	kg := existing.Kg
	if in.Kg != nil {
		kg = *in.Kg
	}
	totalCost := existing.TotalCost
	if in.TotalCost != nil {
		totalCost = *in.TotalCost
	}
	if bags < 0 || kg < 0 || totalCost < 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "quantities cannot be negative"})
		return
	}
	bags, kg = feedQuantities(inputMode, bags, kg)

	invoice := existing.InvoiceNumber
	if in.InvoiceNumber != nil {
		invoice = strings.TrimSpace(*in.InvoiceNumber)
	}
	receivedBy := existing.ReceivedBy
	if in.ReceivedBy != nil && strings.TrimSpace(*in.ReceivedBy) != "" {
		receivedBy = strings.TrimSpace(*in.ReceivedBy)
	}
	notes := existing.Notes
	if in.Notes != nil {
		notes = strings.TrimSpace(*in.Notes)
	}

	_, err = s.db.Exec(ctx, `
		UPDATE feed_intakes
		SET supplier_id = $1, delivery_date = $2, feed_type = $3, input_mode = $4, bags = $5, kg = $6,
			total_cost = $7, invoice_number = NULLIF($8, ''), received_by = $9, notes = NULLIF($10, ''),
			updated_at = NOW()
		WHERE id = $11
	`, supplierID, delivery, feedType, inputMode, bags, kg, totalCost, invoice, receivedBy, notes, id)
	if err != nil {
		s.logger.Error("update feed intake failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update feed intake"})
		return
	}

	f, err := scanFeedIntake(s.db.QueryRow(ctx, `SELECT `+feedIntakeColumns+` FROM feed_intakes WHERE id = $1`, id))
	if err != nil {
		s.logger.Error("fetch updated feed intake failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update feed intake"})
		return
	}

	respondJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteFeedIntake(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := s.db.Exec(ctx, `DELETE FROM feed_intakes WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("delete feed intake failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete feed intake"})
		return
	}
	if res.RowsAffected() == 0 {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Feed intake not found"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Feed intake deleted successfully"})
}
