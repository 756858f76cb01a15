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

const dailyLogColumns = `id, batch_id, log_date, mortality_count, feed_type, feed_input_mode, feed_bags, feed_kg,
	water_intake_liters, COALESCE(notes, ''), logged_by, created_by, created_at, updated_at`

type dailyLogRecord struct {
	ID                int64     `json:"id"`
	BatchID           *int64    `json:"batchId"`
	LogDate           string    `json:"logDate"`
	MortalityCount    int       `json:"mortalityCount"`
	FeedType          string    `json:"feedType"`
	FeedInputMode     string    `json:"feedInputMode"`
	FeedBags          float64   `json:"feedBags"`
	FeedKg            float64   `json:"feedKg"`
	WaterIntakeLiters float64   `json:"waterIntakeLiters"`
	Notes             string    `json:"notes"`
	LoggedBy          string    `json:"loggedBy"`
	CreatedBy         *int64    `json:"createdBy"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func scanDailyLog(row rowScanner) (dailyLogRecord, error) {
	var l dailyLogRecord
	var logDate time.Time
	err := row.Scan(&l.ID, &l.BatchID, &logDate, &l.MortalityCount, &l.FeedType, &l.FeedInputMode,
		&l.FeedBags, &l.FeedKg, &l.WaterIntakeLiters, &l.Notes, &l.LoggedBy, &l.CreatedBy,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return dailyLogRecord{}, err
	}
	l.LogDate = logDate.Format(dateLayout)
	return l, nil
}

type dailyLogInput struct {
	BatchID           *int64   `json:"batch_id"`
	LogDate           string   `json:"log_date"`
	MortalityCount    int      `json:"mortality_count"`
	FeedType          string   `json:"feed_type"`
	FeedInputMode     string   `json:"feed_input_mode"`
	FeedBags          float64  `json:"feed_bags"`
	FeedKg            float64  `json:"feed_kg"`
	WaterIntakeLiters *float64 `json:"water_intake_liters"`
	Notes             string   `json:"notes"`
	LoggedBy          string   `json:"logged_by"`
	CreatedBy         *int64   `json:"created_by"`
}

// validate checks the required fields. water_intake_liters is a pointer so
// that an explicit zero passes while an absent field does not.
func (in *dailyLogInput) validate() (string, bool) {
	in.FeedType = strings.TrimSpace(in.FeedType)
	in.FeedInputMode = strings.TrimSpace(in.FeedInputMode)
	in.LoggedBy = strings.TrimSpace(in.LoggedBy)
	in.LogDate = strings.TrimSpace(in.LogDate)

	if in.LogDate == "" || in.FeedType == "" || in.FeedInputMode == "" || in.LoggedBy == "" || in.WaterIntakeLiters == nil {
		return "Missing required fields", false
	}
	if !isValidFeedType(in.FeedType) {
		return "feed_type is not a known feed type", false
	}
	if !isValidFeedInputMode(in.FeedInputMode) {
		return "feed_input_mode must be bags or kg", false
	}
	if in.MortalityCount < 0 {
		return "mortality_count cannot be negative", false
	}
	if *in.WaterIntakeLiters < 0 || in.FeedBags < 0 || in.FeedKg < 0 {
		return "quantities cannot be negative", false
	}
	return "", true
}

func (s *Server) handleCreateDailyLog(w http.ResponseWriter, r *http.Request) {
	var in dailyLogInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}
	if msg, ok := in.validate(); !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	logDate, err := time.Parse(dateLayout, in.LogDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "log_date must be YYYY-MM-DD"})
		return
	}

	feedBags, feedKg := feedQuantities(in.FeedInputMode, in.FeedBags, in.FeedKg)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logger.Error("begin create daily log failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create daily log"})
		return
	}
	defer tx.Rollback(ctx)

	// Mortality and the log row commit together: a log never exists without
	// its count decrement and vice versa.
	if in.BatchID != nil && in.MortalityCount > 0 {
		res, err := tx.Exec(ctx, `
			UPDATE batches
			SET current_count = current_count - $1, updated_at = NOW()
			WHERE id = $2 AND current_count >= $1
		`, in.MortalityCount, *in.BatchID)
		if err != nil {
			s.logger.Error("apply mortality failed", zap.Int64("batch", *in.BatchID), zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create daily log"})
			return
		}
		if res.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)`, *in.BatchID).Scan(&exists); err != nil {
				s.logger.Error("check batch failed", zap.Int64("batch", *in.BatchID), zap.Error(err))
				respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create daily log"})
				return
			}
			if !exists {
				respondJSON(w, http.StatusNotFound, map[string]string{"error": "Batch not found"})
				return
			}
			respondJSON(w, http.StatusConflict, map[string]string{"error": "mortality count exceeds remaining flock"})
			return
		}
	} else if in.BatchID != nil {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)`, *in.BatchID).Scan(&exists); err != nil {
			s.logger.Error("check batch failed", zap.Int64("batch", *in.BatchID), zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create daily log"})
			return
		}
		if !exists {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Batch not found"})
			return
		}
	}

	var notes *string
	if v := strings.TrimSpace(in.Notes); v != "" {
		notes = &v
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO daily_logs(batch_id, log_date, mortality_count, feed_type, feed_input_mode, feed_bags, feed_kg,
			water_intake_liters, notes, logged_by, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, in.BatchID, logDate, in.MortalityCount, in.FeedType, in.FeedInputMode, feedBags, feedKg,
		*in.WaterIntakeLiters, notes, in.LoggedBy, in.CreatedBy).Scan(&id)
	if err != nil {
		s.logger.Error("insert daily log failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create daily log"})
		return
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("commit create daily log failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create daily log"})
		return
	}

	l, err := scanDailyLog(s.db.QueryRow(ctx, `SELECT `+dailyLogColumns+` FROM daily_logs WHERE id = $1`, id))
	if err != nil {
		s.logger.Error("fetch created daily log failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create daily log"})
		return
	}

	respondJSON(w, http.StatusCreated, l)
}

func (s *Server) handleDailyLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var batchID int64
	if v := strings.TrimSpace(r.URL.Query().Get("batchId")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			batchID = n
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
		SELECT `+dailyLogColumns+`
		FROM daily_logs
		WHERE ($1 = 0 OR batch_id = $1)
			AND ($2::date IS NULL OR log_date >= $2)
			AND ($3::date IS NULL OR log_date <= $3)
		ORDER BY log_date DESC, id DESC
	`, batchID, startDate, endDate)
	if err != nil {
		s.logger.Error("list daily logs failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch daily logs"})
		return
	}
	defer rows.Close()

	out := make([]dailyLogRecord, 0)
	for rows.Next() {
		l, err := scanDailyLog(rows)
		if err != nil {
			s.logger.Error("scan daily log failed", zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch daily logs"})
			return
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("list daily logs failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch daily logs"})
		return
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDailyLog(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	l, err := scanDailyLog(s.db.QueryRow(ctx, `SELECT `+dailyLogColumns+` FROM daily_logs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Daily log not found"})
			return
		}
		s.logger.Error("get daily log failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch daily log"})
		return
	}

	respondJSON(w, http.StatusOK, l)
}

type dailyLogUpdateInput struct {
	BatchID           *int64   `json:"batch_id"`
	LogDate           *string  `json:"log_date"`
	MortalityCount    *int     `json:"mortality_count"`
	FeedType          *string  `json:"feed_type"`
	FeedInputMode     *string  `json:"feed_input_mode"`
	FeedBags          *float64 `json:"feed_bags"`
	FeedKg            *float64 `json:"feed_kg"`
	WaterIntakeLiters *float64 `json:"water_intake_liters"`
	Notes             *string  `json:"notes"`
	LoggedBy          *string  `json:"logged_by"`
}

// handleUpdateDailyLog applies a sparse patch to a log row. Editing
// mortality_count here does NOT re-adjust the batch's current_count; the
// decrement is applied exactly once, at log creation.
func (s *Server) handleUpdateDailyLog(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	var in dailyLogUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	existing, err := scanDailyLog(s.db.QueryRow(ctx, `SELECT `+dailyLogColumns+` FROM daily_logs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Daily log not found"})
			return
		}
		s.logger.Error("read daily log for update failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update daily log"})
		return
	}

	logDate := existing.LogDate
	if in.LogDate != nil && strings.TrimSpace(*in.LogDate) != "" {
		logDate = strings.TrimSpace(*in.LogDate)
	}
	parsedDate, err := time.Parse(dateLayout, logDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "log_date must be YYYY-MM-DD"})
		return
	}

	batchID := existing.BatchID
	if in.BatchID != nil {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)`, *in.BatchID).Scan(&exists); err != nil {
			s.logger.Error("check batch failed", zap.Int64("batch", *in.BatchID), zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update daily log"})
			return
		}
		if !exists {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Batch not found"})
			return
		}
		batchID = in.BatchID
	}
	mortality := existing.MortalityCount
	if in.MortalityCount != nil {
		if *in.MortalityCount < 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "mortality_count cannot be negative"})
			return
		}
		mortality = *in.MortalityCount
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
	feedInputMode := existing.FeedInputMode
	if in.FeedInputMode != nil {
		v := strings.TrimSpace(*in.FeedInputMode)
		if !isValidFeedInputMode(v) {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "feed_input_mode must be bags or kg"})
			return
		}
		feedInputMode = v
	}
	feedBags := existing.FeedBags
	if in.FeedBags != nil {
		feedBags = *in.FeedBags
	}
	feedKg := existing.FeedKg
	if in.FeedKg != nil {
		feedKg = *in.FeedKg
	}
	if feedBags < 0 || feedKg < 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "quantities cannot be negative"})
		return
	}
	// Re-derive the pair so a mode or quantity patch keeps bags and kg in step.
	feedBags, feedKg = feedQuantities(feedInputMode, feedBags, feedKg)

	water := existing.WaterIntakeLiters
	if in.WaterIntakeLiters != nil {
		if *in.WaterIntakeLiters < 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "quantities cannot be negative"})
			return
		}
		water = *in.WaterIntakeLiters
	}
	notes := existing.Notes
	if in.Notes != nil {
		notes = strings.TrimSpace(*in.Notes)
	}
	loggedBy := existing.LoggedBy
	if in.LoggedBy != nil && strings.TrimSpace(*in.LoggedBy) != "" {
		loggedBy = strings.TrimSpace(*in.LoggedBy)
	}

	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}

	res, err := s.db.Exec(ctx, `
		UPDATE daily_logs
		SET batch_id = $1, log_date = $2, mortality_count = $3, feed_type = $4, feed_input_mode = $5,
			feed_bags = $6, feed_kg = $7, water_intake_liters = $8, notes = $9, logged_by = $10, updated_at = NOW()
		WHERE id = $11
	`, batchID, parsedDate, mortality, feedType, feedInputMode, feedBags, feedKg, water, notesPtr, loggedBy, id)
	if err != nil {
		s.logger.Error("update daily log failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update daily log"})
		return
	}
	if res.RowsAffected() == 0 {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Daily log not found"})
		return
	}

	l, err := scanDailyLog(s.db.QueryRow(ctx, `SELECT `+dailyLogColumns+` FROM daily_logs WHERE id = $1`, id))
	if err != nil {
		s.logger.Error("fetch updated daily log failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update daily log"})
		return
	}

	respondJSON(w, http.StatusOK, l)
}

// handleDeleteDailyLog removes the row. The mortality already applied to the
// batch stays applied; deleting a log is bookkeeping, not a resurrection.
func (s *Server) handleDeleteDailyLog(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := s.db.Exec(ctx, `DELETE FROM daily_logs WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("delete daily log failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete daily log"})
		return
	}
	if res.RowsAffected() == 0 {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Daily log not found"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Daily log deleted successfully"})
}
