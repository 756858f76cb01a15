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

var validVaccineStatuses = map[string]struct{}{
	"pending":   {},
	"upcoming":  {},
	"completed": {},
	"overdue":   {},
}

func isValidVaccineStatus(s string) bool {
	_, ok := validVaccineStatuses[s]
	return ok
}

const vaccineScheduleColumns = `id, batch_id, vaccine_name, week_number, scheduled_date, status,
	COALESCE(notes, ''), created_at, updated_at`

type vaccineScheduleRecord struct {
	ID            int64     `json:"id"`
	BatchID       *int64    `json:"batchId"`
	VaccineName   string    `json:"vaccineName"`
	WeekNumber    int       `json:"weekNumber"`
	ScheduledDate string    `json:"scheduledDate"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func scanVaccineSchedule(row rowScanner) (vaccineScheduleRecord, error) {
	var v vaccineScheduleRecord
	var scheduled time.Time
	err := row.Scan(&v.ID, &v.BatchID, &v.VaccineName, &v.WeekNumber, &scheduled, &v.Status, &v.Notes,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return vaccineScheduleRecord{}, err
	}
	v.ScheduledDate = scheduled.Format(dateLayout)
	return v, nil
}

type vaccineScheduleInput struct {
	BatchID       *int64 `json:"batch_id"`
	VaccineName   string `json:"vaccine_name"`
	WeekNumber    *int   `json:"week_number"`
	ScheduledDate string `json:"scheduled_date"`
	Status        string `json:"status"`
	Notes         string `json:"notes"`
}

func (in *vaccineScheduleInput) validate() (string, bool) {
	in.VaccineName = strings.TrimSpace(in.VaccineName)
	in.ScheduledDate = strings.TrimSpace(in.ScheduledDate)
	in.Status = strings.TrimSpace(in.Status)

	if in.VaccineName == "" || in.ScheduledDate == "" || in.WeekNumber == nil {
		return "Missing required fields", false
	}
	if *in.WeekNumber < 0 {
		return "week_number cannot be negative", false
	}
	if in.Status == "" {
		in.Status = "pending"
	}
	if !isValidVaccineStatus(in.Status) {
		return "status must be one of pending, upcoming, completed, overdue", false
	}
	return "", true
}

func (s *Server) handleVaccineSchedules(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var batchID int64
	if v := strings.TrimSpace(r.URL.Query().Get("batchId")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			batchID = n
		}
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !isValidVaccineStatus(status) {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be one of pending, upcoming, completed, overdue"})
		return
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+vaccineScheduleColumns+`
		FROM vaccine_schedules
		WHERE ($1 = 0 OR batch_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY scheduled_date DESC, id DESC
	`, batchID, status)
	if err != nil {
		s.logger.Error("list vaccine schedules failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch vaccine schedules"})
		return
	}
	defer rows.Close()

	out := make([]vaccineScheduleRecord, 0)
	for rows.Next() {
		v, err := scanVaccineSchedule(rows)
		if err != nil {
			s.logger.Error("scan vaccine schedule failed", zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch vaccine schedules"})
			return
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("list vaccine schedules failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch vaccine schedules"})
		return
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetVaccineSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	v, err := scanVaccineSchedule(s.db.QueryRow(ctx, `SELECT `+vaccineScheduleColumns+` FROM vaccine_schedules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Vaccine schedule not found"})
			return
		}
		s.logger.Error("get vaccine schedule failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch vaccine schedule"})
		return
	}

	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleCreateVaccineSchedule(w http.ResponseWriter, r *http.Request) {
	var in vaccineScheduleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}
	if msg, ok := in.validate(); !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	scheduled, err := time.Parse(dateLayout, in.ScheduledDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "scheduled_date must be YYYY-MM-DD"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if in.BatchID != nil {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)`, *in.BatchID).Scan(&exists); err != nil {
			s.logger.Error("check batch failed", zap.Int64("batch", *in.BatchID), zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create vaccine schedule"})
			return
		}
		if !exists {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Batch not found"})
			return
		}
	}

	var id int64
	err = s.db.QueryRow(ctx, `
		INSERT INTO vaccine_schedules(batch_id, vaccine_name, week_number, scheduled_date, status, notes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id
	`, in.BatchID, in.VaccineName, *in.WeekNumber, scheduled, in.Status, strings.TrimSpace(in.Notes)).Scan(&id)
	if err != nil {
		s.logger.Error("insert vaccine schedule failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create vaccine schedule"})
		return
	}

	v, err := scanVaccineSchedule(s.db.QueryRow(ctx, `SELECT `+vaccineScheduleColumns+` FROM vaccine_schedules WHERE id = $1`, id))
	if err != nil {
		s.logger.Error("fetch created vaccine schedule failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create vaccine schedule"})
		return
	}

	respondJSON(w, http.StatusCreated, v)
}

type vaccineScheduleUpdateInput struct {
	BatchID       *int64  `json:"batch_id"`
	VaccineName   *string `json:"vaccine_name"`
	WeekNumber    *int    `json:"week_number"`
	ScheduledDate *string `json:"scheduled_date"`
	Status        *string `json:"status"`
	Notes         *string `json:"notes"`
}

func (s *Server) handleUpdateVaccineSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	var in vaccineScheduleUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	existing, err := scanVaccineSchedule(s.db.QueryRow(ctx, `SELECT `+vaccineScheduleColumns+` FROM vaccine_schedules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Vaccine schedule not found"})
			return
		}
		s.logger.Error("read vaccine schedule for update failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update vaccine schedule"})
		return
	}

	batchID := existing.BatchID
	if in.BatchID != nil {
		batchID = in.BatchID
	}
	name := existing.VaccineName
	if in.VaccineName != nil && strings.TrimSpace(*in.VaccineName) != "" {
		name = strings.TrimSpace(*in.VaccineName)
	}
	week := existing.WeekNumber
	if in.WeekNumber != nil {
		if *in.WeekNumber < 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "week_number cannot be negative"})
			return
		}
		week = *in.WeekNumber
	}
	scheduledDate := existing.ScheduledDate
	if in.ScheduledDate != nil && strings.TrimSpace(*in.ScheduledDate) != "" {
		scheduledDate = strings.TrimSpace(*in.ScheduledDate)
	}
	scheduled, err := time.Parse(dateLayout, scheduledDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "scheduled_date must be YYYY-MM-DD"})
		return
	}
	status := existing.Status
	if in.Status != nil {
		v := strings.TrimSpace(*in.Status)
		if !isValidVaccineStatus(v) {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be one of pending, upcoming, completed, overdue"})
			return
		}
		status = v
	}
	notes := existing.Notes
	if in.Notes != nil {
		notes = strings.TrimSpace(*in.Notes)
	}

	_, err = s.db.Exec(ctx, `
		UPDATE vaccine_schedules
		SET batch_id = $1, vaccine_name = $2, week_number = $3, scheduled_date = $4, status = $5,
			notes = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $7
	`, batchID, name, week, scheduled, status, notes, id)
	if err != nil {
		s.logger.Error("update vaccine schedule failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update vaccine schedule"})
		return
	}

	v, err := scanVaccineSchedule(s.db.QueryRow(ctx, `SELECT `+vaccineScheduleColumns+` FROM vaccine_schedules WHERE id = $1`, id))
	if err != nil {
		s.logger.Error("fetch updated vaccine schedule failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update vaccine schedule"})
		return
	}

	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteVaccineSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := s.db.Exec(ctx, `DELETE FROM vaccine_schedules WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("delete vaccine schedule failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete vaccine schedule"})
		return
	}
	if res.RowsAffected() == 0 {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Vaccine schedule not found"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Vaccine schedule deleted successfully"})
}

const vaccineAdministrationColumns = `id, schedule_id, administered_date, administered_by,
	COALESCE(dosage, ''), COALESCE(notes, ''), created_at, updated_at`

type vaccineAdministrationRecord struct {
	ID               int64     `json:"id"`
	ScheduleID       int64     `json:"scheduleId"`
	AdministeredDate string    `json:"administeredDate"`
	AdministeredBy   string    `json:"administeredBy"`
	Dosage           string    `json:"dosage"`
	Notes            string    `json:"notes"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func scanVaccineAdministration(row rowScanner) (vaccineAdministrationRecord, error) {
	var a vaccineAdministrationRecord
	var administered time.Time
	err := row.Scan(&a.ID, &a.ScheduleID, &administered, &a.AdministeredBy, &a.Dosage, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return vaccineAdministrationRecord{}, err
	}
	a.AdministeredDate = administered.Format(dateLayout)
	return a, nil
}

type vaccineAdministrationInput struct {
	ScheduleID       *int64 `json:"schedule_id"`
	AdministeredDate string `json:"administered_date"`
	AdministeredBy   string `json:"administered_by"`
	Dosage           string `json:"dosage"`
	Notes            string `json:"notes"`
}

func (s *Server) handleVaccineAdministrations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var scheduleID int64
	if v := strings.TrimSpace(r.URL.Query().Get("scheduleId")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			scheduleID = n
		}
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+vaccineAdministrationColumns+`
		FROM vaccine_administrations
		WHERE ($1 = 0 OR schedule_id = $1)
		ORDER BY administered_date DESC, id DESC
	`, scheduleID)
	if err != nil {
		s.logger.Error("list vaccine administrations failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch vaccine administrations"})
		return
	}
	defer rows.Close()

	out := make([]vaccineAdministrationRecord, 0)
	for rows.Next() {
		a, err := scanVaccineAdministration(rows)
		if err != nil {
			s.logger.Error("scan vaccine administration failed", zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch vaccine administrations"})
			return
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("list vaccine administrations failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch vaccine administrations"})
		return
	}

	respondJSON(w, http.StatusOK, out)
}

// handleCreateVaccineAdministration records an administered dose and marks
// the parent schedule completed in the same transaction.
func (s *Server) handleCreateVaccineAdministration(w http.ResponseWriter, r *http.Request) {
	var in vaccineAdministrationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}
	in.AdministeredDate = strings.TrimSpace(in.AdministeredDate)
	in.AdministeredBy = strings.TrimSpace(in.AdministeredBy)
	if in.ScheduleID == nil || in.AdministeredDate == "" || in.AdministeredBy == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
		return
	}
	administered, err := time.Parse(dateLayout, in.AdministeredDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "administered_date must be YYYY-MM-DD"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logger.Error("begin create vaccine administration failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create vaccine administration"})
		return
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM vaccine_schedules WHERE id = $1)`, *in.ScheduleID).Scan(&exists); err != nil {
		s.logger.Error("check schedule failed", zap.Int64("schedule", *in.ScheduleID), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create vaccine administration"})
		return
	}
	if !exists {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Vaccine schedule not found"})
		return
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO vaccine_administrations(schedule_id, administered_date, administered_by, dosage, notes)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id
	`, *in.ScheduleID, administered, in.AdministeredBy, strings.TrimSpace(in.Dosage), strings.TrimSpace(in.Notes)).Scan(&id)
	if err != nil {
		s.logger.Error("insert vaccine administration failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create vaccine administration"})
		return
	}

	if _, err := tx.Exec(ctx, `
		UPDATE vaccine_schedules SET status = 'completed', updated_at = NOW() WHERE id = $1
	`, *in.ScheduleID); err != nil {
		s.logger.Error("mark schedule completed failed", zap.Int64("schedule", *in.ScheduleID), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create vaccine administration"})
		return
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("commit create vaccine administration failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create vaccine administration"})
		return
	}

	a, err := scanVaccineAdministration(s.db.QueryRow(ctx, `SELECT `+vaccineAdministrationColumns+` FROM vaccine_administrations WHERE id = $1`, id))
	if err != nil {
		s.logger.Error("fetch created vaccine administration failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create vaccine administration"})
		return
	}

	respondJSON(w, http.StatusCreated, a)
}

type vaccineAdministrationUpdateInput struct {
	AdministeredDate *string `json:"administered_date"`
	AdministeredBy   *string `json:"administered_by"`
	Dosage           *string `json:"dosage"`
	Notes            *string `json:"notes"`
}

func (s *Server) handleUpdateVaccineAdministration(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	var in vaccineAdministrationUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	existing, err := scanVaccineAdministration(s.db.QueryRow(ctx, `SELECT `+vaccineAdministrationColumns+` FROM vaccine_administrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Vaccine administration not found"})
			return
		}
		s.logger.Error("read vaccine administration for update failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update vaccine administration"})
		return
	}

	administeredDate := existing.AdministeredDate
	if in.AdministeredDate != nil && strings.TrimSpace(*in.AdministeredDate) != "" {
		administeredDate = strings.TrimSpace(*in.AdministeredDate)
	}
	administered, err := time.Parse(dateLayout, administeredDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "administered_date must be YYYY-MM-DD"})
		return
	}
	administeredBy := existing.AdministeredBy
	if in.AdministeredBy != nil && strings.TrimSpace(*in.AdministeredBy) != "" {
		administeredBy = strings.TrimSpace(*in.AdministeredBy)
	}
	dosage := existing.Dosage
	if in.Dosage != nil {
		dosage = strings.TrimSpace(*in.Dosage)
	}
	notes := existing.Notes
	if in.Notes != nil {
		notes = strings.TrimSpace(*in.Notes)
	}

	_, err = s.db.Exec(ctx, `
		UPDATE vaccine_administrations
		SET administered_date = $1, administered_by = $2, dosage = NULLIF($3, ''), notes = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $5
	`, administered, administeredBy, dosage, notes, id)
	if err != nil {
		s.logger.Error("update vaccine administration failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update vaccine administration"})
		return
	}

	a, err := scanVaccineAdministration(s.db.QueryRow(ctx, `SELECT `+vaccineAdministrationColumns+` FROM vaccine_administrations WHERE id = $1`, id))
	if err != nil {
		s.logger.Error("fetch updated vaccine administration failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update vaccine administration"})
		return
	}

	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteVaccineAdministration(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := s.db.Exec(ctx, `DELETE FROM vaccine_administrations WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("delete vaccine administration failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete vaccine administration"})
		return
	}
	if res.RowsAffected() == 0 {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Vaccine administration not found"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Vaccine administration deleted successfully"})
}
