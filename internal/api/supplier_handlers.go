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

const supplierColumns = `id, name, COALESCE(contact_person, ''), COALESCE(phone, ''), COALESCE(email, ''),
	COALESCE(address, ''), COALESCE(notes, ''), created_at, updated_at`

type supplierRecord struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contactPerson"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func scanSupplier(row rowScanner) (supplierRecord, error) {
	var sp supplierRecord
	err := row.Scan(&sp.ID, &sp.Name, &sp.ContactPerson, &sp.Phone, &sp.Email, &sp.Address, &sp.Notes,
		&sp.CreatedAt, &sp.UpdatedAt)
	return sp, err
}

type supplierInput struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	Notes         string `json:"notes"`
}

func (s *Server) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	search := parseSearch(r)

	rows, err := s.db.Query(ctx, `
		SELECT `+supplierColumns+`
		FROM suppliers
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		ORDER BY created_at DESC
	`, search)
	if err != nil {
		s.logger.Error("list suppliers failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch suppliers"})
		return
	}
	defer rows.Close()

	out := make([]supplierRecord, 0)
	for rows.Next() {
		sp, err := scanSupplier(rows)
		if err != nil {
			s.logger.Error("scan supplier failed", zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch suppliers"})
			return
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("list suppliers failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch suppliers"})
		return
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sp, err := scanSupplier(s.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Supplier not found"})
			return
		}
		s.logger.Error("get supplier failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch supplier"})
		return
	}

	respondJSON(w, http.StatusOK, sp)
}

func (s *Server) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var in supplierInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	phone, ok := normalizeKenyaPhone(in.Phone)
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "phone must be a valid Kenyan number"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO suppliers(name, contact_person, phone, email, address, notes)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
		RETURNING id
	`, in.Name, strings.TrimSpace(in.ContactPerson), phone, strings.TrimSpace(in.Email),
		strings.TrimSpace(in.Address), strings.TrimSpace(in.Notes)).Scan(&id)
	if err != nil {
		s.logger.Error("insert supplier failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create supplier"})
		return
	}

	sp, err := scanSupplier(s.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if err != nil {
		s.logger.Error("fetch created supplier failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create supplier"})
		return
	}

	respondJSON(w, http.StatusCreated, sp)
}

type supplierUpdateInput struct {
	Name          *string `json:"name"`
	ContactPerson *string `json:"contact_person"`
	Phone         *string `json:"phone"`
	Email         *string `json:"email"`
	Address       *string `json:"address"`
	Notes         *string `json:"notes"`
}

func (s *Server) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	var in supplierUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	existing, err := scanSupplier(s.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Supplier not found"})
			return
		}
		s.logger.Error("read supplier for update failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update supplier"})
		return
	}

	name := existing.Name
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	contact := existing.ContactPerson
	if in.ContactPerson != nil {
		contact = strings.TrimSpace(*in.ContactPerson)
	}
	phone := existing.Phone
	if in.Phone != nil {
		v, ok := normalizeKenyaPhone(*in.Phone)
		if !ok {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "phone must be a valid Kenyan number"})
			return
		}
		phone = v
	}
	email := existing.Email
	if in.Email != nil {
		email = strings.TrimSpace(*in.Email)
	}
	address := existing.Address
	if in.Address != nil {
		address = strings.TrimSpace(*in.Address)
	}
	notes := existing.Notes
	if in.Notes != nil {
		notes = strings.TrimSpace(*in.Notes)
	}

	_, err = s.db.Exec(ctx, `
		UPDATE suppliers
		SET name = $1, contact_person = NULLIF($2, ''), phone = NULLIF($3, ''), email = NULLIF($4, ''),
			address = NULLIF($5, ''), notes = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $7
	`, name, contact, phone, email, address, notes, id)
	if err != nil {
		s.logger.Error("update supplier failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update supplier"})
		return
	}

	sp, err := scanSupplier(s.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if err != nil {
		s.logger.Error("fetch updated supplier failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update supplier"})
		return
	}

	respondJSON(w, http.StatusOK, sp)
}

func (s *Server) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := s.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("delete supplier failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete supplier"})
		return
	}
	if res.RowsAffected() == 0 {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Supplier not found"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Supplier deleted successfully"})
}
