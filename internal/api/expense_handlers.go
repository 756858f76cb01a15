package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

func (s *Server) handleExpensesSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var total, dailyAvg float64
	var category string
	var categoryAmount float64

	_ = s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE DATE_TRUNC('month', expense_date) = DATE_TRUNC('month', CURRENT_DATE)
	`).Scan(&total)
	_ = s.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(day_total), 0)
		FROM (
			SELECT expense_date, SUM(amount) AS day_total
			FROM expenses
			WHERE DATE_TRUNC('month', expense_date) = DATE_TRUNC('month', CURRENT_DATE)
			GROUP BY expense_date
		) t
	`).Scan(&dailyAvg)
	_ = s.db.QueryRow(ctx, `
		SELECT category, SUM(amount) AS total
		FROM expenses
		GROUP BY category
		ORDER BY total DESC
		LIMIT 1
	`).Scan(&category, &categoryAmount)

	respondJSON(w, http.StatusOK, map[string]any{
		"totalExpenses":   total,
		"dailyAverage":    dailyAvg,
		"largestCategory": category,
		"largestAmount":   categoryAmount,
	})
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	page, pageSize := parsePagination(r)
	search := parseSearch(r)
	offset := (page - 1) * pageSize

	var total int64
	_ = s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM expenses
		WHERE ($1 = '' OR category ILIKE '%' || $1 || '%' OR item ILIKE '%' || $1 || '%' OR vendor ILIKE '%' || $1 || '%')
	`, search).Scan(&total)

	rows, err := s.db.Query(ctx, `
		SELECT id, expense_date, category, item, COALESCE(vendor, ''), amount
		FROM expenses
		WHERE ($1 = '' OR category ILIKE '%' || $1 || '%' OR item ILIKE '%' || $1 || '%' OR vendor ILIKE '%' || $1 || '%')
		ORDER BY expense_date DESC, id DESC
		LIMIT $2 OFFSET $3
	`, search, pageSize, offset)
	if err != nil {
		s.logger.Error("list expenses failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load expenses"})
		return
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		var id int64
		var d time.Time
		var category, item, vendor string
		var amount float64
		if err := rows.Scan(&id, &d, &category, &item, &vendor, &amount); err != nil {
			s.logger.Error("scan expense failed", zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to parse expenses"})
			return
		}
		out = append(out, map[string]any{
			"id":        id,
			"date":      s.formatDateCompact(d),
			"dateRaw":   s.formatISODate(d),
			"category":  category,
			"item":      item,
			"vendor":    vendor,
			"amount":    s.formatMoney(amount),
			"amountRaw": amount,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"items":    out,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

type expenseInput struct {
	ExpenseDate string   `json:"expense_date"`
	Category    string   `json:"category"`
	Item        string   `json:"item"`
	Vendor      string   `json:"vendor"`
	Amount      *float64 `json:"amount"`
}

func (in *expenseInput) validate() (string, bool) {
	in.ExpenseDate = strings.TrimSpace(in.ExpenseDate)
	in.Category = strings.TrimSpace(in.Category)
	in.Item = strings.TrimSpace(in.Item)

	if in.ExpenseDate == "" || in.Category == "" || in.Item == "" || in.Amount == nil {
		return "Missing required fields", false
	}
	if *in.Amount < 0 {
		return "amount cannot be negative", false
	}
	return "", true
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in expenseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}
	if msg, ok := in.validate(); !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	expenseDate, err := time.Parse(dateLayout, in.ExpenseDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "expense_date must be YYYY-MM-DD"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var id int64
	err = s.db.QueryRow(ctx, `
		INSERT INTO expenses(expense_date, category, item, vendor, amount, currency)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING id
	`, expenseDate, in.Category, in.Item, strings.TrimSpace(in.Vendor), *in.Amount, s.defaultCurrency).Scan(&id)
	if err != nil {
		s.logger.Error("insert expense failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create expense"})
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":          id,
		"expenseDate": expenseDate.Format(dateLayout),
		"category":    in.Category,
		"item":        in.Item,
		"vendor":      strings.TrimSpace(in.Vendor),
		"amount":      *in.Amount,
	})
}

type expenseUpdateInput struct {
	ExpenseDate *string  `json:"expense_date"`
	Category    *string  `json:"category"`
	Item        *string  `json:"item"`
	Vendor      *string  `json:"vendor"`
	Amount      *float64 `json:"amount"`
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	var in expenseUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var expenseDate time.Time
	var category, item, vendor string
	var amount float64
	err = s.db.QueryRow(ctx, `
		SELECT expense_date, category, item, COALESCE(vendor, ''), amount FROM expenses WHERE id = $1
	`, id).Scan(&expenseDate, &category, &item, &vendor, &amount)
	if err != nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Expense not found"})
		return
	}

	if in.ExpenseDate != nil && strings.TrimSpace(*in.ExpenseDate) != "" {
		d, err := time.Parse(dateLayout, strings.TrimSpace(*in.ExpenseDate))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "expense_date must be YYYY-MM-DD"})
			return
		}
		expenseDate = d
	}
	if in.Category != nil && strings.TrimSpace(*in.Category) != "" {
		category = strings.TrimSpace(*in.Category)
	}
	if in.Item != nil && strings.TrimSpace(*in.Item) != "" {
		item = strings.TrimSpace(*in.Item)
	}
	if in.Vendor != nil {
		vendor = strings.TrimSpace(*in.Vendor)
	}
	if in.Amount != nil {
		if *in.Amount < 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "amount cannot be negative"})
			return
		}
		amount = *in.Amount
	}

	_, err = s.db.Exec(ctx, `
		UPDATE expenses
		SET expense_date = $1, category = $2, item = $3, vendor = NULLIF($4, ''), amount = $5, updated_at = NOW()
		WHERE id = $6
	`, expenseDate, category, item, vendor, amount, id)
	if err != nil {
		s.logger.Error("update expense failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update expense"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":          id,
		"expenseDate": expenseDate.Format(dateLayout),
		"category":    category,
		"item":        item,
		"vendor":      vendor,
		"amount":      amount,
	})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := s.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("delete expense failed", zap.Int64("id", id), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete expense"})
		return
	}
	if res.RowsAffected() == 0 {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Expense not found"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Expense deleted successfully"})
}
