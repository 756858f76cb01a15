package api

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"poultrypro/backend/internal/config"
)

type Server struct {
	db              *pgxpool.Pool
	jwtSecret       []byte
	logger          *zap.Logger
	location        *time.Location
	defaultCurrency string
	allowedOrigins  map[string]struct{}
	allowAnyOrigin  bool
	loginLimiter    *attemptLimiter
}

type authContextKey string

const userIDContextKey authContextKey = "user_id"

func NewServer(db *pgxpool.Pool, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		logger.Warn("invalid APP_TIMEZONE, falling back to UTC", zap.String("timezone", cfg.AppTimezone))
		loc = time.UTC
	}

	origins := make(map[string]struct{}, len(cfg.CORSAllowedOrigins))
	allowAny := false
	for _, o := range cfg.CORSAllowedOrigins {
		if o == "*" {
			allowAny = true
			continue
		}
		origins[o] = struct{}{}
	}

	return &Server{
		db:              db,
		jwtSecret:       []byte(cfg.JWTSecret),
		logger:          logger,
		location:        loc,
		defaultCurrency: cfg.DefaultCurrency,
		allowedOrigins:  origins,
		allowAnyOrigin:  allowAny,
		loginLimiter:    newAttemptLimiter(10, time.Minute),
	}
}

func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("GET /api/auth/me", s.authRequired(http.HandlerFunc(s.handleMe)))

	mux.Handle("GET /api/batches", s.authRequired(http.HandlerFunc(s.handleBatches)))
	mux.Handle("POST /api/batches", s.authRequired(http.HandlerFunc(s.handleCreateBatch)))
	mux.Handle("GET /api/batches/{id}", s.authRequired(http.HandlerFunc(s.handleGetBatch)))
	mux.Handle("PUT /api/batches/{id}", s.authRequired(http.HandlerFunc(s.handleUpdateBatch)))
	mux.Handle("DELETE /api/batches/{id}", s.authRequired(http.HandlerFunc(s.handleDeleteBatch)))

	mux.Handle("GET /api/daily-logs", s.authRequired(http.HandlerFunc(s.handleDailyLogs)))
	mux.Handle("POST /api/daily-logs", s.authRequired(http.HandlerFunc(s.handleCreateDailyLog)))
	mux.Handle("GET /api/daily-logs/{id}", s.authRequired(http.HandlerFunc(s.handleGetDailyLog)))
	mux.Handle("PUT /api/daily-logs/{id}", s.authRequired(http.HandlerFunc(s.handleUpdateDailyLog)))
	mux.Handle("DELETE /api/daily-logs/{id}", s.authRequired(http.HandlerFunc(s.handleDeleteDailyLog)))

	mux.Handle("GET /api/suppliers", s.authRequired(http.HandlerFunc(s.handleSuppliers)))
	mux.Handle("POST /api/suppliers", s.authRequired(http.HandlerFunc(s.handleCreateSupplier)))
	mux.Handle("GET /api/suppliers/{id}", s.authRequired(http.HandlerFunc(s.handleGetSupplier)))
	mux.Handle("PUT /api/suppliers/{id}", s.authRequired(http.HandlerFunc(s.handleUpdateSupplier)))
	mux.Handle("DELETE /api/suppliers/{id}", s.authRequired(http.HandlerFunc(s.handleDeleteSupplier)))

	mux.Handle("GET /api/vaccine-schedules", s.authRequired(http.HandlerFunc(s.handleVaccineSchedules)))
	mux.Handle("POST /api/vaccine-schedules", s.authRequired(http.HandlerFunc(s.handleCreateVaccineSchedule)))
	mux.Handle("GET /api/vaccine-schedules/{id}", s.authRequired(http.HandlerFunc(s.handleGetVaccineSchedule)))
	mux.Handle("PUT /api/vaccine-schedules/{id}", s.authRequired(http.HandlerFunc(s.handleUpdateVaccineSchedule)))
	mux.Handle("DELETE /api/vaccine-schedules/{id}", s.authRequired(http.HandlerFunc(s.handleDeleteVaccineSchedule)))

	mux.Handle("GET /api/vaccine-administrations", s.authRequired(http.HandlerFunc(s.handleVaccineAdministrations)))
	mux.Handle("POST /api/vaccine-administrations", s.authRequired(http.HandlerFunc(s.handleCreateVaccineAdministration)))
	mux.Handle("PUT /api/vaccine-administrations/{id}", s.authRequired(http.HandlerFunc(s.handleUpdateVaccineAdministration)))
	mux.Handle("DELETE /api/vaccine-administrations/{id}", s.authRequired(http.HandlerFunc(s.handleDeleteVaccineAdministration)))

	mux.Handle("GET /api/feed-intakes", s.authRequired(http.HandlerFunc(s.handleFeedIntakes)))
	mux.Handle("POST /api/feed-intakes", s.authRequired(http.HandlerFunc(s.handleCreateFeedIntake)))
	mux.Handle("GET /api/feed-intakes/{id}", s.authRequired(http.HandlerFunc(s.handleGetFeedIntake)))
	mux.Handle("PUT /api/feed-intakes/{id}", s.authRequired(http.HandlerFunc(s.handleUpdateFeedIntake)))
	mux.Handle("DELETE /api/feed-intakes/{id}", s.authRequired(http.HandlerFunc(s.handleDeleteFeedIntake)))

	mux.Handle("GET /api/expenses/summary", s.authRequired(http.HandlerFunc(s.handleExpensesSummary)))
	mux.Handle("GET /api/expenses", s.authRequired(http.HandlerFunc(s.handleExpenses)))
	mux.Handle("POST /api/expenses", s.authRequired(http.HandlerFunc(s.handleCreateExpense)))
	mux.Handle("PUT /api/expenses/{id}", s.authRequired(http.HandlerFunc(s.handleUpdateExpense)))
	mux.Handle("DELETE /api/expenses/{id}", s.authRequired(http.HandlerFunc(s.handleDeleteExpense)))

	return s.withCORS(mux)
}

func (s *Server) formatISODate(d time.Time) string {
	return d.Format(dateLayout)
}
