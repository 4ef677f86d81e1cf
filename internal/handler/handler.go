package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Dan9191/contract-service/internal/middleware"
	"github.com/Dan9191/contract-service/internal/models"
	"github.com/Dan9191/contract-service/internal/pdfsign"
	"github.com/Dan9191/contract-service/internal/repository"
	"github.com/Dan9191/contract-service/internal/service"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxUploadSize = 20 << 20

// Service is the business logic behind the handlers
type Service interface {
	Register(ctx context.Context, username, email, fullName, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	User(ctx context.Context, userID int64) (*models.User, error)
	Notifications(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID int64) error
	Contract(ctx context.Context, userID, contractID int64) (*models.Contract, error)
	RecordPayment(ctx context.Context, userID, scheduleID int64) error
}

// WebSocketServer upgrades a request into a push connection for userKey
type WebSocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userKey string)
}

type Handler struct {
	svc Service
	ws  WebSocketServer
	log *logrus.Logger
	// maxUpload bounds the PDF accepted by /signatures/locate
	maxUpload int64
	locate    func(r io.ReaderAt, size int64) (*pdfsign.SignatureCoordinates, error)
}

func NewHandler(svc Service, ws WebSocketServer, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, ws: ws, log: log, maxUpload: maxUploadSize, locate: pdfsign.Locate}
}

// Routes registers every endpoint on r. Routes other than /register, /login and
// /healthz require a bearer token.
func (h *Handler) Routes(r *mux.Router, jwtSecret string) {
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)

	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(jwtSecret))
	authRouter.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)
	authRouter.HandleFunc("/notifications/{id:[0-9]+}/read", h.MarkNotificationRead).Methods(http.MethodPost)
	authRouter.HandleFunc("/contracts/{id:[0-9]+}", h.GetContract).Methods(http.MethodGet)
	authRouter.HandleFunc("/payment-schedules/{id:[0-9]+}/pay", h.RecordPayment).Methods(http.MethodPost)
	authRouter.HandleFunc("/signatures/locate", h.LocateSignature).Methods(http.MethodPost)
	authRouter.HandleFunc("/ws", h.WebSocket).Methods(http.MethodGet)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.svc.Register(r.Context(), req.Username, req.Email, req.FullName, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// ListNotifications returns the caller's notifications; paged with limit and offset
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	notifications, err := h.svc.Notifications(r.Context(), userID, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

// MarkNotificationRead marks one of the caller's notifications as read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid notification id")
		return
	}

	if err := h.svc.MarkNotificationRead(r.Context(), userID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetContract returns a contract with its schedules and addenda
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid contract id")
		return
	}

	contract, err := h.svc.Contract(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

// RecordPayment marks an installment as paid
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment schedule id")
		return
	}

	if err := h.svc.RecordPayment(r.Context(), userID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.PaymentPaid)})
}

// LocateSignature finds where party A signs in the uploaded PDF
func (h *Handler) LocateSignature(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, _, err := r.FormFile("file")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	coords, err := h.locate(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if coords == nil {
		writeError(w, http.StatusNotFound, "Signature anchor not found")
		return
	}
	writeJSON(w, http.StatusOK, coords)
}

// WebSocket upgrades the connection and streams the caller's push events
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	user, err := h.svc.User(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ws.ServeWS(w, r, user.Username)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, service.ErrForbidden):
		status, msg = http.StatusForbidden, "Forbidden"
	case errors.Is(err, repository.ErrNotFound):
		status, msg = http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrInvalidStatusTransition):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, pdfsign.ErrInvalidPDF):
		status, msg = http.StatusUnprocessableEntity, "Unreadable PDF"
	}

	entry := h.log.WithFields(logrus.Fields{
		"request_id": middleware.GetRequestID(r.Context()),
		"path":       r.URL.Path,
	})
	if status == http.StatusInternalServerError {
		entry.Errorf("Request failed: %v", err)
	} else {
		entry.Debugf("Request rejected: %v", err)
	}
	writeError(w, status, msg)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
