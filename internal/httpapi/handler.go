package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"turnero/internal/auth"
	"turnero/internal/dispatch"
	"turnero/internal/importer"
	"turnero/internal/models"
	"turnero/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	engine *dispatch.Engine
	store  store.TicketStore
	tokens *auth.Manager
}

func NewHandler(engine *dispatch.Engine, st store.TicketStore, tokens *auth.Manager) *Handler {
	return &Handler{engine: engine, store: st, tokens: tokens}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/import", h.handleImport)
	mux.HandleFunc("/api/tickets/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tickets/active", h.handleActiveTicket)
	mux.HandleFunc("/api/tickets/", h.handleTicketSubtree)
	return mux
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createTicketRequest struct {
	DisplayName string `json:"display_name"`
	Date        string `json:"date"`
}

type callNextRequest struct {
	Stage   string `json:"stage"`
	Station int    `json:"station"`
}

type finishRequest struct {
	Target string `json:"target"`
}

type setNameRequest struct {
	DisplayName string `json:"display_name"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	user, err := h.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	token, expiresAt, err := h.tokens.Issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
		"user":       user,
	})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	snapshot, err := h.engine.Snapshot(r.Context(), date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createTicketRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	date := todayUTC()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	var displayName *string
	if req.DisplayName != "" {
		displayName = &req.DisplayName
	}
	ticket, err := h.engine.Create(r.Context(), displayName, date, &identity.ActorID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	result, err := importer.ImportCSV(r.Context(), r.Body, date, identity.ActorID, h.engine.Create)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_csv", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req callNextRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Stage = strings.ToUpper(strings.TrimSpace(req.Stage))
	if req.Stage == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "stage is required")
		return
	}
	// Agents are pinned to the station in their token; only admins, who carry
	// no box_number, may name one.
	if req.Station > 0 && identity.Role == models.RoleAdmin {
		identity.Station = req.Station
	}

	ticket, found, err := h.engine.CallNext(r.Context(), req.Stage, identity)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleActiveTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	station := identity.Station
	if raw := strings.TrimSpace(r.URL.Query().Get("station")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "station must be a positive integer")
			return
		}
		station = parsed
	}
	if station <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "station is required")
		return
	}

	ticket, found, err := h.engine.ActiveTicket(r.Context(), station)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}
	ticketID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGetTicket(w, r, ticketID)
	case len(parts) == 1 && r.Method == http.MethodPatch:
		h.handleSetName(w, r, ticketID)
	case len(parts) == 2 && parts[1] == "audit" && r.Method == http.MethodGet:
		h.handleAuditTrail(w, r, ticketID)
	case len(parts) == 3 && parts[1] == "actions" && r.Method == http.MethodPost:
		h.handleTicketAction(w, r, ticketID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	ticket, err := h.engine.Get(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleSetName(w http.ResponseWriter, r *http.Request, ticketID string) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req setNameRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "display_name is required")
		return
	}

	ticket, err := h.engine.SetDisplayName(r.Context(), ticketID, req.DisplayName, identity)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request, ticketID string) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	entries, err := h.engine.AuditTrail(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var ticket interface{}
	var err error
	switch action {
	case "attend":
		ticket, err = h.engine.Attend(r.Context(), ticketID, identity)
	case "cancel":
		ticket, err = h.engine.Cancel(r.Context(), ticketID, identity)
	case "finish":
		var req finishRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		target := strings.ToUpper(strings.TrimSpace(req.Target))
		ticket, err = h.engine.Finish(r.Context(), ticketID, target, identity)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func dateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return todayUTC(), true
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return parsed, true
}

func todayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "not_found", "ticket not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "not_found", "user not found"
	case errors.Is(err, store.ErrNotYourTicket):
		return http.StatusConflict, "not_your_ticket", "ticket is claimed by another station"
	case errors.Is(err, store.ErrInvalidStage):
		return http.StatusBadRequest, "invalid_stage", "stage does not allow this operation"
	case errors.Is(err, store.ErrInvalidStatus):
		return http.StatusConflict, "invalid_status", "ticket status does not allow this action"
	case errors.Is(err, store.ErrStationBusy):
		return http.StatusConflict, "station_busy", "station already has an active ticket"
	case errors.Is(err, store.ErrAlreadyReserved):
		return http.StatusConflict, "already_reserved", "ticket was reserved by a concurrent call"
	case errors.Is(err, store.ErrSerialization):
		return http.StatusServiceUnavailable, "conflict_retry", "operation conflicted, retry"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, dispatch.ErrForbidden):
		return http.StatusForbidden, "forbidden", "role not allowed for this stage"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
