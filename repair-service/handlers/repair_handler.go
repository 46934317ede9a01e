package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fadedreams/repairshop/repair-service/domain"
	"fadedreams/repairshop/repair-service/service"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxBodyBytes = 1 << 20

// RepairHandler handles repair service requests
type RepairHandler struct {
	service *service.Service
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewRepairHandler creates a new RepairHandler
func NewRepairHandler(service *service.Service, logger *slog.Logger) *RepairHandler {
	return &RepairHandler{
		service: service,
		tracer:  otel.Tracer("repair-service"),
		logger:  logger,
	}
}

// statusFor maps the domain error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindTransition:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *RepairHandler) writeError(w http.ResponseWriter, r *http.Request, span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "error", err, "path", r.URL.Path, "requestID", RequestIDFrom(r.Context()))
		message = "internal server error"
	} else {
		h.logger.Warn(msg, "error", err, "status", status, "path", r.URL.Path, "requestID", RequestIDFrom(r.Context()))
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// actor returns the authenticated actor or writes a 401
func (h *RepairHandler) actor(w http.ResponseWriter, r *http.Request, span trace.Span) (domain.Actor, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		h.writeError(w, r, span, domain.AuthenticationError("authentication required"), "Unauthenticated request")
		return nil, false
	}
	span.SetAttributes(
		attribute.String("userID", actor.ID()),
		attribute.String("role", string(actor.Role())),
	)
	return actor, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ValidationError("Invalid request body: %v", err)
	}
	return nil
}

// expectedVersion reads If-Match. Absent means unconditional.
func expectedVersion(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return 0, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version <= 0 {
		return 0, domain.ValidationError("invalid If-Match version %q", r.Header.Get("If-Match"))
	}
	return version, nil
}

func writeRepair(w http.ResponseWriter, status int, repair *domain.RepairRequest) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(repair.Version, 10)))
	writeJSON(w, status, repair)
}

// HealthCheck provides a health endpoint
func (h *RepairHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HealthCheck")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.service.Ready(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Storage unavailable")
		h.logger.Error("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ListRepairs lists the repairs visible to the caller
func (h *RepairHandler) ListRepairs(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListRepairs")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	status := domain.RepairStatus(r.URL.Query().Get("status"))
	repairs, err := h.service.ListRepairs(ctx, actor, status)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to list repairs")
		return
	}
	span.SetAttributes(attribute.Int("repairCount", len(repairs)))
	h.logger.Info("Successfully sent response for GET /repairs", "repairCount", len(repairs), "userID", actor.ID())
	writeJSON(w, http.StatusOK, repairs)
}

// GetRepair returns a single repair
func (h *RepairHandler) GetRepair(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetRepair")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("repairID", id))

	repair, err := h.service.GetRepair(ctx, actor, id)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to get repair")
		return
	}
	writeRepair(w, http.StatusOK, repair)
}

// CreateRepair files a new repair request
func (h *RepairHandler) CreateRepair(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateRepair")
	defer span.End()

	h.logger.Info("Received POST /repairs request")
	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	var input service.CreateRepairInput
	if err := decodeBody(w, r, &input); err != nil {
		h.writeError(w, r, span, err, "Failed to decode request body")
		return
	}

	repair, err := h.service.CreateRepair(ctx, actor, input)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to create repair")
		return
	}
	span.SetAttributes(attribute.String("repairID", repair.ID))
	h.logger.Info("Successfully created repair", "repairID", repair.ID, "userID", actor.ID())
	writeRepair(w, http.StatusCreated, repair)
}

// UpdateRepair applies a partial update guarded by If-Match
func (h *RepairHandler) UpdateRepair(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateRepair")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("repairID", id))

	version, err := expectedVersion(r)
	if err != nil {
		h.writeError(w, r, span, err, "Invalid If-Match header")
		return
	}
	var input service.UpdateRepairInput
	if err := decodeBody(w, r, &input); err != nil {
		h.writeError(w, r, span, err, "Failed to decode request body")
		return
	}

	repair, err := h.service.UpdateRepair(ctx, actor, id, version, input)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to update repair")
		return
	}
	h.logger.Info("Successfully updated repair", "repairID", id, "status", repair.Status)
	writeRepair(w, http.StatusOK, repair)
}

// DeleteRepair removes a repair
func (h *RepairHandler) DeleteRepair(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteRepair")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("repairID", id))

	if err := h.service.DeleteRepair(ctx, actor, id); err != nil {
		h.writeError(w, r, span, err, "Failed to delete repair")
		return
	}
	h.logger.Info("Successfully deleted repair", "repairID", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Repair request deleted"})
}

// AddIteration records a unit of work on a repair
func (h *RepairHandler) AddIteration(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddIteration")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("repairID", id))

	version, err := expectedVersion(r)
	if err != nil {
		h.writeError(w, r, span, err, "Invalid If-Match header")
		return
	}
	var input service.AddIterationInput
	if err := decodeBody(w, r, &input); err != nil {
		h.writeError(w, r, span, err, "Failed to decode request body")
		return
	}

	repair, err := h.service.AddIteration(ctx, actor, id, version, input)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to add iteration")
		return
	}
	h.logger.Info("Successfully added iteration", "repairID", id, "iterations", len(repair.Iterations))
	writeRepair(w, http.StatusOK, repair)
}

// AssignMechanic assigns a mechanic to a repair
func (h *RepairHandler) AssignMechanic(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AssignMechanic")
	defer span.End()

	h.logger.Info("Received POST /repairs/{id}/assign request")
	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	version, err := expectedVersion(r)
	if err != nil {
		h.writeError(w, r, span, err, "Invalid If-Match header")
		return
	}
	var input service.AssignInput
	if err := decodeBody(w, r, &input); err != nil {
		h.writeError(w, r, span, err, "Failed to decode request body")
		return
	}
	span.SetAttributes(
		attribute.String("repairID", id),
		attribute.String("mechanicID", input.MechanicID),
	)

	repair, err := h.service.AssignMechanic(ctx, actor, id, version, input)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to assign repair")
		return
	}
	h.logger.Info("Successfully assigned repair", "repairID", id, "mechanicID", input.MechanicID)
	writeRepair(w, http.StatusOK, repair)
}
