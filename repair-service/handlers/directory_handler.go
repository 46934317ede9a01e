package handlers

import (
	"net/http"

	"fadedreams/repairshop/repair-service/service"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
)

// CreateCar registers a car for the caller
func (h *RepairHandler) CreateCar(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateCar")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	var input service.CreateCarInput
	if err := decodeBody(w, r, &input); err != nil {
		h.writeError(w, r, span, err, "Failed to decode request body")
		return
	}
	car, err := h.service.CreateCar(ctx, actor, input)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to create car")
		return
	}
	writeJSON(w, http.StatusCreated, car)
}

func (h *RepairHandler) ListCars(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListCars")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	cars, err := h.service.ListCars(ctx, actor)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to list cars")
		return
	}
	writeJSON(w, http.StatusOK, cars)
}

func (h *RepairHandler) ListWorkshops(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListWorkshops")
	defer span.End()

	workshops, err := h.service.ListWorkshops(ctx)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to list workshops")
		return
	}
	writeJSON(w, http.StatusOK, workshops)
}

func (h *RepairHandler) GetWorkshop(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetWorkshop")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("workshopID", id))
	workshop, err := h.service.GetWorkshop(ctx, id)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to get workshop")
		return
	}
	writeJSON(w, http.StatusOK, workshop)
}

func (h *RepairHandler) CreateWorkshop(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateWorkshop")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	var input service.CreateWorkshopInput
	if err := decodeBody(w, r, &input); err != nil {
		h.writeError(w, r, span, err, "Failed to decode request body")
		return
	}
	workshop, err := h.service.CreateWorkshop(ctx, actor, input)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to create workshop")
		return
	}
	h.logger.Info("Successfully created workshop", "workshopID", workshop.ID)
	writeJSON(w, http.StatusCreated, workshop)
}

// AddWorkshopMechanic puts a mechanic on a workshop roster
func (h *RepairHandler) AddWorkshopMechanic(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddWorkshopMechanic")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	var input service.WorkshopMechanicInput
	if err := decodeBody(w, r, &input); err != nil {
		h.writeError(w, r, span, err, "Failed to decode request body")
		return
	}
	workshop, err := h.service.AddWorkshopMechanic(ctx, actor, id, input)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to add workshop mechanic")
		return
	}
	writeJSON(w, http.StatusOK, workshop)
}

// RemoveWorkshopMechanic takes a mechanic off a workshop roster
func (h *RepairHandler) RemoveWorkshopMechanic(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveWorkshopMechanic")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	workshop, err := h.service.RemoveWorkshopMechanic(ctx, actor, vars["id"], vars["mechanicId"])
	if err != nil {
		h.writeError(w, r, span, err, "Failed to remove workshop mechanic")
		return
	}
	writeJSON(w, http.StatusOK, workshop)
}

// ListMechanics lists mechanics, optionally filtered by ?specialization=
func (h *RepairHandler) ListMechanics(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListMechanics")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	mechanics, err := h.service.ListMechanics(ctx, actor, r.URL.Query().Get("specialization"))
	if err != nil {
		h.writeError(w, r, span, err, "Failed to list mechanics")
		return
	}
	writeJSON(w, http.StatusOK, mechanics)
}

func (h *RepairHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Me")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	user, err := h.service.Profile(ctx, actor)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to get profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *RepairHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListNotifications")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	notifications, err := h.service.ListNotifications(ctx, actor)
	if err != nil {
		h.writeError(w, r, span, err, "Failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *RepairHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "MarkNotificationRead")
	defer span.End()

	actor, ok := h.actor(w, r, span)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.service.MarkNotificationRead(ctx, actor, id); err != nil {
		h.writeError(w, r, span, err, "Failed to mark notification as read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}
