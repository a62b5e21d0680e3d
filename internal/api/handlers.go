package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"terminbuch/internal/availability"
	"terminbuch/internal/booking"
	"terminbuch/internal/database"
	"terminbuch/internal/metrics"
	"terminbuch/internal/models"
)

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	q := r.URL.Query()

	salonID := q.Get("salon_id")
	if salonID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "salon_id is required")
		return
	}
	serviceIDs := splitCSV(q.Get("services"))
	if len(serviceIDs) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "services is required")
		return
	}
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid from; expected RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid to; expected RFC3339")
		return
	}

	rule, err := s.db.ActiveRule(r.Context(), salonID)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}

	slots, err := s.calc.Slots(r.Context(), availability.Request{
		SalonID:    salonID,
		StaffID:    q.Get("staff_id"),
		ServiceIDs: serviceIDs,
		From:       from,
		To:         to,
	}, rule, time.Now())
	if err != nil {
		s.writeBookingError(w, err)
		return
	}

	metrics.IncAvailability()
	if slots == nil {
		slots = []availability.Slot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (s *HTTPServer) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("holds")
	var req booking.HoldRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	appt, err := s.manager.CreateHold(r.Context(), req)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

type actorRequest struct {
	ActorRole   string `json:"actor_role"`
	ActorID     string `json:"actor_id"`
	Reason      string `json:"reason,omitempty"`
	DepositPaid bool   `json:"deposit_paid,omitempty"`
}

func decodeActor(r *http.Request) (actorRequest, models.Actor, error) {
	var req actorRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return req, "", err
	}
	actor := models.Actor(req.ActorRole)
	switch actor {
	case models.ActorCustomer, models.ActorStaff, models.ActorSystem:
	default:
		return req, "", errors.New("unknown actor_role")
	}
	return req, actor, nil
}

func (s *HTTPServer) handleConfirmHold(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("confirm")
	req, actor, err := decodeActor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	appt, err := s.manager.ConfirmHold(r.Context(), r.PathValue("id"), actor, req.ActorID, req.DepositPaid)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointment")
	appt, err := s.db.AppointmentByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	services, err := s.db.AppointmentServices(r.Context(), appt.ID)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment": appt,
		"services":    services,
	})
}

func (s *HTTPServer) handleAppointmentHistory(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("history")
	if _, err := s.db.AppointmentByID(r.Context(), r.PathValue("id")); err != nil {
		s.writeBookingError(w, err)
		return
	}
	transitions, err := s.db.TransitionsByAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("approve")
	req, actor, err := decodeActor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	appt, err := s.manager.ApproveAppointment(r.Context(), r.PathValue("id"), actor, req.ActorID)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel")
	req, actor, err := decodeActor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	appt, fee, err := s.manager.CancelAppointment(r.Context(), r.PathValue("id"), actor, req.ActorID, req.Reason)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment": appt,
		"fee":         fee,
	})
}

func (s *HTTPServer) handleNoShow(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("no_show")
	req, actor, err := decodeActor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	appt, fee, err := s.manager.MarkNoShow(r.Context(), r.PathValue("id"), actor, req.ActorID)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment": appt,
		"fee":         fee,
	})
}

func (s *HTTPServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("complete")
	req, actor, err := decodeActor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	appt, err := s.manager.CompleteAppointment(r.Context(), r.PathValue("id"), actor, req.ActorID)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleLedgerExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	type request struct {
		SalonID string `json:"salon_id"`
		From    string `json:"from"`
		To      string `json:"to"`
	}
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid from; expected YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid to; expected YYYY-MM-DD")
		return
	}

	path, err := s.exporter.ExportTransitions(r.Context(), req.SalonID, from, to.AddDate(0, 0, 1))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": path})
}

// writeBookingError maps engine errors onto HTTP statuses and stable codes.
func (s *HTTPServer) writeBookingError(w http.ResponseWriter, err error) {
	var policyErr *booking.PolicyViolationError
	var transitionErr *booking.InvalidTransitionError

	switch {
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrHoldExpired):
		writeError(w, http.StatusGone, "hold_expired", err.Error())
	case errors.Is(err, booking.ErrDepositRequired):
		writeError(w, http.StatusPaymentRequired, "deposit_required", err.Error())
	case errors.Is(err, booking.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "concurrency_conflict", err.Error())
	case errors.Is(err, booking.ErrActorNotAllowed):
		writeError(w, http.StatusForbidden, "actor_not_allowed", err.Error())
	case errors.Is(err, booking.ErrNotStarted):
		writeError(w, http.StatusUnprocessableEntity, "not_started", err.Error())
	case errors.As(err, &policyErr):
		// The violated rule rides along as its own field so callers can
		// branch without parsing the message.
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
			"code":  "policy_violation",
			"rule":  string(policyErr.Rule),
		})
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, availability.ErrUnknownService), errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		// Anything else reaching the handlers is a persistence failure; the
		// transaction already rolled back, no partial writes are visible.
		s.logger.Error().Err(err).Msg("store failure")
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "persistence failure")
	}
}
