// Package api exposes the scheduler over HTTP. All timestamps on the wire
// are ISO-8601 UTC strings.
package api

import (
	"encoding/json"
	stderrors "errors"
	"log"
	"net/http"
	"strings"

	"center-scheduler/capacity"
	"center-scheduler/errors"
	"center-scheduler/models"
	"center-scheduler/queue"
	"center-scheduler/scheduler"
	"center-scheduler/store"
)

// API wires the scheduler, queue, and capacity tracker to their routes.
type API struct {
	sched   *scheduler.Scheduler
	queue   *queue.Manager
	tracker *capacity.Tracker
	token   string
	logger  *log.Logger
}

// New constructs the API. An empty token disables session checking.
func New(sched *scheduler.Scheduler, qm *queue.Manager, tracker *capacity.Tracker, token string, logger *log.Logger) *API {
	return &API{sched: sched, queue: qm, tracker: tracker, token: token, logger: logger}
}

// Handler returns the routed http.Handler.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /assignments", a.handleCreateAssignment)
	mux.HandleFunc("GET /assignments", a.handleListAssignments)
	mux.HandleFunc("GET /assignments/conflicts", a.handleConflicts)
	mux.HandleFunc("GET /assignments/{id}", a.handleGetAssignment)
	mux.HandleFunc("PUT /assignments/{id}/reschedule", a.handleReschedule)
	mux.HandleFunc("PUT /assignments/{id}/reassign", a.handleReassign)
	mux.HandleFunc("PUT /assignments/{id}/noshow", a.handleAssignmentNoShow)
	mux.HandleFunc("DELETE /assignments/{id}", a.handleCancel)

	mux.HandleFunc("GET /queue", a.handleListQueue)
	mux.HandleFunc("POST /queue", a.handleAddToQueue)
	mux.HandleFunc("POST /queue/reorder", a.handleReorder)
	mux.HandleFunc("POST /queue/{id}/no-show", a.handleTicketNoShow)
	mux.HandleFunc("POST /queue/{id}/convert", a.handleConvert)

	mux.HandleFunc("GET /capacity", a.handleCapacity)

	return a.authenticate(mux)
}

// authenticate rejects requests without the configured session token.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token != "" && r.URL.Path != "/healthz" {
			header := r.Header.Get("Authorization")
			presented := strings.TrimPrefix(header, "Bearer ")
			if header == "" {
				a.writeError(w, &errors.AuthorizationError{Reason: "missing session token"})
				return
			}
			if presented != a.token {
				a.writeError(w, &errors.AuthorizationError{Reason: "session expired or invalid"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload assignmentPayloadV1
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	in, err := payload.normalize()
	if err != nil {
		a.writeError(w, err)
		return
	}
	if r.URL.Query().Get("force") == "1" {
		in.Force = true
	}
	created, err := a.sched.Create(r.Context(), in)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AssignmentFilter{
		CenterID:     q.Get("centerId"),
		TechnicianID: q.Get("technicianId"),
		Date:         q.Get("date"),
		ActiveOnly:   q.Get("activeOnly") == "1",
	}
	assignments, err := a.sched.List(r.Context(), filter)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (a *API) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	assignment, err := a.sched.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (a *API) handleConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	technicianID := q.Get("technicianId")
	if technicianID == "" {
		a.writeError(w, &errors.ValidationError{Field: "technicianId", Err: errors.ErrMissingTechnician})
		return
	}
	start, err := parseTimestamp("startUtc", q.Get("startUtc"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	end, err := parseTimestamp("endUtc", q.Get("endUtc"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if start.IsZero() || !start.Before(end) {
		a.writeError(w, &errors.ValidationError{Field: "startUtc", Err: errors.ErrInvalidWindow})
		return
	}
	result, err := a.sched.Detector().Check(r.Context(), technicianID, models.Window{Start: start, End: end}, q.Get("excludeId"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleReschedule(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload reschedulePayloadV1
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	window, reason, err := payload.normalize()
	if err != nil {
		a.writeError(w, err)
		return
	}
	updated, err := a.sched.Reschedule(r.Context(), r.PathValue("id"), window, reason)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleReassign(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload reassignPayloadV1
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	newTechnicianID, reason := payload.normalize()
	updated, err := a.sched.Reassign(r.Context(), r.PathValue("id"), newTechnicianID, reason)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleAssignmentNoShow(w http.ResponseWriter, r *http.Request) {
	updated, err := a.sched.MarkNoShow(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	byCustomer := r.URL.Query().Get("byCustomer") == "1"
	cancelled, err := a.sched.Cancel(r.Context(), r.PathValue("id"), byCustomer)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

func (a *API) handleListQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	centerID, date := q.Get("centerId"), q.Get("date")
	if centerID == "" {
		a.writeError(w, &errors.ValidationError{Field: "centerId", Err: errors.ErrMissingCenter})
		return
	}
	var tickets []models.QueueTicket
	var err error
	if q.Get("all") == "1" {
		tickets, err = a.queue.List(r.Context(), centerID, date)
	} else {
		tickets, err = a.queue.Active(r.Context(), centerID, date)
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (a *API) handleAddToQueue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload queueAddPayloadV1
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	created, err := a.queue.Add(r.Context(), payload.normalize())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleReorder(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload reorderPayloadV1
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	centerID, date, orderedIDs := payload.normalize()
	reordered, err := a.queue.Reorder(r.Context(), centerID, date, orderedIDs)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reordered)
}

func (a *API) handleTicketNoShow(w http.ResponseWriter, r *http.Request) {
	updated, err := a.queue.MarkNoShow(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type convertResponse struct {
	Ticket     models.QueueTicket `json:"ticket"`
	Assignment models.Assignment  `json:"assignment"`
}

func (a *API) handleConvert(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload convertPayloadV1
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	in, err := payload.normalize()
	if err != nil {
		a.writeError(w, err)
		return
	}
	ticket, assignment, err := a.queue.Convert(r.Context(), r.PathValue("id"), in)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{Ticket: ticket, Assignment: assignment})
}

// capacityView joins the derived counts with their display classification.
type capacityView struct {
	models.SlotCapacity
	Label string `json:"label"`
	Color string `json:"color"`
}

func classify(sc models.SlotCapacity) capacityView {
	label, color := capacity.Classify(sc.Occupied, sc.Capacity)
	return capacityView{SlotCapacity: sc, Label: label, Color: color}
}

func (a *API) handleCapacity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	centerID, date := q.Get("centerId"), q.Get("date")
	if centerID == "" {
		a.writeError(w, &errors.ValidationError{Field: "centerId", Err: errors.ErrMissingCenter})
		return
	}
	if shiftParam := q.Get("shift"); shiftParam != "" {
		shift, err := models.ParseShift(shiftParam)
		if err != nil {
			a.writeError(w, &errors.ValidationError{Field: "shift", Err: err})
			return
		}
		sc, err := a.tracker.Compute(r.Context(), centerID, date, shift)
		if err != nil {
			a.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, classify(sc))
		return
	}
	slots, err := a.tracker.ComputeDay(r.Context(), centerID, date)
	if err != nil {
		a.writeError(w, err)
		return
	}
	views := make([]capacityView, len(slots))
	for i, sc := range slots {
		views[i] = classify(sc)
	}
	writeJSON(w, http.StatusOK, views)
}

// conflictBody is the 409 response shape; the client offers "proceed anyway"
// by resubmitting with force set.
type conflictBody struct {
	Error     string              `json:"error"`
	Conflicts []models.Assignment `json:"conflicts"`
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var validation *errors.ValidationError
	var conflict *errors.ConflictError
	var notFound *errors.NotFoundError
	var stale *errors.StaleVersionError
	var auth *errors.AuthorizationError

	switch {
	case stderrors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	case stderrors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, conflictBody{Error: conflict.Error(), Conflicts: conflict.Conflicts})
	case stderrors.As(err, &notFound):
		http.Error(w, notFound.Error(), http.StatusNotFound)
	case stderrors.As(err, &stale):
		http.Error(w, stale.Error(), http.StatusConflict)
	case stderrors.As(err, &auth):
		http.Error(w, auth.Error(), http.StatusUnauthorized)
	default:
		if a.logger != nil {
			a.logger.Printf("internal error: %v", err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
