package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
	"github.com/Bidon15/licensesale/internal/pkg/response"
	"github.com/Bidon15/licensesale/internal/repository"
)

// EventHandler serves the persisted event index.
type EventHandler struct {
	events repository.EventRepository
}

// NewEventHandler creates a new event handler.
func NewEventHandler(events repository.EventRepository) *EventHandler {
	return &EventHandler{events: events}
}

// Routes returns the event router with all routes registered.
func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListEvents)
	return r
}

var eventKinds = map[models.EventKind]bool{
	models.EventConfigChanged:      true,
	models.EventCountUpdated:       true,
	models.EventTokenIssued:        true,
	models.EventSettingsChanged:    true,
	models.EventLicenseTransferred: true,
	models.EventPaymentTransferred: true,
}

// ListEvents pages through events in commit order.
// GET /v1/events?kind=TokenIssued&after=<event id>&limit=50
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.EventFilter{
		Kind:  models.EventKind(q.Get("kind")),
		After: q.Get("after"),
	}
	if filter.Kind != "" && !eventKinds[filter.Kind] {
		response.Error(w, apierrors.NewValidationError("kind", "unknown event kind"))
		return
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			response.Error(w, apierrors.NewValidationError("limit", "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	events, err := h.events.List(r.Context(), filter)
	if err != nil {
		response.Error(w, err)
		return
	}
	if events == nil {
		events = []*repository.StoredEvent{}
	}

	meta := &response.Meta{Total: len(events)}
	if len(events) > 0 {
		meta.NextCursor = events[len(events)-1].ID
	}
	response.JSONWithMeta(w, http.StatusOK, events, meta)
}
