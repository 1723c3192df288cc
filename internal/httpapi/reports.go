package httpapi

import (
	"net/http"
	"time"

	"github.com/zonegate/server/internal/gate/store"
)

type eventView struct {
	EventID      string  `json:"eventId"`
	CheckpointID string  `json:"checkpointId"`
	UserID       string  `json:"userId"`
	FromZoneID   *string `json:"fromZoneId"`
	ToZoneID     *string `json:"toZoneId"`
	Timestamp    string  `json:"timestamp"`
	RecordedAt   string  `json:"recordedAt"`
}

type denialView struct {
	EventID        string  `json:"eventId"`
	CheckpointID   *string `json:"checkpointId"`
	CheckpointCode string  `json:"checkpointCode,omitempty"`
	UserID         *string `json:"userId"`
	UserCode       string  `json:"userCode,omitempty"`
	FromZoneID     *string `json:"fromZoneId"`
	FromZoneCode   string  `json:"fromZoneCode,omitempty"`
	ToZoneID       *string `json:"toZoneId"`
	ToZoneCode     string  `json:"toZoneCode,omitempty"`
	Reason         string  `json:"reason"`
	Details        string  `json:"details,omitempty"`
	CreatedAt      string  `json:"createdAt"`
}

type userStateView struct {
	UserID    string  `json:"userId"`
	ZoneID    *string `json:"zoneId"`
	Version   int64   `json:"version"`
	UpdatedAt string  `json:"updatedAt"`
}

func (s *Server) handleReportEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	recs, err := s.events.ListRecent(r.Context(), limit, offset)
	if err != nil {
		s.logger.Printf("report events error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	out := make([]eventView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, eventView{
			EventID:      rec.EventID,
			CheckpointID: rec.CheckpointID,
			UserID:       rec.UserID,
			FromZoneID:   rec.FromZoneID,
			ToZoneID:     rec.ToZoneID,
			Timestamp:    rec.Timestamp.Format(time.RFC3339Nano),
			RecordedAt:   rec.RecordedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReportDenials(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	recs, err := s.denials.ListRecent(r.Context(), limit, offset)
	if err != nil {
		s.logger.Printf("report denials error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	out := make([]denialView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDenialView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReportUserStates(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	recs, err := s.states.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Printf("report user states error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	out := make([]userStateView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, userStateView{
			UserID:    rec.UserID,
			ZoneID:    rec.ZoneID,
			Version:   rec.Version,
			UpdatedAt: rec.UpdatedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func toDenialView(rec store.DenialRecord) denialView {
	return denialView{
		EventID:        rec.EventID,
		CheckpointID:   rec.CheckpointID,
		CheckpointCode: rec.CheckpointCode,
		UserID:         rec.UserID,
		UserCode:       rec.UserCode,
		FromZoneID:     rec.FromZoneID,
		FromZoneCode:   rec.FromZoneCode,
		ToZoneID:       rec.ToZoneID,
		ToZoneCode:     rec.ToZoneCode,
		Reason:         rec.Reason,
		Details:        rec.Details,
		CreatedAt:      rec.CreatedAt.Format(time.RFC3339Nano),
	}
}
