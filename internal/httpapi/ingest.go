package httpapi

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/zonegate/server/internal/gate/types"
)

// timestampRe is the wire-contract timestamp shape: ISO-8601 UTC with a
// literal Z and optional fractional seconds.  Shape violations are the
// caller's fault (400); value checks such as skew happen downstream (403).
var timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d{1,9})?Z$`)

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req types.IngestEventRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	if code, msg, ok := validateIngest(req); !ok {
		writeError(w, http.StatusBadRequest, code, msg)
		return
	}

	res := s.ingest.Process(r.Context(), req)
	if !res.Accepted {
		writeJSON(w, http.StatusForbidden, types.IngestRejectedResponse{
			Status:       "rejected",
			Reason:       res.Reason,
			CheckpointID: req.CheckpointID,
			Details:      res.Details,
		})
		return
	}

	writeJSON(w, http.StatusAccepted, types.IngestAcceptedResponse{
		Status:       "accepted",
		CheckpointID: req.CheckpointID,
		EventID:      req.EventID,
		UserID:       res.UserCode,
	})
}

func validateIngest(req types.IngestEventRequest) (code, msg string, ok bool) {
	switch {
	case strings.TrimSpace(req.CheckpointID) == "":
		return "missing_field", "checkpointId is required", false
	case strings.TrimSpace(req.EventID) == "":
		return "missing_field", "eventId is required", false
	case strings.TrimSpace(req.Timestamp) == "":
		return "missing_field", "timestamp is required", false
	case strings.TrimSpace(req.UserToken) == "":
		return "missing_field", "userToken is required", false
	case strings.TrimSpace(req.Signature) == "":
		return "missing_field", "signature is required", false
	case !timestampRe.MatchString(req.Timestamp):
		return "invalid_timestamp", "timestamp must be ISO-8601 UTC with a Z suffix", false
	}
	return "", "", true
}
