package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zonegate/server/internal/gate/service"
	"github.com/zonegate/server/internal/gate/store"
)

// Admin wire shapes.  Zones in checkpoint and access-rule bodies are
// referenced by code, with "OUT" (or blank) meaning outside.

type createCodeRequest struct {
	Code string `json:"code"`
}

type createCheckpointRequest struct {
	Code     string `json:"code"`
	FromZone string `json:"fromZone"`
	ToZone   string `json:"toZone"`
}

type createAccessRuleRequest struct {
	UserCode string `json:"userCode"`
	ToZone   string `json:"toZone"`
}

type putCheckpointKeyRequest struct {
	PublicKeyPEM string `json:"publicKeyPem"`
	KeyType      string `json:"keyType"`
}

type putIssuerKeyRequest struct {
	PublicKeyPEM string `json:"publicKeyPem"`
	KeyType      string `json:"keyType"`
	Algorithm    string `json:"algorithm"`
}

type zoneView struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	CreatedAt string `json:"createdAt"`
}

type userView struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	CreatedAt string `json:"createdAt"`
}

type checkpointView struct {
	ID        string  `json:"id"`
	Code      string  `json:"code"`
	FromZone  *string `json:"fromZoneId"`
	ToZone    *string `json:"toZoneId"`
	CreatedAt string  `json:"createdAt"`
}

type accessRuleView struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	ToZoneID  string `json:"toZoneId"`
	CreatedAt string `json:"createdAt"`
}

// validCode rejects blank codes, the outside sentinel and anything that
// would break the pipe-delimited canonical payload.
func validCode(code string) bool {
	code = strings.TrimSpace(code)
	return code != "" && code != service.OutsideZone && !strings.Contains(code, "|")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}

func listParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var req createCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validCode(req.Code) {
		writeError(w, http.StatusBadRequest, "invalid_code", "zone code must be non-empty and must not contain '|'")
		return
	}

	rec, err := s.directory.CreateZone(r.Context(), strings.TrimSpace(req.Code))
	if err != nil {
		if errors.Is(err, store.ErrDuplicateCode) {
			writeError(w, http.StatusConflict, "duplicate_code", "zone code already exists")
			return
		}
		s.logger.Printf("create zone error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusCreated, toZoneView(rec))
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	recs, err := s.directory.ListZones(r.Context(), limit, offset)
	if err != nil {
		s.logger.Printf("list zones error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	out := make([]zoneView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toZoneView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	rec, found, err := s.directory.ZoneByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Printf("get zone error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "zone not found")
		return
	}
	writeJSON(w, http.StatusOK, toZoneView(rec))
}

func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	s.deleteEntity(w, r, s.directory.DeleteZone, "zone")
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validCode(req.Code) {
		writeError(w, http.StatusBadRequest, "invalid_code", "user code must be non-empty and must not contain '|'")
		return
	}

	rec, err := s.directory.CreateUser(r.Context(), strings.TrimSpace(req.Code))
	if err != nil {
		if errors.Is(err, store.ErrDuplicateCode) {
			writeError(w, http.StatusConflict, "duplicate_code", "user code already exists")
			return
		}
		s.logger.Printf("create user error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(rec))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	recs, err := s.directory.ListUsers(r.Context(), limit, offset)
	if err != nil {
		s.logger.Printf("list users error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	out := make([]userView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toUserView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	rec, found, err := s.directory.UserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Printf("get user error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, toUserView(rec))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	s.deleteEntity(w, r, s.directory.DeleteUser, "user")
}

func (s *Server) handleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req createCheckpointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validCode(req.Code) {
		writeError(w, http.StatusBadRequest, "invalid_code", "checkpoint code must be non-empty and must not contain '|'")
		return
	}

	fromZoneID, ok := s.resolveZoneRef(w, r, req.FromZone)
	if !ok {
		return
	}
	toZoneID, ok := s.resolveZoneRef(w, r, req.ToZone)
	if !ok {
		return
	}

	rec, err := s.directory.CreateCheckpoint(r.Context(), strings.TrimSpace(req.Code), fromZoneID, toZoneID)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateCode) {
			writeError(w, http.StatusConflict, "duplicate_code", "checkpoint code already exists")
			return
		}
		s.logger.Printf("create checkpoint error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusCreated, toCheckpointView(rec))
}

// resolveZoneRef maps a zone code from an admin body to a zone id, with
// blank or "OUT" mapping to nil.  Writes the error response itself on
// failure.
func (s *Server) resolveZoneRef(w http.ResponseWriter, r *http.Request, code string) (*string, bool) {
	if service.IsOutside(code) {
		return nil, true
	}
	z, found, err := s.directory.ZoneByCode(r.Context(), strings.TrimSpace(code))
	if err != nil {
		s.logger.Printf("zone lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return nil, false
	}
	if !found {
		writeError(w, http.StatusNotFound, "zone_not_found", "zone not found: "+code)
		return nil, false
	}
	return &z.ID, true
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	recs, err := s.directory.ListCheckpoints(r.Context(), limit, offset)
	if err != nil {
		s.logger.Printf("list checkpoints error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	out := make([]checkpointView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toCheckpointView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	rec, found, err := s.directory.CheckpointByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Printf("get checkpoint error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "checkpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, toCheckpointView(rec))
}

func (s *Server) handleDeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	s.deleteEntity(w, r, s.directory.DeleteCheckpoint, "checkpoint")
}

func (s *Server) handleCreateAccessRule(w http.ResponseWriter, r *http.Request) {
	var req createAccessRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, found, err := s.directory.UserByCode(r.Context(), strings.TrimSpace(req.UserCode))
	if err != nil {
		s.logger.Printf("user lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "user_not_found", "user not found: "+req.UserCode)
		return
	}

	// Rules are destination allowlist entries; there is nothing to grant
	// for the outside sentinel.
	if service.IsOutside(req.ToZone) {
		writeError(w, http.StatusBadRequest, "invalid_zone", "access rules require a real destination zone")
		return
	}
	zone, found, err := s.directory.ZoneByCode(r.Context(), strings.TrimSpace(req.ToZone))
	if err != nil {
		s.logger.Printf("zone lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "zone_not_found", "zone not found: "+req.ToZone)
		return
	}

	rec, err := s.directory.CreateAccessRule(r.Context(), user.ID, zone.ID)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateCode) {
			writeError(w, http.StatusConflict, "duplicate_rule", "access rule already exists")
			return
		}
		s.logger.Printf("create access rule error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusCreated, toAccessRuleView(rec))
}

func (s *Server) handleListAccessRules(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	recs, err := s.directory.ListAccessRules(r.Context(), limit, offset)
	if err != nil {
		s.logger.Printf("list access rules error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	out := make([]accessRuleView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toAccessRuleView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAccessRule(w http.ResponseWriter, r *http.Request) {
	rec, found, err := s.directory.AccessRuleByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Printf("get access rule error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "access rule not found")
		return
	}
	writeJSON(w, http.StatusOK, toAccessRuleView(rec))
}

func (s *Server) handleDeleteAccessRule(w http.ResponseWriter, r *http.Request) {
	s.deleteEntity(w, r, s.directory.DeleteAccessRule, "access rule")
}

func (s *Server) handlePutCheckpointKey(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	var req putCheckpointKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PublicKeyPEM) == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "publicKeyPem is required")
		return
	}
	keyType := strings.ToUpper(strings.TrimSpace(req.KeyType))
	if keyType != "RSA" && keyType != "ECDSA" {
		writeError(w, http.StatusBadRequest, "invalid_key_type", "keyType must be RSA or ECDSA")
		return
	}

	if err := s.keys.PutCheckpointKey(r.Context(), store.CheckpointKeyRecord{
		CheckpointCode: code,
		PublicKeyPEM:   req.PublicKeyPEM,
		KeyType:        keyType,
	}); err != nil {
		s.logger.Printf("put checkpoint key error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "checkpointCode": code})
}

func (s *Server) handlePutIssuerKey(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	var req putIssuerKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PublicKeyPEM) == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "publicKeyPem is required")
		return
	}
	keyType := strings.ToUpper(strings.TrimSpace(req.KeyType))
	if keyType != "RSA" && keyType != "ECDSA" {
		writeError(w, http.StatusBadRequest, "invalid_key_type", "keyType must be RSA or ECDSA")
		return
	}

	if err := s.keys.PutIssuerKey(r.Context(), store.IssuerKeyRecord{
		IssuerCode:   code,
		PublicKeyPEM: req.PublicKeyPEM,
		KeyType:      keyType,
		Algorithm:    strings.TrimSpace(req.Algorithm),
	}); err != nil {
		s.logger.Printf("put issuer key error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "issuerCode": code})
}

func (s *Server) deleteEntity(w http.ResponseWriter, r *http.Request, del func(ctx context.Context, id string) (bool, error), name string) {
	deleted, err := del(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Printf("delete %s error: %v", name, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", name+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toZoneView(rec store.ZoneRecord) zoneView {
	return zoneView{ID: rec.ID, Code: rec.Code, CreatedAt: rec.CreatedAt.Format(time.RFC3339)}
}

func toUserView(rec store.UserRecord) userView {
	return userView{ID: rec.ID, Code: rec.Code, CreatedAt: rec.CreatedAt.Format(time.RFC3339)}
}

func toCheckpointView(rec store.CheckpointRecord) checkpointView {
	return checkpointView{
		ID:        rec.ID,
		Code:      rec.Code,
		FromZone:  rec.FromZoneID,
		ToZone:    rec.ToZoneID,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
}

func toAccessRuleView(rec store.AccessRuleRecord) accessRuleView {
	return accessRuleView{
		ID:        rec.ID,
		UserID:    rec.UserID,
		ToZoneID:  rec.ToZoneID,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
}
