package httpapi_test

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zonegate/server/internal/gate/service"
	"github.com/zonegate/server/internal/gate/store"
	"github.com/zonegate/server/internal/gate/store/memory"
	"github.com/zonegate/server/internal/gate/types"
	"github.com/zonegate/server/internal/httpapi"
)

// testEnv is a full server over memory stores, with one checkpoint key
// and one issuer key provisioned, plus a builder for correctly signed
// ingest requests.
type testEnv struct {
	ts      *httptest.Server
	denials *memory.DenialStore
	build   func(checkpoint, eventID, from, to string) types.IngestEventRequest
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)

	dir := memory.NewDirectoryStore()
	states := memory.NewZoneStateStore()
	nonces := memory.NewNonceStore()
	events := memory.NewEventStore()
	denialStore := memory.NewDenialStore()
	keys := memory.NewKeyStore()

	// Topology: outside -> A -> B, with an exit from A; alice may enter
	// both zones.
	zoneA, err := dir.CreateZone(ctx, "A")
	if err != nil {
		t.Fatalf("create zone A: %v", err)
	}
	zoneB, err := dir.CreateZone(ctx, "B")
	if err != nil {
		t.Fatalf("create zone B: %v", err)
	}
	if _, err := dir.CreateCheckpoint(ctx, "CP-ENTRY", nil, &zoneA.ID); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := dir.CreateCheckpoint(ctx, "CP-AB", &zoneA.ID, &zoneB.ID); err != nil {
		t.Fatalf("create internal: %v", err)
	}
	if _, err := dir.CreateCheckpoint(ctx, "CP-EXIT", &zoneA.ID, nil); err != nil {
		t.Fatalf("create exit: %v", err)
	}
	alice, err := dir.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := dir.CreateAccessRule(ctx, alice.ID, zoneA.ID); err != nil {
		t.Fatalf("create rule A: %v", err)
	}
	if _, err := dir.CreateAccessRule(ctx, alice.ID, zoneB.ID); err != nil {
		t.Fatalf("create rule B: %v", err)
	}

	checkpointKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate checkpoint key: %v", err)
	}
	for _, code := range []string{"CP-ENTRY", "CP-AB", "CP-EXIT"} {
		if err := keys.PutCheckpointKey(ctx, store.CheckpointKeyRecord{
			CheckpointCode: code,
			PublicKeyPEM:   marshalPublicPEM(t, &checkpointKey.PublicKey),
			KeyType:        "RSA",
		}); err != nil {
			t.Fatalf("put checkpoint key: %v", err)
		}
	}
	issuerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate issuer key: %v", err)
	}
	if err := keys.PutIssuerKey(ctx, store.IssuerKeyRecord{
		IssuerCode:   "issuer-1",
		PublicKeyPEM: marshalPublicPEM(t, &issuerKey.PublicKey),
		KeyType:      "RSA",
		Algorithm:    "RS256",
	}); err != nil {
		t.Fatalf("put issuer key: %v", err)
	}

	metrics := service.NewMetrics()
	denials := service.NewDenialRecorder(denialStore, nil, metrics, logger)
	coordinator := service.NewTransitionCoordinator(
		dir, service.NewPolicyEvaluator(dir), states, events, denials, metrics,
		service.CoordinatorConfig{}, logger,
	)
	ingest := service.NewIngest(
		service.NewReplayGuard(nonces, service.ReplayGuardConfig{}, logger),
		service.NewSignatureVerifier(keys, logger),
		service.NewTokenVerifier(keys, logger),
		coordinator,
		denials,
		logger,
	)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    logger,
		Addr:      ":0",
		Ingest:    ingest,
		Directory: dir,
		States:    states,
		Events:    events,
		Denials:   denialStore,
		Keys:      keys,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":    "issuer-1",
		"userId": "alice",
		"exp":    time.Now().UTC().Add(time.Hour).Unix(),
	}).SignedString(issuerKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	build := func(checkpoint, eventID, from, to string) types.IngestEventRequest {
		ts := time.Now().UTC().Format("2006-01-02T15:04:05Z")
		payload := service.CanonicalPayload(checkpoint, ts, from, to, token)
		digest := sha256.Sum256(payload)
		sig, err := rsa.SignPKCS1v15(rand.Reader, checkpointKey, crypto.SHA256, digest[:])
		if err != nil {
			t.Fatalf("sign payload: %v", err)
		}
		return types.IngestEventRequest{
			CheckpointID: checkpoint,
			EventID:      eventID,
			Timestamp:    ts,
			FromZone:     from,
			ToZone:       to,
			UserToken:    token,
			Signature:    base64.StdEncoding.EncodeToString(sig),
		}
	}

	return &testEnv{ts: ts, denials: denialStore, build: build}
}

func marshalPublicPEM(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestIngestEvent_Accepted(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.ts.URL+"/ingest/event", env.build("CP-ENTRY", "evt-1", "OUT", "A"))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var body types.IngestAcceptedResponse
	decodeInto(t, resp, &body)
	if body.Status != "accepted" || body.EventID != "evt-1" || body.UserID != "alice" {
		t.Errorf("body = %+v", body)
	}
}

func TestIngestEvent_DuplicateRejected(t *testing.T) {
	env := newTestEnv(t)

	if resp := postJSON(t, env.ts.URL+"/ingest/event", env.build("CP-ENTRY", "evt-1", "OUT", "A")); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first post status = %d, want 202", resp.StatusCode)
	}

	resp := postJSON(t, env.ts.URL+"/ingest/event", env.build("CP-ENTRY", "evt-1", "OUT", "A"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}

	var body types.IngestRejectedResponse
	decodeInto(t, resp, &body)
	if body.Status != "rejected" || body.Reason != "duplicate_event_id" {
		t.Errorf("body = %+v", body)
	}
}

func TestIngestEvent_TamperedSignatureRejected(t *testing.T) {
	env := newTestEnv(t)

	req := env.build("CP-ENTRY", "evt-1", "OUT", "A")
	req.ToZone = "B" // signed over "A"

	resp := postJSON(t, env.ts.URL+"/ingest/event", req)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}

	var body types.IngestRejectedResponse
	decodeInto(t, resp, &body)
	if body.Reason != "signature_verification_failed" {
		t.Errorf("reason = %s, want signature_verification_failed", body.Reason)
	}

	if got := len(env.denials.Denials()); got != 1 {
		t.Errorf("denials recorded = %d, want 1", got)
	}
}

func TestIngestEvent_ValidationFailures(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		mutate func(*types.IngestEventRequest)
		code   string
	}{
		{"missing event id", func(r *types.IngestEventRequest) { r.EventID = "" }, "missing_field"},
		{"missing signature", func(r *types.IngestEventRequest) { r.Signature = "" }, "missing_field"},
		{"missing token", func(r *types.IngestEventRequest) { r.UserToken = "" }, "missing_field"},
		{"offset timestamp", func(r *types.IngestEventRequest) { r.Timestamp = "2026-01-02T03:04:05+01:00" }, "invalid_timestamp"},
		{"no seconds", func(r *types.IngestEventRequest) { r.Timestamp = "2026-01-02T03:04Z" }, "invalid_timestamp"},
	}
	for _, tc := range cases {
		req := env.build("CP-ENTRY", "evt-x", "OUT", "A")
		tc.mutate(&req)

		resp := postJSON(t, env.ts.URL+"/ingest/event", req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, resp.StatusCode)
			continue
		}
		var body struct {
			Error string `json:"error"`
		}
		decodeInto(t, resp, &body)
		if body.Error != tc.code {
			t.Errorf("%s: error = %s, want %s", tc.name, body.Error, tc.code)
		}
	}
}

func TestIngestEvent_BadJSON(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.ts.URL+"/ingest/event", "application/json",
		bytes.NewReader([]byte(`{"checkpointId":`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAdmin_ZoneLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.ts.URL+"/admin/zones", map[string]string{"code": "C"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	decodeInto(t, resp, &created)
	if created.Code != "C" || created.ID == "" {
		t.Errorf("created = %+v", created)
	}

	// Duplicate code conflicts.
	resp = postJSON(t, env.ts.URL+"/admin/zones", map[string]string{"code": "C"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", resp.StatusCode)
	}

	// Codes may not contain the canonical delimiter.
	resp = postJSON(t, env.ts.URL+"/admin/zones", map[string]string{"code": "bad|code"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("pipe code status = %d, want 400", resp.StatusCode)
	}

	// The outside sentinel is not a creatable zone.
	resp = postJSON(t, env.ts.URL+"/admin/zones", map[string]string{"code": "OUT"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("OUT code status = %d, want 400", resp.StatusCode)
	}

	getResp, err := http.Get(env.ts.URL + "/admin/zones/" + created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d, want 200", getResp.StatusCode)
	}
}

func TestReports_DenialsListing(t *testing.T) {
	env := newTestEnv(t)

	req := env.build("CP-ENTRY", "evt-1", "OUT", "A")
	req.ToZone = "B" // break the signature
	if resp := postJSON(t, env.ts.URL+"/ingest/event", req); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("ingest status = %d, want 403", resp.StatusCode)
	}

	resp, err := http.Get(env.ts.URL + "/reports/denials")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var denials []struct {
		EventID string `json:"eventId"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&denials); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(denials) != 1 || denials[0].EventID != "evt-1" || denials[0].Reason != store.DenialSignatureInvalid {
		t.Errorf("denials = %+v", denials)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
