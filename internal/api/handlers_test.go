package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dmxctl/dmxctl-server/internal/config"
	"github.com/dmxctl/dmxctl-server/internal/controller"
	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/internal/storage"
	"github.com/dmxctl/dmxctl-server/internal/transport"
	"github.com/dmxctl/dmxctl-server/pkg/crypto"
)

func newTestServer(t *testing.T) *RESTServer {
	t.Helper()

	hash, err := crypto.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.AccessTokenTTL = time.Minute
	cfg.JWT.RefreshTokenTTL = time.Hour
	cfg.Auth.AdminEmail = "admin@example.com"
	cfg.Auth.AdminPasswordHash = hash
	cfg.DMX.Transport = config.TransportUSB
	cfg.DMX.TickRate = 40
	cfg.RDM.PollInterval = 2 * time.Second
	cfg.RDM.DiscoveryTimeout = 5 * time.Second

	tr, err := transport.NewUSBDMX(config.USBConfig{Device: "/dev/ttyUSB0"})
	if err != nil {
		t.Fatalf("NewUSBDMX: %v", err)
	}

	ctrl := controller.New(cfg, storage.NewMemoryStore(), tr, events.NewBus())
	return NewRESTServer(cfg, ctrl)
}

func (s *RESTServer) doRequest(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RESTServer) login(t *testing.T) string {
	t.Helper()

	rec := s.doRequest(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "admin@example.com",
		"password": "hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)

	rec := s.doRequest(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "admin@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestFixturesRequireAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.doRequest(t, http.MethodGet, "/api/v1/fixtures", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestFixtureLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	rec := s.doRequest(t, http.MethodPost, "/api/v1/fixtures", token, map[string]interface{}{
		"type":       "rgb",
		"universe":   0,
		"dmxChannel": 10,
		"name":       "wash left",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		VirtualID int `json:"virtualId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created fixture: %v", err)
	}
	if created.VirtualID == 0 {
		t.Fatal("no virtual ID assigned")
	}

	// Overlapping placement is a conflict, not a validation error.
	rec = s.doRequest(t, http.MethodPost, "/api/v1/fixtures", token, map[string]interface{}{
		"type":       "dimmable",
		"universe":   0,
		"dmxChannel": 11,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlap status = %d, want 409: %s", rec.Code, rec.Body.String())
	}

	path := "/api/v1/fixtures/" + itoa(created.VirtualID)
	rec = s.doRequest(t, http.MethodPost, path+"/intensity", token, map[string]float64{"value": 0.5})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("intensity status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.doRequest(t, http.MethodPost, path+"/color", token, map[string]float64{"r": 1, "g": 0, "b": 0.5})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("color status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.doRequest(t, http.MethodPost, path+"/fade", token, map[string]float64{"target": 1, "duration": 2})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("fade status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = s.doRequest(t, http.MethodDelete, path+"/fade", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel fade status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.doRequest(t, http.MethodDelete, path, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unregister status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = s.doRequest(t, http.MethodGet, path, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestCommandsOnUnknownFixtureReturn404(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	rec := s.doRequest(t, http.MethodPost, "/api/v1/fixtures/99/intensity", token, map[string]float64{"value": 1})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSetIntensityValidatesRange(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	rec := s.doRequest(t, http.MethodPost, "/api/v1/fixtures", token, map[string]interface{}{
		"type":       "dimmable",
		"dmxChannel": 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.doRequest(t, http.MethodPost, "/api/v1/fixtures/1/intensity", token, map[string]float64{"value": 1.5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSetChannelRejectsOutOfSpanOffset(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	rec := s.doRequest(t, http.MethodPost, "/api/v1/fixtures", token, map[string]interface{}{
		"type":       "rgb",
		"dmxChannel": 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}

	// Offset 3 is outside the RGB fixture's three-channel span.
	rec = s.doRequest(t, http.MethodPost, "/api/v1/fixtures/1/channel", token, map[string]int{"offset": 3, "value": 10})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = s.doRequest(t, http.MethodPost, "/api/v1/fixtures/1/channel", token, map[string]int{"offset": 2, "value": 10})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)

	rec := s.doRequest(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Status    string `json:"status"`
		Transport string `json:"transport"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp.Status != "ok" || resp.Transport != config.TransportUSB {
		t.Fatalf("unexpected health %+v", resp)
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
