package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dmxctl/dmxctl-server/internal/fixture"
	"github.com/dmxctl/dmxctl-server/internal/models"
	"github.com/dmxctl/dmxctl-server/internal/storage"
	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// ========== Auth handlers ==========

// HandleLogin authenticates the admin account
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email != s.config.Auth.AdminEmail ||
		!s.auth.VerifyPassword(req.Password, s.config.Auth.AdminPasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(req.Email)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accessToken, refreshToken, err := s.auth.RefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// ========== Fixture handlers ==========

// HandleListFixtures lists the registered patch
func (s *RESTServer) HandleListFixtures(w http.ResponseWriter, r *http.Request) {
	fixtures := s.controller.Fixtures()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"fixtures": fixtures,
		"total":    len(fixtures),
	})
}

// HandleRegisterFixture registers a fixture
func (s *RESTServer) HandleRegisterFixture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VirtualID            int    `json:"virtualId" validate:"min=0"`
		Name                 string `json:"name"`
		Type                 string `json:"type" validate:"required,oneof=dimmable rgb rgbw moving_head custom"`
		Universe             int    `json:"universe" validate:"min=0"`
		DMXChannel           int    `json:"dmxChannel" validate:"required,min=1,max=512"`
		ChannelCount         int    `json:"channelCount" validate:"min=0,max=512"`
		CustomChannelMapping []int  `json:"customChannelMapping"`
		RDMUID               string `json:"rdmUid"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := &models.Fixture{
		VirtualID:            req.VirtualID,
		Name:                 req.Name,
		Type:                 models.FixtureType(req.Type),
		Universe:             req.Universe,
		DMXChannel:           req.DMXChannel,
		ChannelCount:         req.ChannelCount,
		CustomChannelMapping: req.CustomChannelMapping,
	}
	if req.RDMUID != "" {
		uid, err := rdm.ParseUID(req.RDMUID)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid RDM UID")
			return
		}
		f.RDMUID = uid
		f.RDMCapable = true
	}

	if err := s.controller.RegisterFixture(r.Context(), f); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, fixture.ErrConflict) || errors.Is(err, storage.ErrDuplicateKey) {
			status = http.StatusConflict
		}
		s.respondError(w, status, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, f)
}

// HandleGetFixture gets one fixture
func (s *RESTServer) HandleGetFixture(w http.ResponseWriter, r *http.Request) {
	id, ok := s.fixtureID(w, r)
	if !ok {
		return
	}
	f, found := s.controller.Fixture(id)
	if !found {
		s.respondError(w, http.StatusNotFound, "fixture not found")
		return
	}
	s.respondJSON(w, http.StatusOK, f)
}

// HandleUnregisterFixture removes a fixture
func (s *RESTServer) HandleUnregisterFixture(w http.ResponseWriter, r *http.Request) {
	id, ok := s.fixtureID(w, r)
	if !ok {
		return
	}
	if err := s.controller.UnregisterFixture(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "fixture not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetIntensity sets a fixture's intensity
func (s *RESTServer) HandleSetIntensity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.fixtureID(w, r)
	if !ok {
		return
	}

	var req struct {
		Value float64 `json:"value" validate:"min=0,max=1"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.controller.SetIntensity(id, req.Value) == fixture.UniverseNotFound {
		s.respondError(w, http.StatusNotFound, "fixture not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetColor sets a fixture's color
func (s *RESTServer) HandleSetColor(w http.ResponseWriter, r *http.Request) {
	id, ok := s.fixtureID(w, r)
	if !ok {
		return
	}

	var req struct {
		R float64 `json:"r" validate:"min=0,max=1"`
		G float64 `json:"g" validate:"min=0,max=1"`
		B float64 `json:"b" validate:"min=0,max=1"`
		// W is optional; omitted means no white component.
		W *float64 `json:"w"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w64 := -1.0
	if req.W != nil {
		if *req.W < 0 || *req.W > 1 {
			s.respondError(w, http.StatusBadRequest, "w must be between 0 and 1")
			return
		}
		w64 = *req.W
	}

	if s.controller.SetColor(id, req.R, req.G, req.B, w64) == fixture.UniverseNotFound {
		s.respondError(w, http.StatusNotFound, "fixture not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetChannel writes a raw channel value within a fixture's span
func (s *RESTServer) HandleSetChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.fixtureID(w, r)
	if !ok {
		return
	}

	var req struct {
		Offset int `json:"offset" validate:"min=0,max=511"`
		Value  int `json:"value" validate:"min=0,max=255"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	universe, err := s.controller.SetChannel(id, req.Offset, req.Value)
	if universe == fixture.UniverseNotFound {
		s.respondError(w, http.StatusNotFound, "fixture not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStartFade starts an intensity fade
func (s *RESTServer) HandleStartFade(w http.ResponseWriter, r *http.Request) {
	id, ok := s.fixtureID(w, r)
	if !ok {
		return
	}

	var req struct {
		Target   float64 `json:"target" validate:"min=0,max=1"`
		Duration float64 `json:"duration" validate:"min=0,max=3600"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.controller.StartFade(id, req.Target, req.Duration) == fixture.UniverseNotFound {
		s.respondError(w, http.StatusNotFound, "fixture not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCancelFade freezes an in-flight fade
func (s *RESTServer) HandleCancelFade(w http.ResponseWriter, r *http.Request) {
	id, ok := s.fixtureID(w, r)
	if !ok {
		return
	}
	if !s.controller.CancelFade(id) {
		s.respondError(w, http.StatusNotFound, "no active fade")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAllOff blacks out every universe
func (s *RESTServer) HandleAllOff(w http.ResponseWriter, r *http.Request) {
	s.controller.AllOff()
	w.WriteHeader(http.StatusNoContent)
}

// ========== RDM handlers ==========

// HandleListDiscovered lists the RDM discovery cache
func (s *RESTServer) HandleListDiscovered(w http.ResponseWriter, r *http.Request) {
	discovered := s.controller.Discovered()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"fixtures": discovered,
		"total":    len(discovered),
	})
}

// HandleDiscover runs an explicit discovery pass
func (s *RESTServer) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	n, err := s.controller.DiscoverNow(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("RDM discovery failed")
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"found": n})
}

// HandleAutoRegister promotes a discovered fixture into the patch
func (s *RESTServer) HandleAutoRegister(w http.ResponseWriter, r *http.Request) {
	uid, err := rdm.ParseUID(chi.URLParam(r, "uid"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid RDM UID")
		return
	}

	f, err := s.controller.AutoRegister(r.Context(), uid)
	if err != nil {
		status := http.StatusConflict
		if _, known := s.controller.DiscoveredByUID(uid); !known {
			status = http.StatusNotFound
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, f)
}

// ========== Node and status handlers ==========

// HandleListNodes lists Art-Net nodes seen on the network
func (s *RESTServer) HandleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.controller.Nodes()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": nodes,
		"total": len(nodes),
	})
}

// HandleHealth reports engine status
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"transport":    s.controller.Transport(),
		"fixtures":     len(s.controller.Fixtures()),
		"active_fades": s.controller.ActiveFades(),
	})
}

// ========== Helpers ==========

func (s *RESTServer) fixtureID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid fixture ID")
		return 0, false
	}
	return id, true
}

// respondJSON responds with a JSON payload
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
