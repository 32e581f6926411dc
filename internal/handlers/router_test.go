package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/evvalet-backend/internal/logger"
	"github.com/chachabrian/evvalet-backend/internal/marketplace"
	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/services"
	"github.com/chachabrian/evvalet-backend/internal/storage"
	"github.com/chachabrian/evvalet-backend/pkg/utils"
)

const testSecret = "test-secret"

type api struct {
	t      *testing.T
	router *gin.Engine
	store  *storage.MemoryStore
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Discard()
	store := storage.NewMemoryStore()
	svc := marketplace.NewService(store, services.NewLocalBroadcaster(log), marketplace.WithLogger(log))
	return &api{
		t:     t,
		store: store,
		router: NewRouter(Deps{
			Service:   svc,
			Tokens:    store,
			Hub:       services.NewHub(services.NewLocalBroadcaster(log), log),
			JWTSecret: testSecret,
			Log:       log,
		}),
	}
}

func token(t *testing.T, userID string, role models.Role) string {
	t.Helper()
	tok, err := utils.GenerateToken(testSecret, userID, string(role))
	require.NoError(t, err)
	return tok
}

// do sends body as JSON and decodes the response into out when it is non-nil.
func (a *api) do(method, path, tok string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if out != nil {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func parisRequest() gin.H {
	return gin.H{
		"pickupLat":     48.8566,
		"pickupLng":     2.3522,
		"pickupAddress": "Place de l'Hôtel de Ville, Paris",
		"vehicle":       "Renault Zoe",
		"batteryLevel":  18,
		"price":         25,
		"contactPhone":  "+33 1 23 45 67 89",
	}
}

func TestHealthz(t *testing.T) {
	a := newAPI(t)
	w := a.do(http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/requests", "", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/requests", "garbage", nil, nil).Code)

	bad, err := utils.GenerateToken(testSecret, "u1", "dispatcher")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/requests", bad, nil, nil).Code)
}

func TestValetFlowOverHTTP(t *testing.T) {
	a := newAPI(t)
	clientTok := token(t, "client-1", models.RoleClient)
	driverTok := token(t, "driver-a", models.RoleDriver)

	var req models.Request
	w := a.do(http.MethodPost, "/api/requests", clientTok, parisRequest(), &req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.UrgencyMedium, req.Urgency)

	var open []models.Request
	w = a.do(http.MethodGet, "/api/requests", driverTok, nil, &open)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, open, 1)

	var offer models.Offer
	w = a.do(http.MethodPost, "/api/requests/"+req.ID+"/offers", driverTok, gin.H{"price": 25, "estimatedDuration": "2h"}, &offer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var entry models.NegotiationEntry
	w = a.do(http.MethodPost, "/api/offers/"+offer.ID+"/negotiations", clientTok, gin.H{"price": 22}, &entry)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodPost, "/api/negotiations/"+entry.ID+"/resolve", driverTok, gin.H{"accept": true}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var quote marketplace.Quote
	w = a.do(http.MethodGet, "/api/offers/"+offer.ID+"/quote", clientTok, nil, &quote)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 22.0, quote.Price)

	var sel marketplace.Selection
	w = a.do(http.MethodPost, "/api/requests/"+req.ID+"/select", clientTok, gin.H{"offerId": offer.ID}, &sel)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RideStatusWaiting, sel.Ride.Status)

	var started models.Ride
	w = a.do(http.MethodPost, "/api/requests/"+req.ID+"/ride", driverTok, nil, &started)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, sel.Ride.ID, started.ID)
	w = a.do(http.MethodPost, "/api/requests/"+req.ID+"/ride", clientTok, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	lat, lng := utils.Destination(48.8566, 2.3522, 90, 5)
	var pos marketplace.PositionResult
	w = a.do(http.MethodPost, "/api/rides/"+sel.Ride.ID+"/position", driverTok, gin.H{"lat": lat, "lng": lng}, &pos)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, pos.Applied)
	assert.Equal(t, models.RideStatusOnTheWay, pos.Ride.Status)
	assert.Equal(t, 10, *pos.Ride.PickupETAMinutes)

	w = a.do(http.MethodPost, "/api/requests/"+req.ID+"/complete", clientTok, nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	for _, status := range []string{"arrived", "in_progress", "completed"} {
		w = a.do(http.MethodPatch, "/api/rides/"+sel.Ride.ID+"/status", driverTok, gin.H{"status": status}, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	var done models.Request
	w = a.do(http.MethodPost, "/api/requests/"+req.ID+"/complete", clientTok, nil, &done)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RequestStatusCompleted, done.Status)

	var ride models.Ride
	w = a.do(http.MethodGet, "/api/requests/"+req.ID+"/ride", clientTok, nil, &ride)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RideStatusCompleted, ride.Status)
}

func TestErrorMapping(t *testing.T) {
	a := newAPI(t)
	clientTok := token(t, "client-1", models.RoleClient)
	driverTok := token(t, "driver-a", models.RoleDriver)

	var req models.Request
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/requests", clientTok, parisRequest(), &req).Code)
	var offer models.Offer
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/requests/"+req.ID+"/offers", driverTok, gin.H{"price": 25}, &offer).Code)

	var body map[string]interface{}

	w := a.do(http.MethodPost, "/api/requests", driverTok, parisRequest(), &body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_authorized", body["code"])

	bad := parisRequest()
	bad["batteryLevel"] = 140
	w = a.do(http.MethodPost, "/api/requests", clientTok, bad, &body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", body["code"])

	w = a.do(http.MethodGet, "/api/offers/missing", clientTok, nil, &body)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["code"])

	w = a.do(http.MethodPatch, "/api/offers/"+offer.ID+"/status", clientTok, gin.H{"status": "rejected"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(http.MethodPatch, "/api/offers/"+offer.ID+"/status", clientTok, gin.H{"status": "accepted"}, &body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "illegal_transition", body["code"])

	w = a.do(http.MethodGet, "/api/requests?limit=abc", clientTok, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPost, "/api/requests/"+req.ID+"/select", clientTok, gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRespondErrorMarksConcurrentModificationRetryable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, marketplace.ErrConcurrentModification)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "concurrent_modification", body["code"])
	assert.Equal(t, true, body["retryable"])
}

func TestListMyRequests(t *testing.T) {
	a := newAPI(t)
	clientTok := token(t, "client-1", models.RoleClient)
	otherTok := token(t, "client-2", models.RoleClient)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/requests", clientTok, parisRequest(), nil).Code)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/requests", otherTok, parisRequest(), nil).Code)

	var mine []models.Request
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/requests?mine=true", clientTok, nil, &mine).Code)
	require.Len(t, mine, 1)
	assert.Equal(t, "client-1", mine[0].ClientID)
}

func TestDeviceTokens(t *testing.T) {
	a := newAPI(t)
	tok := token(t, "driver-a", models.RoleDriver)

	w := a.do(http.MethodPost, "/api/notifications/register-token", tok, gin.H{"fcmToken": "fcm-1", "platform": "ios"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tokens, err := a.store.ListDeviceTokens(t.Context(), "driver-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"fcm-1"}, tokens)

	w = a.do(http.MethodPost, "/api/notifications/register-token", tok, gin.H{"fcmToken": "fcm-2", "platform": "blackberry"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodDelete, "/api/notifications/remove-token", tok, gin.H{"fcmToken": "fcm-1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tokens, err = a.store.ListDeviceTokens(t.Context(), "driver-a")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestWebSocketRejectsForeignTopic(t *testing.T) {
	a := newAPI(t)
	clientTok := token(t, "client-1", models.RoleClient)
	otherTok := token(t, "client-2", models.RoleClient)

	var req models.Request
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/requests", clientTok, parisRequest(), &req).Code)

	w := a.do(http.MethodGet, "/api/ws?topic=request:"+req.ID, otherTok, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodGet, "/api/ws", clientTok, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
