package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medicare-scheduler/internal/handlers"
	"medicare-scheduler/internal/models"
	"medicare-scheduler/internal/repository"
	"medicare-scheduler/internal/routes"
	"medicare-scheduler/internal/scheduling"
	"medicare-scheduler/internal/testutil"
	"medicare-scheduler/internal/utils"
	"medicare-scheduler/internal/websocket"
)

const secret = "handler-secret"

type server struct {
	router *gin.Engine
	db     *gorm.DB
	f      testutil.Fixture
	ledger *repository.NotificationRepo
	hub    *websocket.Hub
	svc    *scheduling.Service
}

type fakeQueue struct{ connected bool }

func (q fakeQueue) IsConnected() bool { return q.connected }

func newServer(t *testing.T) *server {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	s := &server{
		router: gin.New(),
		db:     db,
		f:      testutil.Seed(t, db),
		ledger: repository.NewNotificationRepo(db),
		hub:    websocket.NewHub(),
	}
	s.svc = scheduling.NewService(repository.NewAppointmentRepo(db), repository.NewDirectory(db), nil, zap.NewNop())

	routes.SetupRoutes(s.router, routes.Handlers{
		Appointments:  handlers.NewAppointmentHandler(s.svc),
		Notifications: handlers.NewNotificationHandler(s.ledger),
		WebSocket:     handlers.NewWebSocketHandler(s.hub, secret, "", zap.NewNop()),
		Health: handlers.NewHealthHandler(
			handlers.PingFunc(func(ctx context.Context) error { return repository.Ping(ctx, db) }),
			nil,
			fakeQueue{connected: true},
			nil,
		),
	}, secret)
	return s
}

func token(t *testing.T, u *models.User) string {
	tok, err := utils.GenerateToken(u.ID, u.Role, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *server) do(t *testing.T, method, path string, as *models.User, body interface{}) (*httptest.ResponseRecorder, utils.ResponseData) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, as))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp utils.ResponseData
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func decode(t *testing.T, data interface{}, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func bookingBody(s *server, start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"doctorId":  s.f.Doctor.ID,
		"patientId": s.f.Patient.ID,
		"clinicId":  s.f.Clinic.ID,
		"dateTime":  start.Format(time.RFC3339),
		"type":      "consultation",
		"symptoms":  "chest pain",
	}
}

func future(h int) time.Time {
	return time.Now().UTC().Truncate(time.Hour).Add(time.Duration(h) * time.Hour)
}

func TestCreateAppointment(t *testing.T) {
	s := newServer(t)

	w, resp := s.do(t, http.MethodPost, "/api/v1/appointments", s.f.Patient, bookingBody(s, future(48)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var a models.Appointment
	decode(t, resp.Data, &a)
	assert.Equal(t, models.StatusScheduled, a.Status)
	assert.Equal(t, 30, a.Duration)
	assert.Equal(t, "chest pain", a.Symptoms)

	// the same slot again conflicts
	w, resp = s.do(t, http.MethodPost, "/api/v1/appointments", s.f.Admin, bookingBody(s, future(48)))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotEmpty(t, resp.Error)
}

func TestCreateAppointmentRejects(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name   string
		as     *models.User
		mutate func(b map[string]interface{})
		want   int
	}{
		{"unauthenticated", nil, func(map[string]interface{}) {}, http.StatusUnauthorized},
		{"bad doctor id", s.f.Admin, func(b map[string]interface{}) { b["doctorId"] = "abc" }, http.StatusBadRequest},
		{"bad type", s.f.Admin, func(b map[string]interface{}) { b["type"] = "surgery" }, http.StatusBadRequest},
		{"too long", s.f.Admin, func(b map[string]interface{}) { b["duration"] = 600 }, http.StatusBadRequest},
		{"in the past", s.f.Admin, func(b map[string]interface{}) { b["dateTime"] = future(-48).Format(time.RFC3339) }, http.StatusBadRequest},
		{"patient for someone else", s.f.Patient, func(b map[string]interface{}) { b["patientId"] = s.f.Admin.ID }, http.StatusForbidden},
		{"doctor is not a doctor", s.f.Admin, func(b map[string]interface{}) { b["doctorId"] = s.f.Admin.ID }, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := bookingBody(s, future(72))
			tc.mutate(body)
			w, _ := s.do(t, http.MethodPost, "/api/v1/appointments", tc.as, body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestGetAndUpdateAppointment(t *testing.T) {
	s := newServer(t)
	a := s.f.Appointment(t, s.db, future(24), 30, models.StatusScheduled)
	path := "/api/v1/appointments/" + a.ID

	w, _ := s.do(t, http.MethodGet, path, s.f.Doctor, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	stranger := &models.User{BaseModel: models.BaseModel{ID: "c0a8012e-0000-4000-8000-000000000001"}, Role: models.RolePatient}
	w, _ = s.do(t, http.MethodGet, path, stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPatch, path+"/status", s.f.Patient, map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPatch, path+"/status", s.f.Patient, map[string]string{"status": "sometime"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := s.do(t, http.MethodPatch, path+"/status", s.f.Patient, map[string]string{
		"status":             "cancelled",
		"cancellationReason": "feeling better",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got models.Appointment
	decode(t, resp.Data, &got)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, "feeling better", got.CancellationReason)

	w, _ = s.do(t, http.MethodPatch, path+"/status", s.f.Admin, map[string]string{"status": "scheduled"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "cancelled appointments stay cancelled")
}

func TestRescheduleAppointment(t *testing.T) {
	s := newServer(t)
	a := s.f.Appointment(t, s.db, future(24), 30, models.StatusConfirmed)
	s.f.Appointment(t, s.db, future(30), 60, models.StatusScheduled)
	path := "/api/v1/appointments/" + a.ID + "/reschedule"

	w, _ := s.do(t, http.MethodPatch, path, s.f.Doctor, map[string]string{"dateTime": future(30).Add(30 * time.Minute).Format(time.RFC3339)})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, resp := s.do(t, http.MethodPatch, path, s.f.Doctor, map[string]string{
		"dateTime": future(31).Format(time.RFC3339),
		"reason":   "surgery overran",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got models.Appointment
	decode(t, resp.Data, &got)
	assert.True(t, future(31).Equal(got.StartTime))
	require.Len(t, got.RescheduleHistory, 1)
	assert.Equal(t, "surgery overran", got.RescheduleHistory[0].Reason)
}

func seedNotification(t *testing.T, s *server, recipient string, sent bool) *models.Notification {
	n := &models.Notification{
		RecipientID: recipient,
		Type:        models.NotificationSystem,
		Channel:     models.ChannelPush,
		Message:     "hello",
	}
	require.NoError(t, s.ledger.Create(context.Background(), n))
	if sent {
		require.NoError(t, s.ledger.MarkSent(context.Background(), n.ID, time.Now()))
	}
	return n
}

func TestGetNotificationsScopesToCaller(t *testing.T) {
	s := newServer(t)
	seedNotification(t, s, s.f.Patient.ID, true)
	seedNotification(t, s, s.f.Patient.ID, false)
	seedNotification(t, s, s.f.Doctor.ID, true)

	w, resp := s.do(t, http.MethodGet, "/api/v1/notifications", s.f.Patient, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []models.Notification
	decode(t, resp.Data, &mine)
	assert.Len(t, mine, 2)

	w, resp = s.do(t, http.MethodGet, "/api/v1/notifications?recipientId="+s.f.Patient.ID, s.f.Doctor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, resp.Data, &mine)
	assert.Len(t, mine, 1, "recipientId is ignored for non-admins")

	w, resp = s.do(t, http.MethodGet, "/api/v1/notifications?status=sent&limit=10", s.f.Admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, resp.Data, &mine)
	assert.Len(t, mine, 2)

	w, resp = s.do(t, http.MethodGet, "/api/v1/notifications?type=system-notification", s.f.Admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, resp.Data, &mine)
	assert.Len(t, mine, 3)

	w, resp = s.do(t, http.MethodGet, "/api/v1/notifications?type=appointment-reminder", s.f.Admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, resp.Data, &mine)
	assert.Empty(t, mine)

	for _, q := range []string{"?limit=0", "?limit=abc", "?status=lost", "?type=spam", "?type=appointment_reminder"} {
		w, _ = s.do(t, http.MethodGet, "/api/v1/notifications"+q, s.f.Admin, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestMarkNotificationDelivered(t *testing.T) {
	s := newServer(t)
	sent := seedNotification(t, s, s.f.Patient.ID, true)
	pending := seedNotification(t, s, s.f.Patient.ID, false)

	w, _ := s.do(t, http.MethodPatch, "/api/v1/notifications/"+sent.ID+"/delivered", s.f.Doctor, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp := s.do(t, http.MethodPatch, "/api/v1/notifications/"+sent.ID+"/delivered", s.f.Patient, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got models.Notification
	decode(t, resp.Data, &got)
	assert.Equal(t, models.NotificationDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)

	w, _ = s.do(t, http.MethodPatch, "/api/v1/notifications/"+pending.ID+"/delivered", s.f.Patient, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "only sent notifications can be delivered")

	w, _ = s.do(t, http.MethodPatch, "/api/v1/notifications/"+sent.ID+"/delivered", s.f.Patient, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "delivered is terminal")

	w, _ = s.do(t, http.MethodPatch, "/api/v1/notifications/missing/delivered", s.f.Admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebSocketPush(t *testing.T) {
	s := newServer(t)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL+"?token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL+"?token="+token(t, s.f.Patient), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return s.hub.ClientCount(s.f.Patient.ID) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.hub.SendToUser(s.f.Patient.ID, []byte(`{"type":"appointment-reminder"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"appointment-reminder"}`, string(msg))

	assert.ErrorIs(t, s.hub.SendToUser(s.f.Doctor.ID, []byte("{}")), websocket.ErrNotConnected)
}

func TestHealthCheck(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, map[string]string{"database": "healthy", "redis": "disabled", "rabbitmq": "healthy"}, body.Checks)
}

func TestHealthCheckDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewHealthHandler(
		handlers.PingFunc(func(context.Context) error { return nil }),
		handlers.PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		fakeQueue{connected: false},
		nil,
	)
	r.GET("/health", h.HealthCheck)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"rabbitmq":"degraded"`)
}

type fixedBreaker gobreaker.State

func (b fixedBreaker) State() gobreaker.State { return gobreaker.State(b) }

func TestHealthReportsOpenBreaker(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewHealthHandler(
		handlers.PingFunc(func(context.Context) error { return nil }),
		nil,
		nil,
		map[string]handlers.BreakerState{
			"sms":  fixedBreaker(gobreaker.StateOpen),
			"push": fixedBreaker(gobreaker.StateClosed),
		},
	)
	r.GET("/health", h.HealthCheck)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status   string            `json:"status"`
		Checks   map[string]string `json:"checks"`
		Channels map[string]string `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "degraded", body.Checks["channel_sms"])
	assert.NotContains(t, body.Checks, "channel_push")
	assert.Equal(t, map[string]string{"sms": "open", "push": "closed"}, body.Channels)
}
