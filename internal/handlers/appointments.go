package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"medicare-scheduler/internal/middleware"
	"medicare-scheduler/internal/models"
	"medicare-scheduler/internal/scheduling"
	"medicare-scheduler/internal/utils"
)

// Booker is the booking service behind the appointment endpoints.
type Booker interface {
	Book(ctx context.Context, actor scheduling.Actor, req scheduling.BookingRequest) (*models.Appointment, error)
	Get(ctx context.Context, actor scheduling.Actor, id string) (*models.Appointment, error)
	ChangeStatus(ctx context.Context, actor scheduling.Actor, id string, next models.AppointmentStatus, reason string) (*models.Appointment, error)
	Reschedule(ctx context.Context, actor scheduling.Actor, id string, newStart time.Time, reason string) (*models.Appointment, error)
}

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	svc Booker
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(svc Booker) *AppointmentHandler {
	return &AppointmentHandler{svc: svc}
}

// CreateAppointmentRequest represents the request body for creating an appointment.
type CreateAppointmentRequest struct {
	DoctorID  string                 `json:"doctorId" binding:"required,uuid"`
	PatientID string                 `json:"patientId" binding:"required,uuid"`
	ClinicID  string                 `json:"clinicId" binding:"required,uuid"`
	DateTime  time.Time              `json:"dateTime" binding:"required"`
	Duration  int                    `json:"duration" binding:"omitempty,min=1,max=480"`
	Type      models.AppointmentType `json:"type" binding:"required,oneof=consultation follow-up emergency routine"`
	Notes     string                 `json:"notes" binding:"max=2000"`
	Symptoms  string                 `json:"symptoms" binding:"max=2000"`
}

// UpdateAppointmentStatusRequest represents the request body for updating an appointment's status.
type UpdateAppointmentStatusRequest struct {
	Status             models.AppointmentStatus `json:"status" binding:"required,oneof=scheduled confirmed cancelled completed no-show"`
	CancellationReason string                   `json:"cancellationReason" binding:"max=255"`
}

// RescheduleAppointmentRequest represents the request body for moving an appointment.
type RescheduleAppointmentRequest struct {
	DateTime time.Time `json:"dateTime" binding:"required"`
	Reason   string    `json:"reason" binding:"max=255"`
}

func actorOrAbort(c *gin.Context) (scheduling.Actor, bool) {
	actor, ok := middleware.Actor(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
	}
	return actor, ok
}

// CreateAppointment books an appointment after the slot conflict check.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appointment, err := h.svc.Book(c.Request.Context(), actor, scheduling.BookingRequest{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		ClinicID:  req.ClinicID,
		Start:     req.DateTime,
		Duration:  req.Duration,
		Type:      req.Type,
		Notes:     req.Notes,
		Symptoms:  req.Symptoms,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Created(c, "Appointment created successfully", appointment)
}

// GetAppointmentByID handles fetching a single appointment by its ID.
// Accessible by involved patient, doctor, or an admin.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	appointment, err := h.svc.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Appointment fetched successfully", appointment)
}

// UpdateAppointmentStatus handles updating the status of an appointment.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req UpdateAppointmentStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appointment, err := h.svc.ChangeStatus(c.Request.Context(), actor, c.Param("id"), req.Status, req.CancellationReason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Appointment status updated successfully", appointment)
}

// RescheduleAppointment moves an appointment to a new start time.
func (h *AppointmentHandler) RescheduleAppointment(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req RescheduleAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appointment, err := h.svc.Reschedule(c.Request.Context(), actor, c.Param("id"), req.DateTime, req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Appointment rescheduled successfully", appointment)
}
