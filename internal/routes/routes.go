package routes

import (
	"github.com/gin-gonic/gin"

	"medicare-scheduler/internal/handlers"
	"medicare-scheduler/internal/middleware"
	"medicare-scheduler/internal/models"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Appointments  *handlers.AppointmentHandler
	Notifications *handlers.NotificationHandler
	WebSocket     *handlers.WebSocketHandler
	Health        *handlers.HealthHandler
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, h Handlers, jwtSecret string) {
	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(jwtSecret))
	{
		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.POST("", middleware.RoleAuthMiddleware(models.RolePatient, models.RoleDoctor, models.RoleAdmin), h.Appointments.CreateAppointment)

			// Specific appointment access (Patient involved, Doctor involved, or Admin)
			appointmentRoutes.GET("/:id", h.Appointments.GetAppointmentByID)

			// Status updates (Doctor, Admin, Patient for cancellation)
			appointmentRoutes.PATCH("/:id/status", h.Appointments.UpdateAppointmentStatus)

			appointmentRoutes.PATCH("/:id/reschedule", h.Appointments.RescheduleAppointment)
		}

		notificationRoutes := private.Group("/notifications")
		{
			notificationRoutes.GET("", h.Notifications.GetNotifications)
			notificationRoutes.PATCH("/:id/delivered", h.Notifications.MarkNotificationDelivered)
		}
	}

	// The token travels in the query string, auth happens in the handler
	router.GET("/ws", h.WebSocket.Connect)

	router.GET("/health", h.Health.HealthCheck)
}
