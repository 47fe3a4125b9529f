package appointment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/auth"
)

type Handler struct {
	svc   *Service
	guard *auth.Guard
}

func NewHandler(svc *Service, guard *auth.Guard) *Handler {
	return &Handler{svc: svc, guard: guard}
}

// RegisterRoutes mounts the appointment routes. Every route requires a
// session, and doctors must be verified.
func (h *Handler) RegisterRoutes(api *echo.Group, verified auth.VerificationLookup) {
	g := api.Group("/appointments", h.guard.Authenticate(), h.guard.RequireVerified(verified))
	g.POST("/book", h.Book)
	g.GET("/mine", h.ListMine, h.guard.RequireRole(auth.RolePatient))
	g.GET("/doctor/:doctorId", h.ListByDoctor, h.guard.RequireRole(auth.RoleDoctor, auth.RoleAdmin))
	g.GET("/:id", h.Get)
	g.PATCH("/:id/status", h.UpdateStatus, h.guard.RequireRole(auth.RoleDoctor))
}

func actorOf(c echo.Context) Actor {
	s, _ := auth.SessionFromContext(c.Request().Context())
	if s == nil {
		return Actor{}
	}
	return Actor{ID: s.UserID, Role: s.Role}
}

func ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, map[string]interface{}{"success": true, "data": data})
}

func (h *Handler) Book(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("appointment.create", "invalid request body")
	}
	rec, err := h.svc.Create(c.Request().Context(), actorOf(c), in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, rec)
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	actor := actorOf(c)
	doctorID := c.Param("doctorId")
	if actor.Role == auth.RoleDoctor && actor.ID != doctorID {
		return apperr.Forbidden("appointment.list_by_doctor", "doctors may only view their own queue", auth.LandingFor(actor.Role))
	}
	items, err := h.svc.ListByDoctor(c.Request().Context(), doctorID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Record{}
	}
	return ok(c, http.StatusOK, items)
}

func (h *Handler) ListMine(c echo.Context) error {
	items, err := h.svc.ListByPatient(c.Request().Context(), actorOf(c).ID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Record{}
	}
	return ok(c, http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"), actorOf(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, rec)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var body struct {
		Status  Status `json:"status"`
		Version int    `json:"version"`
	}
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("appointment.transition", "invalid request body")
	}
	rec, err := h.svc.Transition(c.Request().Context(), c.Param("id"), body.Status, actorOf(c), body.Version)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, rec)
}
