package reporting

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/auth"
)

type Handler struct {
	db    Querier
	guard *auth.Guard
	now   func() time.Time
}

// NewHandler returns the reporting handler. db may be nil, in which case
// measure evaluation reports the database as unavailable.
func NewHandler(db Querier, guard *auth.Guard) *Handler {
	return &Handler{db: db, guard: guard, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/metrics", h.ModelReport)
	api.GET("/validation", h.Validation)

	g := api.Group("/reports", h.guard.Authenticate(), h.guard.RequireRole(auth.RoleAdmin))
	g.GET("/measures", h.ListMeasures)
	g.GET("/measures/:id", h.EvaluateMeasure)
}

func (h *Handler) ModelReport(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": CurrentModelReport()})
}

func (h *Handler) Validation(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": Validation()})
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": Measures})
}

func (h *Handler) EvaluateMeasure(c echo.Context) error {
	const op = "reporting.evaluate_measure"
	m, ok := FindMeasure(c.Param("id"))
	if !ok {
		return apperr.NotFound(op, c.Param("id"))
	}
	if h.db == nil {
		return apperr.ServiceUnavailable(op, "reporting database unavailable", nil)
	}
	report, err := Evaluate(c.Request().Context(), h.db, m, h.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": report})
}
