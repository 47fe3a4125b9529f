package triage

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careportal/triage/internal/domain/assessment"
	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/auth"
)

// HeaderSubmissionID identifies one form submission so a double submit
// joins the call already in flight.
const HeaderSubmissionID = "X-Submission-ID"

type Handler struct {
	svc    *Service
	guard  *auth.Guard
	logger zerolog.Logger
}

func NewHandler(svc *Service, guard *auth.Guard, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, guard: guard, logger: logger.With().Str("component", "triage").Logger()}
}

// RegisterRoutes mounts the prediction routes. throttle runs after the
// session is resolved, so per-account limiters see the caller.
func (h *Handler) RegisterRoutes(api *echo.Group, verified auth.VerificationLookup, throttle ...echo.MiddlewareFunc) {
	mw := append([]echo.MiddlewareFunc{h.guard.Authenticate(), h.guard.RequireVerified(verified)}, throttle...)
	g := api.Group("/predict", mw...)
	g.POST("", h.Predict)
	g.POST("/csv", h.PredictCSV)
}

// submissionKey scopes the client-supplied id to the caller.
func submissionKey(c echo.Context) string {
	id := strings.TrimSpace(c.Request().Header.Get(HeaderSubmissionID))
	if id == "" {
		return ""
	}
	return auth.UserIDFromContext(c.Request().Context()) + ":" + id
}

// fail renders the {error} body the prediction routes use.
func (h *Handler) fail(c echo.Context, op string, err error) error {
	status := apperr.HTTPStatus(err)
	ev := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = h.logger.Error()
	}
	ev.Err(err).
		Str("op", op).
		Str("user_id", auth.UserIDFromContext(c.Request().Context())).
		Int("status", status).
		Msg("assessment failed")
	return c.JSON(status, map[string]string{"error": apperr.PublicMessage(err)})
}

func (h *Handler) run(c echo.Context, op string, raw assessment.RawInput) error {
	a, err := h.svc.Assess(c.Request().Context(), submissionKey(c), raw)
	if err != nil {
		return h.fail(c, op, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Predict scores a JSON checkup.
func (h *Handler) Predict(c echo.Context) error {
	const op = "triage.predict"
	var raw assessment.RawInput
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return h.fail(c, op, apperr.Validation(op, "invalid request body"))
	}
	return h.run(c, op, raw)
}

// PredictCSV scores a checkup whose labs come from an uploaded export. The
// optional payload field carries the rest of the form as JSON; CSV labs
// override any labs in it.
func (h *Handler) PredictCSV(c echo.Context) error {
	const op = "triage.predict_csv"

	var raw assessment.RawInput
	if payload := c.FormValue("payload"); strings.TrimSpace(payload) != "" {
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return h.fail(c, op, apperr.Validation(op, "payload is not valid JSON"))
		}
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return h.fail(c, op, apperr.Validation(op, "file is required"))
	}
	f, err := fh.Open()
	if err != nil {
		return h.fail(c, op, apperr.Validation(op, "file could not be read"))
	}
	defer f.Close()

	panel, err := assessment.ParseCSV(f)
	if err != nil {
		return h.fail(c, op, err)
	}
	panel.ApplyTo(&raw)
	return h.run(c, op, raw)
}
