package account

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/auth"
	"github.com/careportal/triage/pkg/pagination"
)

type Handler struct {
	svc   *Service
	guard *auth.Guard
}

func NewHandler(svc *Service, guard *auth.Guard) *Handler {
	return &Handler{svc: svc, guard: guard}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	guest := api.Group("/auth", h.guard.GuestOnly())
	guest.POST("/register", h.Register)
	guest.POST("/login", h.Login)

	session := api.Group("/auth", h.guard.Authenticate())
	session.POST("/logout", h.Logout)
	session.GET("/me", h.Me)

	// Unverified doctors must reach these, so no RequireVerified here.
	verify := api.Group("/verify-doctor", h.guard.Authenticate(), h.guard.RequireRole(auth.RoleDoctor))
	verify.GET("/documents", h.ListDocuments)
	verify.POST("/documents", h.UploadDocument)
	verify.POST("", h.SubmitVerification)

	admin := api.Group("/users", h.guard.Authenticate(), h.guard.RequireRole(auth.RoleAdmin))
	admin.GET("/recent", h.Recent)
	admin.GET("/:id/documents", h.AccountDocuments)
	admin.GET("/:id/documents/:kind", h.DownloadDocument)
}

// landing is where a freshly signed-in account should go next.
func landing(a *Account) string {
	if a.Role == auth.RoleDoctor && !a.IsVerified {
		return auth.VerifyDoctorPath
	}
	return auth.LandingFor(a.Role)
}

func (h *Handler) startSession(c echo.Context, status int, a *Account) error {
	token, claims, err := h.guard.Tokens().Issue(a.ID.String(), a.Role)
	if err != nil {
		return apperr.Internal("account.issue_token", err)
	}
	return c.JSON(status, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"token":      token,
			"expires_at": claims.ExpiresAt.Time,
			"account":    a,
			"redirect":   landing(a),
		},
	})
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("account.register", "invalid request body")
	}
	a, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return h.startSession(c, http.StatusCreated, a)
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("account.login", "invalid request body")
	}
	a, err := h.svc.Authenticate(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return h.startSession(c, http.StatusOK, a)
}

func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	s, ok := auth.SessionFromContext(ctx)
	if !ok {
		return apperr.Unauthenticated("account.logout", "authentication required", auth.LoginPath)
	}
	if err := h.guard.Revocations().Revoke(ctx, s.TokenID, s.UserID, s.ExpiresAt); err != nil {
		return apperr.Internal("account.logout", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    map[string]string{"redirect": auth.LoginPath},
	})
}

func (h *Handler) Me(c echo.Context) error {
	a, err := h.svc.Get(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": a})
}

func (h *Handler) ListDocuments(c echo.Context) error {
	docs, err := h.svc.Documents(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []*Document{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": docs})
}

func (h *Handler) UploadDocument(c echo.Context) error {
	const op = "account.upload_document"
	kind := DocumentKind(c.FormValue("kind"))
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.Validation(op, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Validation(op, "file could not be read")
	}
	defer f.Close()

	doc, err := h.svc.UploadDocument(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()),
		kind, fh.Filename, fh.Header.Get(echo.HeaderContentType), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"success": true, "data": doc})
}

func (h *Handler) SubmitVerification(c echo.Context) error {
	var body struct {
		Specialization string `json:"specialization"`
	}
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("account.submit_verification", "invalid request body")
	}
	sub, err := h.svc.SubmitVerification(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), body.Specialization)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"data":     sub,
		"redirect": auth.LandingFor(auth.RoleDoctor),
	})
}

func (h *Handler) Recent(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Recent(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Account{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// AccountDocuments lets an admin see what a doctor has uploaded.
func (h *Handler) AccountDocuments(c echo.Context) error {
	docs, err := h.svc.Documents(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []*Document{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": docs})
}

// DownloadDocument streams one credential so an admin can inspect it.
func (h *Handler) DownloadDocument(c echo.Context) error {
	rc, doc, err := h.svc.OpenDocument(c.Request().Context(), c.Param("id"), DocumentKind(c.Param("kind")))
	if err != nil {
		return err
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", doc.FileName))
	return c.Stream(http.StatusOK, doc.ContentType, rc)
}
