package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *Service, *echo.Echo) {
	t.Helper()
	svc, _, _ := newTestService()
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{SigningKey: []byte("handler-test-signing-key-0123456789")})
	if err != nil {
		t.Fatal(err)
	}
	store := auth.NewMemoryRevocationStore(0)
	t.Cleanup(store.Close)
	guard := auth.NewGuard(issuer, store, zerolog.Nop(), nil)
	return NewHandler(svc, guard), svc, echo.New()
}

func routed(h *Handler, e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		c.JSON(apperr.HTTPStatus(err), map[string]string{"redirect": apperr.RedirectOf(err)})
	}
	h.RegisterRoutes(e.Group(""))
}

func jsonCtx(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withSession(c echo.Context, a *Account) {
	s := &auth.Session{UserID: a.ID.String(), Role: a.Role, TokenID: "jti-" + a.ID.String()}
	c.SetRequest(c.Request().WithContext(auth.WithSession(c.Request().Context(), s)))
}

type sessionBody struct {
	Success bool `json:"success"`
	Data    struct {
		Token    string  `json:"token"`
		Account  Account `json:"account"`
		Redirect string  `json:"redirect"`
	} `json:"data"`
}

func TestHandler_Register(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, rec := jsonCtx(e, http.MethodPost, `{"role":"doctor","name":"Dr. Sen","mobile":"9000000100","password":"password1","license_number":"L-9"}`)

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var body sessionBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if !body.Success || body.Data.Token == "" {
		t.Fatalf("expected token in response: %s", rec.Body.String())
	}
	if body.Data.Redirect != auth.VerifyDoctorPath {
		t.Errorf("expected unverified doctor sent to %s, got %s", auth.VerifyDoctorPath, body.Data.Redirect)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("password material must never be serialized")
	}

	claims, err := h.guard.Tokens().Parse(body.Data.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.Role != auth.RoleDoctor || claims.Subject != body.Data.Account.ID.String() {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestHandler_Register_Invalid(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, _ := jsonCtx(e, http.MethodPost, `{"role":"patient"}`)
	err := h.Register(c)
	if apperr.HTTPStatus(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Login(t *testing.T) {
	h, svc, e := newTestHandler(t)
	_, err := svc.Register(context.Background(), RegisterInput{
		Role: auth.RoleAdmin, Name: "Ops", Mobile: "9000000200", Password: "password1", AdminCode: "A-1", InviteCode: testAdminInvite,
	})
	if err != nil {
		t.Fatal(err)
	}

	c, rec := jsonCtx(e, http.MethodPost, `{"mobile":"9000000200","password":"password1"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body sessionBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data.Redirect != "/admin/dashboard" {
		t.Errorf("expected admin landing, got %q", body.Data.Redirect)
	}

	c, _ = jsonCtx(e, http.MethodPost, `{"mobile":"9000000200","password":"nope-nope"}`)
	if err := h.Login(c); apperr.HTTPStatus(err) != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Logout_RevokesToken(t *testing.T) {
	h, _, e := newTestHandler(t)
	token, _, err := h.guard.Tokens().Issue("11111111-1111-1111-1111-111111111111", auth.RolePatient)
	if err != nil {
		t.Fatal(err)
	}

	routed(h, e)

	logout := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logout.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, logout)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	again := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	again.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, again)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected revoked token to be rejected, got %d", rec.Code)
	}
}

func TestHandler_GuestOnlyBouncesSignedIn(t *testing.T) {
	h, _, e := newTestHandler(t)
	routed(h, e)
	token, _, _ := h.guard.Tokens().Issue("11111111-1111-1111-1111-111111111111", auth.RoleDoctor)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/doctor/dashboard" {
		t.Errorf("expected doctor landing, got %q", loc)
	}
}

func TestHandler_Me(t *testing.T) {
	h, svc, e := newTestHandler(t)
	a := registerDoctor(t, svc, "9000000300")

	c, rec := jsonCtx(e, http.MethodGet, "")
	withSession(c, a)
	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), a.ID.String()) {
		t.Errorf("expected account in body: %s", rec.Body.String())
	}
}

func multipartUpload(t *testing.T, e *echo.Echo, kind, filename, contentType, content string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("kind", kind)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_VerificationFlow(t *testing.T) {
	h, svc, e := newTestHandler(t)
	doc := registerDoctor(t, svc, "9000000400")

	for _, k := range RequiredDocuments {
		c, rec := multipartUpload(t, e, string(k), string(k)+".pdf", "application/pdf", pdfBody)
		withSession(c, doc)
		if err := h.UploadDocument(c); err != nil {
			t.Fatalf("upload %s: %v", k, err)
		}
		if rec.Code != http.StatusCreated {
			t.Fatalf("upload %s: expected 201, got %d", k, rec.Code)
		}
	}

	c, rec := jsonCtx(e, http.MethodPost, `{"specialization":"Pulmonology"}`)
	withSession(c, doc)
	if err := h.SubmitVerification(c); err != nil {
		t.Fatalf("submit: %v", err)
	}
	var body struct {
		Data     VerificationSubmission `json:"data"`
		Redirect string                 `json:"redirect"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data.IDDoc == "" || body.Redirect != "/doctor/dashboard" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if ok, _ := svc.IsVerified(context.Background(), doc.ID.String()); !ok {
		t.Error("expected doctor to be verified")
	}
}

func TestHandler_UploadDocument_MissingFile(t *testing.T) {
	h, svc, e := newTestHandler(t)
	doc := registerDoctor(t, svc, "9000000500")
	c, _ := jsonCtx(e, http.MethodPost, `{}`)
	withSession(c, doc)
	if err := h.UploadDocument(c); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandler_VerifyRoutesRejectPatients(t *testing.T) {
	h, _, e := newTestHandler(t)
	routed(h, e)
	token, _, _ := h.guard.Tokens().Issue("11111111-1111-1111-1111-111111111111", auth.RolePatient)

	req := httptest.NewRequest(http.MethodPost, "/verify-doctor", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"/dashboard"`) {
		t.Errorf("expected reroute to patient landing, got %s", rec.Body.String())
	}
}

func TestHandler_Recent(t *testing.T) {
	h, svc, e := newTestHandler(t)
	registerDoctor(t, svc, "9000000600")
	registerDoctor(t, svc, "9000000601")

	req := httptest.NewRequest(http.MethodGet, "/?limit=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Recent(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Success bool       `json:"success"`
		Data    []*Account `json:"data"`
		Total   int        `json:"total"`
		HasMore bool       `json:"has_more"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if !body.Success || len(body.Data) != 1 || body.Total != 2 || !body.HasMore {
		t.Errorf("unexpected page: %s", rec.Body.String())
	}
}

func TestHandler_AdminDocumentAccess(t *testing.T) {
	h, svc, e := newTestHandler(t)
	routed(h, e)
	doc := registerDoctor(t, svc, "9000000700")
	uploadAll(t, svc, doc.ID.String(), DocDegree)

	admin, _, _ := h.guard.Tokens().Issue("22222222-2222-2222-2222-222222222222", auth.RoleAdmin)
	doctor, _, _ := h.guard.Tokens().Issue(doc.ID.String(), auth.RoleDoctor)

	get := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}
	base := "/users/" + doc.ID.String() + "/documents"

	rec := get(base+"/degree", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != pdfBody {
		t.Errorf("unexpected document bytes: %q", rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "degree.pdf") {
		t.Errorf("expected file name in disposition, got %q", cd)
	}

	rec = get(base, admin)
	var list struct {
		Data []Document `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &list)
	if rec.Code != http.StatusOK || len(list.Data) != 1 || list.Data[0].Kind != DocDegree {
		t.Errorf("unexpected listing %d: %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"doctor cannot read", base + "/degree", doctor, http.StatusForbidden},
		{"not uploaded", base + "/identity", admin, http.StatusNotFound},
		{"unknown kind", base + "/passport", admin, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(tt.path, tt.token); rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
