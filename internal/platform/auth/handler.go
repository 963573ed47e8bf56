package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

// Handler exposes the console's shared session: login, refresh, logout and
// the current user.
type Handler struct {
	session *Session
	caller  Caller
	persist func(TokenPair) error
	logger  zerolog.Logger
}

// NewHandler builds the session routes. persist, when non-nil, is called
// with the new token pair after every change so the tokens survive a
// restart.
func NewHandler(session *Session, caller Caller, persist func(TokenPair) error, logger zerolog.Logger) *Handler {
	return &Handler{session: session, caller: caller, persist: persist, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/auth")
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	g.GET("/session", h.Current)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool    `json:"authenticated"`
	User          *Claims `json:"user,omitempty"`
	Access        string  `json:"access,omitempty"`
	Refresh       string  `json:"refresh,omitempty"`
}

func httpError(err error) error {
	return echo.NewHTTPError(apiclient.HTTPStatus(err), err.Error()).SetInternal(err)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	claims, err := h.session.Login(c.Request().Context(), h.caller, req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	h.save()
	pair := h.session.Tokens()
	return c.JSON(http.StatusOK, sessionResponse{Authenticated: true, User: claims, Access: pair.Access, Refresh: pair.Refresh})
}

func (h *Handler) Refresh(c echo.Context) error {
	claims, err := h.session.Refresh(c.Request().Context(), h.caller)
	if err != nil {
		return httpError(err)
	}
	h.save()
	pair := h.session.Tokens()
	return c.JSON(http.StatusOK, sessionResponse{Authenticated: true, User: claims, Access: pair.Access, Refresh: pair.Refresh})
}

func (h *Handler) Logout(c echo.Context) error {
	h.session.Logout()
	h.save()
	return c.NoContent(http.StatusNoContent)
}

// Current reports the caller's identity: the claims of its own bearer token
// when Bearer put them on the context, otherwise the shared session's.
func (h *Handler) Current(c echo.Context) error {
	if claims := ClaimsFromContext(c.Request().Context()); claims != nil {
		return c.JSON(http.StatusOK, sessionResponse{Authenticated: true, User: claims})
	}
	user := h.session.User()
	return c.JSON(http.StatusOK, sessionResponse{Authenticated: h.session.Authenticated(), User: user})
}

func (h *Handler) save() {
	if h.persist == nil {
		return
	}
	if err := h.persist(h.session.Tokens()); err != nil {
		h.logger.Warn().Err(err).Msg("failed to persist session tokens")
	}
}
