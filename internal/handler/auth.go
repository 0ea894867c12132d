package handler

import (
	"crypto/subtle" // constant-time comparison of the admin login name
	"net/http"      // HTTP status codes and primitives
	"strings"       // string manipulation utilities
	"time"          // token expiry in responses

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/flowsurfer-web/internal/config" // app configuration
	"github.com/iliyamo/flowsurfer-web/internal/utils"  // helper functions (hashing, token issuing)
)

// AdminRole is the role claim carried by admin tokens.
const AdminRole = "ADMIN"

// AuthHandler issues admin access tokens.  The single admin account is
// defined by configuration rather than stored in the database.
type AuthHandler struct {
	Cfg config.Config
}

func NewAuthHandler(cfg config.Config) *AuthHandler {
	return &AuthHandler{Cfg: cfg}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type loginResp struct {
	Access tokenPart `json:"access"`
}

// Login: verify admin credentials and return an access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	if !h.Cfg.AdminEnabled() {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	want := strings.ToLower(strings.TrimSpace(h.Cfg.AdminEmail))
	emailOK := subtle.ConstantTimeCompare([]byte(req.Email), []byte(want)) == 1
	// Always run bcrypt so a wrong email costs the same as a wrong password.
	passOK := utils.VerifyPassword(h.Cfg.AdminPassHash, req.Password)
	if !emailOK || !passOK {
		c.Logger().Warnf("admin login rejected for %q from %s", req.Email, c.RealIP())
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, want, AdminRole, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(http.StatusOK, loginResp{Access: tokenPart{Token: access.Token, Expires: access.Exp}})
}
