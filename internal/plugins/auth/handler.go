package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/warden/internal/apperror"
	"github.com/keyxmakerx/warden/internal/plugins/sessions"
)

// Handler handles HTTP requests for authentication and recovery. Handlers
// are thin: they bind the request, call the service, and write the cookie
// and JSON response. No business logic lives here.
type Handler struct {
	service AuthService
	cookies *sessions.CookieTransport
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService, cookies *sessions.CookieTransport) *Handler {
	return &Handler{service: service, cookies: cookies}
}

// bind decodes the JSON body into req and runs struct validation.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	return c.Validate(req)
}

func clientMeta(c echo.Context) ClientMeta {
	return ClientMeta{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

// Login authenticates with email and password (POST /api/auth/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Client:   clientMeta(c),
	})
	if err != nil {
		return err
	}

	h.cookies.Write(c, result.Token)
	return c.JSON(http.StatusOK, authResponse("login successful", result))
}

// Signup creates an account and signs it in (POST /api/auth/signup).
func (h *Handler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Password != req.ConfirmPassword {
		return apperror.NewValidation("passwords do not match")
	}

	result, err := h.service.Signup(c.Request().Context(), SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		Gender:    req.Gender,
		LastName:  req.LastName,
		FirstName: req.FirstName,
		Phone:     joinPhone(req.PhoneCountry, req.Phone),
		Mobile:    joinPhone(req.MobileCountry, req.Mobile),
		Language:  req.Language,
		Client:    clientMeta(c),
	})
	if err != nil {
		return err
	}

	h.cookies.Write(c, result.Token)
	return c.JSON(http.StatusCreated, authResponse("signup successful", result))
}

// Logout ends the current session (POST /api/auth/logout). The cookie is
// cleared even when the session could not be deactivated.
func (h *Handler) Logout(c echo.Context) error {
	token := h.cookies.Read(c)
	err := h.service.Logout(c.Request().Context(), token)
	h.cookies.Clear(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "logged out"})
}

// Me reports the current session (GET /api/auth/me).
func (h *Handler) Me(c echo.Context) error {
	token := h.cookies.Read(c)
	if token == "" {
		return c.JSON(http.StatusUnauthorized, map[string]any{
			"authenticated": false,
			"error":         "no active session",
		})
	}

	data, ok := h.service.Me(c.Request().Context(), token)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]any{
			"authenticated": false,
			"error":         "invalid or expired session",
		})
	}
	return c.JSON(http.StatusOK, MeResponse{Authenticated: true, User: sessionUser(data)})
}

// SendPin emails a recovery PIN (POST /api/auth/recovery/send-pin).
func (h *Handler) SendPin(c echo.Context) error {
	var req SendPinRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.service.SendRecoveryPin(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "recovery PIN sent by email"})
}

// VerifyPin exchanges a PIN for a reset token (POST /api/auth/recovery/verify-pin).
func (h *Handler) VerifyPin(c echo.Context) error {
	var req VerifyPinRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	handle, err := h.service.VerifyRecoveryPin(c.Request().Context(), req.Email, req.Pin)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, VerifyPinResponse{Success: true, Message: "PIN is valid", Token: handle})
}

// ResetPassword sets a new password and signs the user in
// (POST /api/auth/recovery/reset-password).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.service.ResetPassword(c.Request().Context(), ResetInput{
		Handle:      req.Token,
		NewPassword: req.NewPassword,
		Client:      clientMeta(c),
	})
	if err != nil {
		return err
	}

	h.cookies.Write(c, result.Token)
	return c.JSON(http.StatusOK, authResponse("password changed", result))
}

// GetProfile returns the signed-in user's profile (GET /api/profile).
func (h *Handler) GetProfile(c echo.Context) error {
	user, profile, err := h.service.Profile(c.Request().Context(), GetUserID(c))
	if err != nil {
		return err
	}

	resp := UserResponse{ID: user.ID, Email: user.Email, Profile: profile}
	if user.LastLoginAt != nil {
		resp.LastLogin = *user.LastLoginAt
	}
	return c.JSON(http.StatusOK, resp)
}

// Bootstrap returns the session for the UI shell on protected pages
// (GET / and GET /profile). The gate has already authenticated the request.
func (h *Handler) Bootstrap(c echo.Context) error {
	data := GetSession(c)
	if data == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	return c.JSON(http.StatusOK, MeResponse{Authenticated: true, User: sessionUser(data)})
}

// --- Helpers ---

func authResponse(message string, r *AuthResult) AuthResponse {
	return AuthResponse{
		Success: true,
		Message: message,
		User: UserResponse{
			ID:        r.User.ID,
			Email:     r.User.Email,
			LastLogin: r.LastLogin,
			Profile:   r.Profile,
		},
	}
}

func sessionUser(data *sessions.SessionData) *UserResponse {
	return &UserResponse{ID: data.UserID, Email: data.Email, LastLogin: data.LastLogin}
}

// joinPhone prefixes a local number with its country code. An empty number
// yields "".
func joinPhone(country, number string) string {
	if number == "" {
		return ""
	}
	return country + number
}
