package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fieldops/agentauth"
)

const (
	maxBodyBytes = 1 << 16

	msgInternal = "An error occurred"
)

type handler struct {
	auth   Authenticator
	logger *slog.Logger
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	Status    string `json:"status"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	Email string  `json:"email"`
	OTP   otpCode `json:"otp"`
}

// otpCode takes the passcode as a JSON string or a bare number. Numbers keep their digits
// as written; the engine decides whether they are well formed.
type otpCode string

func (c *otpCode) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = otpCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = otpCode(n.String())
	return nil
}

type resetPasswordRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type registerResponse struct {
	Message string `json:"message"`
	UID     string `json:"uid"`
}

type loginResponse struct {
	Message     string    `json:"message"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type meResponse struct {
	Email     string    `json:"email"`
	UID       string    `json:"uid"`
	ExpiresAt time.Time `json:"expires_at"`
}

// POST /api/agents
func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	status := agentauth.StatusActive
	if req.Status != "" {
		parsed, ok := agentauth.ParseAgentStatus(req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "status must be active, inactive or suspended")
			return
		}
		status = parsed
	}

	agent, err := h.auth.Register(r.Context(), agentauth.RegisterRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
		Status:    status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "Agent created successfully",
		UID:     agent.UID,
	})
}

// POST /api/agent-login/
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message:     "User logged in successfully",
		AccessToken: res.Token,
		TokenType:   "bearer",
		ExpiresAt:   res.ExpiresAt.UTC(),
	})
}

// POST /api/forgot-password/
func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "OTP sent successfully"})
}

// POST /api/verify-otp/
func (h *handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.ConfirmOTP(r.Context(), req.Email, string(req.OTP)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "OTP verified successfully"})
}

// POST /api/reset-password/
func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Email, req.Password, req.ConfirmPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password reset successfully"})
}

// GET /api/me
func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := agentauth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Email:     claims.Email,
		UID:       claims.AgentUID,
		ExpiresAt: claims.ExpiresAt.UTC(),
	})
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return false
	}
	return true
}

// fail writes the response for an engine error. Infrastructure failures are logged
// and answered with a generic message.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorResponseFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, msg)
}

func errorResponseFor(err error) (int, string) {
	var verr *agentauth.ValidationError
	if errors.As(err, &verr) {
		if verr.Reason == "required" {
			return http.StatusBadRequest, verr.Field + " is required"
		}
		return http.StatusBadRequest, verr.Error()
	}
	var cerr *agentauth.ConflictError
	if errors.As(err, &cerr) {
		if cerr.Field == "" {
			return http.StatusConflict, "Agent already exists"
		}
		return http.StatusConflict, strings.ToUpper(cerr.Field[:1]) + cerr.Field[1:] + " already exists"
	}

	switch {
	case errors.Is(err, agentauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, agentauth.ErrTokenInvalid),
		errors.Is(err, agentauth.ErrTokenExpired),
		errors.Is(err, agentauth.ErrTokenRevoked):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, agentauth.ErrAgentInactive):
		return http.StatusForbidden, "Agent is not active"
	case errors.Is(err, agentauth.ErrAgentNotFound):
		return http.StatusNotFound, "Agent not found with the given email"
	case errors.Is(err, agentauth.ErrPasswordMismatch):
		return http.StatusBadRequest, "Passwords do not match"
	case errors.Is(err, agentauth.ErrSamePassword):
		return http.StatusBadRequest, "New password cannot be the same as the old password"
	case errors.Is(err, agentauth.ErrPasswordPolicy):
		return http.StatusBadRequest, "Password does not meet the password policy"
	case errors.Is(err, agentauth.ErrChallengeExpired):
		return http.StatusBadRequest, "OTP has expired"
	case errors.Is(err, agentauth.ErrChallengeRejected):
		return http.StatusBadRequest, "Invalid OTP"
	case errors.Is(err, agentauth.ErrResetNotVerified):
		return http.StatusBadRequest, "OTP verification is required before resetting the password"
	case errors.Is(err, agentauth.ErrOTPDeliveryFailed):
		return http.StatusBadGateway, "OTP could not be delivered"
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
