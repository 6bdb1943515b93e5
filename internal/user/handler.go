package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"go.uber.org/zap"

	"github.com/Egold-Exchange/uigisc-be/internal/otp"
	"github.com/Egold-Exchange/uigisc-be/internal/token"
	"github.com/Egold-Exchange/uigisc-be/internal/user/entity"
)

const maxBodyBytes = 1 << 20

var subdomainPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Service is what the handlers need from AuthService.
type Service interface {
	SendVerificationCode(ctx context.Context, email string) error
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetCode(ctx context.Context, email, code string) otp.Outcome
	ResetPassword(ctx context.Context, email, newPassword string) error
	ChangePassword(ctx context.Context, userID, current, newPassword string) error
	Me(ctx context.Context, userID string) (*entity.User, error)
	SubdomainAvailable(ctx context.Context, subdomain string) (bool, error)
}

// Handler exposes the auth endpoints over HTTP.
type Handler struct {
	svc    Service
	logger *zap.SugaredLogger
}

func NewHandler(svc Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

type EmailRequest struct {
	Email string `json:"email"`
}

func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Subdomain string `json:"subdomain"`
	Name      string `json:"name"`
	Mobile    string `json:"mobile"`
	Code      string `json:"code"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&r.Subdomain, validation.Required, validation.Length(3, 30), validation.Match(subdomainPattern)),
		validation.Field(&r.Name, validation.Length(0, 200)),
		validation.Field(&r.Mobile, validation.Length(0, 32)),
		validation.Field(&r.Code, validation.Required, is.Digit),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r VerifyCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, is.Digit),
	)
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"new_password"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 72)),
	)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 72)),
	)
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) SendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.SendVerificationCode(r.Context(), req.Email); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			h.writeError(w, http.StatusBadRequest, "Email already registered")
			return
		}
		h.logger.Errorw("send verification code failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to send verification code")
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Verification code sent to your email"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), RegisterInput(req))
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			h.writeError(w, http.StatusBadRequest, "Email already registered")
		case errors.Is(err, ErrSubdomainTaken):
			h.writeError(w, http.StatusBadRequest, "Subdomain already taken")
		case isCodeError(err):
			h.writeError(w, http.StatusBadRequest, codeMessage(otp.FlowRegistrationVerify, err))
		default:
			h.logger.Errorw("register failed", "err", err)
			h.writeError(w, http.StatusInternalServerError, "Registration failed")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.logger.Errorw("login failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ForgotPassword answers identically for known and unknown emails.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		h.logger.Errorw("forgot password failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to process password reset request")
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{
		Message: "If an account exists for this email, a password reset code has been sent",
	})
}

func (h *Handler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	out := h.svc.VerifyResetCode(r.Context(), req.Email, req.Code)
	if err := out.Err(); err != nil {
		h.writeError(w, http.StatusBadRequest, codeMessage(otp.FlowPasswordReset, err))
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{
		Message: "Code verified successfully. You can now reset your password.",
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, ErrResetNotVerified):
			h.writeError(w, http.StatusBadRequest, "Please verify your reset code first")
		case errors.Is(err, ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		default:
			h.logger.Errorw("reset password failed", "err", err)
			h.writeError(w, http.StatusInternalServerError, "Failed to reset password")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Password reset successfully"})
}

// Me requires token.RequireAuth in front of it.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	h.writeUser(w, r, claims.UserID())
}

// GetUser is the admin lookup by path id.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	h.writeUser(w, r, r.PathValue("id"))
}

func (h *Handler) writeUser(w http.ResponseWriter, r *http.Request, id string) {
	u, err := h.svc.Me(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Errorw("load user failed", "user_id", id, "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ChangePassword(r.Context(), claims.UserID(), req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, ErrWrongPassword):
			h.writeError(w, http.StatusBadRequest, "Current password is incorrect")
		case errors.Is(err, ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		default:
			h.logger.Errorw("change password failed", "err", err)
			h.writeError(w, http.StatusInternalServerError, "Failed to change password")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated successfully"})
}

type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
}

// Session runs behind token.OptionalAuth and reports who, if anyone, is
// calling.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusOK, SessionResponse{})
		return
	}
	h.writeJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		UserID:        claims.UserID(),
		Email:         claims.Email,
		Role:          claims.Role,
	})
}

func (h *Handler) CheckSubdomain(w http.ResponseWriter, r *http.Request) {
	subdomain := strings.ToLower(r.PathValue("subdomain"))
	err := validation.Validate(subdomain, validation.Required, validation.Length(3, 30), validation.Match(subdomainPattern))
	if err != nil {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"subdomain": subdomain,
			"available": false,
			"reason":    "Subdomain must be 3-30 letters or digits",
		})
		return
	}
	ok, err := h.svc.SubdomainAvailable(r.Context(), subdomain)
	if err != nil {
		h.logger.Errorw("check subdomain failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to check subdomain")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"subdomain": subdomain, "available": ok})
}

type validatable interface {
	Validate() error
}

// decode reads and validates a JSON body, writing the error response itself
// when it returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v validatable) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	if err := v.Validate(); err != nil {
		fields := map[string]string{}
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			for k, e := range verrs {
				fields[k] = e.Error()
			}
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return false
	}
	return true
}

func isCodeError(err error) bool {
	return errors.Is(err, otp.ErrCodeNotFound) ||
		errors.Is(err, otp.ErrCodeExpired) ||
		errors.Is(err, otp.ErrTooManyAttempts) ||
		errors.Is(err, otp.ErrCodeMismatch)
}

func codeMessage(flow otp.Flow, err error) string {
	noun := "Verification code"
	if flow == otp.FlowPasswordReset {
		noun = "Password reset code"
	}
	var mm *otp.MismatchError
	switch {
	case errors.As(err, &mm):
		return mm.Error()
	case errors.Is(err, otp.ErrCodeNotFound):
		return "No " + strings.ToLower(noun) + " found. Please request a new code."
	case errors.Is(err, otp.ErrCodeExpired):
		return noun + " has expired. Please request a new code."
	case errors.Is(err, otp.ErrTooManyAttempts):
		return "Too many failed attempts. Please request a new code."
	default:
		return "Invalid code"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"error": detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
