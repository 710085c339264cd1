package handlers

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/jazanet/backend/internal/config"
	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/middleware"
	"github.com/jazanet/backend/internal/models"
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
)

type loginAttempt struct {
	count       int
	lockedUntil time.Time
}

type AuthHandler struct {
	cfg *config.Config

	mu       sync.Mutex
	attempts map[string]*loginAttempt
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		cfg:      cfg,
		attempts: make(map[string]*loginAttempt),
	}
}

type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	TwoFACode string `json:"two_fa_code"`
}

type UserInfo struct {
	ID       uint            `json:"id"`
	Username string          `json:"username"`
	FullName string          `json:"full_name"`
	Email    string          `json:"email"`
	Role     models.UserRole `json:"role"`
	TenantID *uint           `json:"tenant_id"`
}

type LoginResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Token       string    `json:"token,omitempty"`
	Requires2FA bool      `json:"requires_2fa,omitempty"`
	User        *UserInfo `json:"user,omitempty"`
}

func userInfoOf(u *models.User) *UserInfo {
	return &UserInfo{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Email:    u.Email,
		Role:     u.Role,
		TenantID: u.TenantID,
	}
}

// locked reports whether the username is currently locked out and, as a
// side effect, forgets entries whose lockout has lapsed.
func (h *AuthHandler) locked(username string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.attempts[username]
	if !ok {
		return false
	}
	if !a.lockedUntil.IsZero() && time.Now().After(a.lockedUntil) {
		delete(h.attempts, username)
		return false
	}
	return !a.lockedUntil.IsZero()
}

func (h *AuthHandler) recordFailure(username string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.attempts[username]
	if !ok {
		a = &loginAttempt{}
		h.attempts[username] = a
	}
	a.count++
	if a.count >= maxLoginAttempts {
		a.lockedUntil = time.Now().Add(lockoutDuration)
	}
}

func (h *AuthHandler) clearFailures(username string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attempts, username)
}

// Login authenticates an operator account. Accounts with TOTP enabled
// go through two steps: the first call without a code answers
// requires_2fa, the second call repeats the credentials with the code.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Username and password are required",
		})
	}

	if h.locked(req.Username) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"success": false,
			"message": "Too many failed attempts, try again later",
		})
	}

	var user models.User
	if err := database.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		h.recordFailure(req.Username)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid username or password",
		})
	}

	if !user.IsActive {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Account is disabled",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		h.recordFailure(req.Username)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid username or password",
		})
	}

	if user.TwoFactorEnabled {
		if req.TwoFACode == "" {
			return c.JSON(LoginResponse{
				Success:     false,
				Requires2FA: true,
				Message:     "Two-factor code required",
			})
		}
		if !totp.Validate(req.TwoFACode, user.TwoFactorSecret) {
			h.recordFailure(req.Username)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid two-factor code",
			})
		}
	}

	token, err := middleware.GenerateToken(&user, h.cfg)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate token",
		})
	}

	h.clearFailures(req.Username)

	now := time.Now()
	database.DB.Model(&user).Update("last_login_at", &now)

	return c.JSON(LoginResponse{
		Success: true,
		Token:   token,
		User:    userInfoOf(&user),
	})
}

// Logout blacklists the presented token for the rest of its lifetime.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token := middleware.CurrentToken(c)
	if token != "" {
		// The configured expiry bounds how long the token could still
		// be valid, so the blacklist entry never outlives the token.
		ttl := time.Duration(h.cfg.JWTExpireHours) * time.Hour
		if err := database.BlacklistToken(token, ttl); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to revoke token",
			})
		}
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out",
	})
}

// Me returns the account behind the presented token.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Not authenticated",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    userInfoOf(user),
	})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Not authenticated",
		})
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if len(req.NewPassword) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "New password must be at least 8 characters",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.OldPassword)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Current password is incorrect",
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to hash password",
		})
	}

	if err := database.DB.Model(user).Update("password", string(hash)).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update password",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Password changed",
	})
}

// Setup2FA creates a fresh TOTP secret for the account and returns the
// otpauth URL for the enrollment QR code. The secret stays inert until
// Enable2FA confirms the operator can produce codes from it.
func (h *AuthHandler) Setup2FA(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Not authenticated",
		})
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "JazaNet",
		AccountName: user.Username,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate secret",
		})
	}

	if err := database.DB.Model(user).Updates(map[string]interface{}{
		"two_factor_secret":  key.Secret(),
		"two_factor_enabled": false,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to store secret",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"secret": key.Secret(),
			"url":    key.URL(),
		},
	})
}

type twoFACodeRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (h *AuthHandler) Enable2FA(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Not authenticated",
		})
	}

	var req twoFACodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if user.TwoFactorSecret == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Run setup first",
		})
	}

	if !totp.Validate(req.Code, user.TwoFactorSecret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid two-factor code",
		})
	}

	if err := database.DB.Model(user).Update("two_factor_enabled", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to enable two-factor",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Two-factor enabled",
	})
}

// Disable2FA turns TOTP off. It wants the password and a current code
// so a hijacked session cannot quietly strip the account.
func (h *AuthHandler) Disable2FA(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Not authenticated",
		})
	}

	var req twoFACodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if !user.TwoFactorEnabled {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Two-factor already disabled",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Password is incorrect",
		})
	}

	if !totp.Validate(req.Code, user.TwoFactorSecret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid two-factor code",
		})
	}

	if err := database.DB.Model(user).Updates(map[string]interface{}{
		"two_factor_enabled": false,
		"two_factor_secret":  "",
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to disable two-factor",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Two-factor disabled",
	})
}
