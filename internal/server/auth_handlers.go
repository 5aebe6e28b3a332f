package server

import (
	"github.com/gin-gonic/gin"
	"marketplace-api/internal/auth"
	"net/http"
)

type signUpRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,emailaddr"`
	Password string `json:"password" binding:"required,min=8,password"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenRequest struct {
	ID    string `json:"id" binding:"required"`
	Token string `json:"token" binding:"required"`
}

type resetPasswordRequest struct {
	ID       string `json:"id" binding:"required"`
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8,password"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,emailaddr"`
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

func sessionBody(s auth.Session) gin.H {
	return gin.H{"profile": newProfile(s.User), "tokens": s.Tokens}
}

// signUp handles HTTP requests on "/auth/sign-up" endpoint
func (h *handler) signUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	if _, err := h.auth.SignUp(c.Request.Context(), req.Name, req.Email, req.Password); err != nil {
		h.respondError(c, err)
		return
	}

	message(c, http.StatusCreated, "Please check your inbox")
}

// verifyEmail handles HTTP requests on "/auth/verify" endpoint
func (h *handler) verifyEmail(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	if err := h.auth.Verify(c.Request.Context(), req.ID, req.Token); err != nil {
		h.respondError(c, err)
		return
	}

	message(c, http.StatusOK, "Thank you for joining us, your email is verified")
}

func (h *handler) resendVerification(c *gin.Context) {
	if err := h.auth.ResendVerification(c.Request.Context(), currentUser(c)); err != nil {
		h.respondError(c, err)
		return
	}

	message(c, http.StatusCreated, "Please check your inbox")
}

// signIn handles HTTP requests on "/auth/sign-in" endpoint
func (h *handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	s, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionBody(s))
}

func (h *handler) refreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	s, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionBody(s))
}

func (h *handler) signOut(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	if err := h.auth.SignOut(c.Request.Context(), currentUser(c).ID, req.RefreshToken); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

func (h *handler) profile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profile": newProfile(currentUser(c))})
}

func (h *handler) forgetPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	if err := h.auth.ForgetPassword(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}

	message(c, http.StatusOK, "Please check your email")
}

// grantValid handles HTTP requests on "/auth/verify-password-reset-token" endpoint
func (h *handler) grantValid(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	if err := h.auth.CheckResetToken(c.Request.Context(), req.ID, req.Token); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (h *handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.ID, req.Token, req.Password); err != nil {
		h.respondError(c, err)
		return
	}

	message(c, http.StatusOK, "Password reset successfully")
}

func (h *handler) updateProfile(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	u, err := h.auth.UpdateName(c.Request.Context(), currentUser(c), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": newProfile(u)})
}

// updateAvatar accepts a single image file under the "avatar" field
func (h *handler) updateAvatar(c *gin.Context) {
	files, err := multipartFiles(c, "avatar")
	if err != nil {
		h.bindError(c, err)
		return
	}
	if len(files) > 1 {
		abort(c, http.StatusUnprocessableEntity, "Multiple files are not allowed")
		return
	}
	if len(files) == 0 || !isImage(files[0]) {
		abort(c, http.StatusUnprocessableEntity, "Invalid image file")
		return
	}

	f, err := files[0].Open()
	if err != nil {
		h.bindError(c, err)
		return
	}
	defer f.Close()

	u, err := h.auth.UpdateAvatar(c.Request.Context(), currentUser(c), f)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": newProfile(u)})
}

func (h *handler) publicProfile(c *gin.Context) {
	p, err := h.auth.PublicProfile(c.Request.Context(), c.Param("profileId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": p})
}
