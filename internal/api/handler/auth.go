package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/ayo6706/upi-wallet/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.RequestOTP(r.Context(), req.Email); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Handle    string `json:"handle"`
		OTP       string `json:"otp"`
		FaceImage string `json:"face_image"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var image []byte
	if req.FaceImage != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.FaceImage)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-face-image", "face_image must be base64 encoded")
			return
		}
		image = decoded
	}

	account, err := h.svc.Register(r.Context(), service.RegisterRequest{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Handle:    req.Handle,
		OTP:       req.OTP,
		FaceImage: image,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
