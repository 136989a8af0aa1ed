package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/mail"
	"regexp"
	"strconv"

	"hexmatch/middleware"
	"hexmatch/services"
	"hexmatch/tasks"
	"hexmatch/utils/errors"
)

const maxAvatarBytes = 1 << 20

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{2,15}$`)

type AuthHandler struct {
	userService *services.UserService
	enqueuer    *tasks.Enqueuer
}

func NewAuthHandler(userService *services.UserService, enqueuer *tasks.Enqueuer) *AuthHandler {
	return &AuthHandler{userService: userService, enqueuer: enqueuer}
}

// RegisterClient creates a new user from multipart form data. The avatar, if
// any, is uploaded in the background after the account exists.
func (h *AuthHandler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(2 << 20); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	input := services.RegisterInput{
		FirstName: r.FormValue("first_name"),
		LastName:  r.FormValue("last_name"),
		Email:     r.FormValue("email"),
		Password:  r.FormValue("password"),
		Sex:       r.FormValue("sex"),
	}

	if !namePattern.MatchString(input.FirstName) || !namePattern.MatchString(input.LastName) {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}
	if len(input.Password) < 8 || len(input.Password) > 64 {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}
	if input.Password != r.FormValue("password_control") {
		middleware.WriteError(w, errors.NewAPIError("BAD_REQUEST", "Passwords do not match", http.StatusBadRequest))
		return
	}
	if input.Sex != "M" && input.Sex != "F" {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	var err error
	input.Latitude, err = strconv.ParseFloat(r.FormValue("latitude"), 64)
	if err != nil || input.Latitude < -90 || input.Latitude > 90 {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}
	input.Longitude, err = strconv.ParseFloat(r.FormValue("longitude"), 64)
	if err != nil || input.Longitude < -180 || input.Longitude > 180 {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	var avatarData []byte
	var avatarName string
	if file, header, err := r.FormFile("avatar"); err == nil {
		defer file.Close()
		if header.Size > maxAvatarBytes {
			middleware.WriteError(w, errors.NewAPIError("BAD_REQUEST", "Avatar exceeds 1 MiB", http.StatusBadRequest))
			return
		}
		avatarData, err = io.ReadAll(io.LimitReader(file, maxAvatarBytes))
		if err != nil {
			middleware.WriteError(w, errors.ErrInvalidInput)
			return
		}
		avatarName = header.Filename
	}

	userID, err := h.userService.Register(r.Context(), input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if len(avatarData) > 0 {
		if err := h.enqueuer.UploadAvatar(r.Context(), userID, avatarName, avatarData); err != nil {
			// Account creation already succeeded; the avatar can be retried
			// through a later update.
			middleware.WriteError(w, errors.Wrap(err, "TASK_ERROR", "Avatar upload could not be scheduled", errors.ErrInternal.Status))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"result": true, "userID": userID})
}

func (h *AuthHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	token, err := h.userService.Login(r.Context(), input.Email, input.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}
