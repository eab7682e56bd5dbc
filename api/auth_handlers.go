package api

import (
	"errors"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"taskboard-api/domain"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token,omitempty"`
}

func registerHandler(users Users, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		dec := sonic.ConfigStd.NewDecoder(c.Request().Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "malformed request body"})
		}
		if err := domain.ValidateRegistration(req.Name, req.Email, req.Password); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			logger.Errorf("password hash failed: %v", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		u := domain.User{
			ID:           uuid.NewString(),
			Name:         req.Name,
			Email:        domain.NormalizeEmail(req.Email),
			PasswordHash: string(hash),
		}
		created, err := users.CreateUser(c.Request().Context(), u)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateEmail) {
				return c.JSON(http.StatusConflict, map[string]string{"message": "email already registered"})
			}
			logger.Errorf("create user failed: %v", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusCreated, userResponse{ID: created.ID, Name: created.Name, Email: created.Email})
	}
}

func loginHandler(users Users, auth *Auth, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		dec := sonic.ConfigStd.NewDecoder(c.Request().Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "malformed request body"})
		}
		u, err := users.GetUserByEmail(c.Request().Context(), domain.NormalizeEmail(req.Email))
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
			}
			logger.Errorf("user lookup failed: %v", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
		}
		token, err := auth.IssueToken(u)
		if err != nil {
			logger.Errorf("token issuance failed: %v", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Token: token})
	}
}
