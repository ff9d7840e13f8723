package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-dbcontext/internal/api/middleware"
	"github.com/sanosuguru/go-dbcontext/internal/application"
	"github.com/sanosuguru/go-dbcontext/internal/domain/audit"
	"github.com/sanosuguru/go-dbcontext/internal/domain/user"
	"github.com/sanosuguru/go-dbcontext/pkg/sqlutil"
)

type UserHandler struct {
	userService UserServiceInterface
}

func NewUserHandler(userService UserServiceInterface) *UserHandler {
	return &UserHandler{userService: userService}
}

type CreateUserRequest struct {
	FirstName string `json:"first_name" validate:"required,max=256" example:"Taro"`
	LastName  string `json:"last_name" validate:"required,max=256" example:"Yamada"`
	Email     string `json:"email" validate:"required,email" example:"taro@example.com"`
}

// RenameUserRequest は空のフィールドを変更しない
type RenameUserRequest struct {
	FirstName string `json:"first_name" validate:"max=256" example:"Hanako"`
	LastName  string `json:"last_name" validate:"max=256" example:"Suzuki"`
}

type UserResponse struct {
	ID        int64  `json:"id" example:"1"`
	FirstName string `json:"first_name" example:"Taro"`
	LastName  string `json:"last_name" example:"Yamada"`
	Email     string `json:"email" example:"taro@example.com"`
	CreatedAt string `json:"created_at" example:"2025-12-06T10:00:00Z"`
	UpdatedAt string `json:"updated_at" example:"2025-12-06T10:00:00Z"`
}

type AuditResponse struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail"`
	CreatedAt string `json:"created_at"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.Format(time.RFC3339),
	}
}

func toAuditResponse(e *audit.Entry) AuditResponse {
	return AuditResponse{
		ID: e.ID, Kind: string(e.Kind), Detail: e.Detail,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

// Create godoc
// @Summary ユーザーを作成
// @Tags users
// @Accept json
// @Produce json
// @Param request body CreateUserRequest true "ユーザー情報"
// @Success 201 {object} UserResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /users [post]
func (h *UserHandler) Create(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := h.userService.CreateUser(c.Request().Context(), middleware.DBContext(c), application.CreateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toUserResponse(u))
}

// GetByID godoc
// @Summary ユーザーを取得
// @Tags users
// @Produce json
// @Param id path int true "ユーザーID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetByID(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, err := h.userService.GetUser(c.Request().Context(), middleware.DBContext(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// List godoc
// @Summary ユーザー一覧を取得
// @Description last_name は先頭・末尾の * をワイルドカードとして扱い、大文字小文字を区別しない
// @Tags users
// @Produce json
// @Param last_name query string false "姓"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {object} sqlutil.Page[UserResponse]
// @Router /users [get]
func (h *UserHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	list, err := h.userService.ListUsers(c.Request().Context(), middleware.DBContext(c), application.ListUsersInput{
		LastName: c.QueryParam("last_name"),
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return err
	}

	items := make([]UserResponse, len(list.Users))
	for i, u := range list.Users {
		items[i] = toUserResponse(u)
	}
	return c.JSON(http.StatusOK, sqlutil.Page[UserResponse]{Items: items, Paging: list.Paging})
}

// Rename godoc
// @Summary ユーザーの氏名を変更
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "ユーザーID"
// @Param request body RenameUserRequest true "氏名"
// @Success 200 {object} UserResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /users/{id} [patch]
func (h *UserHandler) Rename(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req RenameUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := h.userService.RenameUser(c.Request().Context(), middleware.DBContext(c), id, application.RenameUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// Delete godoc
// @Summary ユーザーを削除
// @Tags users
// @Param id path int true "ユーザーID"
// @Success 204
// @Failure 404 {object} api.ErrorResponse
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.userService.DeleteUser(c.Request().Context(), middleware.DBContext(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Audits godoc
// @Summary ユーザーの監査ログを取得
// @Tags users
// @Produce json
// @Param id path int true "ユーザーID"
// @Success 200 {array} AuditResponse
// @Router /users/{id}/audits [get]
func (h *UserHandler) Audits(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	entries, err := h.userService.GetUserAudits(c.Request().Context(), middleware.DBContext(c), id)
	if err != nil {
		return err
	}
	resp := make([]AuditResponse, len(entries))
	for i, e := range entries {
		resp[i] = toAuditResponse(e)
	}
	return c.JSON(http.StatusOK, resp)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "ユーザーIDが不正です")
	}
	return id, nil
}
