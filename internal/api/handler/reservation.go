package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-event-capacity-booking/internal/api"
	"github.com/sanosuguru/go-event-capacity-booking/internal/application"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
)

type ReservationHandler struct {
	service      ReservationServiceInterface
	queryService QueryServiceInterface
}

func NewReservationHandler(s ReservationServiceInterface, q QueryServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: s, queryService: q}
}

type CreateReservationRequest struct {
	EventID        string `json:"eventId" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	VisitorName    string `json:"visitorName" validate:"required,max=100" example:"山田太郎"`
	VisitorEmail   string `json:"visitorEmail" validate:"required,email" example:"taro@example.com"`
	VisitorPhone   string `json:"visitorPhone" validate:"max=30" example:"090-1234-5678"`
	NumberOfPeople int    `json:"numberOfPeople" example:"2"`
	Notes          string `json:"notes" validate:"max=1000"`
}

// UpdateReservationRequest は省略した項目を変更しない
type UpdateReservationRequest struct {
	Notes          *string `json:"notes"`
	VisitorPhone   *string `json:"visitorPhone"`
	NumberOfPeople *int    `json:"numberOfPeople"`
}

type ReservationResponse struct {
	ID             string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EventID        string    `json:"eventId"`
	VisitorName    string    `json:"visitorName"`
	VisitorEmail   string    `json:"visitorEmail"`
	VisitorPhone   string    `json:"visitorPhone,omitempty"`
	NumberOfPeople int       `json:"numberOfPeople" example:"2"`
	Status         string    `json:"status" example:"CONFIRMED"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toReservationResponse(r *reservation.Reservation) ReservationResponse {
	return ReservationResponse{
		ID: r.ID, EventID: r.EventID,
		VisitorName: r.Visitor.Name, VisitorEmail: r.Visitor.Email, VisitorPhone: r.Visitor.Phone,
		NumberOfPeople: r.NumberOfPeople, Status: string(r.Status), Notes: r.Notes,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type AvailabilityResponse struct {
	EventID        string `json:"eventId"`
	Possible       bool   `json:"possible"`
	AvailableSpots int    `json:"availableSpots"`
}

// Create godoc
// @Summary 予約を申し込む
// @Description auto_confirm では即時に席を確保します
// @Tags reservations
// @Accept json
// @Produce json
// @Param request body CreateReservationRequest true "予約情報"
// @Success 201 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "空席不足・重複予約"
// @Router /reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	var req CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	r, err := h.service.Submit(c.Request().Context(), application.SubmitReservationInput{
		EventID: req.EventID,
		Visitor: reservation.Visitor{
			Name:  req.VisitorName,
			Email: req.VisitorEmail,
			Phone: req.VisitorPhone,
		},
		NumberOfPeople: req.NumberOfPeople,
		Notes:          req.Notes,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toReservationResponse(r))
}

// GetByID godoc
// @Summary 予約を取得
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [get]
func (h *ReservationHandler) GetByID(c echo.Context) error {
	r, err := h.service.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// List godoc
// @Summary 予約一覧
// @Tags reservations
// @Produce json
// @Param eventId query string false "イベントID"
// @Param visitorEmail query string false "メールアドレス"
// @Param status query string false "状態"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ReservationResponse
// @Router /reservations [get]
func (h *ReservationHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	list, err := h.queryService.ListReservations(c.Request().Context(), application.ListReservationsInput{
		EventID:      c.QueryParam("eventId"),
		VisitorEmail: c.QueryParam("visitorEmail"),
		Status:       c.QueryParam("status"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	resp := make([]ReservationResponse, len(list))
	for i, r := range list {
		resp[i] = toReservationResponse(r)
	}
	return c.JSON(http.StatusOK, resp)
}

// Stats godoc
// @Summary 状態別の予約件数
// @Tags reservations
// @Produce json
// @Param eventId query string false "イベントID（省略時は全体）"
// @Success 200 {object} map[string]int
// @Router /reservations/stats [get]
func (h *ReservationHandler) Stats(c echo.Context) error {
	counts, err := h.queryService.CountByStatus(c.Request().Context(), c.QueryParam("eventId"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	resp := make(map[string]int, len(counts))
	for st, n := range counts {
		resp[string(st)] = n
	}
	return c.JSON(http.StatusOK, resp)
}

// Check godoc
// @Summary 空席の確認
// @Description 参考値です。申し込み時に改めて判定されます
// @Tags reservations
// @Produce json
// @Param eventId query string true "イベントID"
// @Param numberOfPeople query int true "人数"
// @Success 200 {object} AvailabilityResponse
// @Router /reservations/check [get]
func (h *ReservationHandler) Check(c echo.Context) error {
	eventID := c.QueryParam("eventId")
	if eventID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "eventId は必須です")
	}
	n, err := strconv.Atoi(c.QueryParam("numberOfPeople"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "numberOfPeople の形式が不正です")
	}
	a, err := h.queryService.CheckAvailability(c.Request().Context(), eventID, n)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{
		EventID:        a.EventID,
		Possible:       a.Possible,
		AvailableSpots: a.AvailableSpots,
	})
}

// Update godoc
// @Summary 予約を変更
// @Description 人数を変更すると元の予約は取り消され、新しい予約が返ります
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body UpdateReservationRequest true "変更内容"
// @Success 200 {object} ReservationResponse
// @Router /reservations/{id} [patch]
func (h *ReservationHandler) Update(c echo.Context) error {
	var req UpdateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	r, err := h.service.Update(c.Request().Context(), application.UpdateReservationInput{
		ID:             c.Param("id"),
		Notes:          req.Notes,
		VisitorPhone:   req.VisitorPhone,
		NumberOfPeople: req.NumberOfPeople,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Confirm godoc
// @Summary 予約を確定
// @Tags reservations
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /reservations/{id}/confirm [post]
func (h *ReservationHandler) Confirm(c echo.Context) error {
	r, err := h.service.Confirm(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Tags reservations
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c echo.Context) error {
	r, err := h.service.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Complete godoc
// @Summary 予約を完了にする
// @Tags reservations
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /reservations/{id}/complete [post]
func (h *ReservationHandler) Complete(c echo.Context) error {
	r, err := h.service.MarkCompleted(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}
