package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-event-capacity-booking/internal/api"
	"github.com/sanosuguru/go-event-capacity-booking/internal/application"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
)

type EventHandler struct {
	eventService EventServiceInterface
	queryService QueryServiceInterface
}

func NewEventHandler(eventService EventServiceInterface, queryService QueryServiceInterface) *EventHandler {
	return &EventHandler{eventService: eventService, queryService: queryService}
}

type EventRequest struct {
	Title       string `json:"title" validate:"required,max=200" example:"Go 入門講座"`
	Description string `json:"description" example:"初心者向けのハンズオン"`
	Location    string `json:"location" validate:"max=200" example:"東京"`
	StartAt     string `json:"startAt" validate:"required" example:"2026-12-01T10:00:00+09:00"`
	EndAt       string `json:"endAt" validate:"required" example:"2026-12-01T12:00:00+09:00"`
	MaxCapacity int    `json:"maxCapacity" example:"20"`
}

type EventResponse struct {
	ID              string  `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Title           string  `json:"title" example:"Go 入門講座"`
	Description     string  `json:"description"`
	Location        string  `json:"location" example:"東京"`
	StartAt         string  `json:"startAt" example:"2026-12-01T10:00:00+09:00"`
	EndAt           string  `json:"endAt" example:"2026-12-01T12:00:00+09:00"`
	MaxCapacity     int     `json:"maxCapacity" example:"20"`
	CurrentCapacity int     `json:"currentCapacity" example:"5"`
	AvailableSpots  int     `json:"availableSpots" example:"15"`
	Status          string  `json:"status" example:"AVAILABLE"`
	CancelledAt     *string `json:"cancelledAt,omitempty"`
	Version         int     `json:"version"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

func toEventResponse(e *event.Event) *EventResponse {
	resp := &EventResponse{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		Location:        e.Location,
		StartAt:         e.StartAt.Format(time.RFC3339),
		EndAt:           e.EndAt.Format(time.RFC3339),
		MaxCapacity:     e.MaxCapacity,
		CurrentCapacity: e.CurrentCapacity,
		AvailableSpots:  e.AvailableSpots(),
		Status:          string(e.Status),
		Version:         e.Version,
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       e.UpdatedAt.Format(time.RFC3339),
	}
	if e.CancelledAt != nil {
		at := e.CancelledAt.Format(time.RFC3339)
		resp.CancelledAt = &at
	}
	return resp
}

func toEventResponses(events []*event.Event) []*EventResponse {
	responses := make([]*EventResponse, len(events))
	for i, e := range events {
		responses[i] = toEventResponse(e)
	}
	return responses
}

type CapacityAuditResponse struct {
	EventID          string `json:"eventId"`
	MaxCapacity      int    `json:"maxCapacity"`
	Materialized     int    `json:"materialized"`
	Actual           int    `json:"actual"`
	Drift            int    `json:"drift"`
	StatusConsistent bool   `json:"statusConsistent"`
}

func (h *EventHandler) bindDraft(c echo.Context) (event.Draft, error) {
	var req EventRequest
	if err := c.Bind(&req); err != nil {
		return event.Draft{}, echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return event.Draft{}, err
	}
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		return event.Draft{}, echo.NewHTTPError(http.StatusBadRequest, "開始時刻の形式が不正です")
	}
	endAt, err := time.Parse(time.RFC3339, req.EndAt)
	if err != nil {
		return event.Draft{}, echo.NewHTTPError(http.StatusBadRequest, "終了時刻の形式が不正です")
	}
	return event.Draft{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartAt:     startAt,
		EndAt:       endAt,
		MaxCapacity: req.MaxCapacity,
	}, nil
}

// Create godoc
// @Summary イベントを作成
// @Tags events
// @Accept json
// @Produce json
// @Param request body EventRequest true "イベント情報"
// @Success 201 {object} EventResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /events [post]
func (h *EventHandler) Create(c echo.Context) error {
	draft, err := h.bindDraft(c)
	if err != nil {
		return err
	}
	e, err := h.eventService.CreateEvent(c.Request().Context(), draft)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toEventResponse(e))
}

// GetByID godoc
// @Summary イベントを取得
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id} [get]
func (h *EventHandler) GetByID(c echo.Context) error {
	e, err := h.eventService.GetEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// List godoc
// @Summary イベント一覧を取得
// @Tags events
// @Produce json
// @Param from query string false "開始時刻の下限 (RFC3339)"
// @Param to query string false "開始時刻の上限 (RFC3339)"
// @Param location query string false "場所（部分一致）"
// @Param available query bool false "空席ありのみ"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} EventResponse
// @Router /events [get]
func (h *EventHandler) List(c echo.Context) error {
	input := application.ListEventsInput{Location: c.QueryParam("location")}
	input.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	input.Offset, _ = strconv.Atoi(c.QueryParam("offset"))

	var err error
	if input.From, err = parseTimeParam(c, "from"); err != nil {
		return err
	}
	if input.To, err = parseTimeParam(c, "to"); err != nil {
		return err
	}
	if v := c.QueryParam("available"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "available の形式が不正です")
		}
		input.OnlyAvailable = b
	}

	events, err := h.eventService.ListEvents(c.Request().Context(), input)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponses(events))
}

// ListAvailable godoc
// @Summary 予約可能なイベント一覧
// @Tags events
// @Produce json
// @Success 200 {array} EventResponse
// @Router /events/available [get]
func (h *EventHandler) ListAvailable(c echo.Context) error {
	events, err := h.eventService.ListAvailableEvents(c.Request().Context())
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponses(events))
}

// Update godoc
// @Summary イベントを更新
// @Description 定員の変更は確定人数を下回れません
// @Tags events
// @Accept json
// @Produce json
// @Param id path string true "イベントID"
// @Param request body EventRequest true "イベント情報"
// @Success 200 {object} EventResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /events/{id} [put]
func (h *EventHandler) Update(c echo.Context) error {
	draft, err := h.bindDraft(c)
	if err != nil {
		return err
	}
	e, err := h.eventService.UpdateEvent(c.Request().Context(), c.Param("id"), draft)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// Cancel godoc
// @Summary イベントを中止
// @Description 既存の予約は残り、新規の申し込みは受け付けなくなります
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id}/cancel [post]
func (h *EventHandler) Cancel(c echo.Context) error {
	e, err := h.eventService.CancelEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// Audit godoc
// @Summary 定員カウンタの監査
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} CapacityAuditResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id}/audit [get]
func (h *EventHandler) Audit(c echo.Context) error {
	a, err := h.queryService.AuditCapacity(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, CapacityAuditResponse{
		EventID:          a.EventID,
		MaxCapacity:      a.MaxCapacity,
		Materialized:     a.Materialized,
		Actual:           a.Actual,
		Drift:            a.Drift,
		StatusConsistent: a.StatusConsistent,
	})
}

func parseTimeParam(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" の形式が不正です")
	}
	return &t, nil
}
