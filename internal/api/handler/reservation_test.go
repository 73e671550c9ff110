package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-capacity-booking/internal/application"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
)

func sampleReservation(status reservation.Status) *reservation.Reservation {
	now := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	return &reservation.Reservation{
		ID:             "res-123",
		EventID:        "event-123",
		Visitor:        reservation.Visitor{Name: "山田太郎", Email: "taro@example.com", Phone: "090-1234-5678"},
		NumberOfPeople: 2,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

const validReservationBody = `{
	"eventId": "event-123",
	"visitorName": "山田太郎",
	"visitorEmail": "Taro@Example.com",
	"numberOfPeople": 2
}`

func TestReservationHandler_Create(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に申し込める", func(t *testing.T) {
		svc := new(MockReservationService)
		svc.On("Submit", mock.Anything, mock.MatchedBy(func(in application.SubmitReservationInput) bool {
			return in.EventID == "event-123" && in.Visitor.Email == "Taro@Example.com" && in.NumberOfPeople == 2
		})).Return(sampleReservation(reservation.StatusConfirmed), nil)
		handler := NewReservationHandler(svc, new(MockQueryService))

		rec := httptest.NewRecorder()
		c := e.NewContext(newJSONRequest(http.MethodPost, "/reservations", validReservationBody), rec)

		require.NoError(t, handler.Create(c))
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "CONFIRMED", resp.Status)
		assert.Equal(t, "taro@example.com", resp.VisitorEmail)
		svc.AssertExpectations(t)
	})

	t.Run("メールアドレスの形式が不正", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService), new(MockQueryService))
		body := `{"eventId": "event-123", "visitorName": "x", "visitorEmail": "not-an-email", "numberOfPeople": 1}`
		c := e.NewContext(newJSONRequest(http.MethodPost, "/reservations", body), httptest.NewRecorder())

		he := requireHTTPError(t, handler.Create(c), http.StatusBadRequest)
		assert.Contains(t, he.Message, "visitorEmail")
	})

	rejections := []struct {
		name string
		err  error
		code int
	}{
		{"空席不足は409", event.ErrInsufficientCapacity, http.StatusConflict},
		{"重複予約は409", reservation.ErrDuplicateVisitor, http.StatusConflict},
		{"受付終了は409", event.ErrEventClosed, http.StatusConflict},
		{"処理中は409", application.ErrSubmissionInProgress, http.StatusConflict},
		{"人数不正は400", reservation.ErrInvalidNumberOfPeople, http.StatusBadRequest},
		{"イベントなしは404", event.ErrEventNotFound, http.StatusNotFound},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockReservationService)
			svc.On("Submit", mock.Anything, mock.Anything).Return(nil, tt.err)
			handler := NewReservationHandler(svc, new(MockQueryService))
			c := e.NewContext(newJSONRequest(http.MethodPost, "/reservations", validReservationBody), httptest.NewRecorder())

			requireHTTPError(t, handler.Create(c), tt.code)
		})
	}

	t.Run("内部エラーの詳細は返さない", func(t *testing.T) {
		svc := new(MockReservationService)
		svc.On("Submit", mock.Anything, mock.Anything).Return(nil, errors.New("pq: connection refused"))
		handler := NewReservationHandler(svc, new(MockQueryService))
		c := e.NewContext(newJSONRequest(http.MethodPost, "/reservations", validReservationBody), httptest.NewRecorder())

		he := requireHTTPError(t, handler.Create(c), http.StatusInternalServerError)
		assert.NotContains(t, he.Message, "pq")
	})
}

func TestReservationHandler_Transitions(t *testing.T) {
	e := NewTestEcho()

	cases := []struct {
		name   string
		method string
		call   func(h *ReservationHandler) echo.HandlerFunc
	}{
		{"Confirm", "Confirm", func(h *ReservationHandler) echo.HandlerFunc { return h.Confirm }},
		{"Cancel", "Cancel", func(h *ReservationHandler) echo.HandlerFunc { return h.Cancel }},
		{"Complete", "MarkCompleted", func(h *ReservationHandler) echo.HandlerFunc { return h.Complete }},
	}
	for _, tc := range cases {
		t.Run(tc.name+"成功", func(t *testing.T) {
			svc := new(MockReservationService)
			svc.On(tc.method, mock.Anything, "res-123").Return(sampleReservation(reservation.StatusCancelled), nil)
			handler := NewReservationHandler(svc, new(MockQueryService))

			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/reservations/res-123", nil), rec)
			c.SetParamNames("id")
			c.SetParamValues("res-123")

			require.NoError(t, tc.call(handler)(c))
			assert.Equal(t, http.StatusOK, rec.Code)
		})

		t.Run(tc.name+"の不正な遷移は409", func(t *testing.T) {
			svc := new(MockReservationService)
			svc.On(tc.method, mock.Anything, "res-123").Return(nil, reservation.ErrInvalidTransition)
			handler := NewReservationHandler(svc, new(MockQueryService))

			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/reservations/res-123", nil), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues("res-123")

			requireHTTPError(t, tc.call(handler)(c), http.StatusConflict)
		})
	}
}

func TestReservationHandler_Update(t *testing.T) {
	e := NewTestEcho()
	svc := new(MockReservationService)
	svc.On("Update", mock.Anything, mock.MatchedBy(func(in application.UpdateReservationInput) bool {
		return in.ID == "res-123" && in.NumberOfPeople != nil && *in.NumberOfPeople == 4 &&
			in.Notes == nil && in.VisitorPhone == nil
	})).Return(sampleReservation(reservation.StatusConfirmed), nil)
	handler := NewReservationHandler(svc, new(MockQueryService))

	rec := httptest.NewRecorder()
	c := e.NewContext(newJSONRequest(http.MethodPatch, "/reservations/res-123", `{"numberOfPeople": 4}`), rec)
	c.SetParamNames("id")
	c.SetParamValues("res-123")

	require.NoError(t, handler.Update(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestReservationHandler_Queries(t *testing.T) {
	e := NewTestEcho()

	t.Run("一覧", func(t *testing.T) {
		query := new(MockQueryService)
		query.On("ListReservations", mock.Anything, application.ListReservationsInput{
			EventID: "event-123", VisitorEmail: "taro@example.com", Status: "confirmed",
		}).Return([]*reservation.Reservation{sampleReservation(reservation.StatusConfirmed)}, nil)
		handler := NewReservationHandler(new(MockReservationService), query)

		rec := httptest.NewRecorder()
		target := "/reservations?eventId=event-123&visitorEmail=taro@example.com&status=confirmed"
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), rec)

		require.NoError(t, handler.List(c))
		var resp []ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp, 1)
	})

	t.Run("不正な状態は400", func(t *testing.T) {
		query := new(MockQueryService)
		query.On("ListReservations", mock.Anything, mock.Anything).Return(nil, reservation.ErrInvalidStatus)
		handler := NewReservationHandler(new(MockReservationService), query)
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/reservations?status=DONE", nil), httptest.NewRecorder())

		requireHTTPError(t, handler.List(c), http.StatusBadRequest)
	})

	t.Run("状態別件数", func(t *testing.T) {
		query := new(MockQueryService)
		query.On("CountByStatus", mock.Anything, "event-123").Return(map[reservation.Status]int{
			reservation.StatusPending:   0,
			reservation.StatusConfirmed: 3,
			reservation.StatusCancelled: 1,
			reservation.StatusCompleted: 0,
		}, nil)
		handler := NewReservationHandler(new(MockReservationService), query)

		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/reservations/stats?eventId=event-123", nil), rec)

		require.NoError(t, handler.Stats(c))
		assert.JSONEq(t, `{"PENDING":0,"CONFIRMED":3,"CANCELLED":1,"COMPLETED":0}`, rec.Body.String())
	})

	t.Run("空席確認", func(t *testing.T) {
		query := new(MockQueryService)
		query.On("CheckAvailability", mock.Anything, "event-123", 3).
			Return(&application.Availability{EventID: "event-123", Possible: true, AvailableSpots: 5}, nil)
		handler := NewReservationHandler(new(MockReservationService), query)

		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/reservations/check?eventId=event-123&numberOfPeople=3", nil), rec)

		require.NoError(t, handler.Check(c))
		assert.JSONEq(t, `{"eventId":"event-123","possible":true,"availableSpots":5}`, rec.Body.String())
	})

	t.Run("空席確認の人数が数値でない", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService), new(MockQueryService))
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/reservations/check?eventId=event-123&numberOfPeople=many", nil), httptest.NewRecorder())

		requireHTTPError(t, handler.Check(c), http.StatusBadRequest)
	})

	t.Run("予約が見つからない場合404", func(t *testing.T) {
		svc := new(MockReservationService)
		svc.On("GetReservation", mock.Anything, "missing").Return(nil, reservation.ErrReservationNotFound)
		handler := NewReservationHandler(svc, new(MockQueryService))
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/reservations/missing", nil), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues("missing")

		requireHTTPError(t, handler.GetByID(c), http.StatusNotFound)
	})
}
