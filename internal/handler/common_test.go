package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/ticketing-platform/internal/payment"
	"github.com/iliyamo/ticketing-platform/internal/repository"
	"github.com/iliyamo/ticketing-platform/internal/service"
)

func TestRespondError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&service.ValidationError{Msg: "quantity must be at least 1"}, http.StatusBadRequest},
		{&service.AlreadyCheckedInError{At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}, http.StatusConflict},
		{&payment.ProviderError{Provider: "PAGARME", Status: 422, Message: "card declined"}, http.StatusBadGateway},
		{repository.ErrOrderNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: VIP", repository.ErrSoldOut), http.StatusConflict},
		{repository.ErrForbidden, http.StatusForbidden},
		{service.ErrPlanLimit, http.StatusForbidden},
		{service.ErrForgedTicket, http.StatusUnauthorized},
		{service.ErrNotRefundable, http.StatusConflict},
		{service.ErrOrderNotPaid, http.StatusConflict},
		{payment.ErrUnsupportedMethod, http.StatusBadRequest},
		{service.ErrBillingUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	e := echo.New()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		assert.NoError(t, respondError(c, tc.err))
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = respondError(c, &service.AlreadyCheckedInError{At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
	assert.JSONEq(t, `{"error":"ticket already checked in","checked_in_at":"2026-01-02T03:04:05Z"}`, rec.Body.String())
}

func TestGetUserIDAndPathID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := getUserID(c)
	assert.Error(t, err)
	c.Set("user_id", uint64(12))
	id, err := getUserID(c)
	assert.NoError(t, err)
	assert.Equal(t, uint64(12), id)

	c.SetParamNames("id")
	c.SetParamValues("0")
	_, ok := pathID(c, "id")
	assert.False(t, ok)
	c.SetParamValues("31")
	id, ok = pathID(c, "id")
	assert.True(t, ok)
	assert.Equal(t, uint64(31), id)
}
