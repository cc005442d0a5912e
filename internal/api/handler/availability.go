package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/booking"
)

type AvailabilityHandler struct {
	service AvailabilityServiceInterface
}

func NewAvailabilityHandler(s AvailabilityServiceInterface) *AvailabilityHandler {
	return &AvailabilityHandler{service: s}
}

type BusySlotsResponse struct {
	RoomID    string             `json:"room_id" example:"room-3"`
	Date      string             `json:"date" example:"2025-06-14"`
	BusySlots []booking.BusySlot `json:"busy_slots"`
}

// BusySlots godoc
// @Summary 埋まっている時間帯を取得
// @Description 指定ルーム・日付の予約済み時間帯を返します
// @Tags availability
// @Produce json
// @Param room_id query string true "ルームID"
// @Param date query string true "日付（YYYY-MM-DD）"
// @Success 200 {object} BusySlotsResponse
// @Failure 400 {object} map[string]string
// @Router /availability [get]
func (h *AvailabilityHandler) BusySlots(c echo.Context) error {
	roomID := c.QueryParam("room_id")
	if roomID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ルームIDが必要です")
	}
	date, err := time.Parse(dateLayout, c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "日付はYYYY-MM-DD形式で指定してください")
	}

	slots, err := h.service.BusySlots(c.Request().Context(), roomID, date)
	if err != nil {
		return err
	}
	if slots == nil {
		slots = []booking.BusySlot{}
	}
	return c.JSON(http.StatusOK, BusySlotsResponse{
		RoomID:    roomID,
		Date:      date.Format(dateLayout),
		BusySlots: slots,
	})
}
