package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/service"
)

// ReservationHandler 配件预留
type ReservationHandler struct {
	svc *service.ReservationManager
}

func NewReservationHandler(svc *service.ReservationManager) *ReservationHandler {
	return &ReservationHandler{svc: svc}
}

type cancelReservationRequest struct {
	Reason  string `json:"reason"`
	Damaged bool   `json:"damaged"`
}

type returnReservationRequest struct {
	Reason    string `json:"reason"`
	Defective bool   `json:"defective"`
}

// Get GET /reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, res)
}

// PickUp POST /reservations/:id/pickup
func (h *ReservationHandler) PickUp(c *gin.Context) {
	res, err := h.svc.PickUp(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, res)
}

// Install POST /reservations/:id/install
func (h *ReservationHandler) Install(c *gin.Context) {
	var req service.InstallRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	res, err := h.svc.Install(c.Request.Context(), c.Param("id"), req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, res)
}

// Cancel POST /reservations/:id/cancel
func (h *ReservationHandler) Cancel(c *gin.Context) {
	var req cancelReservationRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	res, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), req.Reason, req.Damaged, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, res)
}

// Return POST /reservations/:id/return
func (h *ReservationHandler) Return(c *gin.Context) {
	var req returnReservationRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	res, err := h.svc.Return(c.Request.Context(), c.Param("id"), req.Reason, req.Defective, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, res)
}

// ConfirmOldPartReturn POST /reservations/:id/old-part-return
func (h *ReservationHandler) ConfirmOldPartReturn(c *gin.Context) {
	res, err := h.svc.ConfirmOldPartReturn(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, res)
}
