package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/service"
)

// TransferHandler 仓间调拨
type TransferHandler struct {
	svc *service.TransferOrchestrator
}

func NewTransferHandler(svc *service.TransferOrchestrator) *TransferHandler {
	return &TransferHandler{svc: svc}
}

// Create POST /transfers
func (h *TransferHandler) Create(c *gin.Context) {
	var req service.CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	t, err := h.svc.Create(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, t)
}

// List GET /transfers?status=&warehouse_id=
func (h *TransferHandler) List(c *gin.Context) {
	page, size := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), repository.TransferFilter{
		Status:      entity.TransferStatus(c.Query("status")),
		WarehouseID: c.Query("warehouse_id"),
		Page:        page,
		Size:        size,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ListData(items, total, page, size))
}

// Get GET /transfers/:id
func (h *TransferHandler) Get(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// Approve POST /transfers/:id/approve
func (h *TransferHandler) Approve(c *gin.Context) {
	t, err := h.svc.Approve(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// Reject POST /transfers/:id/reject
func (h *TransferHandler) Reject(c *gin.Context) {
	var req reasonRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	t, err := h.svc.Reject(c.Request.Context(), c.Param("id"), req.Reason, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// Cancel POST /transfers/:id/cancel
func (h *TransferHandler) Cancel(c *gin.Context) {
	var req reasonRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	t, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), req.Reason, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// Ship POST /transfers/:id/ship
func (h *TransferHandler) Ship(c *gin.Context) {
	t, err := h.svc.Ship(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// Complete POST /transfers/:id/complete
func (h *TransferHandler) Complete(c *gin.Context) {
	t, err := h.svc.Complete(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}
