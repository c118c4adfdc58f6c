package handler

import (
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/service"
)

// WarehouseHandler 仓库库存与技师负载
type WarehouseHandler struct {
	ledger   *service.StockLedger
	snapshot *service.SnapshotService
	balancer *service.TaskAssignmentBalancer
}

func NewWarehouseHandler(ledger *service.StockLedger, snapshot *service.SnapshotService, balancer *service.TaskAssignmentBalancer) *WarehouseHandler {
	return &WarehouseHandler{ledger: ledger, snapshot: snapshot, balancer: balancer}
}

// Receive POST /warehouses/:id/receive
func (h *WarehouseHandler) Receive(c *gin.Context) {
	var req service.IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.WarehouseID = c.Param("id")
	result, err := h.ledger.Intake(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, result)
}

// ImportReceipts POST /warehouses/:id/receive/import，上传 GBK 编码的送货单 CSV
func (h *WarehouseHandler) ImportReceipts(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传送货单文件")
		return
	}
	file, err := fh.Open()
	if err != nil {
		BadRequest(c, "读取文件失败")
		return
	}
	defer file.Close()

	result, err := h.ledger.ImportDeliveryNote(c.Request.Context(), c.Param("id"), file, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, result)
}

// Stock GET /warehouses/:id/stock
func (h *WarehouseHandler) Stock(c *gin.Context) {
	snap, err := h.snapshot.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, snap)
}

// ExportStock GET /warehouses/:id/stock/export
func (h *WarehouseHandler) ExportStock(c *gin.Context) {
	f, filename, err := h.snapshot.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		Error(c, 50000, "write excel: "+err.Error())
	}
}

// Transactions GET /warehouses/:id/transactions
func (h *WarehouseHandler) Transactions(c *gin.Context) {
	page, size := GetPagination(c)
	items, total, err := h.ledger.Transactions(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ListData(items, total, page, size))
}

// Resume POST /warehouses/:id/resume，人工核对后解除账本冻结
func (h *WarehouseHandler) Resume(c *gin.Context) {
	wh, err := h.ledger.ResumeWarehouse(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, wh)
}

// Workloads GET /warehouses/:id/workloads
func (h *WarehouseHandler) Workloads(c *gin.Context) {
	loads, err := h.balancer.Workloads(c.Request.Context(), c.Param("id"), c.QueryArray("technician_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": loads})
}
