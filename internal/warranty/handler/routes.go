package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-warranty/internal/middleware"
)

// PermissionAdmin 解除账本冻结等运维操作
const PermissionAdmin = "warranty:admin"

// RegisterRoutes 注册保修接口，rg 需已挂载 JWT 认证
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	records := rg.Group("/processing-records")
	{
		records.POST("", h.Record.Create)
		records.GET("/:id", h.Record.Get)
		records.POST("/:id/assign", h.Record.Assign)
		records.POST("/:id/submit", h.Record.Submit)
		records.POST("/:id/ready", h.Record.Ready)
		records.POST("/:id/complete", h.Record.Complete)
		records.POST("/:id/cancel", h.Record.Cancel)
		records.GET("/:id/cases", h.Record.ListCases)
		records.POST("/:id/cases", h.Record.AddCase)
	}

	cases := rg.Group("/cases")
	{
		cases.POST("/:id/assign", h.Record.AssignCase)
		cases.POST("/:id/complete-diagnosis", h.Record.CompleteDiagnosis)
		cases.GET("/:id/lines", h.Record.ListLines)
		cases.POST("/:id/lines", h.Record.AddLine)
	}

	lines := rg.Group("/lines")
	{
		lines.POST("/approve", h.Line.BulkApprove)
		lines.POST("/reject", h.Line.BulkReject)
		lines.GET("/:id", h.Line.Get)
		lines.PUT("/:id/diagnosis", h.Line.UpdateDiagnosis)
		lines.POST("/:id/approve", h.Line.Approve)
		lines.POST("/:id/reject", h.Line.Reject)
		lines.POST("/:id/retry-reservation", h.Line.RetryReservation)
		lines.POST("/:id/assign", h.Line.Assign)
		lines.POST("/:id/start-repair", h.Line.StartRepair)
		lines.POST("/:id/complete", h.Line.Complete)
		lines.POST("/:id/cancel", h.Line.Cancel)
		lines.GET("/:id/reservations", h.Line.Reservations)
		lines.GET("/:id/attachments", h.Line.ListAttachments)
		lines.POST("/:id/attachments", h.Line.UploadAttachment)
	}

	reservations := rg.Group("/reservations")
	{
		reservations.GET("/:id", h.Reservation.Get)
		reservations.POST("/:id/pickup", h.Reservation.PickUp)
		reservations.POST("/:id/install", h.Reservation.Install)
		reservations.POST("/:id/cancel", h.Reservation.Cancel)
		reservations.POST("/:id/return", h.Reservation.Return)
		reservations.POST("/:id/old-part-return", h.Reservation.ConfirmOldPartReturn)
	}

	transfers := rg.Group("/transfers")
	{
		transfers.GET("", h.Transfer.List)
		transfers.POST("", h.Transfer.Create)
		transfers.GET("/:id", h.Transfer.Get)
		transfers.POST("/:id/approve", h.Transfer.Approve)
		transfers.POST("/:id/reject", h.Transfer.Reject)
		transfers.POST("/:id/cancel", h.Transfer.Cancel)
		transfers.POST("/:id/ship", h.Transfer.Ship)
		transfers.POST("/:id/complete", h.Transfer.Complete)
	}

	warehouses := rg.Group("/warehouses")
	{
		warehouses.POST("/:id/receive", h.Warehouse.Receive)
		warehouses.POST("/:id/receive/import", h.Warehouse.ImportReceipts)
		warehouses.GET("/:id/stock", h.Warehouse.Stock)
		warehouses.GET("/:id/stock/export", h.Warehouse.ExportStock)
		warehouses.GET("/:id/transactions", h.Warehouse.Transactions)
		warehouses.GET("/:id/workloads", h.Warehouse.Workloads)
		warehouses.POST("/:id/resume", middleware.RequirePermission(PermissionAdmin), h.Warehouse.Resume)
	}

	rg.GET("/eligibility", h.Eligibility.Evaluate)
}
