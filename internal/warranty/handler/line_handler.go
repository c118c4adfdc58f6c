package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/service"
)

// LineHandler 工单行
type LineHandler struct {
	claims       *service.ClaimController
	reservations *service.ReservationManager
	attachments  *service.AttachmentService
}

func NewLineHandler(claims *service.ClaimController, reservations *service.ReservationManager, attachments *service.AttachmentService) *LineHandler {
	return &LineHandler{claims: claims, reservations: reservations, attachments: attachments}
}

type diagnosisRequest struct {
	DiagnosisText  string `json:"diagnosis_text"`
	CorrectionText string `json:"correction_text"`
}

type rejectRequest struct {
	// Status REJECTED_BY_CUSTOMER（默认）或 REJECTED_BY_TECH
	Status entity.LineStatus `json:"status"`
	Reason string            `json:"reason"`
}

func (r rejectRequest) status() entity.LineStatus {
	if r.Status == "" {
		return entity.LineStatusRejectedByCustomer
	}
	return r.Status
}

type bulkRequest struct {
	LineIDs []string          `json:"line_ids" binding:"required,min=1"`
	Status  entity.LineStatus `json:"status"`
	Reason  string            `json:"reason"`
}

type lineAssignRequest struct {
	Kind         string `json:"kind" binding:"required,oneof=LINE_DIAGNOSTIC LINE_REPAIR"`
	TechnicianID string `json:"technician_id"`
}

// Get GET /lines/:id
func (h *LineHandler) Get(c *gin.Context) {
	line, err := h.claims.GetLine(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, line)
}

// UpdateDiagnosis PUT /lines/:id/diagnosis
func (h *LineHandler) UpdateDiagnosis(c *gin.Context) {
	var req diagnosisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	line, err := h.claims.UpdateDiagnosis(c.Request.Context(), c.Param("id"), req.DiagnosisText, req.CorrectionText, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, line)
}

// Approve POST /lines/:id/approve
func (h *LineHandler) Approve(c *gin.Context) {
	line, err := h.claims.ApproveLine(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, line)
}

// Reject POST /lines/:id/reject
func (h *LineHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	line, err := h.claims.RejectLine(c.Request.Context(), c.Param("id"), req.status(), req.Reason, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, line)
}

// BulkApprove POST /lines/approve
func (h *LineHandler) BulkApprove(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	Success(c, gin.H{"items": h.claims.BulkApprove(c.Request.Context(), req.LineIDs, GetUserID(c))})
}

// BulkReject POST /lines/reject
func (h *LineHandler) BulkReject(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	status := rejectRequest{Status: req.Status}.status()
	Success(c, gin.H{"items": h.claims.BulkReject(c.Request.Context(), req.LineIDs, status, req.Reason, GetUserID(c))})
}

// RetryReservation POST /lines/:id/retry-reservation
func (h *LineHandler) RetryReservation(c *gin.Context) {
	line, err := h.claims.RetryReservation(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, line)
}

// Assign POST /lines/:id/assign
func (h *LineHandler) Assign(c *gin.Context) {
	var req lineAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	line, err := h.claims.AssignLineTechnician(c.Request.Context(), c.Param("id"), req.Kind, req.TechnicianID, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, line)
}

// StartRepair POST /lines/:id/start-repair
func (h *LineHandler) StartRepair(c *gin.Context) {
	line, err := h.claims.StartRepair(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, line)
}

// Complete POST /lines/:id/complete
func (h *LineHandler) Complete(c *gin.Context) {
	line, err := h.claims.CompleteLine(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, line)
}

// Cancel POST /lines/:id/cancel
func (h *LineHandler) Cancel(c *gin.Context) {
	var req reasonRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	line, err := h.claims.CancelLine(c.Request.Context(), c.Param("id"), req.Reason, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, line)
}

// Reservations GET /lines/:id/reservations
func (h *LineHandler) Reservations(c *gin.Context) {
	list, err := h.reservations.ListByLine(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": list})
}

// UploadAttachment POST /lines/:id/attachments
func (h *LineHandler) UploadAttachment(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传附件")
		return
	}
	file, err := header.Open()
	if err != nil {
		BadRequest(c, "无法读取上传文件: "+err.Error())
		return
	}
	defer file.Close()

	att, err := h.attachments.Upload(c.Request.Context(), c.Param("id"), service.UploadRequest{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, att)
}

// ListAttachments GET /lines/:id/attachments
func (h *LineHandler) ListAttachments(c *gin.Context) {
	list, err := h.attachments.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": list})
}
