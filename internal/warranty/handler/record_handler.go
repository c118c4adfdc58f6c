package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/service"
)

// RecordHandler 接待单与保修案例
type RecordHandler struct {
	svc *service.ClaimController
}

func NewRecordHandler(svc *service.ClaimController) *RecordHandler {
	return &RecordHandler{svc: svc}
}

type assignRequest struct {
	TechnicianID string `json:"technician_id"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type addCaseRequest struct {
	Content string `json:"content" binding:"required"`
}

// Create POST /processing-records
func (h *RecordHandler) Create(c *gin.Context) {
	var req service.OpenRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	rec, err := h.svc.OpenRecord(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, rec)
}

// Get GET /processing-records/:id
func (h *RecordHandler) Get(c *gin.Context) {
	rec, err := h.svc.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rec)
}

// Assign POST /processing-records/:id/assign，technician_id 为空时自动派工
func (h *RecordHandler) Assign(c *gin.Context) {
	var req assignRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	rec, err := h.svc.AssignMainTechnician(c.Request.Context(), c.Param("id"), req.TechnicianID, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rec)
}

// Submit POST /processing-records/:id/submit
func (h *RecordHandler) Submit(c *gin.Context) {
	rec, err := h.svc.SubmitForApproval(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rec)
}

// Ready POST /processing-records/:id/ready
func (h *RecordHandler) Ready(c *gin.Context) {
	rec, err := h.svc.MarkReadyForPickup(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rec)
}

// Complete POST /processing-records/:id/complete
func (h *RecordHandler) Complete(c *gin.Context) {
	rec, err := h.svc.CompleteRecord(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rec)
}

// Cancel POST /processing-records/:id/cancel
func (h *RecordHandler) Cancel(c *gin.Context) {
	var req reasonRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	rec, err := h.svc.CancelRecord(c.Request.Context(), c.Param("id"), req.Reason, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rec)
}

// AddCase POST /processing-records/:id/cases
func (h *RecordHandler) AddCase(c *gin.Context) {
	var req addCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	gc, err := h.svc.AddCase(c.Request.Context(), c.Param("id"), req.Content, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, gc)
}

// ListCases GET /processing-records/:id/cases
func (h *RecordHandler) ListCases(c *gin.Context) {
	cases, err := h.svc.ListCases(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": cases})
}

// AssignCase POST /cases/:id/assign
func (h *RecordHandler) AssignCase(c *gin.Context) {
	var req assignRequest
	if !BindOptionalJSON(c, &req) {
		return
	}
	gc, err := h.svc.AssignLeadTechnician(c.Request.Context(), c.Param("id"), req.TechnicianID, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gc)
}

// CompleteDiagnosis POST /cases/:id/complete-diagnosis
func (h *RecordHandler) CompleteDiagnosis(c *gin.Context) {
	gc, err := h.svc.CompleteDiagnosis(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gc)
}

// AddLine POST /cases/:id/lines，部分在保时返回拆分后的两行
func (h *RecordHandler) AddLine(c *gin.Context) {
	var req service.AddLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	lines, err := h.svc.AddLine(c.Request.Context(), c.Param("id"), req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, gin.H{"items": lines})
}

// ListLines GET /cases/:id/lines
func (h *RecordHandler) ListLines(c *gin.Context) {
	lines, err := h.svc.ListLines(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": lines})
}
