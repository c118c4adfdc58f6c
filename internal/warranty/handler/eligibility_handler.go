package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/service"
)

type EligibilityHandler struct {
	svc *service.EligibilityService
}

func NewEligibilityHandler(svc *service.EligibilityService) *EligibilityHandler {
	return &EligibilityHandler{svc: svc}
}

// Evaluate GET /eligibility?vin=&type_component_id=&odometer=&quantity=
func (h *EligibilityHandler) Evaluate(c *gin.Context) {
	var q service.EligibilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.svc.Evaluate(c.Request.Context(), q)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, result)
}
