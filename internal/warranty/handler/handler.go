package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/service"
)

// Handlers 处理器集合
type Handlers struct {
	Record      *RecordHandler
	Line        *LineHandler
	Reservation *ReservationHandler
	Transfer    *TransferHandler
	Warehouse   *WarehouseHandler
	Eligibility *EligibilityHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Record:      NewRecordHandler(svc.Claim),
		Line:        NewLineHandler(svc.Claim, svc.Reservation, svc.Attachment),
		Reservation: NewReservationHandler(svc.Reservation),
		Transfer:    NewTransferHandler(svc.Transfer),
		Warehouse:   NewWarehouseHandler(svc.Ledger, svc.Snapshot, svc.Balancer),
		Eligibility: NewEligibilityHandler(svc.Eligibility),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorData 失败时的 data 字段
type ErrorData struct {
	Kind apperr.Kind    `json:"kind"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "success", Data: data})
}

// Error 错误响应，code/100 为 HTTP 状态码
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = http.StatusInternalServerError
	}
	c.JSON(statusCode, Response{Code: code, Message: message})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    apperr.Code(apperr.KindValidation),
		Message: message,
		Data:    ErrorData{Kind: apperr.KindValidation},
	})
}

// BindOptionalJSON 请求体可省略；提供了但无法解析或校验失败时返回 400
func BindOptionalJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, "参数错误: "+err.Error())
		return false
	}
	return true
}

// Fail 按业务错误分类输出
func Fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	message := err.Error()
	var e *apperr.Error
	if !errors.As(err, &e) {
		message = "服务器内部错误: " + message
	}
	c.Error(err)
	c.JSON(apperr.HTTPStatus(kind), Response{
		Code:    apperr.Code(kind),
		Message: message,
		Data:    ErrorData{Kind: kind, Meta: apperr.MetaOf(err)},
	})
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}

// ListData 分页列表
func ListData(items interface{}, total int64, page, pageSize int) gin.H {
	return gin.H{"items": items, "total": total, "page": page, "page_size": pageSize}
}
