// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"spatial-hub-go/internal/consistency"
	"spatial-hub-go/internal/middleware"
	"spatial-hub-go/internal/model"
	"spatial-hub-go/internal/service"
	"spatial-hub-go/pkg/log"
)

// ConsistencyHandler 负责处理存储与元数据一致性相关的管理接口。
type ConsistencyHandler struct {
	consistencyService service.ConsistencyService
}

// NewConsistencyHandler 创建一个新的 ConsistencyHandler 实例。
func NewConsistencyHandler(consistencyService service.ConsistencyService) *ConsistencyHandler {
	return &ConsistencyHandler{consistencyService: consistencyService}
}

// RegisterRoutes 把一致性接口挂到给定的路由组上。
func (h *ConsistencyHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/check", h.RunCheck)
	rg.GET("/report/latest", h.LatestReport)
	rg.POST("/repair/records", h.RepairRecords)
	rg.POST("/repair/objects", h.RepairObjects)
	rg.GET("/logs", h.RecentLogs)
	rg.GET("/files/:id", h.CheckFile)
}

// CheckRequest 定义了检查接口的请求体，请求体可以为空。
type CheckRequest struct {
	IncludeValidFiles bool `json:"includeValidFiles"`
	Limit             int  `json:"limit" binding:"gte=0"`
}

// RepairRecordsRequest 定义了修复孤立元数据记录的请求体。
type RepairRecordsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,max=10000"`
}

// RepairObjectsRequest 定义了修复孤立存储对象的请求体。
type RepairObjectsRequest struct {
	Paths []string `json:"paths" binding:"required,min=1,max=10000"`
}

// ConsistencyLogResponse 是审计日志列表中的一项。
type ConsistencyLogResponse struct {
	ID              uint            `json:"id"`
	CheckType       string          `json:"checkType"`
	Status          string          `json:"status"`
	OrphanedRecords int             `json:"orphanedRecords"`
	OrphanedFiles   int             `json:"orphanedFiles"`
	ValidFiles      int             `json:"validFiles"`
	Details         string          `json:"details"`
	CreatedAt       model.LocalTime `json:"createdAt"`
}

// RunCheck 处理全量/增量一致性检查请求。
func (h *ConsistencyHandler) RunCheck(c *gin.Context) {
	var req CheckRequest
	// 空请求体（包括 chunked 的空体）按默认参数执行
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Warnf("RunCheck: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	report, err := h.consistencyService.RunCheck(c.Request.Context(), consistency.CheckOptions{
		IncludeValidFiles: req.IncludeValidFiles,
		Limit:             req.Limit,
	})
	if err != nil {
		h.fail(c, "RunCheck", err)
		return
	}

	log.Infof("Operator '%s' ran consistency check %s, orphans: %d", middleware.CurrentOperator(c), report.ID, report.OrphanCount())
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": report})
}

// LatestReport 返回最近一次检查的缓存报告。
func (h *ConsistencyHandler) LatestReport(c *gin.Context) {
	report, err := h.consistencyService.LastReport(c.Request.Context())
	if err != nil {
		h.fail(c, "LatestReport", err)
		return
	}
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "暂无检查报告", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": report})
}

// RepairRecords 删除给定的孤立元数据记录。
func (h *ConsistencyHandler) RepairRecords(c *gin.Context) {
	var req RepairRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("RepairRecords: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	result, err := h.consistencyService.RepairRecords(c.Request.Context(), req.IDs)
	if err != nil {
		h.fail(c, "RepairRecords", err)
		return
	}
	log.Infof("Operator '%s' repaired records, success: %d, failed: %d", middleware.CurrentOperator(c), len(result.Success), len(result.Failed))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// RepairObjects 删除给定的孤立存储对象。
func (h *ConsistencyHandler) RepairObjects(c *gin.Context) {
	var req RepairObjectsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("RepairObjects: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	result, err := h.consistencyService.RepairObjects(c.Request.Context(), req.Paths)
	if err != nil {
		h.fail(c, "RepairObjects", err)
		return
	}
	log.Infof("Operator '%s' repaired objects, success: %d, failed: %d", middleware.CurrentOperator(c), len(result.Success), len(result.Failed))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// RecentLogs 返回最近的审计日志，limit 缺省时使用配置的默认条数。
func (h *ConsistencyHandler) RecentLogs(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "Invalid limit", "data": nil})
			return
		}
		limit = n
	}

	entries, err := h.consistencyService.RecentLogs(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "RecentLogs", err)
		return
	}
	resp := make([]ConsistencyLogResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, ConsistencyLogResponse{
			ID:              e.ID,
			CheckType:       e.CheckType,
			Status:          e.Status,
			OrphanedRecords: e.OrphanedRecords,
			OrphanedFiles:   e.OrphanedFiles,
			ValidFiles:      e.ValidFiles,
			Details:         e.Details,
			CreatedAt:       model.LocalTime(e.CreatedAt),
		})
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": resp})
}

// CheckFile 检查单个文件两侧是否都存在。
func (h *ConsistencyHandler) CheckFile(c *gin.Context) {
	id := c.Param("id")
	result, err := h.consistencyService.CheckFile(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "CheckFile", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// fail 把服务层错误映射为 HTTP 状态码。
func (h *ConsistencyHandler) fail(c *gin.Context, op string, err error) {
	var (
		aggErr   *consistency.AggregateError
		listErr  *consistency.ListError
		queryErr *consistency.QueryError
	)
	switch {
	case errors.Is(err, service.ErrOperationInProgress):
		c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": "另一个一致性操作正在进行", "data": nil})
	case errors.As(err, &aggErr), errors.As(err, &listErr), errors.As(err, &queryErr):
		log.Error(op+": backing store unavailable", err)
		c.JSON(http.StatusBadGateway, gin.H{"code": http.StatusBadGateway, "message": err.Error(), "data": nil})
	default:
		log.Error(op+": unexpected failure", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "内部错误", "data": nil})
	}
}
