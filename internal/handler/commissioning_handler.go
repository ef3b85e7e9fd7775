// internal/handler/commissioning_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"servo-commissioning/internal/commissioning"
	"servo-commissioning/internal/model"
	"servo-commissioning/internal/repository"
	"servo-commissioning/internal/service"
	"servo-commissioning/internal/store"
	"servo-commissioning/internal/utils"
)

// CommissioningHandler handles commissioning HTTP requests
type CommissioningHandler struct {
	commissioningService *service.CommissioningService
	logger               *utils.ServiceLogger
}

// NewCommissioningHandler creates a new commissioning handler
func NewCommissioningHandler(commissioningService *service.CommissioningService, logger *zap.Logger) *CommissioningHandler {
	return &CommissioningHandler{
		commissioningService: commissioningService,
		logger:               utils.NewServiceLogger(logger, "commissioning-handler"),
	}
}

// RegisterRoutes registers commissioning routes
func (h *CommissioningHandler) RegisterRoutes(router *gin.RouterGroup) {
	attempts := router.Group("/commissioning")
	{
		attempts.POST("/motors", h.StartMotor)
		attempts.POST("/modules", h.StartModule)
		attempts.GET("/status", h.GetStatus)
		attempts.GET("/catalog", h.GetCatalog)
		attempts.GET("/attempts", h.ListAttempts)
		attempts.GET("/attempts/:attempt_id", h.GetAttempt)
	}
}

// StartMotor starts a servo commissioning attempt
// @Summary Commission a servo
// @Description Configure the single servo on the bus for a robot part slot. Returns 202 with the attempt ID, or the outcome when wait=true.
// @Tags Commissioning
// @Accept json
// @Produce json
// @Param request body service.MotorRequest true "Motor commissioning request"
// @Param wait query bool false "Block until the outcome is known"
// @Success 200 {object} utils.APIResponse{data=service.AttemptResponse} "Attempt completed"
// @Success 202 {object} utils.APIResponse{data=service.AttemptResponse} "Attempt started"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 404 {object} utils.APIResponse "Unknown robot part or device"
// @Failure 409 {object} utils.APIResponse "Another attempt is running"
// @Failure 503 {object} utils.APIResponse "Configuration store unavailable"
// @Router /commissioning/motors [post]
func (h *CommissioningHandler) StartMotor(c *gin.Context) {
	var req service.MotorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.CodedErrorResponse(c, http.StatusBadRequest, utils.CodeValidation, "Invalid request body", err)
		return
	}

	handle, err := h.commissioningService.StartMotor(c.Request.Context(), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.respondAttempt(c, handle)
}

// StartModule starts a firmware flash
// @Summary Flash a module
// @Description Flash the firmware image of a catalog module in DFU mode
// @Tags Commissioning
// @Accept json
// @Produce json
// @Param request body service.ModuleRequest true "Module flash request"
// @Param wait query bool false "Block until the outcome is known"
// @Success 200 {object} utils.APIResponse{data=service.AttemptResponse} "Attempt completed"
// @Success 202 {object} utils.APIResponse{data=service.AttemptResponse} "Attempt started"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 404 {object} utils.APIResponse "Unknown module"
// @Failure 409 {object} utils.APIResponse "Another flash is running"
// @Router /commissioning/modules [post]
func (h *CommissioningHandler) StartModule(c *gin.Context) {
	var req service.ModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.CodedErrorResponse(c, http.StatusBadRequest, utils.CodeValidation, "Invalid request body", err)
		return
	}

	handle, err := h.commissioningService.StartModule(c.Request.Context(), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.respondAttempt(c, handle)
}

// respondAttempt answers 202 right away, or waits for the outcome. A failed
// outcome is still a successful request: the kind is carried in the body.
func (h *CommissioningHandler) respondAttempt(c *gin.Context, handle *service.AttemptHandle) {
	wait, _ := strconv.ParseBool(c.Query("wait"))
	if !wait {
		utils.SuccessResponse(c, http.StatusAccepted, "Attempt started", handle.Response())
		return
	}

	outcome, err := h.commissioningService.Wait(c.Request.Context(), handle)
	if err != nil {
		// client went away; the attempt keeps running
		h.logger.Warn("Stopped waiting for attempt", zap.Error(err), zap.String("attempt_id", handle.ID.String()))
		utils.SuccessResponse(c, http.StatusAccepted, "Attempt still running", handle.Response())
		return
	}

	message := "Attempt completed"
	if !outcome.Succeeded() {
		message = "Attempt failed"
	}
	utils.SuccessResponse(c, http.StatusOK, message, handle.Response())
}

// GetStatus returns runner status
// @Summary Runner status
// @Description Report which runners are busy and the current attempt's progress
// @Tags Commissioning
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.StatusResponse}
// @Router /commissioning/status [get]
func (h *CommissioningHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved", h.commissioningService.Status())
}

// GetCatalog returns the robot parts, motor slots and modules
// @Summary Catalog
// @Description List robot parts with their motor slots, and flashable modules
// @Tags Commissioning
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.CatalogResponse}
// @Router /commissioning/catalog [get]
func (h *CommissioningHandler) GetCatalog(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Catalog retrieved", h.commissioningService.Catalog())
}

// ListAttempts returns attempt history
// @Summary List attempts
// @Description List commissioning attempts, newest first
// @Tags Commissioning
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param robot_part query string false "Filter by robot part"
// @Param device_kind query string false "Filter by device kind"
// @Param outcome query string false "Filter by outcome kind"
// @Success 200 {object} utils.APIResponse{data=service.AttemptListResponse}
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Router /commissioning/attempts [get]
func (h *CommissioningHandler) ListAttempts(c *gin.Context) {
	filter := &repository.AttemptFilter{}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))

	if part := c.Query("robot_part"); part != "" {
		filter.RobotPart = &part
	}
	if kind := c.Query("device_kind"); kind != "" {
		parsed, err := model.ParseDeviceKind(strings.ToUpper(kind))
		if err != nil {
			utils.ValidationErrorResponse(c, map[string]string{"device_kind": err.Error()})
			return
		}
		filter.DeviceKind = &parsed
	}
	if outcome := c.Query("outcome"); outcome != "" {
		kind := model.OutcomeKind(strings.ToUpper(outcome))
		filter.Outcome = &kind
	}

	list, err := h.commissioningService.ListAttempts(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Attempts retrieved", list)
}

// GetAttempt returns one attempt
// @Summary Get attempt
// @Description Get one commissioning attempt by ID
// @Tags Commissioning
// @Produce json
// @Param attempt_id path string true "Attempt ID"
// @Success 200 {object} utils.APIResponse{data=model.AttemptRecord}
// @Failure 400 {object} utils.APIResponse "Invalid attempt ID"
// @Failure 404 {object} utils.APIResponse "Attempt not found"
// @Router /commissioning/attempts/{attempt_id} [get]
func (h *CommissioningHandler) GetAttempt(c *gin.Context) {
	id, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		utils.CodedErrorResponse(c, http.StatusBadRequest, utils.CodeValidation, "Invalid attempt ID", err)
		return
	}

	attempt, err := h.commissioningService.GetAttempt(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Attempt retrieved", attempt)
}

// handleError maps service errors onto the response envelope
func (h *CommissioningHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, commissioning.ErrAttemptInProgress):
		utils.CodedErrorResponse(c, http.StatusConflict, utils.CodeAttemptInProgress, "An attempt is already running", err)
	case errors.Is(err, service.ErrInvalidRequest):
		utils.CodedErrorResponse(c, http.StatusBadRequest, utils.CodeValidation, "Invalid request", err)
	case errors.Is(err, store.ErrUnknownPart):
		utils.CodedErrorResponse(c, http.StatusNotFound, utils.CodeUnknownPart, "Unknown robot part", err)
	case errors.Is(err, store.ErrUnknownDevice), errors.Is(err, store.ErrUnknownModule):
		utils.CodedErrorResponse(c, http.StatusNotFound, utils.CodeUnknownDevice, "Unknown device", err)
	case errors.Is(err, store.ErrInvalidMotorEntry):
		utils.ErrorResponse(c, http.StatusUnprocessableEntity, "Invalid motor configuration", err)
	case errors.Is(err, store.ErrStoreUnavailable):
		utils.CodedErrorResponse(c, http.StatusServiceUnavailable, utils.CodeStoreUnavailable, "Configuration store unavailable", err)
	case errors.Is(err, service.ErrShuttingDown):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Service is shutting down", err)
	case errors.Is(err, repository.ErrAttemptNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "Attempt not found", err)
	default:
		h.logger.Error("Commissioning request failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", err)
	}
}
