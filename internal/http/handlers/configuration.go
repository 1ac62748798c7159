package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ratebench-backend/internal/http/response"
	"github.com/yungbote/ratebench-backend/internal/services"
)

type ConfigurationHandler struct {
	configs services.ConfigurationService
}

func NewConfigurationHandler(configs services.ConfigurationService) *ConfigurationHandler {
	return &ConfigurationHandler{configs: configs}
}

// GET /api/configurations
func (h *ConfigurationHandler) ListConfigurations(c *gin.Context) {
	list, err := h.configs.List(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "list_configurations_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"configurations": list})
}

// POST /api/configurations
func (h *ConfigurationHandler) CreateConfiguration(c *gin.Context) {
	var in services.ConfigurationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	cfg, err := h.configs.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondServiceError(c, "create_configuration_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"configuration": cfg})
}

// GET /api/configurations/:id
func (h *ConfigurationHandler) GetConfiguration(c *gin.Context) {
	id, ok := pathID(c, "invalid_configuration_id")
	if !ok {
		return
	}
	cfg, err := h.configs.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "get_configuration_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"configuration": cfg})
}

// PUT /api/configurations/:id
func (h *ConfigurationHandler) UpdateConfiguration(c *gin.Context) {
	id, ok := pathID(c, "invalid_configuration_id")
	if !ok {
		return
	}
	var in services.ConfigurationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	cfg, err := h.configs.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondServiceError(c, "update_configuration_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"configuration": cfg})
}

// DELETE /api/configurations/:id
func (h *ConfigurationHandler) DeleteConfiguration(c *gin.Context) {
	id, ok := pathID(c, "invalid_configuration_id")
	if !ok {
		return
	}
	if err := h.configs.Delete(c.Request.Context(), id); err != nil {
		response.RespondServiceError(c, "delete_configuration_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

type uploadInstancesRequest struct {
	Instances []map[string]interface{} `json:"instances" binding:"required"`
}

// POST /api/configurations/:id/instances
func (h *ConfigurationHandler) UploadInstances(c *gin.Context) {
	id, ok := pathID(c, "invalid_configuration_id")
	if !ok {
		return
	}
	var req uploadInstancesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	res, err := h.configs.UploadInstances(c.Request.Context(), id, req.Instances)
	if err != nil {
		response.RespondServiceError(c, "upload_instances_failed", err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/configurations/:id/instances
func (h *ConfigurationHandler) ListInstances(c *gin.Context) {
	id, ok := pathID(c, "invalid_configuration_id")
	if !ok {
		return
	}
	list, err := h.configs.ListInstances(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "list_instances_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"instances": list})
}
