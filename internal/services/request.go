package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/ratebench-backend/internal/platform/apierr"
	"github.com/yungbote/ratebench-backend/internal/platform/ctxutil"
)

// Roles allowed to manage configurations and runs. Any authenticated tenant member may rate.
const (
	RoleAdmin = "ADMIN"
	RoleOwner = "OWNER"
)

const (
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeValidation            = "VALIDATION_ERROR"
	CodeConfigurationNotFound = "CONFIGURATION_NOT_FOUND"
	CodeConfigurationBusy     = "CONFIGURATION_EXECUTING"
	CodeRunNotFound           = "RUN_NOT_FOUND"
	CodeRunActive             = "RUN_ACTIVE"
	CodeRunNotActive          = "RUN_NOT_ACTIVE"
	CodeRunNotFailed          = "RUN_NOT_FAILED"
	CodeNoInstances           = "NO_PENDING_INSTANCES"
)

var errUnauthenticated = apierr.New(http.StatusUnauthorized, CodeUnauthorized, errors.New("request is not authenticated"))

func caller(ctx context.Context) (*ctxutil.RequestData, error) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil || rd.TenantID == uuid.Nil {
		return nil, errUnauthenticated
	}
	return rd, nil
}

func IsAdmin(rd *ctxutil.RequestData) bool {
	if rd == nil {
		return false
	}
	switch strings.ToUpper(strings.TrimSpace(rd.Role)) {
	case RoleAdmin, RoleOwner:
		return true
	}
	return false
}

func adminCaller(ctx context.Context) (*ctxutil.RequestData, error) {
	rd, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if !IsAdmin(rd) {
		return nil, apierr.New(http.StatusForbidden, CodeForbidden, errors.New("tenant admin role required"))
	}
	return rd, nil
}

func validationError(msg string) error {
	return apierr.New(http.StatusBadRequest, CodeValidation, errors.New(msg))
}

func configurationNotFound() error {
	return apierr.New(http.StatusNotFound, CodeConfigurationNotFound, errors.New("configuration not found"))
}
