package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/barley-project/barley/internal/api/http/dto"
	"github.com/barley-project/barley/internal/cert"
	"github.com/barley-project/barley/internal/seed"
	"github.com/barley-project/barley/internal/store"
	"github.com/gin-gonic/gin"
)

const (
	TagIO        = "IoError"
	TagData      = "DataError"
	TagOTP       = "OtpError"
	TagCert      = "CertError"
	TagExhausted = "AllocationExhausted"
)

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, seed.ErrOTP):
		return http.StatusForbidden, TagOTP
	case errors.Is(err, cert.ErrCert):
		return http.StatusInternalServerError, TagCert
	case errors.Is(err, store.ErrExhausted):
		return http.StatusInternalServerError, TagExhausted
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, TagData
	case errors.Is(err, store.ErrData):
		return http.StatusInternalServerError, TagData
	default:
		return http.StatusInternalServerError, TagIO
	}
}

func respondError(ctx *gin.Context, msg string, err error) {
	status, tag := classify(err)
	slog.Error(msg, "error", err, "tag", tag, "path", ctx.Request.URL.Path, "client_ip", ctx.ClientIP())
	ctx.JSON(status, dto.ErrorResponse{Error: tag, Message: err.Error()})
}

func respondBadRequest(ctx *gin.Context, err error) {
	slog.Warn("Invalid request", "error", err, "path", ctx.Request.URL.Path, "client_ip", ctx.ClientIP())
	ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: TagData, Message: err.Error()})
}
