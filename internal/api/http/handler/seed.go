package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/barley-project/barley/internal/api/http/dto"
	"github.com/barley-project/barley/internal/seed"
	"github.com/gin-gonic/gin"
)

type SeedHandler struct {
	registry *seed.Registry
}

func NewSeedHandler(registry *seed.Registry) *SeedHandler {
	return &SeedHandler{registry: registry}
}

// Boot reserves a new Seed and answers with its iPXE script.
func (h *SeedHandler) Boot(ctx *gin.Context) {
	name, script, err := h.registry.Boot()
	if err != nil {
		respondError(ctx, "Failed to reserve seed", err)
		return
	}

	slog.Info("Offered seed", "seed", name, "client_ip", ctx.ClientIP())
	ctx.String(http.StatusOK, script)
}

func (h *SeedHandler) Init(ctx *gin.Context) {
	name := ctx.Param("name")

	env, err := h.registry.Init(name)
	if err != nil {
		respondError(ctx, "Failed to read seed init", err)
		return
	}

	ctx.String(http.StatusOK, env)
}

func (h *SeedHandler) Register(ctx *gin.Context) {
	name := ctx.Param("name")

	var req dto.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBadRequest(ctx, err)
		return
	}

	ip, err := netip.ParseAddr(req.IP)
	if err != nil {
		respondBadRequest(ctx, fmt.Errorf("invalid ip: %w", err))
		return
	}

	certs, err := h.registry.Register(name, seed.Registration{
		OTP: req.OTP,
		IP:  ip,
		SSH: req.SSH,
		CSR: req.CSR,
	})
	if err != nil {
		respondError(ctx, "Failed to register seed", err)
		return
	}

	ctx.JSON(http.StatusOK, dto.RegisterResponse{
		Admin: certs.Admin,
		Host:  certs.Host,
		CA:    certs.CA,
		Cert:  certs.Cert,
	})
}
