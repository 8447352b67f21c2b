package handler

import (
	"net/http"

	"github.com/curvebond/curvegate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CollateralHandler struct {
	ctrl *service.Controller
}

func NewCollateralHandler(ctrl *service.Controller) *CollateralHandler {
	return &CollateralHandler{ctrl: ctrl}
}

type CollateralRequest struct {
	Token           string `json:"token" binding:"required"`
	VirtualSupply   string `json:"virtual_supply"`
	VirtualBalance  string `json:"virtual_balance"`
	ReserveRatioPPM uint32 `json:"reserve_ratio_ppm" binding:"required"`
	Slippage        string `json:"slippage"`
}

func parseOptionalAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return parseAmount(s)
}

func (h *CollateralHandler) Add(c *gin.Context) {
	var req CollateralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := parseAddress(req.Token)
	if err != nil {
		c.Error(err)
		return
	}
	virtualSupply, err := parseOptionalAmount(req.VirtualSupply)
	if err != nil {
		c.Error(err)
		return
	}
	virtualBalance, err := parseOptionalAmount(req.VirtualBalance)
	if err != nil {
		c.Error(err)
		return
	}
	slippage, err := parseOptionalAmount(req.Slippage)
	if err != nil {
		c.Error(err)
		return
	}

	col, err := h.ctrl.AddCollateral(token, virtualSupply, virtualBalance, req.ReserveRatioPPM, slippage)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, col)
}

func (h *CollateralHandler) Update(c *gin.Context) {
	var req CollateralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := parseAddress(c.Param("token"))
	if err != nil {
		c.Error(err)
		return
	}
	virtualSupply, err := parseOptionalAmount(req.VirtualSupply)
	if err != nil {
		c.Error(err)
		return
	}
	virtualBalance, err := parseOptionalAmount(req.VirtualBalance)
	if err != nil {
		c.Error(err)
		return
	}
	slippage, err := parseOptionalAmount(req.Slippage)
	if err != nil {
		c.Error(err)
		return
	}

	col, err := h.ctrl.UpdateCollateral(token, virtualSupply, virtualBalance, req.ReserveRatioPPM, slippage)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, col)
}

func (h *CollateralHandler) Remove(c *gin.Context) {
	token, err := parseAddress(c.Param("token"))
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.ctrl.RemoveCollateral(token); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": token.Hex()})
}

func (h *CollateralHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"collaterals": h.ctrl.ListCollaterals()})
}
