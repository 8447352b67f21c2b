package handler

import (
	"net/http"

	"github.com/curvebond/curvegate/internal/service"
	"github.com/gin-gonic/gin"
)

type TapHandler struct {
	ctrl *service.Controller
}

func NewTapHandler(ctrl *service.Controller) *TapHandler {
	return &TapHandler{ctrl: ctrl}
}

type TapRequest struct {
	Token string `json:"token" binding:"required"`
	Rate  string `json:"rate" binding:"required"`
	Floor string `json:"floor"`
}

func (h *TapHandler) Add(c *gin.Context) {
	var req TapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := parseAddress(req.Token)
	if err != nil {
		c.Error(err)
		return
	}
	rate, err := parseAmount(req.Rate)
	if err != nil {
		c.Error(err)
		return
	}
	floor, err := parseOptionalAmount(req.Floor)
	if err != nil {
		c.Error(err)
		return
	}

	entry, err := h.ctrl.AddTappedToken(token, rate, floor)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *TapHandler) Update(c *gin.Context) {
	var req TapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := parseAddress(c.Param("token"))
	if err != nil {
		c.Error(err)
		return
	}
	rate, err := parseAmount(req.Rate)
	if err != nil {
		c.Error(err)
		return
	}
	floor, err := parseOptionalAmount(req.Floor)
	if err != nil {
		c.Error(err)
		return
	}

	entry, err := h.ctrl.UpdateTappedToken(token, rate, floor)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *TapHandler) Reset(c *gin.Context) {
	token, err := parseAddress(c.Param("token"))
	if err != nil {
		c.Error(err)
		return
	}
	entry, err := h.ctrl.ResetTappedToken(token)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *TapHandler) Remove(c *gin.Context) {
	token, err := parseAddress(c.Param("token"))
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.ctrl.RemoveTappedToken(token); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": token.Hex()})
}

func (h *TapHandler) Get(c *gin.Context) {
	token, err := parseAddress(c.Param("token"))
	if err != nil {
		c.Error(err)
		return
	}
	entry, err := h.ctrl.GetTappedToken(token)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *TapHandler) MaximumWithdrawal(c *gin.Context) {
	token, err := parseAddress(c.Param("token"))
	if err != nil {
		c.Error(err)
		return
	}
	maxOut, err := h.ctrl.GetMaximumWithdrawal(token)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "maximum_withdrawal": maxOut.String()})
}

func (h *TapHandler) Withdraw(c *gin.Context) {
	token, err := parseAddress(c.Param("token"))
	if err != nil {
		c.Error(err)
		return
	}
	amount, err := h.ctrl.Withdraw(token)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "withdrawn": amount.String()})
}
