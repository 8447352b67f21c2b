package handler

import (
	"net/http"
	"strconv"

	"github.com/curvebond/curvegate/internal/model"
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/curvebond/curvegate/internal/service"
	"github.com/gin-gonic/gin"
)

type MarketHandler struct {
	ctrl *service.Controller
}

func NewMarketHandler(ctrl *service.Controller) *MarketHandler {
	return &MarketHandler{ctrl: ctrl}
}

type OrderRequest struct {
	Account    string `json:"account" binding:"required"`
	Collateral string `json:"collateral" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
}

type OrderResponse struct {
	BatchID int64             `json:"batch_id"`
	Amount  string            `json:"amount"`
	Fee     string            `json:"fee"`
	Cleared []*model.BatchRef `json:"cleared,omitempty"`
}

type ClaimRequest struct {
	Account    string `json:"account" binding:"required"`
	Collateral string `json:"collateral" binding:"required"`
	BatchID    int64  `json:"batch_id"`
}

type ClaimResponse struct {
	Amount  string            `json:"amount"`
	Fee     string            `json:"fee"`
	Cleared []*model.BatchRef `json:"cleared,omitempty"`
}

func batchRefs(batches []*model.Batch) []*model.BatchRef {
	if len(batches) == 0 {
		return nil
	}
	refs := make([]*model.BatchRef, 0, len(batches))
	for _, batch := range batches {
		refs = append(refs, &model.BatchRef{Collateral: batch.Collateral, ID: batch.ID})
	}
	return refs
}

func (h *MarketHandler) OpenBuyOrder(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	buyer, err := parseAddress(req.Account)
	if err != nil {
		c.Error(err)
		return
	}
	collateral, err := parseAddress(req.Collateral)
	if err != nil {
		c.Error(err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.Error(err)
		return
	}

	res, err := h.ctrl.OpenBuyOrder(buyer, collateral, amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, OrderResponse{
		BatchID: res.BatchID,
		Amount:  res.Amount.String(),
		Fee:     res.Fee.String(),
		Cleared: batchRefs(res.Cleared),
	})
}

func (h *MarketHandler) OpenSellOrder(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	seller, err := parseAddress(req.Account)
	if err != nil {
		c.Error(err)
		return
	}
	collateral, err := parseAddress(req.Collateral)
	if err != nil {
		c.Error(err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.Error(err)
		return
	}

	res, err := h.ctrl.OpenSellOrder(seller, collateral, amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, OrderResponse{
		BatchID: res.BatchID,
		Amount:  res.Amount.String(),
		Fee:     res.Fee.String(),
		Cleared: batchRefs(res.Cleared),
	})
}

func (h *MarketHandler) ClearBatches(c *gin.Context) {
	cleared, err := h.ctrl.ClearBatches()
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": batchRefs(cleared)})
}

func (h *MarketHandler) GetBatch(c *gin.Context) {
	collateral, err := parseAddress(c.Param("collateral"))
	if err != nil {
		c.Error(err)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(apperrors.Newf(apperrors.KindInvalidRequest, "invalid batch id %q", c.Param("id")))
		return
	}

	batch, err := h.ctrl.GetBatch(collateral, id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *MarketHandler) ClaimBuy(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	buyer, err := parseAddress(req.Account)
	if err != nil {
		c.Error(err)
		return
	}
	collateral, err := parseAddress(req.Collateral)
	if err != nil {
		c.Error(err)
		return
	}

	res, err := h.ctrl.ClaimBuy(buyer, collateral, req.BatchID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ClaimResponse{
		Amount:  res.Amount.String(),
		Fee:     res.Fee.String(),
		Cleared: batchRefs(res.Cleared),
	})
}

func (h *MarketHandler) ClaimSell(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	seller, err := parseAddress(req.Account)
	if err != nil {
		c.Error(err)
		return
	}
	collateral, err := parseAddress(req.Collateral)
	if err != nil {
		c.Error(err)
		return
	}

	res, err := h.ctrl.ClaimSell(seller, collateral, req.BatchID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ClaimResponse{
		Amount:  res.Amount.String(),
		Fee:     res.Fee.String(),
		Cleared: batchRefs(res.Cleared),
	})
}

type FeesRequest struct {
	BuyFeePct  string `json:"buy_fee_pct" binding:"required"`
	SellFeePct string `json:"sell_fee_pct" binding:"required"`
}

func (h *MarketHandler) UpdateFees(c *gin.Context) {
	var req FeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	buyFee, err := parseAmount(req.BuyFeePct)
	if err != nil {
		c.Error(err)
		return
	}
	sellFee, err := parseAmount(req.SellFeePct)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.ctrl.UpdateFees(buyFee, sellFee); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"buy_fee_pct": buyFee.String(), "sell_fee_pct": sellFee.String()})
}
