package handler

import (
	"errors"
	"fmt"
	"net/http"

	"charity-auction/internal/biddingerrors"
	"charity-auction/services/bidding/helpers"
	"charity-auction/utils"

	"github.com/gin-gonic/gin"
)

// EnableAutoBidHandler handles POST /autobid/enable
func (h *BiddingHandler) EnableAutoBidHandler(c *gin.Context) {
	var req helpers.EnableAutoBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "EnableAutoBidHandler", err)
		return
	}

	autoBid, err := h.service.EnableAutoBid(c.Request.Context(), req.AuctionID, req.UserID, req.MaxAmount)
	if errors.Is(err, biddingerrors.ErrCascadeIncomplete) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONPartial(c, status, helpers.NewAutoBidResponse(autoBid), err, message)
		utils.Warn("EnableAutoBidHandler: auto-bid saved, cascade incomplete", map[string]any{
			"auction_id": req.AuctionID,
			"user_id":    req.UserID,
			"error":      err.Error(),
		})
		return
	}
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("EnableAutoBidHandler: failed to enable auto-bid", map[string]any{
			"auction_id": req.AuctionID,
			"user_id":    req.UserID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAutoBidResponse(autoBid), "auto-bid enabled successfully")
	helpers.LogSuccess("EnableAutoBidHandler", "auto-bid enabled successfully", map[string]any{
		"auction_id": autoBid.AuctionID,
		"user_id":    autoBid.UserID,
		"max_amount": autoBid.MaxAmount.String(),
		"is_active":  autoBid.IsActive,
	})
}

// DisableAutoBidHandler handles POST /autobid/disable
func (h *BiddingHandler) DisableAutoBidHandler(c *gin.Context) {
	var req helpers.DisableAutoBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "DisableAutoBidHandler", err)
		return
	}

	if err := h.service.DisableAutoBid(c.Request.Context(), req.AuctionID, req.UserID); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("DisableAutoBidHandler: failed to disable auto-bid", map[string]any{
			"auction_id": req.AuctionID,
			"user_id":    req.UserID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "auto-bid disabled successfully")
	helpers.LogSuccess("DisableAutoBidHandler", "auto-bid disabled successfully", map[string]any{
		"auction_id": req.AuctionID,
		"user_id":    req.UserID,
	})
}

// GetAutoBidStatusHandler handles GET /autobid/status/:auction_id?user_id=
func (h *BiddingHandler) GetAutoBidStatusHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	userID := c.Query("user_id")

	autoBid, err := h.service.GetAutoBidStatus(c.Request.Context(), auctionID, userID)
	if errors.Is(err, biddingerrors.ErrAutoBidNotFound) {
		utils.JSONResponse(c, http.StatusOK, nil, "no auto-bid configured")
		return
	}
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetAutoBidStatusHandler: failed to get auto-bid", map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAutoBidResponse(autoBid), "auto-bid retrieved successfully")
}
