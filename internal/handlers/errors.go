package handlers

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"minesweeper-rewards/internal/services"
)

var statusByError = []struct {
	status int
	errs   []error
}{
	{http.StatusServiceUnavailable, []error{services.ErrPaused}},
	{http.StatusBadGateway, []error{services.ErrFeeTransferFailed, services.ErrSignerUnavailable}},
	{http.StatusNotFound, []error{services.ErrGameNotFound, services.ErrNotFound}},
	{http.StatusForbidden, []error{
		services.ErrNotOwner, services.ErrNotMinter, services.ErrNotPlayer,
		services.ErrInvalidSignature, services.ErrPrimaryOwnerProtected,
	}},
	{http.StatusConflict, []error{
		services.ErrAlreadyExists, services.ErrLastOwner, services.ErrLastSigner, services.ErrLastMinter,
		services.ErrAlreadyCompleted, services.ErrNotCompleted, services.ErrNotWon, services.ErrAlreadyClaimed,
		services.ErrSignatureExpired, services.ErrNonceAlreadyUsed, services.ErrReentrantCall, services.ErrNotPaused,
	}},
	{http.StatusBadRequest, []error{
		services.ErrInvalidRecipient, services.ErrInvalidAmount, services.ErrInvalidDimensions,
		services.ErrInvalidMineCount, services.ErrEmptyBatch, services.ErrInvalidLimit, services.ErrZeroAddress,
		services.ErrUnknownRole, services.ErrUnknownContract, services.ErrUnknownPolicy, services.ErrTooShort,
		services.ErrTooLong, services.ErrInsufficientBalance, services.ErrInsufficientAllowance,
	}},
}

func statusFor(err error) int {
	var qe *services.QuotaError
	if errors.As(err, &qe) {
		return http.StatusTooManyRequests
	}
	for _, group := range statusByError {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.status
			}
		}
	}
	return http.StatusInternalServerError
}

// respondError writes the {"error","details"} body used across the API. Quota
// rejections carry their figures and, when the quota resets, retry_after.
func respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	body := gin.H{
		"error":   message,
		"details": err.Error(),
	}

	var qe *services.QuotaError
	if errors.As(err, &qe) {
		body["limit"] = qe.Limit
		body["used"] = qe.Used
		body["requested"] = qe.Requested
		if qe.Retryable() {
			retry := math.Ceil(time.Until(qe.ResetAt).Seconds())
			if retry < 0 {
				retry = 0
			}
			body["retry_after"] = retry
			c.Header("Retry-After", formatSeconds(retry))
		}
	}

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logrus.WithError(err).WithField("request_id", c.GetString("request_id")).Error(message)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
