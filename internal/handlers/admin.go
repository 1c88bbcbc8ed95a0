package handlers

import (
	"errors"
	"io"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"minesweeper-rewards/internal/models"
	"minesweeper-rewards/internal/services"
)

// AdminHandler exposes the privileged surface. Authorization is enforced by
// the engine against the caller's wallet, not by the route.
type AdminHandler struct {
	engine *services.Engine
}

func NewAdminHandler(engine *services.Engine) *AdminHandler {
	return &AdminHandler{engine: engine}
}

func (h *AdminHandler) audit(c *gin.Context, action string, fields logrus.Fields) {
	logrus.WithFields(fields).WithFields(logrus.Fields{
		"action":     action,
		"caller":     caller(c).Hex(),
		"request_id": c.GetString("request_id"),
	}).Info("Admin action")
}

func (h *AdminHandler) Pause(c *gin.Context) {
	if err := h.engine.Pause(caller(c)); err != nil {
		respondError(c, "Failed to pause", err)
		return
	}
	h.audit(c, "pause", nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "paused": true})
}

func (h *AdminHandler) Unpause(c *gin.Context) {
	if err := h.engine.Unpause(caller(c)); err != nil {
		respondError(c, "Failed to unpause", err)
		return
	}
	h.audit(c, "unpause", nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "paused": false})
}

func (h *AdminHandler) ListRole(c *gin.Context) {
	contract, role, err := parseContractRole(c)
	if err != nil {
		respondError(c, "Invalid role", err)
		return
	}

	members, err := h.engine.Members(contract, role)
	if err != nil {
		respondError(c, "Failed to list role", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contract": contract,
		"role":     role,
		"members":  members,
	})
}

func (h *AdminHandler) GrantRole(c *gin.Context) {
	contract, role, err := parseContractRole(c)
	if err != nil {
		respondError(c, "Invalid role", err)
		return
	}

	var req models.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	who, err := parseAddress(req.Address)
	if err != nil {
		badRequest(c, "Invalid address", err)
		return
	}

	if err := h.engine.GrantRole(contract, caller(c), role, who); err != nil {
		respondError(c, "Failed to grant role", err)
		return
	}
	h.audit(c, "grant_role", logrus.Fields{"contract": contract, "role": role, "address": who.Hex()})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) RevokeRole(c *gin.Context) {
	contract, role, err := parseContractRole(c)
	if err != nil {
		respondError(c, "Invalid role", err)
		return
	}
	who, err := parseAddress(c.Param("address"))
	if err != nil {
		badRequest(c, "Invalid address", err)
		return
	}

	if err := h.engine.RevokeRole(contract, caller(c), role, who); err != nil {
		respondError(c, "Failed to revoke role", err)
		return
	}
	h.audit(c, "revoke_role", logrus.Fields{"contract": contract, "role": role, "address": who.Hex()})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) UpdateDailyRewardLimit(c *gin.Context) {
	var req models.LimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	limit, err := parseAmount(req.Limit)
	if err != nil {
		badRequest(c, "Invalid limit", err)
		return
	}

	if err := h.engine.UpdateDailyRewardLimit(caller(c), limit); err != nil {
		respondError(c, "Failed to update daily reward limit", err)
		return
	}
	h.audit(c, "update_daily_reward_limit", logrus.Fields{"limit": limit.String()})
	c.JSON(http.StatusOK, gin.H{"success": true, "quota": h.engine.QuotaStatus()})
}

func (h *AdminHandler) UpdateServerSigner(c *gin.Context) {
	h.setAddress(c, "update_server_signer", h.engine.UpdateServerSigner)
}

func (h *AdminHandler) SetPrivilegedCaller(c *gin.Context) {
	h.setAddress(c, "set_privileged_caller", h.engine.SetPrivilegedCaller)
}

func (h *AdminHandler) setAddress(c *gin.Context, action string, apply func(caller, addr common.Address) error) {
	var req models.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		badRequest(c, "Invalid address", err)
		return
	}

	if err := apply(caller(c), addr); err != nil {
		respondError(c, "Failed to "+action, err)
		return
	}
	h.audit(c, action, logrus.Fields{"address": addr.Hex()})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) SetSignerPolicy(c *gin.Context) {
	var req models.PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	policy, err := services.ParseSignerPolicy(req.Policy)
	if err != nil {
		respondError(c, "Invalid policy", err)
		return
	}

	if err := h.engine.SetSignerPolicy(caller(c), policy); err != nil {
		respondError(c, "Failed to set signer policy", err)
		return
	}
	h.audit(c, "set_signer_policy", logrus.Fields{"policy": policy})
	c.JSON(http.StatusOK, gin.H{"success": true, "policy": policy})
}

func (h *AdminHandler) WithdrawFees(c *gin.Context) {
	var req models.WithdrawFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		badRequest(c, "Invalid recipient", err)
		return
	}
	amount, ok := optionalAmount(c, req.Amount)
	if !ok {
		return
	}

	if err := h.engine.WithdrawFees(caller(c), to, amount); err != nil {
		respondError(c, "Failed to withdraw fees", err)
		return
	}
	h.audit(c, "withdraw_fees", logrus.Fields{"to": to.Hex()})
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": h.engine.Balance(h.engine.GameAddress())})
}

func (h *AdminHandler) BurnFees(c *gin.Context) {
	var req models.BurnFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request", err)
		return
	}
	amount, ok := optionalAmount(c, req.Amount)
	if !ok {
		return
	}

	if err := h.engine.BurnFees(caller(c), amount); err != nil {
		respondError(c, "Failed to burn fees", err)
		return
	}
	h.audit(c, "burn_fees", nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": h.engine.Balance(h.engine.GameAddress())})
}

func optionalAmount(c *gin.Context, s string) (*big.Int, bool) {
	if s == "" {
		return nil, true
	}
	amount, err := parseAmount(s)
	if err != nil {
		badRequest(c, "Invalid amount", err)
		return nil, false
	}
	return amount, true
}

func (h *AdminHandler) Mint(c *gin.Context) {
	h.transferLike(c, "mint", h.engine.Mint)
}

func (h *AdminHandler) IssueFeeTokens(c *gin.Context) {
	h.transferLike(c, "issue_fee_tokens", h.engine.IssueFeeTokens)
}

func (h *AdminHandler) transferLike(c *gin.Context, action string, apply func(caller, to common.Address, amount *big.Int) error) {
	var req models.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		badRequest(c, "Invalid recipient", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, "Invalid amount", err)
		return
	}

	if err := apply(caller(c), to, amount); err != nil {
		respondError(c, "Failed to "+action, err)
		return
	}
	h.audit(c, action, logrus.Fields{"to": to.Hex(), "amount": amount.String()})
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": h.engine.Balance(to)})
}

func (h *AdminHandler) BurnFrom(c *gin.Context) {
	var req models.AccountAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	entry, err := toBurnEntry(req)
	if err != nil {
		badRequest(c, "Invalid burn entry", err)
		return
	}

	if err := h.engine.BurnFrom(caller(c), entry.Account, entry.Amount); err != nil {
		respondError(c, "Failed to burn", err)
		return
	}
	h.audit(c, "burn_from", logrus.Fields{"account": entry.Account.Hex(), "amount": entry.Amount.String()})
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": h.engine.Balance(entry.Account)})
}

func (h *AdminHandler) BatchBurn(c *gin.Context) {
	var req models.BatchBurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	entries := make([]services.BurnEntry, 0, len(req.Entries))
	for _, r := range req.Entries {
		entry, err := toBurnEntry(r)
		if err != nil {
			badRequest(c, "Invalid burn entry", err)
			return
		}
		entries = append(entries, entry)
	}

	if err := h.engine.BatchBurn(caller(c), entries); err != nil {
		respondError(c, "Failed to batch burn", err)
		return
	}
	h.audit(c, "batch_burn", logrus.Fields{"entries": len(entries)})
	c.JSON(http.StatusOK, gin.H{"success": true, "burned": len(entries)})
}

func toBurnEntry(r models.AccountAmountRequest) (services.BurnEntry, error) {
	account, err := parseAddress(r.Account)
	if err != nil {
		return services.BurnEntry{}, err
	}
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return services.BurnEntry{}, err
	}
	return services.BurnEntry{Account: account, Amount: amount}, nil
}
