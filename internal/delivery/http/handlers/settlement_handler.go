package handlers

import (
	"fmt"

	"github.com/LavaJover/shvark-settlement-service/internal/delivery/http/dto/settlement/request"
	"github.com/LavaJover/shvark-settlement-service/internal/delivery/http/dto/settlement/response"
	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	settlementdto "github.com/LavaJover/shvark-settlement-service/internal/usecase/dto/settlement"
	"github.com/LavaJover/shvark-settlement-service/internal/usecase/settlement"
	"github.com/gofiber/fiber/v2"
)

type SettlementHandler struct {
	uc settlement.SettlementUsecase
}

func NewSettlementHandler(uc settlement.SettlementUsecase) *SettlementHandler {
	return &SettlementHandler{uc: uc}
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", domain.ErrValidation, err)
	}
	return nil
}

func (h *SettlementHandler) CreatePool(c *fiber.Ctx) error {
	var req request.CreatePoolRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	pool, err := h.uc.CreatePool(c.UserContext(), &settlementdto.CreatePoolInput{
		TournamentID: req.TournamentID,
		Currency:     req.Currency,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(response.OK(response.FromPool(pool)))
}

func (h *SettlementHandler) GetPool(c *fiber.Ctx) error {
	pool, err := h.uc.GetPool(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(response.OK(response.FromPool(pool)))
}

func (h *SettlementHandler) GetPoolByTournament(c *fiber.Ctx) error {
	pool, err := h.uc.GetPoolByTournament(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(response.OK(response.FromPool(pool)))
}

func (h *SettlementHandler) ListPools(c *fiber.Ctx) error {
	out, err := h.uc.ListPools(c.UserContext(), &settlementdto.ListPoolsInput{
		Page:  c.QueryInt("page", 1),
		Limit: c.QueryInt("limit", 0),
	})
	if err != nil {
		return writeError(c, err)
	}

	pools := make([]response.PoolResponse, len(out.Pools))
	for i, pool := range out.Pools {
		pools[i] = response.FromPool(pool)
	}
	return c.JSON(response.OK(response.PoolListResponse{
		Pools:      pools,
		Pagination: response.Pagination{Page: out.Pagination.Page, Limit: out.Pagination.Limit},
	}))
}

func (h *SettlementHandler) InitiateContribution(c *fiber.Ctx) error {
	var req request.InitiateContributionRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.InitiateContribution(c.UserContext(), &settlementdto.InitiateContributionInput{
		PoolID:   c.Params("id"),
		UserID:   req.UserID,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(response.OK(response.InitiateContributionResponse{
		Contribution: response.FromContribution(out.Contribution),
		OrderID:      out.OrderHandle,
		ApproveURL:   out.ApproveURL,
	}))
}

func (h *SettlementHandler) ListPoolContributions(c *fiber.Ctx) error {
	contributions, err := h.uc.ListPoolContributions(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}

	resp := make([]response.ContributionResponse, len(contributions))
	for i, contribution := range contributions {
		resp[i] = response.FromContribution(contribution)
	}
	return c.JSON(response.OK(resp))
}

func (h *SettlementHandler) GetContribution(c *fiber.Ctx) error {
	contribution, err := h.uc.GetContribution(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(response.OK(response.FromContribution(contribution)))
}

func (h *SettlementHandler) ConfirmContribution(c *fiber.Ctx) error {
	var req request.ConfirmContributionRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	result, err := h.uc.ConfirmContribution(c.UserContext(), req.OrderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(response.OK(response.FromSettlementResult(result)))
}

func (h *SettlementHandler) ClosePool(c *fiber.Ctx) error {
	var req request.ClosePoolRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return writeError(c, err)
		}
	}

	pool, err := h.uc.ClosePool(c.UserContext(), c.Params("id"), req.WinnerUserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(response.OK(response.FromPool(pool)))
}

func (h *SettlementHandler) DistributePrize(c *fiber.Ctx) error {
	var req request.DistributePrizeRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.DistributePrize(c.UserContext(), c.Params("id"), req.WinnerUserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(response.OK(response.DistributePrizeResponse{
		Pool:   response.FromPool(out.Pool),
		Payout: response.FromTransaction(out.Payout),
	}))
}

func (h *SettlementHandler) RefreshPayout(c *fiber.Ctx) error {
	payout, err := h.uc.CheckPayoutStatus(c.UserContext(), c.Params("handle"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(response.OK(response.FromTransaction(payout)))
}

func (h *SettlementHandler) ListUserTransactions(c *fiber.Ctx) error {
	out, err := h.uc.ListUserTransactions(c.UserContext(), &settlementdto.ListUserTransactionsInput{
		UserID: c.Params("id"),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 0),
	})
	if err != nil {
		return writeError(c, err)
	}

	txs := make([]response.TransactionResponse, len(out.Transactions))
	for i, tx := range out.Transactions {
		txs[i] = response.FromTransaction(tx)
	}
	return c.JSON(response.OK(response.TransactionListResponse{
		Transactions: txs,
		Pagination:   response.Pagination{Page: out.Pagination.Page, Limit: out.Pagination.Limit},
	}))
}
