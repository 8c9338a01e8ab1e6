package http

import (
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	permitmodels "rwa-raffle-backend/internal/features/permit/models"
	"rwa-raffle-backend/internal/features/raffle/engine"
	"rwa-raffle-backend/internal/features/raffle/models"
	"rwa-raffle-backend/internal/features/raffle/service"
	"rwa-raffle-backend/internal/features/raffle/slots"
)

type RaffleHandler struct {
	service   service.RaffleService
	programID string
}

func NewRaffleHandler(svc service.RaffleService, programID string) *RaffleHandler {
	return &RaffleHandler{service: svc, programID: programID}
}

func (h *RaffleHandler) RegisterRoutes(router *gin.RouterGroup) {
	raffles := router.Group("/raffles")
	{
		raffles.POST("", h.createWithPermit)
		raffles.GET("", h.list)
		raffles.GET("/:id", h.get)
		raffles.POST("/:id/deposits", h.deposit)
		raffles.POST("/:id/draw", h.requestDraw)
		raffles.POST("/:id/prize", h.setPrize)
		raffles.POST("/:id/prize/claim", h.claimPrize)
		raffles.POST("/:id/refunds/claim", h.claimRefund)
		raffles.POST("/:id/proceeds/collect", h.collectProceeds)
	}
}

// RegisterAdminRoutes mounts the operator-only endpoints: permit-less
// creation, draw settlement, and the bulk refund sweep.
func (h *RaffleHandler) RegisterAdminRoutes(router *gin.RouterGroup) {
	raffles := router.Group("/raffles")
	{
		raffles.POST("", h.createDirect)
		raffles.POST("/:id/settle", h.settleDraw)
		raffles.POST("/:id/refunds/batch", h.refundBatch)
	}
}

type configInput struct {
	EscrowAsset     string `json:"escrow_asset" binding:"required"`
	EscrowAccount   string `json:"escrow_account" binding:"required"`
	RequiredTickets uint64 `json:"required_tickets" binding:"required,min=1"`
	TicketPrice     uint64 `json:"ticket_price" binding:"required,min=1"`
	Deadline        int64  `json:"deadline" binding:"required"`
	AutoDraw        bool   `json:"auto_draw"`
	TicketMode      uint8  `json:"ticket_mode" binding:"max=2"`
	RefundMode      string `json:"refund_mode"`
}

func (in *configInput) toConfig() models.Config {
	return models.Config{
		EscrowAsset:     in.EscrowAsset,
		EscrowAccount:   in.EscrowAccount,
		RequiredTickets: in.RequiredTickets,
		TicketPrice:     in.TicketPrice,
		Deadline:        in.Deadline,
		AutoDraw:        in.AutoDraw,
		TicketMode:      models.TicketMode(in.TicketMode),
		RefundMode:      models.RefundMode(in.RefundMode),
	}
}

type createWithPermitInput struct {
	Organizer string      `json:"organizer" binding:"required"`
	Config    configInput `json:"config" binding:"required"`
	Nonce     string      `json:"nonce" binding:"required"`     // hex, 16 bytes
	Expiry    int64       `json:"expiry" binding:"required"`    // echoed from permit issuance
	Signature string      `json:"signature" binding:"required"` // hex ed25519 signature
}

func (h *RaffleHandler) createWithPermit(c *gin.Context) {
	var input createWithPermitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	nonceBytes, err := hex.DecodeString(input.Nonce)
	if err != nil || len(nonceBytes) != permitmodels.NonceSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nonce must be 16 hex-encoded bytes"})
		return
	}
	signature, err := hex.DecodeString(input.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature must be hex-encoded"})
		return
	}

	cfg := input.Config.toConfig()
	permit := &permitmodels.Permit{
		Organizer:       input.Organizer,
		Expiry:          input.Expiry,
		RequiredTickets: cfg.RequiredTickets,
		Deadline:        cfg.Deadline,
		ProgramID:       h.programID,
		AutoDraw:        cfg.AutoDraw,
		TicketMode:      uint8(cfg.TicketMode),
	}
	copy(permit.Nonce[:], nonceBytes)

	raffle, err := h.service.CreateWithPermit(c.Request.Context(), &service.CreateWithPermitRequest{
		Organizer: input.Organizer,
		Config:    cfg,
		Permit:    permit,
		Signature: signature,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, raffle)
}

type createDirectInput struct {
	Organizer string      `json:"organizer" binding:"required"`
	Config    configInput `json:"config" binding:"required"`
}

func (h *RaffleHandler) createDirect(c *gin.Context) {
	var input createDirectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raffle, err := h.service.Create(c.Request.Context(), input.Organizer, input.Config.toConfig())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, raffle)
}

func (h *RaffleHandler) list(c *gin.Context) {
	statuses := []models.Status{models.StatusSelling, models.StatusDrawing, models.StatusSettled, models.StatusRefunding}
	if status := c.Query("status"); status != "" {
		statuses = []models.Status{models.Status(status)}
	}

	raffles, err := h.service.List(c.Request.Context(), statuses)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raffles": raffles})
}

func (h *RaffleHandler) get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type depositInput struct {
	Owner        string   `json:"owner" binding:"required"`
	Slots        []uint32 `json:"slots" binding:"required,min=1"`
	Amount       uint64   `json:"amount"`
	CredentialID string   `json:"credential_id"`
}

func (h *RaffleHandler) deposit(c *gin.Context) {
	var input depositInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raffle, err := h.service.Deposit(c.Request.Context(), c.Param("id"), &engine.DepositRequest{
		Owner:        input.Owner,
		Slots:        input.Slots,
		Amount:       input.Amount,
		CredentialID: input.CredentialID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raffle)
}

type callerInput struct {
	Caller string `json:"caller" binding:"required"`
}

func (h *RaffleHandler) requestDraw(c *gin.Context) {
	var input callerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raffle, err := h.service.RequestDraw(c.Request.Context(), c.Param("id"), input.Caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raffle)
}

type settleInput struct {
	Seed string `json:"seed"` // optional hex beacon output
}

func (h *RaffleHandler) settleDraw(c *gin.Context) {
	var input settleInput
	if err := c.ShouldBindJSON(&input); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var seed []byte
	if input.Seed != "" {
		var err error
		seed, err = hex.DecodeString(input.Seed)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "seed must be hex-encoded"})
			return
		}
	}

	raffle, err := h.service.SettleDraw(c.Request.Context(), c.Param("id"), seed)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raffle)
}

type setPrizeInput struct {
	Caller     string `json:"caller" binding:"required"`
	PrizeAsset string `json:"prize_asset" binding:"required"`
}

func (h *RaffleHandler) setPrize(c *gin.Context) {
	var input setPrizeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raffle, err := h.service.SetPrize(c.Request.Context(), c.Param("id"), input.Caller, input.PrizeAsset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raffle)
}

func (h *RaffleHandler) claimPrize(c *gin.Context) {
	var input callerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raffle, err := h.service.ClaimPrize(c.Request.Context(), c.Param("id"), input.Caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raffle)
}

type claimRefundInput struct {
	Caller string  `json:"caller" binding:"required"`
	Slot   *uint32 `json:"slot" binding:"required"`
}

func (h *RaffleHandler) claimRefund(c *gin.Context) {
	var input claimRefundInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raffle, err := h.service.ClaimRefund(c.Request.Context(), c.Param("id"), input.Caller, *input.Slot)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raffle)
}

func (h *RaffleHandler) refundBatch(c *gin.Context) {
	refunded, err := h.service.RefundBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunded": refunded})
}

func (h *RaffleHandler) collectProceeds(c *gin.Context) {
	var input callerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raffle, err := h.service.CollectProceeds(c.Request.Context(), c.Param("id"), input.Caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, raffle)
}

func respondError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, models.ErrRaffleNotFound),
		errors.Is(err, models.ErrTicketNotFound),
		errors.Is(err, models.ErrCredentialNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidConfig),
		errors.Is(err, models.ErrAmountMismatch),
		errors.Is(err, models.ErrCredentialMismatch),
		errors.Is(err, slots.ErrSlotIndexOutOfRange),
		errors.Is(err, slots.ErrDuplicateSlot):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrOrganizerInactive),
		errors.Is(err, models.ErrNotOrganizer),
		errors.Is(err, models.ErrNotWinner),
		errors.Is(err, models.ErrNotTicketOwner),
		errors.Is(err, models.ErrNotCredentialOwner),
		errors.Is(err, permitmodels.ErrInvalidPermit),
		errors.Is(err, permitmodels.ErrPermitExpired),
		errors.Is(err, permitmodels.ErrPermitReplayed),
		errors.Is(err, permitmodels.ErrWrongProgram):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrRaffleNotSelling),
		errors.Is(err, models.ErrDeadlinePassed),
		errors.Is(err, models.ErrNotFull),
		errors.Is(err, models.ErrAlreadySettled),
		errors.Is(err, models.ErrWrongState),
		errors.Is(err, models.ErrAlreadyClaimed),
		errors.Is(err, models.ErrPrizeAlreadySet),
		errors.Is(err, models.ErrPrizeNotSet),
		errors.Is(err, models.ErrProceedsCollected),
		errors.Is(err, models.ErrTicketModeDisabled),
		errors.Is(err, models.ErrRandomnessUnavailable),
		errors.Is(err, slots.ErrSlotAlreadyTaken),
		errors.Is(err, slots.ErrPartialBatchConflict):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
