package handlers

import (
	"strconv"

	"splitcoord/internal/splits"

	"github.com/gofiber/fiber/v3"
)

// SplitsHandler exposes the Coordination Engine over HTTP per spec §6.
type SplitsHandler struct {
	engine *splits.Engine
}

// NewSplitsHandler creates a new splits handler bound to engine.
func NewSplitsHandler(engine *splits.Engine) *SplitsHandler {
	return &SplitsHandler{engine: engine}
}

// RegisterRoutes registers the split coordination routes.
func (h *SplitsHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/splits", h.CreateSplit)
	app.Get("/splits/allowances/check", h.CheckAllowance)
	app.Get("/splits/:id", h.GetSplit)
	app.Post("/splits/:id/approve-intent", h.ApproveIntent)
	app.Post("/splits/:id/signatures", h.SubmitSignature)
	app.Post("/splits/:id/settle", h.Settle)
	app.Get("/tokens", h.ListTokens)
}

// createSplitRequest is the wire shape accepted by POST /splits.
type createSplitRequest struct {
	Payer         string           `json:"payer"`
	Token         string           `json:"token"`
	Legs          []createSplitLeg `json:"legs"`
	Deadline      *string          `json:"deadline"`
	MetaHash      *string          `json:"metaHash"`
	CreateOnchain bool             `json:"createOnchain"`
}

type createSplitLeg struct {
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
}

// CreateSplit creates a new split, optionally submitting createSplit on-chain.
// @Summary Create a split
// @Description Creates a split record and, if createOnchain is set, submits createSplit to the coordinator contract
// @Tags splits
// @Accept json
// @Produce json
// @Param request body createSplitRequest true "split definition"
// @Success 201 {object} splits.CreateSplitResult
// @Failure 400 {object} fiber.Map
// @Router /splits [post]
func (h *SplitsHandler) CreateSplit(c fiber.Ctx) error {
	var req createSplitRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	legs := make([]splits.LegInput, len(req.Legs))
	for i, l := range req.Legs {
		legs[i] = splits.LegInput{Participant: l.Participant, Amount: l.Amount}
	}

	result, err := h.engine.CreateSplit(c.Context(), splits.CreateSplitInput{
		Payer:         req.Payer,
		Token:         req.Token,
		Legs:          legs,
		Deadline:      req.Deadline,
		MetaHash:      req.MetaHash,
		CreateOnchain: req.CreateOnchain,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetSplit returns a single split with its participants and signatures.
// @Summary Get a split
// @Tags splits
// @Produce json
// @Param id path int true "split id"
// @Success 200 {object} splits.SplitView
// @Failure 404 {object} fiber.Map
// @Router /splits/{id} [get]
func (h *SplitsHandler) GetSplit(c fiber.Ctx) error {
	id, err := parseSplitID(c)
	if err != nil {
		return err
	}
	view, verr := h.engine.GetSplit(c.Context(), id)
	if verr != nil {
		return verr
	}
	return c.JSON(view)
}

// approveIntentRequest is the wire shape accepted by POST /splits/:id/approve-intent.
type approveIntentRequest struct {
	Participant string  `json:"participant"`
	Deadline    *string `json:"deadline"`
}

// ApproveIntent generates the EIP-712 typed data a participant must sign.
// @Summary Generate an approve intent
// @Description Returns the EIP-712 typed data for a participant to sign off-chain
// @Tags splits
// @Accept json
// @Produce json
// @Param id path int true "split id"
// @Param request body approveIntentRequest true "participant"
// @Success 200 {object} splits.TypedDataResponse
// @Router /splits/{id}/approve-intent [post]
func (h *SplitsHandler) ApproveIntent(c fiber.Ctx) error {
	id, err := parseSplitID(c)
	if err != nil {
		return err
	}
	var req approveIntentRequest
	if berr := c.Bind().Body(&req); berr != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	resp, ierr := h.engine.GenerateApproveIntent(c.Context(), splits.ApproveIntentInput{
		SplitID:     id,
		Participant: req.Participant,
		Deadline:    req.Deadline,
	})
	if ierr != nil {
		return ierr
	}
	return c.JSON(resp)
}

// submitSignatureRequest is the wire shape accepted by POST /splits/:id/signatures.
type submitSignatureRequest struct {
	Participant string  `json:"participant"`
	Amount      string  `json:"amount"`
	Salt        string  `json:"salt"`
	Deadline    *string `json:"deadline"`
	Signature   string  `json:"signature"`
}

// SubmitSignature records a participant's signature over a previously issued intent.
// @Summary Submit a signature
// @Tags splits
// @Accept json
// @Produce json
// @Param id path int true "split id"
// @Param request body submitSignatureRequest true "signed intent"
// @Success 200 {object} splits.SubmitSignatureResult
// @Router /splits/{id}/signatures [post]
func (h *SplitsHandler) SubmitSignature(c fiber.Ctx) error {
	id, err := parseSplitID(c)
	if err != nil {
		return err
	}
	var req submitSignatureRequest
	if berr := c.Bind().Body(&req); berr != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, serr := h.engine.SubmitSignature(c.Context(), splits.SubmitSignatureInput{
		SplitID:     id,
		Participant: req.Participant,
		Amount:      req.Amount,
		Salt:        req.Salt,
		Deadline:    req.Deadline,
		Signature:   req.Signature,
	})
	if serr != nil {
		return serr
	}
	return c.JSON(result)
}

// settleRequest is the wire shape accepted by POST /splits/:id/settle.
type settleRequest struct {
	Items []settleItemRequest `json:"items"`
}

type settleItemRequest struct {
	Participant string  `json:"participant"`
	Amount      string  `json:"amount"`
	Deadline    *string `json:"deadline"`
	Salt        string  `json:"salt"`
	Signature   string  `json:"signature"`
}

// Settle submits settleSplit to the coordinator contract. If items is omitted
// or empty, every VALID stored signature for the split is used.
// @Summary Settle a split
// @Tags splits
// @Accept json
// @Produce json
// @Param id path int true "split id"
// @Param request body settleRequest false "explicit settlement items"
// @Success 200 {object} splits.SettleResult
// @Router /splits/{id}/settle [post]
func (h *SplitsHandler) Settle(c fiber.Ctx) error {
	id, err := parseSplitID(c)
	if err != nil {
		return err
	}
	var req settleRequest
	if len(c.Body()) > 0 {
		if berr := c.Bind().Body(&req); berr != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	items := make([]splits.SettleItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = splits.SettleItem{
			Participant: it.Participant,
			Amount:      it.Amount,
			Deadline:    it.Deadline,
			Salt:        it.Salt,
			Signature:   it.Signature,
		}
	}

	result, serr := h.engine.Settle(c.Context(), splits.SettleInput{SplitID: id, Items: items})
	if serr != nil {
		return serr
	}
	return c.JSON(result)
}

// CheckAllowance reports the coordinator contract's current ERC-20 allowance
// for the given token/owner pair.
// @Summary Check allowance
// @Tags splits
// @Produce json
// @Param token query string true "ERC-20 token address"
// @Param owner query string true "token owner address"
// @Success 200 {object} splits.AllowanceResult
// @Router /splits/allowances/check [get]
func (h *SplitsHandler) CheckAllowance(c fiber.Ctx) error {
	token := c.Query("token")
	owner := c.Query("owner")
	if token == "" || owner == "" {
		return fiber.NewError(fiber.StatusBadRequest, "token and owner query parameters are required")
	}

	result, err := h.engine.CheckAllowance(c.Context(), token, owner)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// ListTokens returns the supported-token catalog for the engine's chain.
// @Summary List supported tokens
// @Tags tokens
// @Produce json
// @Success 200 {array} splits.TokenView
// @Router /tokens [get]
func (h *SplitsHandler) ListTokens(c fiber.Ctx) error {
	tokens, err := h.engine.ListTokens(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(tokens)
}

func parseSplitID(c fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "split id must be an integer")
	}
	return id, nil
}
