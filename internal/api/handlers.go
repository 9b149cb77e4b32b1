package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ai-trader-engine/internal/auth"
	"ai-trader-engine/internal/cache"
	"ai-trader-engine/internal/database"
	"ai-trader-engine/internal/events"
	"ai-trader-engine/internal/execquality"
	"ai-trader-engine/internal/marketdata"
	"ai-trader-engine/internal/payoff"
	"ai-trader-engine/internal/position"
	"ai-trader-engine/internal/proposal"
	"ai-trader-engine/internal/strategy"
)

// ============================================================================
// AUTH HANDLERS
// ============================================================================

func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pair, err := s.authService.Login(req)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	successResponse(c, pair)
}

// ============================================================================
// PROFILE HANDLERS
// ============================================================================

// computeProfileRequest describes a position to analyze. When spot or
// implied_vol are omitted they are taken from the live quote.
type computeProfileRequest struct {
	Symbol       string         `json:"symbol" binding:"required"`
	Legs         []position.Leg `json:"legs" binding:"required"`
	Spot         float64        `json:"spot"`
	ImpliedVol   float64        `json:"implied_vol"`
	DaysToExpiry float64        `json:"days_to_expiry"`
}

func (s *Server) handleComputeProfile(c *gin.Context) {
	var req computeProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	spot, vol, err := s.resolveMarket(c, req.Symbol, req.Spot, req.ImpliedVol)
	if err != nil {
		errorResponse(c, http.StatusBadGateway, "failed to resolve market data: "+err.Error())
		return
	}

	pos := position.Position{Symbol: req.Symbol, Legs: req.Legs}
	dist := payoff.NewDistribution(spot, vol, req.DaysToExpiry/365)

	profile, err := payoff.Compute(pos, spot, s.sampleRange(spot), dist)
	if err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	profile.Symbol = req.Symbol

	successResponse(c, profile)
}

// resolveMarket fills in spot and implied vol from the quote feed when the
// caller did not supply them.
func (s *Server) resolveMarket(c *gin.Context, symbol string, spot, vol float64) (float64, float64, error) {
	if spot > 0 && vol > 0 {
		return spot, vol, nil
	}

	quote, err := s.fetchQuote(c, symbol)
	if err != nil {
		return 0, 0, err
	}
	if spot <= 0 {
		spot = quote.Mid()
	}
	if vol <= 0 {
		vol = quote.ImpliedVol
	}
	return spot, vol, nil
}

// ============================================================================
// QUOTE HANDLERS
// ============================================================================

func (s *Server) handleGetQuote(c *gin.Context) {
	quote, err := s.fetchQuote(c, c.Param("symbol"))
	if err != nil {
		errorResponse(c, http.StatusBadGateway, err.Error())
		return
	}
	successResponse(c, quote)
}

func (s *Server) fetchQuote(c *gin.Context, symbol string) (*marketdata.Quote, error) {
	ctx := c.Request.Context()

	if s.quotes != nil {
		if cached, err := s.quotes.GetQuote(ctx, symbol); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("quote cache read failed")
		}
	}

	quote, err := s.provider.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if s.quotes != nil {
		s.quotes.SetQuote(ctx, quote)
	}
	return quote, nil
}

// ============================================================================
// STRATEGY HANDLERS
// ============================================================================

func (s *Server) handleValidateStrategy(c *gin.Context) {
	var def strategy.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	successResponse(c, strategy.Validate(def))
}

func (s *Server) handleSaveStrategy(c *gin.Context) {
	var def strategy.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result := strategy.Validate(def)
	if !result.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success":    false,
			"validation": result,
		})
		return
	}

	if s.repo == nil {
		errorResponse(c, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}
	if err := s.repo.SaveStrategy(c.Request.Context(), def); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to save strategy")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       def,
		"validation": result,
	})
}

func (s *Server) handleListStrategies(c *gin.Context) {
	if s.repo == nil {
		errorResponse(c, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}
	defs, err := s.repo.ListStrategies(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list strategies")
		return
	}
	successResponse(c, defs)
}

func (s *Server) handleGetStrategy(c *gin.Context) {
	if s.repo == nil {
		errorResponse(c, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}
	def, err := s.repo.GetStrategy(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "strategy not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to get strategy")
		return
	}
	successResponse(c, def)
}

func (s *Server) handleDeleteStrategy(c *gin.Context) {
	if s.repo == nil {
		errorResponse(c, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}
	if err := s.repo.DeleteStrategy(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "strategy not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to delete strategy")
		return
	}
	successResponse(c, gin.H{"deleted": c.Param("id")})
}

// ============================================================================
// PROPOSAL HANDLERS
// ============================================================================

type createProposalRequest struct {
	Symbol       string         `json:"symbol" binding:"required"`
	StrategyID   string         `json:"strategy_id"`
	Legs         []position.Leg `json:"legs" binding:"required"`
	Deadline     *time.Time     `json:"deadline"`
	Spot         float64        `json:"spot"`
	ImpliedVol   float64        `json:"implied_vol"`
	DaysToExpiry float64        `json:"days_to_expiry"`
}

func (s *Server) handleCreateProposal(c *gin.Context) {
	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	spot, vol, err := s.resolveMarket(c, req.Symbol, req.Spot, req.ImpliedVol)
	if err != nil {
		errorResponse(c, http.StatusBadGateway, "failed to resolve market data: "+err.Error())
		return
	}

	pos := position.Position{Symbol: req.Symbol, Legs: req.Legs}
	dist := payoff.NewDistribution(spot, vol, req.DaysToExpiry/365)
	profile, err := payoff.Compute(pos, spot, s.sampleRange(spot), dist)
	if err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	profile.Symbol = req.Symbol

	now := time.Now().UTC()
	deadline := now.Add(s.config.ProposalDeadline)
	if req.Deadline != nil {
		deadline = *req.Deadline
	}

	p, err := s.proposals.Add(req.Symbol, req.StrategyID, req.Legs, profile, deadline, now)
	if err != nil {
		s.proposalError(c, err)
		return
	}

	s.persistProposal(c, p)
	s.eventBus.Publish(events.EventProposalCreated, map[string]interface{}{
		"proposal_id": p.ID,
		"symbol":      p.Symbol,
		"budget":      p.BudgetRequired,
	})

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": p})
}

func (s *Server) handleListProposals(c *gin.Context) {
	successResponse(c, s.proposals.List(time.Now().UTC()))
}

func (s *Server) handleGetProposal(c *gin.Context) {
	p, err := s.proposals.Get(c.Param("id"), time.Now().UTC())
	if err != nil {
		s.proposalError(c, err)
		return
	}
	successResponse(c, p)
}

func (s *Server) handleApproveProposal(c *gin.Context) {
	p, err := s.proposals.Approve(c.Param("id"), time.Now().UTC())
	if err != nil {
		s.proposalError(c, err)
		return
	}

	s.persistProposal(c, p)
	s.eventBus.Publish(events.EventProposalApproved, map[string]interface{}{
		"proposal_id": p.ID,
		"symbol":      p.Symbol,
	})
	successResponse(c, p)
}

func (s *Server) handleRejectProposal(c *gin.Context) {
	p, err := s.proposals.Reject(c.Param("id"), time.Now().UTC())
	if err != nil {
		s.proposalError(c, err)
		return
	}

	s.persistProposal(c, p)
	s.eventBus.Publish(events.EventProposalRejected, map[string]interface{}{
		"proposal_id": p.ID,
		"symbol":      p.Symbol,
	})
	successResponse(c, p)
}

type repriceRequest struct {
	CurrentMid float64 `json:"current_mid" binding:"required"`
}

func (s *Server) handleRepriceProposal(c *gin.Context) {
	var req repriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := s.proposals.Reprice(c.Param("id"), req.CurrentMid, time.Now().UTC())
	if err != nil {
		s.proposalError(c, err)
		return
	}

	s.eventBus.Publish(events.EventProposalRepriced, map[string]interface{}{
		"proposal_id":  p.ID,
		"entry_target": p.EntryTarget,
	})
	successResponse(c, p)
}

func (s *Server) handleEditProposal(c *gin.Context) {
	var patch proposal.EditPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	now := time.Now().UTC()
	p, err := s.proposals.Edit(c.Param("id"), patch, now)
	if err != nil {
		s.proposalError(c, err)
		return
	}

	// Re-derive the theoretical profile for the edited legs so budget and
	// risk figures stay consistent.
	if quote, qerr := s.fetchQuote(c, p.Symbol); qerr == nil {
		spot := quote.Mid()
		dist := payoff.NewDistribution(spot, quote.ImpliedVol, daysToNearestExpiry(p.Legs, now)/365)
		if refreshed, rerr := s.proposals.RefreshProfile(p.ID, spot, s.sampleRange(spot), dist, now); rerr == nil {
			p = refreshed
		}
	}

	s.persistProposal(c, p)
	s.eventBus.Publish(events.EventProposalEdited, map[string]interface{}{
		"proposal_id": p.ID,
	})
	successResponse(c, p)
}

type bulkApproveRequest struct {
	IDs    []string `json:"ids" binding:"required"`
	Budget float64  `json:"budget" binding:"required"`
}

func (s *Server) handleBulkApprove(c *gin.Context) {
	var req bulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	approved, err := s.proposals.BulkApprove(req.IDs, req.Budget, time.Now().UTC())
	if err != nil {
		s.proposalError(c, err)
		return
	}

	for _, p := range approved {
		s.persistProposal(c, p)
		s.eventBus.Publish(events.EventProposalApproved, map[string]interface{}{
			"proposal_id": p.ID,
			"symbol":      p.Symbol,
		})
	}
	successResponse(c, approved)
}

func (s *Server) handleSuggestWithinBudget(c *gin.Context) {
	var req bulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ids, err := s.proposals.SuggestWithinBudget(req.IDs, req.Budget, time.Now().UTC())
	if err != nil {
		s.proposalError(c, err)
		return
	}
	successResponse(c, gin.H{"ids": ids})
}

// proposalError maps proposal store errors to HTTP status codes
func (s *Server) proposalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, proposal.ErrNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, proposal.ErrDeadlinePassed):
		errorResponse(c, http.StatusGone, err.Error())
	case errors.Is(err, proposal.ErrInvalidState):
		errorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, proposal.ErrOverBudget):
		errorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, proposal.ErrInvalidInput):
		errorResponse(c, http.StatusBadRequest, err.Error())
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}

// persistProposal saves a proposal snapshot when persistence is enabled.
// Failures are logged, not surfaced; the in-memory store is authoritative.
func (s *Server) persistProposal(c *gin.Context, p *proposal.Proposal) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveProposal(c.Request.Context(), p); err != nil {
		s.logger.Error().Err(err).Str("proposal_id", p.ID).Msg("failed to persist proposal")
	}
}

// daysToNearestExpiry returns calendar days until the earliest option expiry
func daysToNearestExpiry(legs []position.Leg, now time.Time) float64 {
	days := 0.0
	for _, leg := range legs {
		if !leg.IsOption() || leg.Expiration.IsZero() {
			continue
		}
		d := leg.Expiration.Sub(now).Hours() / 24
		if days == 0 || d < days {
			days = d
		}
	}
	return days
}

// ============================================================================
// POSITION HANDLERS
// ============================================================================

type openPositionRequest struct {
	Position   position.Position `json:"position" binding:"required"`
	ProposalID string            `json:"proposal_id"`
	EntryFill  float64           `json:"entry_fill"`
	Spot       float64           `json:"spot"`
	ImpliedVol float64           `json:"implied_vol"`
}

func (s *Server) handleOpenPosition(c *gin.Context) {
	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	now := time.Now().UTC()

	// The theoretical entry baseline comes from the linked proposal when one
	// exists, otherwise the position's own net debit.
	theoreticalEntry := req.Position.NetDebit()
	if req.ProposalID != "" {
		p, err := s.proposals.Get(req.ProposalID, now)
		if err != nil {
			s.proposalError(c, err)
			return
		}
		theoreticalEntry = p.EntryTarget
	}

	actual, err := s.positions.Open(req.Position, req.EntryFill, theoreticalEntry, req.Spot, req.ImpliedVol, now)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if req.ProposalID != "" {
		s.linkMu.Lock()
		s.positionLink[req.Position.ID] = req.ProposalID
		s.linkMu.Unlock()
	}

	s.eventBus.Publish(events.EventPositionOpened, map[string]interface{}{
		"position_id": req.Position.ID,
		"symbol":      req.Position.Symbol,
		"entry_fill":  req.EntryFill,
	})

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": actual})
}

func (s *Server) handleListPositions(c *gin.Context) {
	successResponse(c, s.positions.List())
}

func (s *Server) handleGetPosition(c *gin.Context) {
	pos, actual, err := s.positions.Get(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}
	successResponse(c, gin.H{"position": pos, "actual": actual})
}

func (s *Server) handleUpdateMark(c *gin.Context) {
	var update position.MarkUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if update.At.IsZero() {
		update.At = time.Now().UTC()
	}

	id := c.Param("id")
	actual, err := s.positions.UpdateMark(id, update)
	if err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}

	if s.quotes != nil {
		s.quotes.SetMark(c.Request.Context(), id, update.Mark)
	}

	s.eventBus.Publish(events.EventMarkUpdate, map[string]interface{}{
		"position_id":    id,
		"mark":           update.Mark,
		"unrealized_pnl": actual.UnrealizedPnL,
	})
	successResponse(c, actual)
}

type closePositionRequest struct {
	ExitFill float64 `json:"exit_fill"`
}

func (s *Server) handleClosePosition(c *gin.Context) {
	var req closePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id := c.Param("id")
	actual, err := s.positions.Close(id, req.ExitFill, time.Now().UTC())
	if err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}

	s.eventBus.Publish(events.EventPositionClosed, map[string]interface{}{
		"position_id":  id,
		"realized_pnl": actual.RealizedPnL,
	})
	successResponse(c, actual)
}

func (s *Server) handleGetQuality(c *gin.Context) {
	id := c.Param("id")

	_, actual, err := s.positions.Get(id)
	if err != nil {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	s.linkMu.RLock()
	proposalID := s.positionLink[id]
	s.linkMu.RUnlock()
	if pid := c.Query("proposal_id"); pid != "" {
		proposalID = pid
	}
	if proposalID == "" {
		errorResponse(c, http.StatusUnprocessableEntity, "position has no linked proposal to measure against")
		return
	}

	p, err := s.proposals.Get(proposalID, time.Now().UTC())
	if err != nil {
		s.proposalError(c, err)
		return
	}
	if p.Profile == nil {
		errorResponse(c, http.StatusUnprocessableEntity, "linked proposal has no theoretical profile")
		return
	}

	report, err := execquality.ComputeReport(p.Profile, *actual)
	if err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if s.repo != nil && c.Query("persist") == "true" {
		if err := s.repo.SaveQualityReport(c.Request.Context(), report, time.Now().UTC()); err != nil {
			s.logger.Error().Err(err).Str("position_id", id).Msg("failed to persist quality report")
		}
	}

	s.eventBus.Publish(events.EventQualityReport, map[string]interface{}{
		"position_id": id,
		"total_gap":   report.Attribution.TotalGap,
	})
	successResponse(c, report)
}

func (s *Server) handleGetQualityHistory(c *gin.Context) {
	if s.repo == nil {
		errorResponse(c, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	reports, err := s.repo.GetQualityHistory(c.Request.Context(), c.Param("id"), parseLimit(c, 50))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to get quality history")
		return
	}
	successResponse(c, reports)
}

// parseLimit reads a limit query parameter with a default
func parseLimit(c *gin.Context, def int) int {
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}
