package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ai-trader-engine/internal/auth"
	"ai-trader-engine/internal/vault"
)

// defaultCredentialUser scopes stored credentials when the API runs without
// authentication (single-operator local mode).
const defaultCredentialUser = "local"

type storeCredentialsRequest struct {
	Broker    string `json:"broker" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
	AccountID string `json:"account_id"`
	Paper     bool   `json:"paper"`
}

// credentialSummary is the redacted view returned to clients. The API secret
// never leaves the server and the key is masked to its tail.
type credentialSummary struct {
	Broker    string `json:"broker"`
	APIKey    string `json:"api_key"`
	AccountID string `json:"account_id"`
	Paper     bool   `json:"paper"`
}

func summarizeCredentials(creds *vault.BrokerCredentials) credentialSummary {
	return credentialSummary{
		Broker:    creds.Broker,
		APIKey:    maskKey(creds.APIKey),
		AccountID: creds.AccountID,
		Paper:     creds.Paper,
	}
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// credentialUser resolves the owner of stored credentials: the authenticated
// user when auth is enabled, a fixed local identity otherwise.
func (s *Server) credentialUser(c *gin.Context) string {
	if id := auth.GetUserID(c); id != "" {
		return id
	}
	return defaultCredentialUser
}

func paperFlag(c *gin.Context) bool {
	paper, err := strconv.ParseBool(c.DefaultQuery("paper", "false"))
	return err == nil && paper
}

// handleStoreCredentials stores or rotates broker credentials; a PUT for an
// existing broker/account pair replaces the stored secret.
func (s *Server) handleStoreCredentials(c *gin.Context) {
	if s.vault == nil {
		errorResponse(c, http.StatusServiceUnavailable, "credential store is disabled")
		return
	}

	var req storeCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	creds := vault.BrokerCredentials{
		Broker:    req.Broker,
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
		AccountID: req.AccountID,
		Paper:     req.Paper,
	}
	userID := s.credentialUser(c)
	if err := s.vault.StoreCredentials(c.Request.Context(), userID, creds); err != nil {
		s.logger.Error().Err(err).Str("broker", req.Broker).Msg("failed to store broker credentials")
		errorResponse(c, http.StatusBadGateway, "failed to store credentials")
		return
	}

	s.logger.Info().Str("broker", req.Broker).Bool("paper", req.Paper).Msg("broker credentials stored")
	successResponse(c, summarizeCredentials(&creds))
}

func (s *Server) handleGetCredentials(c *gin.Context) {
	if s.vault == nil {
		errorResponse(c, http.StatusServiceUnavailable, "credential store is disabled")
		return
	}

	creds, err := s.vault.GetCredentials(c.Request.Context(), s.credentialUser(c), c.Param("broker"), paperFlag(c))
	if err != nil {
		errorResponse(c, http.StatusNotFound, "credentials not found")
		return
	}
	successResponse(c, summarizeCredentials(creds))
}

func (s *Server) handleDeleteCredentials(c *gin.Context) {
	if s.vault == nil {
		errorResponse(c, http.StatusServiceUnavailable, "credential store is disabled")
		return
	}

	broker := c.Param("broker")
	if err := s.vault.DeleteCredentials(c.Request.Context(), s.credentialUser(c), broker, paperFlag(c)); err != nil {
		s.logger.Error().Err(err).Str("broker", broker).Msg("failed to delete broker credentials")
		errorResponse(c, http.StatusBadGateway, "failed to delete credentials")
		return
	}
	successResponse(c, gin.H{"deleted": broker})
}
