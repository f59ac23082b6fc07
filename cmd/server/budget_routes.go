package server

import (
	"encoding/json"
	"net/http"

	"agentchat/core/pkg/tokens"
)

// EstimateRequest asks for a token estimate of raw text or a turn list.
// When a model id is present the exact tokenizer count is included alongside
// the heuristic.
type EstimateRequest struct {
	Text    string            `json:"text,omitempty"`
	Turns   []tokens.ChatTurn `json:"turns,omitempty"`
	ModelID string            `json:"model_id,omitempty"`
}

// EstimateResponse carries the heuristic estimate and, when requested, the
// model tokenizer's exact count.
type EstimateResponse struct {
	Tokens      int `json:"tokens"`
	ModelTokens int `json:"model_tokens,omitempty"`
}

// FitRequest asks the fitting pipeline to reduce a history. MaxTokens zero
// means the configured history budget.
type FitRequest struct {
	Turns        []tokens.ChatTurn `json:"turns"`
	MaxTokens    int               `json:"max_tokens,omitempty"`
	RAGContext   string            `json:"rag_context,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
}

// FitResponse returns the reduced history plus before/after usage stats.
type FitResponse struct {
	Turns  []tokens.ChatTurn `json:"turns"`
	Before tokens.TokenStats `json:"before"`
	After  tokens.TokenStats `json:"after"`
}

func (api *StreamingAPI) handleEstimateTokens(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var resp EstimateResponse
	if len(req.Turns) > 0 {
		resp.Tokens = api.budget.EstimateTurnsTokens(req.Turns)
	} else {
		resp.Tokens = api.budget.EstimateTokens(req.Text)
	}
	if req.ModelID != "" && req.Text != "" {
		resp.ModelTokens = api.budget.CountTokensForModel(req.Text, req.ModelID)
	}

	api.writeJSON(w, http.StatusOK, resp)
}

func (api *StreamingAPI) handleFitHistory(w http.ResponseWriter, r *http.Request) {
	var req FitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	before := api.budget.ComputeStats(req.Turns, req.RAGContext, req.SystemPrompt)
	fitted := api.budget.FitToBudget(req.Turns, req.MaxTokens)
	after := api.budget.ComputeStats(fitted, req.RAGContext, req.SystemPrompt)

	api.writeJSON(w, http.StatusOK, FitResponse{
		Turns:  fitted,
		Before: before,
		After:  after,
	})
}
