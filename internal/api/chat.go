package api

import (
	"encoding/json"
	"net/http"
)

// Message stays untyped so a non-textual value reaches the pipeline's
// input validation (and its audit record) instead of dying in the decoder.
type chatRequest struct {
	Message        any    `json:"message"`
	ConversationID string `json:"conversationId"`
}

type chatResponse struct {
	Message        string           `json:"message"`
	SQL            string           `json:"sql,omitempty"`
	Data           []map[string]any `json:"data,omitempty"`
	ConversationID string           `json:"conversationId"`
	Filename       string           `json:"filename,omitempty"`
	Asynchronous   bool             `json:"asynchronous,omitempty"`
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_ERROR", "request body must be a JSON object", false, nil)
		return
	}

	exchange, err := deps.Chat.Handle(r.Context(), req.Message, req.ConversationID)
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if exchange.Asynchronous {
		status = http.StatusAccepted
	}
	writeJSON(w, status, chatResponse{
		Message:        exchange.Message,
		SQL:            exchange.SQL,
		Data:           exchange.Data,
		ConversationID: exchange.ConversationID,
		Filename:       exchange.Filename,
		Asynchronous:   exchange.Asynchronous,
	})
}
