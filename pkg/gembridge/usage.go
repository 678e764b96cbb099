package gembridge

import (
	"encoding/json"

	"github.com/openai/openai-go/v3"
)

// Usage accounting is best-effort: bodies that do not decode as the SDK types
// simply record nothing.

func (s *Server) recordChatUsage(modelID string, body []byte) {
	if s.mets == nil {
		return
	}
	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return
	}
	s.recordTokens(modelID, completion.Usage)
}

func (s *Server) recordChunkUsage(modelID string, chunk []byte) {
	if s.mets == nil {
		return
	}
	var completionChunk openai.ChatCompletionChunk
	if err := json.Unmarshal(chunk, &completionChunk); err != nil {
		return
	}
	// only the final chunk of a stream carries a usage block
	s.recordTokens(modelID, completionChunk.Usage)
}

func (s *Server) recordTokens(modelID string, usage openai.CompletionUsage) {
	if usage.TotalTokens == 0 {
		return
	}
	s.mets.Tokens.WithLabelValues(modelID, "prompt").Add(float64(usage.PromptTokens))
	s.mets.Tokens.WithLabelValues(modelID, "completion").Add(float64(usage.CompletionTokens))
}

func (s *Server) recordEmbeddingUsage(modelID string, body []byte) {
	if s.mets == nil {
		return
	}
	var resp openai.CreateEmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return
	}
	if resp.Usage.PromptTokens == 0 {
		return
	}
	s.mets.Tokens.WithLabelValues(modelID, "prompt").Add(float64(resp.Usage.PromptTokens))
}
