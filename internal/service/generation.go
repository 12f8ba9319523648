package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/telemetry"
)

// PromptMessage is one turn handed to the completion service.
type PromptMessage struct {
	Role    string
	Content string
}

// Prompt roles understood by the completion boundary.
const (
	PromptRoleSystem    = "system"
	PromptRoleUser      = "user"
	PromptRoleAssistant = "assistant"
)

// CompletionClient is the external generative completion boundary.
type CompletionClient interface {
	Complete(ctx context.Context, messages []PromptMessage) (string, error)
}

// Retriever finds citation-bearing passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, owner, queryText string, topK int, scoreThreshold float32) ([]Passage, error)
}

// ChatManager is the slice of the chat service the orchestrator needs.
type ChatManager interface {
	AppendMessage(ctx context.Context, input AppendInput) (*domain.ChatMessage, error)
	RecentMessages(ctx context.Context, owner, sessionID string, n int) ([]*domain.ChatMessage, error)
}

// GenerationConfig controls prompt assembly and the completion call.
type GenerationConfig struct {
	HistoryTurns      int
	TopK              int
	ScoreThreshold    float32
	CompletionTimeout time.Duration
	Retry             RetryConfig
}

// DefaultGenerationConfig returns the default orchestrator configuration.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		HistoryTurns:      6,
		TopK:              5,
		ScoreThreshold:    0.35,
		CompletionTimeout: 30 * time.Second,
		Retry:             DefaultRetryConfig(),
	}
}

const (
	groundedSystemPrompt = "You are a helpful assistant. Answer the user's question using only the " +
		"provided context passages. Reference passages by their tag (e.g. [S1]) when you use them. " +
		"If the answer is not in the context, say you don't have enough information."

	ungroundedSystemPrompt = "You are a helpful assistant. No relevant documents were found for this " +
		"question. Tell the user you don't have enough grounded information to answer, and suggest " +
		"uploading a relevant document."

	fallbackAnswer = "Sorry, I couldn't produce an answer right now. Please try again in a moment."
)

// GenerationService assembles grounded prompts and persists answers. A
// send is never silently dropped: if the completion service fails, a
// fallback ai message is persisted instead of an answer.
type GenerationService struct {
	chat      ChatManager
	retriever Retriever
	completer CompletionClient
	transient func(error) bool
	cfg       GenerationConfig
}

// NewGenerationService creates a new GenerationService instance.
func NewGenerationService(
	chat ChatManager,
	retriever Retriever,
	completer CompletionClient,
	transient func(error) bool,
	cfg GenerationConfig,
) *GenerationService {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultGenerationConfig().HistoryTurns
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = DefaultGenerationConfig().CompletionTimeout
	}
	return &GenerationService{
		chat:      chat,
		retriever: retriever,
		completer: completer,
		transient: transient,
		cfg:       cfg,
	}
}

// GenerateAnswer persists the user's message, retrieves grounding
// passages, calls the completion service, and persists the ai answer
// whose sources are exactly the passages that went into the prompt.
func (s *GenerationService) GenerateAnswer(ctx context.Context, owner, sessionID, userContent string) (*domain.ChatMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "GenerationService.GenerateAnswer", telemetry.SpanAttributes{
		Owner:     owner,
		SessionID: sessionID,
		Operation: "generate",
	})
	defer span.End()

	if strings.TrimSpace(userContent) == "" {
		return nil, domain.ErrMissingRequiredField
	}

	// The user's message is durable before anything can fail.
	userMsg, err := s.chat.AppendMessage(ctx, AppendInput{
		SessionID: sessionID,
		Owner:     owner,
		Role:      domain.MessageRoleUser,
		Content:   userContent,
	})
	if err != nil {
		return nil, err
	}

	passages, err := s.retriever.Retrieve(ctx, owner, userContent, s.cfg.TopK, s.cfg.ScoreThreshold)
	if err != nil {
		// Degrade to an ungrounded answer rather than dropping the send.
		telemetry.CaptureError(ctx, fmt.Errorf("retrieval failed for session %s: %w", sessionID, err))
		passages = nil
	}

	history, err := s.chat.RecentMessages(ctx, owner, sessionID, s.cfg.HistoryTurns*2)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(passages, history, userMsg.ID, userContent)

	answer, err := s.complete(ctx, prompt)
	if err != nil {
		telemetry.CaptureError(ctx, fmt.Errorf("completion failed for session %s: %w", sessionID, err))
		return s.chat.AppendMessage(ctx, AppendInput{
			SessionID: sessionID,
			Owner:     owner,
			Role:      domain.MessageRoleAI,
			Content:   fallbackAnswer,
		})
	}

	var metadata *domain.MessageMetadata
	if len(passages) > 0 {
		sources := make([]domain.SourceRef, len(passages))
		for i, p := range passages {
			sources[i] = domain.SourceRef{
				DocumentID:    p.DocumentID,
				Filename:      p.Filename,
				ChunkPosition: p.ChunkPosition,
				Score:         p.Score,
			}
		}
		metadata = &domain.MessageMetadata{Sources: sources}
	}

	return s.chat.AppendMessage(ctx, AppendInput{
		SessionID: sessionID,
		Owner:     owner,
		Role:      domain.MessageRoleAI,
		Content:   answer,
		Metadata:  metadata,
	})
}

func (s *GenerationService) complete(ctx context.Context, prompt []PromptMessage) (string, error) {
	var answer string
	err := withRetry(ctx, s.cfg.Retry, s.transient, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CompletionTimeout)
		defer cancel()

		var err error
		answer, err = s.completer.Complete(callCtx, prompt)
		return err
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("completion returned empty answer")
	}
	return answer, nil
}

// buildPrompt assembles the bounded prompt: system instructions, prior
// turns, then the question with tagged context passages. The grounded
// versus ungrounded branch is decided here, never left to the model.
func buildPrompt(passages []Passage, history []*domain.ChatMessage, userMsgID int64, question string) []PromptMessage {
	prompt := make([]PromptMessage, 0, len(history)+2)

	if len(passages) > 0 {
		prompt = append(prompt, PromptMessage{Role: PromptRoleSystem, Content: groundedSystemPrompt})
	} else {
		prompt = append(prompt, PromptMessage{Role: PromptRoleSystem, Content: ungroundedSystemPrompt})
	}

	for _, m := range history {
		if m.ID == userMsgID {
			continue
		}
		role := PromptRoleUser
		if m.Role == domain.MessageRoleAI {
			role = PromptRoleAssistant
		}
		prompt = append(prompt, PromptMessage{Role: role, Content: m.Content})
	}

	var sb strings.Builder
	if len(passages) > 0 {
		sb.WriteString("Context:\n")
		for i, p := range passages {
			fmt.Fprintf(&sb, "[S%d] (%s, chunk %d)\n%s\n\n", i+1, p.Filename, p.ChunkPosition, p.Text)
		}
	}
	sb.WriteString("Question:\n")
	sb.WriteString(question)

	prompt = append(prompt, PromptMessage{Role: PromptRoleUser, Content: sb.String()})
	return prompt
}
