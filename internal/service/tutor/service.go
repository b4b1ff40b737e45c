package tutor

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/companion-academy/backend/internal/config"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

// Roles of a lesson turn.
const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
)

const historyLimit = 10

// Turn is one exchange of a lesson, supplied by the client.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Service answers students in the voice of a companion.
type Service struct {
	cfg    config.AIConfig
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *zap.Logger
}

// NewService creates a tutor backed by the configured chat model.
func NewService(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile tutor chain: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:    cfg,
		chain:  runnable,
		logger: logger,
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Reply generates the tutor's answer to message.
func (s *Service) Reply(ctx context.Context, c companion.Companion, history []Turn, message string) (*schema.Message, error) {
	response, err := s.chain.Invoke(ctx, BuildChainInput(c, history, message))
	if err != nil {
		return nil, fmt.Errorf("failed to run tutor chain: %w", err)
	}

	s.logger.Info("tutor reply generated",
		zap.String("companion", c.ID),
		zap.Int("length", len(response.Content)),
	)
	return response, nil
}

// Stream streams the tutor's answer to message.
func (s *Service) Stream(ctx context.Context, c companion.Companion, history []Turn, message string) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	stream, err := s.chain.Stream(ctx, BuildChainInput(c, history, message))
	if err != nil {
		return nil, fmt.Errorf("failed to stream tutor chain output: %w", err)
	}
	return stream, nil
}

// BuildChainInput assembles the prompt variables for one reply.
func BuildChainInput(c companion.Companion, history []Turn, message string) map[string]any {
	return map[string]any{
		"system":  BuildSystemPrompt(c),
		"history": buildHistoryMessages(c, history),
		"query":   message,
	}
}

// buildHistoryMessages keeps the latest turns, led by the lesson greeting.
func buildHistoryMessages(c companion.Companion, turns []Turn) []*schema.Message {
	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx+1)
	history = append(history, schema.AssistantMessage(FirstMessage(c), nil))
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case RoleStudent:
			history = append(history, schema.UserMessage(turn.Content))
		case RoleTutor:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
