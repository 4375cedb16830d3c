package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yorizo/yorizo/internal/llm"
	"github.com/yorizo/yorizo/internal/logging"
	"github.com/yorizo/yorizo/internal/retriever"
)

// ChatClient produces a completion for a conversation
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Retriever finds the documents relevant to a question
type Retriever interface {
	Query(ctx context.Context, text string, k int, filters retriever.Filters) ([]retriever.Result, error)
}

// ChatInput is one consultation turn
type ChatInput struct {
	Question  string
	History   []string // earlier user turns, oldest first
	OwnerKey  string
	CompanyID string
	TopK      int
}

// Answer is the consultant's reply with the material it was grounded on
type Answer struct {
	Answer    string   `json:"answer"`
	Contexts  []string `json:"contexts"`
	Citations []string `json:"citations"`
}

// Consultant answers business questions using retrieved documents as context
type Consultant struct {
	chat      ChatClient
	retriever Retriever
	topK      int
	logger    *zap.Logger
}

// NewConsultant creates a new consultant
func NewConsultant(chat ChatClient, r Retriever, topK int, logger *zap.Logger) *Consultant {
	if topK < 1 {
		topK = 5
	}
	return &Consultant{
		chat:      chat,
		retriever: r,
		topK:      topK,
		logger:    logging.OrNop(logger),
	}
}

// Answer retrieves context for the question and asks the chat model.
// Retrieval errors, including an unavailable embedding provider, are returned
// as is; the consultant never answers without trying retrieval first.
func (c *Consultant) Answer(ctx context.Context, in ChatInput) (*Answer, error) {
	k := in.TopK
	if k < 1 {
		k = c.topK
	}

	results, err := c.retriever.Query(ctx, in.Question, k, retriever.Filters{
		OwnerKey:  in.OwnerKey,
		CompanyID: in.CompanyID,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	contexts := make([]string, len(results))
	citations := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Text
		citations[i] = r.Title
		if citations[i] == "" {
			citations[i] = r.ID
		}
	}

	reply, err := c.chat.Chat(ctx, buildMessages(in, contexts))
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	c.logger.Info("consultation answered",
		zap.String("owner_key", in.OwnerKey),
		zap.Int("contexts", len(contexts)),
	)

	return &Answer{
		Answer:    reply,
		Contexts:  contexts,
		Citations: citations,
	}, nil
}

const systemPrompt = "あなたは日本の小規模事業者を支援する経営相談AI『Yorizo』です。" +
	"参考情報を踏まえて日本語で答えてください。" +
	"参考情報にないことは断定せず、具体的な次の一歩を提案してください。"

// buildMessages builds the conversation sent to the chat model
func buildMessages(in ChatInput, contexts []string) []llm.Message {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "system", Content: buildContext(contexts)},
	}

	for _, turn := range in.History {
		messages = append(messages, llm.Message{Role: "user", Content: turn})
	}

	return append(messages, llm.Message{Role: "user", Content: in.Question})
}

// buildContext builds the reference block from retrieved texts
func buildContext(contexts []string) string {
	if len(contexts) == 0 {
		return "参考情報はありません。"
	}

	var sb strings.Builder
	sb.WriteString("参考情報:\n")
	for i, text := range contexts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "【参考情報%d】\n%s", i+1, text)
	}
	return sb.String()
}
