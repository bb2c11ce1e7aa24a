package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/esgrag/esgrag/rag/engine"
	"github.com/esgrag/esgrag/rag/types"
	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// chatTopK is how many chunks ground an answer.
const chatTopK = 5

// historyWindow is how many recent messages the prompt carries.
const historyWindow = 4

const chatSystemPrompt = `당신은 기업 지속가능경영 보고서 전문가입니다.
제공된 문서 내용을 바탕으로 정확하고 도움이 되는 답변을 제공해주세요.

답변 시 다음 사항을 준수해주세요:
1. 제공된 문서 내용에 기반하여 답변하세요
2. 정확한 정보를 제공하고, 불확실한 경우 그렇게 말씀해주세요
3. 가능하면 구체적인 수치나 사례를 포함해주세요
4. 답변은 명확하고 이해하기 쉽게 작성해주세요
5. 한국어로 답변해주세요`

const noDocumentsAnswer = "관련 문서를 찾을 수 없습니다. 다른 질문을 해주세요."

// Source is one citation backing an answer.
type Source struct {
	Index     int    `json:"index"`
	Page      string `json:"page"`
	Section   string `json:"section"`
	ChunkType string `json:"chunk_type"`
	Content   string `json:"content"`
	Keywords  string `json:"keywords"`
	Metrics   string `json:"metrics"`
}

// ChatResponse is a generated answer with its citations.
type ChatResponse struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	SessionID string   `json:"session_id"`
}

// ChatTurn is one question/answer pair from a session.
type ChatTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type chatSession struct {
	messages []openai.ChatCompletionMessage
}

// ChatEngine answers questions over a collection, grounding each
// answer in hybrid-search results and keeping per-session history in
// memory.
type ChatEngine struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32

	mu       sync.Mutex
	sessions map[string]*chatSession
}

// NewChatEngine creates a chat engine on top of an OpenAI-compatible
// chat model.
func NewChatEngine(client *openai.Client, model string, maxTokens int, temperature float32) *ChatEngine {
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &ChatEngine{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		sessions:    map[string]*chatSession{},
	}
}

// Chat retrieves the best-matching chunks for the message, asks the
// model for an answer grounded in them, records the turn and returns
// the answer with its sources. An empty session ID starts a new
// session. A collection with no relevant documents yields a fixed
// answer without calling the model.
func (ce *ChatEngine) Chat(ctx context.Context, kb *PersistentKB, message, sessionID string) (ChatResponse, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	docs, err := kb.Search(message, chatTopK)
	if err != nil && !errors.Is(err, engine.ErrNotReady) {
		return ChatResponse{}, fmt.Errorf("failed to search collection: %w", err)
	}
	if len(docs) == 0 {
		return ChatResponse{Answer: noDocumentsAnswer, Sources: []Source{}, SessionID: sessionID}, nil
	}

	contents := make([]string, 0, len(docs))
	for _, d := range docs {
		contents = append(contents, d.Content)
	}

	prompt := buildPrompt(strings.Join(contents, "\n\n"), ce.sessionHistory(sessionID), message)

	resp, err := ce.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: ce.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: chatSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   ce.maxTokens,
		Temperature: ce.temperature,
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("chat completion returned no choices")
	}
	answer := resp.Choices[0].Message.Content

	ce.recordTurn(sessionID, message, answer)

	return ChatResponse{
		Answer:    answer,
		Sources:   buildSources(docs),
		SessionID: sessionID,
	}, nil
}

// ClearSession drops a session's history.
func (ce *ChatEngine) ClearSession(sessionID string) {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	delete(ce.sessions, sessionID)
}

// History returns a session's question/answer pairs.
func (ce *ChatEngine) History(sessionID string) []ChatTurn {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	history := []ChatTurn{}
	session, ok := ce.sessions[sessionID]
	if !ok {
		return history
	}

	msgs := session.messages
	for i := 0; i+1 < len(msgs); i += 2 {
		history = append(history, ChatTurn{
			Question: msgs[i].Content,
			Answer:   msgs[i+1].Content,
		})
	}
	return history
}

func (ce *ChatEngine) sessionHistory(sessionID string) string {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	session, ok := ce.sessions[sessionID]
	if !ok || len(session.messages) == 0 {
		return ""
	}

	msgs := session.messages
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		role := "어시스턴트"
		if m.Role == openai.ChatMessageRoleUser {
			role = "사용자"
		}
		lines = append(lines, role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func (ce *ChatEngine) recordTurn(sessionID, question, answer string) {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	session, ok := ce.sessions[sessionID]
	if !ok {
		session = &chatSession{}
		ce.sessions[sessionID] = session
	}
	session.messages = append(session.messages,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: answer},
	)
}

func buildPrompt(contextBlock, history, question string) string {
	var b strings.Builder
	b.WriteString("참고 문서:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\n대화 기록:\n")
	b.WriteString(history)
	b.WriteString("\n\n질문: ")
	b.WriteString(question)
	b.WriteString("\n\n답변:")
	return b.String()
}

func buildSources(docs []types.Result) []Source {
	sources := make([]Source, 0, len(docs))
	for i, d := range docs {
		sources = append(sources, Source{
			Index:     i + 1,
			Page:      metadataOr(d.Metadata, "page", "Unknown"),
			Section:   metadataOr(d.Metadata, "section", "Unknown"),
			ChunkType: metadataOr(d.Metadata, "chunk_type", "Unknown"),
			Content:   preview(d.Content, 300),
			Keywords:  d.Metadata["keywords"],
			Metrics:   d.Metadata["metrics"],
		})
	}
	return sources
}

func metadataOr(metadata map[string]string, key, fallback string) string {
	if v := metadata[key]; v != "" {
		return v
	}
	return fallback
}

// preview truncates to limit runes, not bytes.
func preview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
