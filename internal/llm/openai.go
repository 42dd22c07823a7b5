package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

// OpenAIClient calls the OpenAI Chat Completions and Files APIs.
type OpenAIClient struct {
	model  openai.ChatModel
	client *openai.Client
}

// NewOpenAIClient builds a client against api.openai.com, or baseURL when set.
// The SDK's automatic retries are turned off: a failed call surfaces as-is.
func NewOpenAIClient(apiKey string, model openai.ChatModel, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	cli := openai.NewClient(opts...)
	return &OpenAIClient{
		model:  model,
		client: &cli,
	}, nil
}

// Model returns the chat model used for every call.
func (c *OpenAIClient) Model() string {
	return string(c.model)
}

// Generate streams the answer to a composed prompt.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) Stream {
	if c == nil || c.client == nil {
		return NewFailingStream(fmt.Errorf("%w: nil openai client", ErrGeneration))
	}
	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	return &openAIStream{stream: stream}
}

// UploadFile stores the document in the provider's file store. The bytes are
// staged in a temporary file that is removed once the call returns.
func (c *OpenAIClient) UploadFile(ctx context.Context, name string, content []byte) (FileHandle, error) {
	if c == nil || c.client == nil {
		return FileHandle{}, fmt.Errorf("%w: nil openai client", ErrUpload)
	}
	tmp, err := os.CreateTemp("", "doc-chat-*.pdf")
	if err != nil {
		return FileHandle{}, fmt.Errorf("%w: stage file: %w", ErrUpload, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(content); err != nil {
		return FileHandle{}, fmt.Errorf("%w: stage file: %w", ErrUpload, err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return FileHandle{}, fmt.Errorf("%w: stage file: %w", ErrUpload, err)
	}

	obj, err := c.client.Files.New(ctx, openai.FileNewParams{
		File:    tmp,
		Purpose: openai.FilePurposeUserData,
	})
	if err != nil {
		return FileHandle{}, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if obj == nil || obj.ID == "" {
		return FileHandle{}, fmt.Errorf("%w: provider returned no file id", ErrUpload)
	}
	return FileHandle{
		URI:      obj.ID,
		MIMEType: "application/pdf",
		Name:     name,
	}, nil
}

// DeleteFile removes the document from the provider's file store.
func (c *OpenAIClient) DeleteFile(ctx context.Context, file FileHandle) error {
	if c == nil || c.client == nil {
		return errors.New("nil openai client")
	}
	if file.URI == "" {
		return nil
	}
	if _, err := c.client.Files.Delete(ctx, file.URI); err != nil {
		return fmt.Errorf("delete file %s: %w", file.URI, err)
	}
	return nil
}

// CreateSession opens a conversation whose first turn references the file.
func (c *OpenAIClient) CreateSession(_ context.Context, file FileHandle) (ChatSession, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("nil openai client")
	}
	if file.URI == "" {
		return nil, fmt.Errorf("%w: file handle has no uri", ErrNoSession)
	}
	seed := openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
			FileID: openai.String(file.URI),
		}),
	})
	return &OpenAIChatSession{
		client:  c,
		history: []openai.ChatCompletionMessageParamUnion{seed},
	}, nil
}

// OpenAIChatSession keeps the turns of one file-grounded conversation.
type OpenAIChatSession struct {
	client  *OpenAIClient
	history []openai.ChatCompletionMessageParamUnion
}

// Send adds a user turn and returns the model's reply. A failed turn is not
// kept in the history.
func (s *OpenAIChatSession) Send(ctx context.Context, message string) (string, error) {
	if s == nil || s.client == nil || s.client.client == nil {
		return "", ErrNoSession
	}
	messages := append(s.history[:len(s.history):len(s.history)], openai.UserMessage(message))
	resp, err := s.client.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    s.client.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: openai: no choices returned", ErrGeneration)
	}
	answer := resp.Choices[0].Message.Content
	s.history = append(messages, openai.AssistantMessage(answer))
	return answer, nil
}

// Turns reports how many messages the conversation holds, including the file seed.
func (s *OpenAIChatSession) Turns() int {
	if s == nil {
		return 0
	}
	return len(s.history)
}

type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	cur    string
	done   bool
}

func (s *openAIStream) Next() bool {
	if s.done {
		return false
	}
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.cur = chunk.Choices[0].Delta.Content
		return true
	}
	s.done = true
	s.cur = ""
	return false
}

func (s *openAIStream) Current() string { return s.cur }

func (s *openAIStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return nil
}

func (s *openAIStream) Close() error {
	s.done = true
	return s.stream.Close()
}
