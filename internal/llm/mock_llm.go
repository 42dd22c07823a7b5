package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockGenerator is a mock implementation of Generator using testify/mock.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) Stream {
	args := m.Called(ctx, prompt)
	return args.Get(0).(Stream)
}

// MockFileChat is a mock implementation of FileChat using testify/mock.
type MockFileChat struct {
	mock.Mock
}

func (m *MockFileChat) UploadFile(ctx context.Context, name string, content []byte) (FileHandle, error) {
	args := m.Called(ctx, name, content)
	return args.Get(0).(FileHandle), args.Error(1)
}

func (m *MockFileChat) CreateSession(ctx context.Context, file FileHandle) (ChatSession, error) {
	args := m.Called(ctx, file)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ChatSession), args.Error(1)
}

func (m *MockFileChat) DeleteFile(ctx context.Context, file FileHandle) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

// MockChatSession is a mock implementation of ChatSession using testify/mock.
type MockChatSession struct {
	mock.Mock
}

func (m *MockChatSession) Send(ctx context.Context, message string) (string, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Error(1)
}
