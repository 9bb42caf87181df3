package backendapi

import (
	"context"
	"net/http"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
)

const chatPrefix = "/api/v1/chat"

// ChatClient calls the natural-language-to-SQL endpoint.
type ChatClient struct {
	c *caller
}

var _ ports.QueryEngine = (*ChatClient)(nil)

func NewChatClient(cfg Config) *ChatClient {
	return &ChatClient{c: newCaller(cfg, chatPrefix)}
}

func (c *ChatClient) Ask(ctx context.Context, question string) (*domain.ChatAnswer, error) {
	body, err := jsonBody(map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	var out domain.ChatAnswer
	err = c.c.do(ctx, request{
		op:          "ask",
		method:      http.MethodPost,
		path:        "/vanna/ask",
		body:        body,
		contentType: "application/json",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
