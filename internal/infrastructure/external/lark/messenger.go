package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// Messenger implements port.ChatNotifier by posting to the configured chat
type Messenger struct {
	client *Client
	logger *zap.Logger
}

// NewMessenger creates a new Lark chat notifier
func NewMessenger(client *Client, logger *zap.Logger) *Messenger {
	return &Messenger{
		client: client,
		logger: logger,
	}
}

// postContent is the body of a "post" message
type postContent struct {
	ZhCN postBody `json:"zh_cn"`
}

type postBody struct {
	Title   string       `json:"title"`
	Content [][]postNode `json:"content"`
}

type postNode struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

func buildPost(title, body string) (string, error) {
	content := postContent{ZhCN: postBody{
		Title:   title,
		Content: [][]postNode{{{Tag: "text", Text: body}}},
	}}
	data, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to marshal post content: %w", err)
	}
	return string(data), nil
}

// Notify sends a rich-text post to the chat
func (m *Messenger) Notify(ctx context.Context, title, body string) error {
	if title == "" {
		return fmt.Errorf("title cannot be empty")
	}
	chatID := m.client.ChatID()
	if chatID == "" {
		return fmt.Errorf("chat id is not configured")
	}

	content, err := buildPost(title, body)
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType("post").
			Content(content).
			Build()).
		Build()

	resp, err := m.client.GetClient().Im.Message.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("chat_id", chatID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("chat_id", chatID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Debug("Message sent",
		zap.String("message_id", messageID),
		zap.String("chat_id", chatID))
	return nil
}

var _ port.ChatNotifier = (*Messenger)(nil)
