package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/jdelaire/hostctl/core/chat"
)

const parseMode = "HTML"

type sendMessageRequest struct {
	ChatID      int64          `json:"chat_id"`
	Text        string         `json:"text"`
	ParseMode   string         `json:"parse_mode"`
	ReplyMarkup *replyKeyboard `json:"reply_markup,omitempty"`
}

type replyKeyboard struct {
	Keyboard       [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
	OneTime        bool               `json:"one_time_keyboard"`
	IsPersistent   bool               `json:"is_persistent"`
}

type keyboardButton struct {
	Text string `json:"text"`
}

// SendText sends an HTML-formatted message, retrying per the send policy.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.sendMessage(ctx, sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: parseMode,
	})
}

// SendTextWithKeyboard sends a message that replaces the chat's reply keyboard.
func (c *Client) SendTextWithKeyboard(ctx context.Context, chatID int64, text string, kb chat.Keyboard) error {
	return c.sendMessage(ctx, sendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   parseMode,
		ReplyMarkup: toReplyKeyboard(kb),
	})
}

func toReplyKeyboard(kb chat.Keyboard) *replyKeyboard {
	rows := make([][]keyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]keyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, keyboardButton{Text: label})
		}
		rows = append(rows, buttons)
	}
	return &replyKeyboard{
		Keyboard:       rows,
		ResizeKeyboard: kb.Resize,
		OneTime:        kb.OneTime,
		IsPersistent:   kb.Persistent,
	}
}

func (c *Client) sendMessage(ctx context.Context, payload sendMessageRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendMessage: %w", err)
	}

	return c.withRetry(ctx, "sendMessage", func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodPost, "sendMessage", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		_, err = c.do(req, "sendMessage")
		return err
	})
}

// SendAttachment uploads data as a photo. Payloads over
// chat.MaxAttachmentBytes are replaced by a text notice.
func (c *Client) SendAttachment(ctx context.Context, chatID int64, data []byte, caption string) error {
	if len(data) > chat.MaxAttachmentBytes {
		c.logger.Warn("attachment too large", "chat_id", chatID, "bytes", len(data), "limit", chat.MaxAttachmentBytes)
		return c.SendText(ctx, chatID, fmt.Sprintf("File too large: %.1f MB (limit %.0f MB).",
			megabytes(len(data)), megabytes(chat.MaxAttachmentBytes)))
	}

	body, contentType, err := c.photoForm(chatID, data, caption)
	if err != nil {
		return err
	}

	return c.withRetry(ctx, "sendPhoto", func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodPost, "sendPhoto", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		_, err = c.do(req, "sendPhoto")
		return err
	})
}

func (c *Client) photoForm(chatID int64, data []byte, caption string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return nil, "", fmt.Errorf("write chat_id: %w", err)
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return nil, "", fmt.Errorf("write caption: %w", err)
		}
	}

	mediaType := http.DetectContentType(data)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename="%s"`, c.attachmentName(mediaType)))
	h.Set("Content-Type", mediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write photo part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

func (c *Client) attachmentName(mediaType string) string {
	ext := ".bin"
	switch mediaType {
	case "image/png":
		ext = ".png"
	case "image/jpeg":
		ext = ".jpg"
	case "image/gif":
		ext = ".gif"
	case "image/bmp":
		ext = ".bmp"
	}
	return "screenshot_" + c.now().Format("20060102_150405") + ext
}

func (c *Client) withRetry(ctx context.Context, method string, op func(ctx context.Context) error) error {
	p := c.policy
	p.OnFailure = func(attempt int, wait time.Duration, err error) {
		reason := "error"
		if errors.Is(err, chat.ErrRateLimited) {
			reason = "rate_limited"
		}
		c.metrics.SendFailure(method, reason)
		c.logger.Warn("send failed",
			"method", method, "attempt", attempt, "reason", reason, "retry_in", wait, "error", err)
	}

	return p.Do(ctx, func(ctx context.Context) error {
		c.metrics.SendAttempt(method)
		return op(ctx)
	})
}

func megabytes(n int) float64 {
	return float64(n) / 1024 / 1024
}
