// Файл: pkg/telegram/service.go
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// --- ОСНОВНОЙ ИНТЕРФЕЙС СЕРВИСА ---

type ServiceInterface interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)

	SendMessageEx(ctx context.Context, chatID int64, text string, options ...MessageOption) (int, error)

	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error

	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) error
	EditOrSendMessage(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) (int, error)
	EditMessageReplyMarkup(ctx context.Context, chatID int64, messageID int, rows [][]InlineKeyboardButton) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	PinChatMessage(ctx context.Context, chatID int64, messageID int) error
	UnpinChatMessage(ctx context.Context, chatID int64, messageID int) error

	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// --- СТРУКТУРА СЕРВИСА ---

type Service struct {
	botToken   string
	httpClient *http.Client
	debug      bool
}

func NewService(botToken string) ServiceInterface {
	debug := strings.Contains(strings.ToLower(os.Getenv("DEBUG")), "telegram")

	return &Service{
		botToken:   botToken,
		httpClient: &http.Client{Timeout: 65 * time.Second},
		debug:      debug,
	}
}

// --- ВХОДЯЩИЕ ОБНОВЛЕНИЯ (long polling) ---

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Message struct {
	MessageID int         `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Caption   string      `json:"caption,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int    `json:"file_size,omitempty"`
}

// --- ОСНОВНЫЕ СТРУКТУРЫ ЗАПРОСОВ ---

type sendMessageRequest struct {
	ChatID      int64       `json:"chat_id"`
	Text        string      `json:"text"`
	ParseMode   string      `json:"parse_mode,omitempty"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type ReplyKeyboardButton struct {
	Text string `json:"text"`
}

type replyKeyboardMarkup struct {
	Keyboard        [][]ReplyKeyboardButton `json:"keyboard"`
	ResizeKeyboard  bool                    `json:"resize_keyboard"`
	OneTimeKeyboard bool                    `json:"one_time_keyboard,omitempty"`
}

type replyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

type callbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

type editMessageTextRequest struct {
	ChatID      int64       `json:"chat_id"`
	MessageID   int         `json:"message_id"`
	Text        string      `json:"text"`
	ParseMode   string      `json:"parse_mode,omitempty"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

type MessageOption func(*sendMessageRequest)

func WithKeyboard(rows [][]InlineKeyboardButton) MessageOption {
	return func(req *sendMessageRequest) {
		if len(rows) > 0 {
			req.ReplyMarkup = inlineKeyboardMarkup{InlineKeyboard: rows}
		}
	}
}

func WithMarkdownV2() MessageOption {
	return func(req *sendMessageRequest) {
		req.ParseMode = "MarkdownV2"
	}
}

func WithHTML() MessageOption {
	return func(req *sendMessageRequest) {
		req.ParseMode = "HTML"
	}
}

func WithReplyKeyboard(rows [][]ReplyKeyboardButton) MessageOption {
	return func(req *sendMessageRequest) {
		if len(rows) > 0 {
			req.ReplyMarkup = replyKeyboardMarkup{
				Keyboard:       rows,
				ResizeKeyboard: true,
			}
		}
	}
}

func WithRemoveKeyboard() MessageOption {
	return func(req *sendMessageRequest) {
		req.ReplyMarkup = replyKeyboardRemove{RemoveKeyboard: true}
	}
}

// --- ОТПРАВКА И РЕДАКТИРОВАНИЕ ---

func (s *Service) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	escapedText := EscapeTextForMarkdownV2(text)
	return s.SendMessageEx(ctx, chatID, escapedText, WithMarkdownV2())
}

func (s *Service) SendMessageEx(ctx context.Context, chatID int64, text string, options ...MessageOption) (int, error) {
	reqPayload := &sendMessageRequest{
		ChatID: chatID,
		Text:   text,
	}
	for _, opt := range options {
		opt(reqPayload)
	}

	var result struct {
		MessageID int `json:"message_id"`
	}
	if err := s.sendRequest(ctx, "sendMessage", reqPayload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

func (s *Service) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) error {
	editReq := &editMessageTextRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}

	tempSendReq := &sendMessageRequest{}
	for _, opt := range options {
		opt(tempSendReq)
	}
	editReq.ParseMode = tempSendReq.ParseMode
	editReq.ReplyMarkup = tempSendReq.ReplyMarkup

	return s.sendRequest(ctx, "editMessageText", editReq, nil)
}

// EditOrSendMessage редактирует сообщение, а при нулевом messageID отправляет новое.
// Возвращает итоговый messageID, чтобы вызывающий код мог продолжать вести одно окно.
func (s *Service) EditOrSendMessage(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) (int, error) {
	if messageID == 0 {
		return s.SendMessageEx(ctx, chatID, text, options...)
	}
	if err := s.EditMessageText(ctx, chatID, messageID, text, options...); err != nil {
		// Сообщение могли удалить руками. Тогда отправляем заново.
		if strings.Contains(err.Error(), "message to edit not found") {
			return s.SendMessageEx(ctx, chatID, text, options...)
		}
		return messageID, err
	}
	return messageID, nil
}

func (s *Service) EditMessageReplyMarkup(ctx context.Context, chatID int64, messageID int, rows [][]InlineKeyboardButton) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	if len(rows) > 0 {
		payload["reply_markup"] = inlineKeyboardMarkup{InlineKeyboard: rows}
	} else {
		payload["reply_markup"] = inlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{}}
	}
	return s.sendRequest(ctx, "editMessageReplyMarkup", payload, nil)
}

func (s *Service) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	return s.sendRequest(ctx, "deleteMessage", payload, nil)
}

func (s *Service) PinChatMessage(ctx context.Context, chatID int64, messageID int) error {
	payload := map[string]interface{}{
		"chat_id":              chatID,
		"message_id":           messageID,
		"disable_notification": true,
	}
	return s.sendRequest(ctx, "pinChatMessage", payload, nil)
}

func (s *Service) UnpinChatMessage(ctx context.Context, chatID int64, messageID int) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	return s.sendRequest(ctx, "unpinChatMessage", payload, nil)
}

// Ответ на callback-кнопку
func (s *Service) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error {
	if callbackQueryID == "" {
		return fmt.Errorf("callbackQueryID не может быть пустым")
	}

	reqPayload := callbackQueryRequest{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	}
	return s.sendRequest(ctx, "answerCallbackQuery", reqPayload, nil)
}

// GetUpdates — long polling. Таймаут передаётся Telegram, HTTP-клиент держит запас сверху.
func (s *Service) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]interface{}{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}

	var updates []Update
	if err := s.sendRequest(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// DownloadFile скачивает файл по file_id (фото накладных для распознавания).
func (s *Service) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := s.sendRequest(ctx, "getFile", map[string]interface{}{"file_id": fileID}, &file); err != nil {
		return nil, err
	}

	fileURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", s.botToken, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка скачивания файла из Telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file API вернул статус %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// --- ВСПОМОГАТЕЛЬНЫЕ ФУНКЦИИ ---

func (s *Service) sendRequest(ctx context.Context, methodName string, payload interface{}, out interface{}) error {
	if s.botToken == "" {
		return fmt.Errorf("токен Telegram-бота не установлен")
	}

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/%s", s.botToken, methodName)

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка отправки запроса в Telegram: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if s.debug {
		fmt.Printf("[telegram] %s\nRequest: %s\nResponse: %s\n\n", methodName, string(reqBody), string(body))
	}

	// Telegram всегда возвращает 200 OK, даже при ошибках
	var telegramResp struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description,omitempty"`
		ErrorCode   int             `json:"error_code,omitempty"`
		Result      json.RawMessage `json:"result,omitempty"`
	}

	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return fmt.Errorf("ошибка декодирования ответа Telegram API: %w", err)
	}

	if !telegramResp.OK {
		return fmt.Errorf("telegram API ошибка (%s): код %d, описание: %s", methodName, telegramResp.ErrorCode, telegramResp.Description)
	}

	if out != nil && len(telegramResp.Result) > 0 {
		if err := json.Unmarshal(telegramResp.Result, out); err != nil {
			return fmt.Errorf("ошибка декодирования результата Telegram API: %w", err)
		}
	}

	return nil
}

// --- ЭКРАНИРОВАНИЕ ДЛЯ MARKDOWNV2 ---

func EscapeTextForMarkdownV2(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
		"(", "\\(", ")", "\\)", "\\", "\\\\",
		"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+",
		"-", "\\-", "=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
	)
	return replacer.Replace(text)
}
