// Файл: internal/controllers/telegram/controller_test.go
package telegram

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"resto-backoffice/internal/authz"
	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/services"
	"resto-backoffice/pkg/config"
	"resto-backoffice/pkg/fsm"
	"resto-backoffice/pkg/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBot пишет хронологию вызовов: что отправлено, что отредактировано,
// что удалено.
type fakeBot struct {
	mu      sync.Mutex
	nextID  int
	events  []string
	sends   []string
	edits   map[int][]string
	deletes []int
}

func newFakeBot() *fakeBot {
	return &fakeBot{nextID: 100, edits: make(map[int][]string)}
}

func (b *fakeBot) send(text string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.events = append(b.events, "send")
	b.sends = append(b.sends, text)
	return b.nextID, nil
}

func (b *fakeBot) SendMessage(_ context.Context, _ int64, text string) (int, error) {
	return b.send(text)
}

func (b *fakeBot) SendMessageEx(_ context.Context, _ int64, text string, _ ...telegram.MessageOption) (int, error) {
	return b.send(text)
}

func (b *fakeBot) AnswerCallbackQuery(_ context.Context, _ string, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "answer")
	return nil
}

func (b *fakeBot) EditMessageText(_ context.Context, _ int64, messageID int, text string, _ ...telegram.MessageOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "edit")
	b.edits[messageID] = append(b.edits[messageID], text)
	return nil
}

func (b *fakeBot) EditOrSendMessage(ctx context.Context, chatID int64, messageID int, text string, options ...telegram.MessageOption) (int, error) {
	if messageID == 0 {
		return b.send(text)
	}
	if err := b.EditMessageText(ctx, chatID, messageID, text, options...); err != nil {
		return 0, err
	}
	return messageID, nil
}

func (b *fakeBot) EditMessageReplyMarkup(context.Context, int64, int, [][]telegram.InlineKeyboardButton) error {
	return nil
}

func (b *fakeBot) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "delete")
	b.deletes = append(b.deletes, messageID)
	return nil
}

func (b *fakeBot) PinChatMessage(context.Context, int64, int) error   { return nil }
func (b *fakeBot) UnpinChatMessage(context.Context, int64, int) error { return nil }

func (b *fakeBot) GetUpdates(context.Context, int64, time.Duration) ([]telegram.Update, error) {
	return nil, nil
}

func (b *fakeBot) DownloadFile(context.Context, string) ([]byte, error) { return nil, nil }

func (b *fakeBot) snapshot() (sends, edits, deletes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, texts := range b.edits {
		edits += len(texts)
	}
	return len(b.sends), edits, len(b.deletes)
}

type fakeGatekeeper struct {
	authz.GatekeeperInterface
}

func (fakeGatekeeper) Can(context.Context, int64, string) bool { return true }
func (fakeGatekeeper) IsAdmin(context.Context, int64) bool     { return false }

type fakeUserContext struct {
	services.UserContextServiceInterface
}

func (fakeUserContext) Resolve(context.Context, int64) (*entities.UserContext, error) {
	return &entities.UserContext{EmployeeName: "Иванова Анна", FirstName: "Анна"}, nil
}

type fakeWriteoff struct {
	services.WriteoffServiceInterface
}

func (fakeWriteoff) ListAccounts(context.Context, string) ([]entities.PosEntity, error) {
	return nil, nil
}

func (fakeWriteoff) FormatDraft(p *entities.PendingWriteoff) string {
	return fmt.Sprintf("Позиций: %d", len(p.Items))
}

func newTestController(bot *fakeBot) *Controller {
	return NewController(Deps{
		Bot:         bot,
		Sessions:    fsm.NewMemoryStorage(),
		Gatekeeper:  fakeGatekeeper{},
		UserContext: fakeUserContext{},
		Writeoff:    fakeWriteoff{},
		Cfg:         &config.Config{},
		Logger:      zap.NewNop(),
	})
}

// Шаг количества дважды подряд: черновик оба раза правится в одном и том же
// сообщении, введённые пользователем числа удаляются, новых сообщений нет.
func TestQtyStepKeepsSingleWindow(t *testing.T) {
	ctx := context.Background()
	bot := newFakeBot()
	c := newTestController(bot)
	const chatID int64 = 500
	const promptID = 10

	seedQtyStep := func(product string) {
		session, err := c.sessions.Load(ctx, chatID)
		require.NoError(t, err)
		session.State = stateWoQty
		if !session.Get("wo_draft", new(entities.PendingWriteoff)) {
			require.NoError(t, session.Set("wo_draft", &entities.PendingWriteoff{AuthorChat: chatID}))
			require.NoError(t, session.Set("prompt_msg", promptID))
		}
		require.NoError(t, session.Set("wo_item", &entities.WriteoffItem{ProductID: product, ProductName: product}))
		require.NoError(t, c.sessions.Save(ctx, chatID, session))
	}

	sendQty := func(msgID int, text string) {
		session, err := c.sessions.Load(ctx, chatID)
		require.NoError(t, err)
		msg := &telegram.Message{MessageID: msgID, Chat: telegram.Chat{ID: chatID}, Text: text}
		require.NoError(t, c.routeMessage(ctx, msg, session))
	}

	seedQtyStep("молоко")
	sendQty(11, "2")

	seedQtyStep("сыр")
	sendQty(12, "1.5")

	sends, edits, deletes := bot.snapshot()
	assert.Equal(t, 0, sends, "переходы шагов не плодят новых сообщений")
	assert.Equal(t, 2, edits, "черновик правится в существующем окне")
	assert.Equal(t, []int{11, 12}, bot.deletes, "ввод пользователя удаляется после разбора")
	assert.Equal(t, 2, deletes)
	require.Len(t, bot.edits[promptID], 2, "оба раза правится одно и то же сообщение")
	assert.Contains(t, bot.edits[promptID][1], "Позиций: 2")

	session, err := c.sessions.Load(ctx, chatID)
	require.NoError(t, err)
	var draft entities.PendingWriteoff
	require.True(t, session.Get("wo_draft", &draft))
	assert.Len(t, draft.Items, 2)
}

// Ошибка валидации тоже правит существующее окно, а не шлёт новое сообщение.
func TestQtyValidationEditsPrompt(t *testing.T) {
	ctx := context.Background()
	bot := newFakeBot()
	c := newTestController(bot)
	const chatID int64 = 501

	session, err := c.sessions.Load(ctx, chatID)
	require.NoError(t, err)
	session.State = stateWoQty
	require.NoError(t, session.Set("wo_draft", &entities.PendingWriteoff{}))
	require.NoError(t, session.Set("wo_item", &entities.WriteoffItem{ProductName: "молоко"}))
	require.NoError(t, session.Set("prompt_msg", 10))
	require.NoError(t, c.sessions.Save(ctx, chatID, session))

	msg := &telegram.Message{MessageID: 11, Chat: telegram.Chat{ID: chatID}, Text: "не число"}
	require.NoError(t, c.routeMessage(ctx, msg, session))

	sends, edits, deletes := bot.snapshot()
	assert.Equal(t, 0, sends)
	assert.Equal(t, 1, edits)
	assert.Equal(t, 1, deletes)
	require.Len(t, bot.edits[10], 1)
	assert.Contains(t, bot.edits[10][0], "⚠️")
}

// Спиннер кнопки гасится до запуска обработчика.
func TestCallbackAnsweredBeforeHandling(t *testing.T) {
	ctx := context.Background()
	bot := newFakeBot()
	c := newTestController(bot)

	cb := &telegram.CallbackQuery{
		ID:      "cb-1",
		Data:    "wo_more",
		Message: &telegram.Message{MessageID: 20, Chat: telegram.Chat{ID: 502}},
	}
	require.NoError(t, c.handleCallback(ctx, cb))

	bot.mu.Lock()
	events := append([]string(nil), bot.events...)
	bot.mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, "answer", events[0])
	assert.Contains(t, events, "send", "после подтверждения обработчик показал вопрос")
}

func TestParseQty(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"1.5", true},
		{"1,5", true},
		{"100000", true},
		{"0", false},
		{"-2", false},
		{"абв", false},
		{"100001", false},
		{"9999999", false},
	}
	for _, tc := range cases {
		_, err := parseQty(tc.in)
		if tc.ok {
			assert.NoError(t, err, tc.in)
		} else {
			assert.Error(t, err, tc.in)
		}
	}
}

// Карта чат-мьютексов не растёт с числом обслуженных чатов.
func TestChatLocksReleased(t *testing.T) {
	c := newTestController(newFakeBot())

	var wg sync.WaitGroup
	for chat := int64(1); chat <= 200; chat++ {
		wg.Add(1)
		go func(chat int64) {
			defer wg.Done()
			l := c.acquireChat(chat)
			c.releaseChat(chat, l)
		}(chat)
	}
	wg.Wait()

	c.chatMu.Lock()
	defer c.chatMu.Unlock()
	assert.Empty(t, c.chatLocks)
}
