package reg

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigilgate.ru/telegram-bot/internal/chat"
	"sigilgate.ru/telegram-bot/internal/fsm"
	"sigilgate.ru/telegram-bot/internal/registry"
	"sigilgate.ru/telegram-bot/internal/roles"
)

// fakeMessenger накапливает отправленные сообщения; потокобезопасен,
// потому что уведомления администраторам уходят из отдельной горутины.
type fakeMessenger struct {
	mu    sync.Mutex
	sent  []sentMessage
	edits []sentMessage
}

type sentMessage struct {
	chatID int64
	text   string
	kb     chat.Keyboard
}

func (m *fakeMessenger) Send(chatID int64, text string, kb chat.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID, text, kb})
	return nil
}

func (m *fakeMessenger) Edit(chatID int64, messageID int, text string, kb chat.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, sentMessage{chatID, text, kb})
	return nil
}

func (m *fakeMessenger) AnswerCallback(string, string, bool) error { return nil }

func (m *fakeMessenger) SendPhoto(int64, string, []byte, string) error { return nil }

func (m *fakeMessenger) lastSent() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func (m *fakeMessenger) lastEdit() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edits[len(m.edits)-1]
}

func newTestHandler(reg *fakeRegistry) (*Handler, *fsm.Store, *fakeMessenger) {
	store := fsm.NewStore()
	msgr := &fakeMessenger{}
	h := NewHandler(NewService(reg, "core-1"), store, msgr, nil)
	return h, store, msgr
}

func TestRegistrationWizardHappyPath(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{byTelegramID: map[int64]*registry.User{}}
	h, store, msgr := newTestHandler(reg)

	const chatID, userID = int64(555), int64(555)

	// /reg — диалог начинается
	h.HandleCommand(ctx, chatID, userID, roles.RoleGuest)
	require.NotNil(t, store.Get(chatID))
	assert.Equal(t, StateWaitingUsername, store.Get(chatID).Name)

	// никнейм
	h.HandleText(ctx, chatID, userID, roles.RoleGuest, "alice")
	assert.Equal(t, StateWaitingEmail, store.Get(chatID).Name)

	// email
	h.HandleText(ctx, chatID, userID, roles.RoleGuest, "a@b.com")
	assert.Equal(t, StateConfirm, store.Get(chatID).Name)
	assert.Contains(t, msgr.lastSent().text, "alice")
	assert.Contains(t, msgr.lastSent().text, "a@b.com")

	// подтверждение
	h.HandleCallback(ctx, chatID, userID, 10, "cb1", CallbackSubmit, roles.RoleGuest, "alice_tg")
	assert.Nil(t, store.Get(chatID), "после отправки состояние очищается")
	require.Len(t, reg.created, 1)
	assert.Equal(t, registry.StatusInactive, reg.created[0].Status)
	assert.Contains(t, msgr.lastEdit().text, "направлена администратору")
}

func TestRegistrationValidationRepeatsStep(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{
		byUsername:   map[string]*registry.User{"taken": {ID: "1"}},
		byTelegramID: map[int64]*registry.User{},
	}
	h, store, _ := newTestHandler(reg)

	h.HandleCommand(ctx, 555, 555, roles.RoleGuest)

	// Занятый никнейм — шаг повторяется, диалог жив
	h.HandleText(ctx, 555, 555, roles.RoleGuest, "taken")
	require.NotNil(t, store.Get(555))
	assert.Equal(t, StateWaitingUsername, store.Get(555).Name)

	// Пустой ввод — тоже повтор
	h.HandleText(ctx, 555, 555, roles.RoleGuest, "   ")
	assert.Equal(t, StateWaitingUsername, store.Get(555).Name)

	// Корректный никнейм проходит
	h.HandleText(ctx, 555, 555, roles.RoleGuest, "free")
	assert.Equal(t, StateWaitingEmail, store.Get(555).Name)
}

func TestRegistrationCancelLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{byTelegramID: map[int64]*registry.User{}}
	h, store, msgr := newTestHandler(reg)

	h.HandleCommand(ctx, 555, 555, roles.RoleGuest)
	h.HandleText(ctx, 555, 555, roles.RoleGuest, "alice")

	h.HandleCallback(ctx, 555, 555, 10, "cb1", CallbackCancel, roles.RoleGuest, "")
	assert.Nil(t, store.Get(555))
	assert.Empty(t, reg.created, "отмена не создаёт заявку")
	assert.Contains(t, msgr.lastEdit().text, "отменена")
}

func TestRegistrationRejectsNonGuests(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{byTelegramID: map[int64]*registry.User{}}
	h, store, _ := newTestHandler(reg)

	h.HandleCommand(ctx, 555, 555, roles.RoleUser)
	assert.Nil(t, store.Get(555), "пользователь не может начать регистрацию")

	// Гость стал пользователем посреди диалога — диалог прерывается
	h.HandleCommand(ctx, 556, 556, roles.RoleGuest)
	h.HandleText(ctx, 556, 556, roles.RoleUser, "alice")
	assert.Nil(t, store.Get(556))
	assert.Empty(t, reg.created)
}

func TestRegistrationSkipEmail(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{byTelegramID: map[int64]*registry.User{}}
	h, store, msgr := newTestHandler(reg)

	h.HandleCommand(ctx, 555, 555, roles.RoleGuest)
	h.HandleText(ctx, 555, 555, roles.RoleGuest, "alice")

	h.HandleCallback(ctx, 555, 555, 10, "cb1", CallbackSkipEmail, roles.RoleGuest, "")
	require.Equal(t, StateConfirm, store.Get(555).Name)
	assert.Contains(t, msgr.lastEdit().text, "не указан")

	h.HandleCallback(ctx, 555, 555, 10, "cb2", CallbackSubmit, roles.RoleGuest, "")
	require.Len(t, reg.created, 1)
	assert.Empty(t, reg.created[0].Email)
}
