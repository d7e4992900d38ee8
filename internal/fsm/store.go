// Package fsm хранит состояния многошаговых диалогов.
// Одно состояние на чат: новый шаг заменяет старый, завершение
// или отмена удаляют его. Истечения по времени нет — диалог
// прерывается только самим пользователем.
package fsm

import "sync"

// State — текущее состояние диалога в одном чате.
type State struct {
	Name string      // Имя шага ("reg_waiting_username", "dev_waiting_node", ...)
	Data interface{} // Накопленные данные диалога (структура фичи-владельца)
}

// Store — потокобезопасное хранилище состояний по chat id.
type Store struct {
	mu     sync.RWMutex
	states map[int64]*State
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{states: make(map[int64]*State)}
}

// Get возвращает состояние чата или nil.
func (s *Store) Get(chatID int64) *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[chatID]
}

// Set устанавливает состояние чата, заменяя предыдущее.
func (s *Store) Set(chatID int64, name string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[chatID] = &State{Name: name, Data: data}
}

// Clear удаляет состояние чата.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, chatID)
}
