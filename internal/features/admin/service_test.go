package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigilgate.ru/telegram-bot/internal/common"
	"sigilgate.ru/telegram-bot/internal/registry"
)

// fakeAdminRegistry дополняет каскадный фейк методами панели.
type fakeAdminRegistry struct {
	fakeCascadeRegistry

	users     map[string]*registry.User
	coreNodes []registry.Node
	removed   []string
}

func (f *fakeAdminRegistry) ListUsers(_ context.Context, _ string) ([]registry.User, error) {
	var out []registry.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeAdminRegistry) GetUser(_ context.Context, id string) (*registry.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, &registry.ScriptError{Cmd: "users/get.sh", ExitCode: 1}
	}
	cp := *u
	return &cp, nil
}

func (f *fakeAdminRegistry) RemoveUser(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	delete(f.users, id)
	return nil
}

func (f *fakeAdminRegistry) ListCoreNodes(_ context.Context) ([]registry.Node, error) {
	return f.coreNodes, nil
}

func newFakeAdmin() *fakeAdminRegistry {
	return &fakeAdminRegistry{
		users: map[string]*registry.User{
			"1": {ID: "1", Username: "pending", Status: registry.StatusInactive, TelegramID: 555},
			"2": {ID: "2", Username: "active", Status: registry.StatusActive, CoreNodes: []string{"core-1"}},
			"3": {ID: "3", Username: "gone", Status: registry.StatusArchived},
		},
		coreNodes: []registry.Node{
			{Host: "core-1.sigil.net", Name: "core-1"},
			{Host: "core-2.sigil.net", Name: "core-2"},
		},
	}
}

func TestApproveAssignsNodeAndActivates(t *testing.T) {
	reg := newFakeAdmin()
	s := NewService(reg)

	data := ApproveData{UserID: "1", Username: "pending", ApplicantTelegramID: 555, Nodes: reg.coreNodes}
	node, err := s.Approve(context.Background(), data, 1)
	require.NoError(t, err)
	assert.Equal(t, "core-2", node.Name)

	assert.Equal(t, []string{"1=active"}, reg.userUpdates)
	require.Len(t, reg.commits, 1)
	assert.Contains(t, reg.commits[0], "User approved: pending on core-2")
}

func TestApproveStaleIndexNoSideEffects(t *testing.T) {
	reg := newFakeAdmin()
	s := NewService(reg)

	data := ApproveData{UserID: "1", Nodes: reg.coreNodes}
	_, err := s.Approve(context.Background(), data, 7)
	assert.ErrorIs(t, err, common.ErrStaleSelection)
	assert.Empty(t, reg.userUpdates, "при устаревшем индексе реестр не трогается")
}

func TestApproveVanishedUser(t *testing.T) {
	reg := newFakeAdmin()
	s := NewService(reg)

	data := ApproveData{UserID: "404", Nodes: reg.coreNodes}
	_, err := s.Approve(context.Background(), data, 0)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRemoveOnlyArchived(t *testing.T) {
	reg := newFakeAdmin()
	s := NewService(reg)

	// Активного удалить нельзя
	err := s.Remove(context.Background(), "2")
	assert.ErrorIs(t, err, common.ErrAccessDenied)
	assert.Empty(t, reg.removed)

	// Архивированного — можно
	require.NoError(t, s.Remove(context.Background(), "3"))
	assert.Equal(t, []string{"3"}, reg.removed)

	// Повторное удаление — запись уже исчезла
	err = s.Remove(context.Background(), "3")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCoreNodesEmptyIsNotFound(t *testing.T) {
	reg := newFakeAdmin()
	reg.coreNodes = nil
	s := NewService(reg)

	_, err := s.CoreNodes(context.Background())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStatusCountsUsers(t *testing.T) {
	reg := newFakeAdmin()
	s := NewService(reg)

	st, err := s.Status(context.Background())
	require.NoError(t, err)

	assert.Len(t, st.CoreNodes, 2)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.Inactive)
	assert.Equal(t, 1, st.Archived)
	assert.Equal(t, 1, st.Pending, "inactive без core-узлов ждёт одобрения")
}
