package devices

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigilgate.ru/telegram-bot/internal/common"
	"sigilgate.ru/telegram-bot/internal/registry"
)

type fakeRegistry struct {
	devices map[string]*registry.Device
	nodes   []registry.Node

	getErr       error
	renameErr    error
	setStatusErr error
	entryErr     error

	renamed     []string
	statusSet   []string
	entryCalls  []string
	deactivated []string
	commits     []string
}

func (f *fakeRegistry) ListDevices(_ context.Context, userID string) ([]registry.Device, error) {
	var out []registry.Device
	for _, d := range f.devices {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeRegistry) GetDevice(_ context.Context, deviceUUID string) (*registry.Device, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.devices[deviceUUID]
	if !ok {
		return nil, &registry.ScriptError{Cmd: "devices/get.sh", ExitCode: 1}
	}
	cp := *d
	return &cp, nil
}

func (f *fakeRegistry) AddDevice(_ context.Context, userID, name string) (string, error) {
	return "new-uuid", nil
}

func (f *fakeRegistry) RenameDevice(_ context.Context, deviceUUID, name string) error {
	if f.renameErr != nil {
		return f.renameErr
	}
	f.renamed = append(f.renamed, deviceUUID+"="+name)
	return nil
}

func (f *fakeRegistry) SetDeviceStatus(_ context.Context, deviceUUID, status string) error {
	if f.setStatusErr != nil {
		return f.setStatusErr
	}
	f.statusSet = append(f.statusSet, deviceUUID+"="+status)
	return nil
}

func (f *fakeRegistry) DeactivateDevice(_ context.Context, deviceUUID string) error {
	f.deactivated = append(f.deactivated, deviceUUID)
	return nil
}

func (f *fakeRegistry) ListEntryNodes(_ context.Context, _ string) ([]registry.Node, error) {
	return f.nodes, nil
}

func (f *fakeRegistry) AddEntryClient(_ context.Context, host, deviceUUID, serviceName, name string) error {
	if f.entryErr != nil {
		return f.entryErr
	}
	f.entryCalls = append(f.entryCalls, strings.Join([]string{host, deviceUUID, serviceName, name}, "|"))
	return nil
}

func (f *fakeRegistry) Commit(_ context.Context, message string) error {
	f.commits = append(f.commits, message)
	return nil
}

func newFake() *fakeRegistry {
	return &fakeRegistry{
		devices: map[string]*registry.Device{
			"uuid-mine":   {UUID: "uuid-mine", UserID: "7", Name: "phone", Status: registry.StatusInactive},
			"uuid-other":  {UUID: "uuid-other", UserID: "8", Name: "laptop", Status: registry.StatusInactive},
			"uuid-active": {UUID: "uuid-active", UserID: "7", Name: "tablet", Status: registry.StatusActive},
		},
		nodes: []registry.Node{
			{Host: "entry-1.sigil.net", Name: "entry-1", ServiceName: "vless"},
			{Host: "entry-2.sigil.net", Name: "entry-2"},
		},
	}
}

func TestValidateName(t *testing.T) {
	name, err := ValidateName("  phone  ")
	require.NoError(t, err)
	assert.Equal(t, "phone", name)

	_, err = ValidateName("   ")
	assert.ErrorIs(t, err, common.ErrEmptyInput)

	_, err = ValidateName(strings.Repeat("ю", 65))
	assert.ErrorIs(t, err, common.ErrNameTooLong)

	_, err = ValidateName(strings.Repeat("ю", 64))
	assert.NoError(t, err, "граница в 64 символа считается рунами")
}

func TestRenameForeignDeviceDenied(t *testing.T) {
	reg := newFake()
	s := NewService(reg)

	err := s.Rename(context.Background(), "7", "uuid-other", "new-name")
	assert.ErrorIs(t, err, common.ErrAccessDenied)
	assert.Empty(t, reg.renamed, "чужое устройство не переименовывается")
}

func TestRenameMissingDeviceNotFound(t *testing.T) {
	reg := newFake()
	s := NewService(reg)

	err := s.Rename(context.Background(), "7", "uuid-gone", "new-name")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRenameOwnDevice(t *testing.T) {
	reg := newFake()
	s := NewService(reg)

	err := s.Rename(context.Background(), "7", "uuid-mine", "new-name")
	require.NoError(t, err)
	assert.Equal(t, []string{"uuid-mine=new-name"}, reg.renamed)
	require.Len(t, reg.commits, 1)
	assert.Contains(t, reg.commits[0], "phone -> new-name")
}

func TestActivateStaleIndexNoSideEffects(t *testing.T) {
	reg := newFake()
	s := NewService(reg)
	data := ActivateData{UUID: "uuid-mine", DeviceName: "phone", Nodes: reg.nodes}

	_, err := s.Activate(context.Background(), "7", data, 5)
	assert.ErrorIs(t, err, common.ErrStaleSelection)
	assert.Empty(t, reg.entryCalls, "при устаревшем индексе скрипты не вызываются")
	assert.Empty(t, reg.statusSet)

	_, err = s.Activate(context.Background(), "7", data, -1)
	assert.ErrorIs(t, err, common.ErrStaleSelection)
}

func TestActivateHappyPath(t *testing.T) {
	reg := newFake()
	s := NewService(reg)
	data := ActivateData{UUID: "uuid-mine", DeviceName: "phone", Nodes: reg.nodes}

	node, err := s.Activate(context.Background(), "7", data, 0)
	require.NoError(t, err)
	assert.Equal(t, "entry-1.sigil.net", node.Host)

	require.Len(t, reg.entryCalls, 1)
	assert.Equal(t, "entry-1.sigil.net|uuid-mine|vless|phone", reg.entryCalls[0])
	assert.Equal(t, []string{"uuid-mine=active"}, reg.statusSet)
}

func TestActivateServiceNameFallsBackToNodeName(t *testing.T) {
	reg := newFake()
	s := NewService(reg)
	data := ActivateData{UUID: "uuid-mine", Nodes: reg.nodes}

	_, err := s.Activate(context.Background(), "7", data, 1)
	require.NoError(t, err)
	require.Len(t, reg.entryCalls, 1)
	assert.Equal(t, "entry-2.sigil.net|uuid-mine|entry-2|phone", reg.entryCalls[0])
}

func TestActivatePartialFailureReported(t *testing.T) {
	reg := newFake()
	reg.setStatusErr = errors.New("update.sh упал")
	s := NewService(reg)
	data := ActivateData{UUID: "uuid-mine", Nodes: reg.nodes}

	_, err := s.Activate(context.Background(), "7", data, 0)
	assert.ErrorIs(t, err, ErrPartialActivation)
	assert.Len(t, reg.entryCalls, 1, "регистрация на узле уже произошла")
}

func TestActivateRejectsNonInactive(t *testing.T) {
	reg := newFake()
	s := NewService(reg)
	data := ActivateData{UUID: "uuid-active", Nodes: reg.nodes}

	_, err := s.Activate(context.Background(), "7", data, 0)
	assert.ErrorIs(t, err, common.ErrAccessDenied)
	assert.Empty(t, reg.entryCalls)
}

func TestDeactivate(t *testing.T) {
	reg := newFake()
	s := NewService(reg)

	require.NoError(t, s.Deactivate(context.Background(), "7", "uuid-active"))
	assert.Equal(t, []string{"uuid-active"}, reg.deactivated)

	// Неактивное устройство деактивировать нельзя
	err := s.Deactivate(context.Background(), "7", "uuid-mine")
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	// Чужое — тем более
	err = s.Deactivate(context.Background(), "7", "uuid-other")
	assert.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestActivationCandidates(t *testing.T) {
	reg := newFake()
	s := NewService(reg)

	device, nodes, err := s.ActivationCandidates(context.Background(), "7", "uuid-mine")
	require.NoError(t, err)
	assert.Equal(t, "phone", device.Name)
	assert.Len(t, nodes, 2)

	// Активное устройство не кандидат
	_, _, err = s.ActivationCandidates(context.Background(), "7", "uuid-active")
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	// Нет доступных узлов
	reg.nodes = nil
	_, _, err = s.ActivationCandidates(context.Background(), "7", "uuid-mine")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
