package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigilgate.ru/telegram-bot/internal/registry"
)

type fakeCascadeRegistry struct {
	devices map[string][]registry.Device

	// deactivateFail — UUID, на котором деактивация падает
	deactivateFail string
	archiveFail    string

	deactivated []string
	archived    []string
	userUpdates []string
	commits     []string
}

func (f *fakeCascadeRegistry) ListDevices(_ context.Context, userID string) ([]registry.Device, error) {
	return f.devices[userID], nil
}

func (f *fakeCascadeRegistry) DeactivateDevice(_ context.Context, deviceUUID string) error {
	if deviceUUID == f.deactivateFail {
		return errors.New("deactivate.sh упал")
	}
	f.deactivated = append(f.deactivated, deviceUUID)
	f.setStatus(deviceUUID, registry.StatusInactive)
	return nil
}

func (f *fakeCascadeRegistry) SetDeviceStatus(_ context.Context, deviceUUID, status string) error {
	if status == registry.StatusArchived && deviceUUID == f.archiveFail {
		return errors.New("update.sh упал")
	}
	f.archived = append(f.archived, deviceUUID)
	f.setStatus(deviceUUID, status)
	return nil
}

func (f *fakeCascadeRegistry) setStatus(deviceUUID, status string) {
	for userID, devices := range f.devices {
		for i := range devices {
			if devices[i].UUID == deviceUUID {
				f.devices[userID][i].Status = status
			}
		}
	}
}

func (f *fakeCascadeRegistry) UpdateUser(_ context.Context, id string, p registry.UpdateUserParams) error {
	f.userUpdates = append(f.userUpdates, id+"="+p.Status)
	return nil
}

func (f *fakeCascadeRegistry) Commit(_ context.Context, message string) error {
	f.commits = append(f.commits, message)
	return nil
}

func newFakeCascade() *fakeCascadeRegistry {
	return &fakeCascadeRegistry{
		devices: map[string][]registry.Device{
			"7": {
				{UUID: "d1", Name: "phone", Status: registry.StatusActive},
				{UUID: "d2", Name: "laptop", Status: registry.StatusInactive},
				{UUID: "d3", Name: "tablet", Status: registry.StatusActive},
			},
		},
	}
}

func TestSuspendCascade(t *testing.T) {
	reg := newFakeCascade()
	c := NewCascader(reg)

	require.NoError(t, c.Suspend(context.Background(), "7"))

	// Деактивируются только активные, затем сам пользователь
	assert.Equal(t, []string{"d1", "d3"}, reg.deactivated)
	assert.Equal(t, []string{"7=inactive"}, reg.userUpdates)
	require.Len(t, reg.commits, 1)
}

func TestSuspendAbortsOnFirstFailure(t *testing.T) {
	reg := newFakeCascade()
	reg.deactivateFail = "d3"
	c := NewCascader(reg)

	err := c.Suspend(context.Background(), "7")
	require.Error(t, err)

	// d1 уже деактивировано, статус пользователя не тронут
	assert.Equal(t, []string{"d1"}, reg.deactivated)
	assert.Empty(t, reg.userUpdates, "при обрыве каскада пользователь не меняется")
	assert.Empty(t, reg.commits)
}

func TestSuspendResumesAfterFailure(t *testing.T) {
	reg := newFakeCascade()
	reg.deactivateFail = "d3"
	c := NewCascader(reg)

	require.Error(t, c.Suspend(context.Background(), "7"))

	// Повторный запуск: d1 уже inactive и пропускается, d3 добивается
	reg.deactivateFail = ""
	reg.deactivated = nil
	require.NoError(t, c.Suspend(context.Background(), "7"))

	assert.Equal(t, []string{"d3"}, reg.deactivated, "уже обработанные устройства пропускаются")
	assert.Equal(t, []string{"7=inactive"}, reg.userUpdates)
}

func TestArchiveCascade(t *testing.T) {
	reg := newFakeCascade()
	c := NewCascader(reg)

	require.NoError(t, c.Archive(context.Background(), "7"))

	// Активные сначала деактивируются
	assert.Equal(t, []string{"d1", "d3"}, reg.deactivated)
	// Архивируются все
	assert.ElementsMatch(t, []string{"d1", "d2", "d3"}, reg.archived)
	assert.Equal(t, []string{"7=archived"}, reg.userUpdates)
}

func TestArchiveIdempotentSecondRun(t *testing.T) {
	reg := newFakeCascade()
	c := NewCascader(reg)

	require.NoError(t, c.Archive(context.Background(), "7"))

	reg.deactivated = nil
	reg.archived = nil
	reg.userUpdates = nil

	// Все устройства уже archived — второй прогон их не трогает
	require.NoError(t, c.Archive(context.Background(), "7"))
	assert.Empty(t, reg.deactivated)
	assert.Empty(t, reg.archived)
	assert.Equal(t, []string{"7=archived"}, reg.userUpdates, "статус пользователя подтверждается повторно")
}

func TestArchiveAbortsOnDeviceFailure(t *testing.T) {
	reg := newFakeCascade()
	reg.archiveFail = "d2"
	c := NewCascader(reg)

	err := c.Archive(context.Background(), "7")
	require.Error(t, err)
	assert.Empty(t, reg.userUpdates, "пользователь архивируется только после всех устройств")
}
