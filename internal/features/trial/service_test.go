package trial

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigilgate.ru/telegram-bot/internal/common"
	"sigilgate.ru/telegram-bot/internal/registry"
)

type fakeRegistry struct {
	mu       sync.Mutex
	devices  []registry.Device
	modTimes map[string]time.Time

	links    []string
	linksErr error
	addErr   error

	added   []string
	expired []string
	commits []string
}

func (f *fakeRegistry) FindTrialDevices(_ context.Context, telegramID int64) ([]registry.Device, error) {
	prefix := strconv.FormatInt(telegramID, 10)
	var out []registry.Device
	for _, d := range f.devices {
		if strings.HasPrefix(d.Name, prefix) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRegistry) ExpireTrialDevice(_ context.Context, deviceUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, deviceUUID)
	return nil
}

func (f *fakeRegistry) AddDevice(_ context.Context, userID, name string) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, userID+"/"+name)
	return "trial-uuid", nil
}

func (f *fakeRegistry) ListDevices(_ context.Context, userID string) ([]registry.Device, error) {
	return f.devices, nil
}

func (f *fakeRegistry) DeviceLinks(_ context.Context, _ string) ([]string, error) {
	if f.linksErr != nil {
		return nil, f.linksErr
	}
	return f.links, nil
}

func (f *fakeRegistry) DeviceModTime(deviceUUID string) (time.Time, bool) {
	t, ok := f.modTimes[deviceUUID]
	return t, ok
}

func (f *fakeRegistry) Commit(_ context.Context, message string) error {
	f.commits = append(f.commits, message)
	return nil
}

func (f *fakeRegistry) expiredUUIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.expired))
	copy(out, f.expired)
	return out
}

func newService(reg *fakeRegistry) *Service {
	s := NewService(reg, "3", 9, time.Hour)
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	return s
}

func TestIssueFirstUseStartsAtLimit(t *testing.T) {
	reg := &fakeRegistry{links: []string{"vless://link-1", "vless://link-2"}}
	s := newService(reg)

	issued, err := s.Issue(context.Background(), 555)
	require.NoError(t, err)

	require.Len(t, reg.added, 1)
	assert.Equal(t, "3/5559", reg.added[0], "первое устройство получает стартовый суффикс")
	assert.Equal(t, 9, issued.Remaining)
	assert.Equal(t, "vless://link-1", issued.Link)
	assert.Len(t, issued.Links, 2)
}

func TestIssueDecrementsMinSuffix(t *testing.T) {
	reg := &fakeRegistry{
		devices: []registry.Device{
			{UUID: "a", Name: "5559", Status: registry.StatusInactive},
			{UUID: "b", Name: "5553", Status: registry.StatusInactive},
			{UUID: "c", Name: "5557", Status: registry.StatusInactive},
		},
		links: []string{"vless://link"},
	}
	s := newService(reg)

	issued, err := s.Issue(context.Background(), 555)
	require.NoError(t, err)
	assert.Equal(t, "3/5552", reg.added[0], "квота выводится из минимального суффикса")
	assert.Equal(t, 2, issued.Remaining)
}

func TestIssueExhaustedQuota(t *testing.T) {
	reg := &fakeRegistry{
		devices: []registry.Device{
			{UUID: "a", Name: "5550", Status: registry.StatusInactive},
			{UUID: "b", Name: "5554", Status: registry.StatusInactive},
		},
		links: []string{"vless://link"},
	}
	s := newService(reg)

	_, err := s.Issue(context.Background(), 555)
	assert.ErrorIs(t, err, common.ErrTrialExhausted)
	assert.Empty(t, reg.added, "при исчерпанной квоте устройство не создаётся")
}

func TestIssueLinkFailures(t *testing.T) {
	reg := &fakeRegistry{linksErr: errors.New("config.sh упал")}
	s := newService(reg)

	_, err := s.Issue(context.Background(), 555)
	assert.ErrorIs(t, err, ErrLinkUnavailable)
	assert.Len(t, reg.added, 1, "устройство уже создано — об этом и сообщаем")

	reg2 := &fakeRegistry{links: []string{}}
	s2 := newService(reg2)
	_, err = s2.Issue(context.Background(), 555)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestSweepExpired(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	reg := &fakeRegistry{
		devices: []registry.Device{
			{UUID: "old-active", Name: "5555", Status: registry.StatusActive},
			{UUID: "fresh-active", Name: "6665", Status: registry.StatusActive},
			{UUID: "old-inactive", Name: "7775", Status: registry.StatusInactive},
		},
		modTimes: map[string]time.Time{
			"old-active":   base.Add(-2 * time.Hour),
			"fresh-active": base.Add(-10 * time.Minute),
			"old-inactive": base.Add(-5 * time.Hour),
		},
	}
	s := newService(reg)

	require.NoError(t, s.SweepExpired(context.Background()))
	assert.Equal(t, []string{"old-active"}, reg.expiredUUIDs(),
		"гасится только истёкшее активное устройство")
}

func TestSweepSkipsUnknownModTime(t *testing.T) {
	reg := &fakeRegistry{
		devices: []registry.Device{
			{UUID: "no-mtime", Name: "5555", Status: registry.StatusActive},
		},
		modTimes: map[string]time.Time{},
	}
	s := newService(reg)

	require.NoError(t, s.SweepExpired(context.Background()))
	assert.Empty(t, reg.expiredUUIDs(), "без mtime возраст неизвестен — не трогаем")
}
