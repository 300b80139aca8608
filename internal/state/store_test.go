// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/nlm"
	"grimm.is/usbwall/internal/rule"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetDelete(t *testing.T) {
	s := openTest(t)

	r, err := rule.New(rule.Drop, "blockdev", rule.Criteria{
		Device: rule.DeviceCriterion{Valid: true, Device: rule.Device{BusNum: 1, DevNum: 5, Product: "Flash Disk"}},
	})
	require.NoError(t, err)
	require.NoError(t, s.Put(r))

	rec, err := s.Get(nlm.TypeRule, "blockdev")
	require.NoError(t, err)
	got, ok := rec.Policy.(rule.Rule)
	require.True(t, ok)
	assert.True(t, r.Equal(got))
	assert.False(t, rec.UpdatedAt.IsZero())

	require.NoError(t, s.Delete(rule.Ref("blockdev")))
	_, err = s.Get(nlm.TypeRule, "blockdev")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))

	assert.NoError(t, s.Delete(rule.Ref("never-stored")))
}

func TestStore_KeyedByKindAndName(t *testing.T) {
	s := openTest(t)

	r, err := rule.New(rule.Drop, "shared", rule.Criteria{Packet: rule.PacketCriterion{Valid: true}})
	require.NoError(t, err)
	sr, err := rule.NewCommRule(rule.Allow, "shared", "udevd")
	require.NoError(t, err)

	require.NoError(t, s.Put(r))
	require.NoError(t, s.Put(sr))

	list, err := s.Policies()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, nlm.TypeRule, nlm.TypeOf(list[0]))
	assert.Equal(t, nlm.TypeSimpleRule, nlm.TypeOf(list[1]))
}

func TestStore_PutReplacesInPlace(t *testing.T) {
	s := openTest(t)

	first, err := rule.NewPGIDRule(rule.Allow, "a", 1)
	require.NoError(t, err)
	second, err := rule.NewPGIDRule(rule.Allow, "b", 2)
	require.NoError(t, err)
	require.NoError(t, s.Put(first))
	require.NoError(t, s.Put(second))

	updated, err := rule.NewPGIDRule(rule.Drop, "a", 1, 3)
	require.NoError(t, err)
	require.NoError(t, s.Put(updated))

	list, err := s.Policies()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].PolicyName())
	assert.Equal(t, rule.Drop, list[0].PolicyAction())
	assert.Equal(t, 2, list[0].(rule.SimpleRule).Len())
}

func TestStore_Settings(t *testing.T) {
	s := openTest(t)

	_, ok, err := s.Setting("behavior")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting("behavior", "drop"))
	require.NoError(t, s.SetSetting("behavior", "allow"))
	v, ok, err := s.Setting("behavior")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "allow", v)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	require.NoError(t, err)
	sr, err := rule.NewCommRule(rule.Allow, "udev", "systemd-udevd")
	require.NoError(t, err)
	require.NoError(t, s.Put(sr))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Get(nlm.TypeSimpleRule, "udev")
	require.NoError(t, err)
	assert.True(t, sr.Equal(rec.Policy.(rule.SimpleRule)))
}
