package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("admin").Valid())
	assert.False(t, Role("").Valid())
}

func TestAccountJSONOmitsCredential(t *testing.T) {
	changed := time.Now()
	a := Account{
		ID:                "id-1",
		Username:          "alice",
		PasswordHash:      "$2a$12$secret",
		PasswordChangedAt: &changed,
		Role:              RoleUser,
	}

	raw, err := json.Marshal(a)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.NotContains(t, out, "password")
	assert.NotContains(t, out, "PasswordHash")
	assert.NotContains(t, out, "PasswordChangedAt")
	assert.NotContains(t, string(raw), "$2a$12$secret")
	assert.Equal(t, "alice", out["username"])
}

func TestSanitized(t *testing.T) {
	changed := time.Now()
	a := Account{PasswordHash: "h", PasswordChangedAt: &changed}

	s := a.Sanitized()

	assert.Empty(t, s.PasswordHash)
	assert.Nil(t, s.PasswordChangedAt)
	assert.Equal(t, "h", a.PasswordHash, "original must be untouched")
}

func TestChangedPasswordAfter(t *testing.T) {
	issued := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		changed *time.Time
		want    bool
	}{
		{"never changed", nil, false},
		{"changed before issue", ptr(issued.Add(-time.Minute)), false},
		{"changed at the issue instant", ptr(issued), false},
		{"changed within the issue microsecond", ptr(issued.Add(400 * time.Nanosecond)), false},
		{"changed later in the issue second", ptr(issued.Add(700 * time.Millisecond)), true},
		{"changed one microsecond later", ptr(issued.Add(time.Microsecond)), true},
		{"changed long after", ptr(issued.Add(time.Hour)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Account{PasswordChangedAt: tt.changed}
			assert.Equal(t, tt.want, a.ChangedPasswordAfter(issued))
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
