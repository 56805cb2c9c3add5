package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeConsumeOnce(t *testing.T) {
	c := NewChallengeCache(time.Minute)

	v, err := c.Issue("cred-1")
	require.NoError(t, err)
	require.NotEmpty(t, v)

	assert.False(t, c.Consume("cred-1", "wrong"))
	// The failed attempt already removed the entry.
	assert.False(t, c.Consume("cred-1", v))

	v, err = c.Issue("cred-1")
	require.NoError(t, err)
	assert.True(t, c.Consume("cred-1", v))
	assert.False(t, c.Consume("cred-1", v))
}

func TestChallengeExpires(t *testing.T) {
	c := NewChallengeCache(time.Minute)
	current := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	v, err := c.Issue("cred-1")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	assert.False(t, c.Consume("cred-1", v))
}

func TestChallengeSweep(t *testing.T) {
	c := NewChallengeCache(time.Minute)
	current := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	_, err := c.Issue("old")
	require.NoError(t, err)
	current = current.Add(30 * time.Second)
	fresh, err := c.Issue("fresh")
	require.NoError(t, err)

	current = current.Add(45 * time.Second)
	assert.Equal(t, 1, c.Sweep())
	assert.True(t, c.Consume("fresh", fresh))
}
