package playback

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectorySetOverwrites(t *testing.T) {
	d := NewDirectory(nil)
	userID := uuid.New()

	assert.Equal(t, "", d.Get(userID))

	d.Set(userID, "phone")
	assert.Equal(t, "phone", d.Get(userID))

	d.Set(userID, "desktop")
	assert.Equal(t, "desktop", d.Get(userID))

	d.Set(userID, "")
	assert.Equal(t, "", d.Get(userID))
}

func TestDirectoryClaimIfUnset(t *testing.T) {
	d := NewDirectory(nil)
	userID := uuid.New()

	assert.True(t, d.ClaimIfUnset(userID, "phone"))
	assert.Equal(t, "phone", d.Get(userID))

	// A later claim must not steal an existing assignment.
	assert.False(t, d.ClaimIfUnset(userID, "desktop"))
	assert.Equal(t, "phone", d.Get(userID))
}

func TestDirectoryIsPerUser(t *testing.T) {
	d := NewDirectory(nil)
	alice := uuid.New()
	bob := uuid.New()

	d.Set(alice, "alice-phone")
	assert.Equal(t, "", d.Get(bob))
}

func TestDirectoryNotifiesOnEveryMutation(t *testing.T) {
	d := NewDirectory(nil)
	userID := uuid.New()

	var changes []string
	d.OnChange(func(_ uuid.UUID, deviceID string) {
		changes = append(changes, deviceID)
	})

	d.Set(userID, "phone")
	d.ClaimIfUnset(userID, "desktop") // no-op, must not notify
	d.Set(userID, "desktop")
	d.Set(userID, "")

	assert.Equal(t, []string{"phone", "desktop", ""}, changes)
}

func TestDirectoryPersistsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	userID := uuid.New()

	d := NewDirectory(rdb)
	d.Set(userID, "phone")

	val, err := mr.Get(activePlayerKeyPrefix + userID.String())
	require.NoError(t, err)
	assert.Equal(t, "phone", val)

	// A fresh directory (as after a restart) hydrates the assignment.
	restarted := NewDirectory(rdb)
	assert.Equal(t, "phone", restarted.Get(userID))

	d.Set(userID, "")
	assert.False(t, mr.Exists(activePlayerKeyPrefix+userID.String()))
}
