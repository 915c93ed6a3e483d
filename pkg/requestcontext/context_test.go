package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowFallsBackToWallClock(t *testing.T) {
	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before))
}

func TestWithTime(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))
}

func TestRolesReturnsCopy(t *testing.T) {
	ctx := WithRoles(context.Background(), []string{"CASE_MANAGER"})
	roles := Roles(ctx)
	roles[0] = "ADMIN"
	assert.Equal(t, []string{"CASE_MANAGER"}, Roles(ctx))
}
