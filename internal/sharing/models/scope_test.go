package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

func TestParseScopes(t *testing.T) {
	t.Run("splits on both separators and dedupes", func(t *testing.T) {
		set, err := models.ParseScopes("dv_data, COC_COORDINATED_ENTRY;dv_data")
		require.NoError(t, err)
		assert.Equal(t, models.ScopeSet{models.ScopeCoordinatedEntry, models.ScopeDVData}, set)
		assert.Equal(t, "COC_COORDINATED_ENTRY;DV_DATA", set.String())
		assert.True(t, set.RequiresVAWAClearance())
	})

	t.Run("blank is empty", func(t *testing.T) {
		set, err := models.ParseScopes("  ")
		require.NoError(t, err)
		assert.Empty(t, set)
	})

	t.Run("unknown scope is rejected", func(t *testing.T) {
		_, err := models.ParseScopes("EVERYTHING")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestScopeSetMissing(t *testing.T) {
	granted := models.ScopeSet{models.ScopeAssessmentData, models.ScopeCoordinatedEntry}
	required := models.ScopeSet{models.ScopeCoordinatedEntry, models.ScopeDVData}

	assert.Equal(t, []models.ShareScope{models.ScopeDVData}, granted.Missing(required))
	assert.False(t, granted.ContainsAll(required))
	assert.True(t, granted.ContainsAll(nil))
}

func TestDateRangeContains(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	r := models.DateRange{Start: &start, End: &end}

	assert.True(t, r.Contains(start))
	assert.True(t, r.Contains(end.Add(23*time.Hour)), "end date is inclusive")
	assert.False(t, r.Contains(start.Add(-time.Hour)))
	assert.True(t, models.DateRange{}.Contains(time.Time{}))
}

func TestConsentIsValidForUse(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	assert.True(t, models.Consent{Status: models.ConsentStatusGranted}.IsValidForUse(now))
	assert.False(t, models.Consent{Status: models.ConsentStatusGranted, ExpiresAt: &past}.IsValidForUse(now))
	assert.False(t, models.Consent{Status: models.ConsentStatusRevoked}.IsValidForUse(now))
}

func TestAccessContextNormalisesRoles(t *testing.T) {
	ac := models.NewAccessContext([]string{"role_admin", "CASE_MANAGER", "ADMIN", ""}, " audit ", time.Time{})
	assert.Equal(t, []string{"ADMIN", "CASE_MANAGER"}, ac.Roles)
	assert.Equal(t, "audit", ac.Reason)
	assert.True(t, ac.HasAnyRole("DV_SPECIALIST", "ADMIN"))
	assert.False(t, ac.HasAnyRole("DV_SPECIALIST"))
}
