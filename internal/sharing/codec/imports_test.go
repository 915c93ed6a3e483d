package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

func TestReadCSVImport(t *testing.T) {
	t.Run("header driven and case insensitive", func(t *testing.T) {
		payload := "RecordType;EnrollmentId;ConsentId;EncryptionMetadata;EncryptionTags\n" +
			"ASSESSMENT;e-1;c-1;source=hmis|batch=7;a,b\n" +
			"\n" +
			"EVENT;e-2\n"
		rows, err := ReadImport(models.ImportHMISCSV, []byte(payload), ';')
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.Equal(t, "ASSESSMENT", rows[0].Fields.Values["recordtype"])
		assert.Equal(t, map[string]string{"source": "hmis", "batch": "7"}, rows[0].Fields.Metadata)
		assert.Equal(t, []string{"a", "b"}, rows[0].Fields.Tags)

		_, hasConsent := rows[1].Fields.Values["consentid"]
		assert.False(t, hasConsent, "short rows leave trailing columns unset")
		assert.Equal(t, 4, rows[1].Line)
	})

	t.Run("missing header fails the payload", func(t *testing.T) {
		_, err := ReadImport(models.ImportHMISCSV, nil, ',')
		require.Error(t, err)
		assert.Equal(t, "missing header row", dErrors.MessageOf(err))
	})
}

func TestReadXMLImport(t *testing.T) {
	payload := `<?xml version="1.0"?>
<CEImport>
  <Assessment EnrollmentId="e-1" ConsentId="c-1" AssessmentDate="2025-01-02">
    <AssessmentType>CRISIS_NEEDS</AssessmentType>
    <EncryptionMetadata>
      <Entry key="source" value="hmis"/>
    </EncryptionMetadata>
  </Assessment>
  <Event EnrollmentId="e-2" EncryptionTags="x;y"/>
  <Household Id="h-1"/>
</CEImport>`

	rows, err := ReadImport(models.ImportHMISXML, []byte(payload), 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Assessment", rows[0].Fields.RecordType)
	assert.Equal(t, "CRISIS_NEEDS", rows[0].Fields.Values["assessmenttype"])
	assert.Equal(t, "2025-01-02", rows[0].Fields.Values["assessmentdate"])
	assert.Equal(t, "hmis", rows[0].Fields.Metadata["source"])

	assert.Equal(t, "Event", rows[1].Fields.RecordType)
	assert.Equal(t, []string{"x", "y"}, rows[1].Fields.Tags)

	assert.Error(t, rows[2].Err)

	_, err = ReadImport(models.ImportHMISXML, []byte("<CEImport><Assessment"), 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestReadXMLImportConsentFlagDefaultsToFalse(t *testing.T) {
	payload := `<CEImport>
  <Assessment EnrollmentId="8d1b3c5e-6f0a-4b7e-9c2d-1e3f5a7b9c0d" ClientId="0f9e8d7c-6b5a-4c3d-8e2f-1a0b9c8d7e6f"
    ConsentId="5a4b3c2d-1e0f-4a9b-8c7d-6e5f4a3b2c1d" EncryptionKeyId="key-1" AssessmentDate="2025-01-02" AssessmentType="CRISIS_NEEDS"/>
  <Assessment EnrollmentId="8d1b3c5e-6f0a-4b7e-9c2d-1e3f5a7b9c0d" ClientId="0f9e8d7c-6b5a-4c3d-8e2f-1a0b9c8d7e6f"
    ConsentId="5a4b3c2d-1e0f-4a9b-8c7d-6e5f4a3b2c1d" EncryptionKeyId="key-1" AssessmentDate="2025-01-02" AssessmentType="CRISIS_NEEDS"
    ConsentGranted="true"/>
</CEImport>`

	rows, err := ReadImport(models.ImportHMISXML, []byte(payload), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	missing, err := models.NewImportRecord(rows[0].Fields)
	require.NoError(t, err)
	assert.False(t, missing.ConsentGranted)

	explicit, err := models.NewImportRecord(rows[1].Fields)
	require.NoError(t, err)
	assert.True(t, explicit.ConsentGranted)
}

func TestReadJSONImport(t *testing.T) {
	t.Run("records array", func(t *testing.T) {
		payload := `{"records": [
			{"recordType": "EVENT", "enrollmentId": "e-1", "score": 3.5, "consentGranted": false,
			 "shareScopes": ["DV_DATA", "COC_COORDINATED_ENTRY"],
			 "encryptionMetadata": {"source": "vendor"}, "encryptionTags": ["t1", ""]},
			"oops"
		]}`
		rows, err := ReadImport(models.ImportVendorFeed, []byte(payload), 0)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		v := rows[0].Fields.Values
		assert.Equal(t, "EVENT", v["recordtype"])
		assert.Equal(t, "3.5", v["score"])
		assert.Equal(t, "false", v["consentgranted"])
		assert.Equal(t, "DV_DATA;COC_COORDINATED_ENTRY", v["sharescopes"])
		assert.Equal(t, map[string]string{"source": "vendor"}, rows[0].Fields.Metadata)
		assert.Equal(t, []string{"t1"}, rows[0].Fields.Tags)

		assert.Error(t, rows[1].Err)
	})

	t.Run("single object", func(t *testing.T) {
		rows, err := ReadImport(models.ImportVendorFeed, []byte(`{"recordType":"Assessment"}`), 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Assessment", rows[0].Fields.Values["recordtype"])
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ReadImport(models.ImportVendorFeed, []byte(`{"records": [`), 0)
		assert.Error(t, err)
	})
}
