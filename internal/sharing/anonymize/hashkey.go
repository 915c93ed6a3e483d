package anonymize

import (
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CEHashKey derives the recipient-scoped correlation token for one export:
// "CE_" followed by the first 16 characters of the base64 SHA-256 of
// recipient, enrollment ids and the export instant. It is never derived from
// a client identifier, so two recipients cannot correlate tokens.
func CEHashKey(recipient string, enrollmentIDs []uuid.UUID, at time.Time) string {
	parts := make([]string, 0, len(enrollmentIDs)+2)
	parts = append(parts, recipient)
	for _, id := range enrollmentIDs {
		parts = append(parts, id.String())
	}
	parts = append(parts, strconv.FormatInt(at.UnixNano(), 10))
	sum := sha256.Sum256([]byte(strings.Join(parts, "_")))
	return "CE_" + base64.StdEncoding.EncodeToString(sum[:])[:16]
}
