package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"haven/internal/sharing/models"
)

// Message is an encoded fact ready for the sink.
type Message struct {
	Key      string
	FactType string
	Payload  []byte
}

type exportPublishedWire struct {
	EventType   string   `json:"eventType"`
	ReceiptID   string   `json:"receiptId"`
	CocID       string   `json:"cocId"`
	ExportType  string   `json:"exportType"`
	RecordCount int      `json:"recordCount"`
	RecordIDs   []string `json:"recordIds"`
	Timestamp   string   `json:"timestamp"`
}

type importPendingWire struct {
	EventType    string `json:"eventType"`
	UpdateID     string `json:"updateId"`
	ConsentID    string `json:"consentId"`
	PacketID     string `json:"packetId"`
	SourceSystem string `json:"sourceSystem"`
	PayloadHash  string `json:"payloadHash"`
	Timestamp    string `json:"timestamp"`
}

type vspExportWire struct {
	EventType    string   `json:"eventType"`
	ExportID     string   `json:"exportId"`
	Recipient    string   `json:"recipient"`
	ConsentBasis string   `json:"consentBasis"`
	ShareScopes  []string `json:"shareScopes"`
	CEHashKey    string   `json:"ceHashKey"`
	Timestamp    string   `json:"timestamp"`
}

// Encode renders fact as the flat JSON document the ledger consumes.
func Encode(fact models.LedgerFact) (Message, error) {
	var wire any
	switch f := fact.(type) {
	case models.ExportPublished:
		ids := make([]string, len(f.RecordIDs))
		for i, id := range f.RecordIDs {
			ids[i] = id.String()
		}
		wire = exportPublishedWire{
			EventType:   f.FactType(),
			ReceiptID:   f.ReceiptID.String(),
			CocID:       f.CocID,
			ExportType:  string(f.ExportType),
			RecordCount: f.RecordCount,
			RecordIDs:   ids,
			Timestamp:   stamp(f.Timestamp),
		}
	case models.ImportPendingFact:
		wire = importPendingWire{
			EventType:    f.FactType(),
			UpdateID:     f.UpdateID.String(),
			ConsentID:    f.ConsentID.String(),
			PacketID:     f.PacketID.String(),
			SourceSystem: f.SourceSystem,
			PayloadHash:  f.PayloadHash,
			Timestamp:    stamp(f.Timestamp),
		}
	case models.VspExportPublished:
		wire = vspExportWire{
			EventType:    f.FactType(),
			ExportID:     f.ExportID.String(),
			Recipient:    f.Recipient,
			ConsentBasis: f.ConsentBasis,
			ShareScopes:  f.ShareScopes.Strings(),
			CEHashKey:    f.CEHashKey,
			Timestamp:    stamp(f.Timestamp),
		}
	default:
		return Message{}, fmt.Errorf("unknown ledger fact %T", fact)
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return Message{}, fmt.Errorf("marshal ledger fact: %w", err)
	}
	return Message{Key: fact.Key(), FactType: fact.FactType(), Payload: payload}, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
