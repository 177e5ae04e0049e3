package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"stakingengine/internal/domain"
)

// EventsCSV builds a CSV export of the append-only audit event log.
func EventsCSV(events []*domain.Event) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write([]string{"id", "principal", "type", "payload", "event_time"}); err != nil {
		return nil, "", err
	}
	for _, e := range events {
		if e == nil {
			continue
		}
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, "", err
		}
		record := []string{
			fmt.Sprintf("%d", e.ID),
			e.Principal,
			string(e.Type),
			string(payload),
			e.EventTime.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

// EventsJSONL builds a JSON Lines export of the audit event log.
func EventsJSONL(events []*domain.Event) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, e := range events {
		if e == nil {
			continue
		}
		payload := map[string]any{
			"id":         e.ID,
			"principal":  e.Principal,
			"type":       e.Type,
			"payload":    e.Payload,
			"event_time": e.EventTime.UTC().Format(time.RFC3339Nano),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
