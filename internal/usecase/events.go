package usecase

import (
	"encoding/json"
	"log"
)

// event marshals an outbound frame with its "type" discriminator. Payloads
// are built from entities that always marshal; a failure here is a bug, so
// it is logged and an empty frame suppressed by callers.
func event(name string, fields map[string]interface{}) []byte {
	payload := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["type"] = name
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Event marshal error (%s): %v", name, err)
		return nil
	}
	return data
}
