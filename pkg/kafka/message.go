package kafka

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	Fragment *models.Fragment
}

// ParseFragment decodes the message value as a fragment. Unknown fields are ignored.
func (m *IncomingMessage) ParseFragment() error {
	var fragment models.Fragment
	if err := json.Unmarshal(m.Value, &fragment); err != nil {
		return err
	}
	m.Fragment = &fragment
	return nil
}
