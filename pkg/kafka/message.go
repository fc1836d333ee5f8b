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

	// Parsed content
	JobRequest *models.ConsolidationJobRequest
}

// ParseJobRequest parses the message value as a consolidation job request.
func (m *IncomingMessage) ParseJobRequest() error {
	var req models.ConsolidationJobRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return err
	}
	m.JobRequest = &req
	return nil
}

// GetTenantID returns the tenant ID from the parsed request, falling back to
// the message header.
func (m *IncomingMessage) GetTenantID() string {
	if m.JobRequest != nil && m.JobRequest.TenantID != "" {
		return m.JobRequest.TenantID
	}
	return m.Headers["tenant_id"]
}
