package snapshot

import (
	"bytes"
	"encoding/json"
	"io"
)

// Envelope is the snapshot document sent to the telemetry endpoint. Cached
// families are carried as raw JSON so fresh cache payloads pass through
// untouched.
type Envelope struct {
	Hardware             json.RawMessage `json:"hardware"`
	Network              json.RawMessage `json:"network"`
	Images               json.RawMessage `json:"images"`
	Containers           json.RawMessage `json:"containers"`
	Model                json.RawMessage `json:"model"`
	ModelTimestamp       int64           `json:"model_timestamp"`
	Dataset              json.RawMessage `json:"dataset"`
	DatasetTimestamp     int64           `json:"dataset_timestamp"`
	IP                   json.RawMessage `json:"ip"`
	DockerInstalled      bool            `json:"docker_installed"`
	HostServiceUp        string          `json:"host_service_up"`
	HostServiceUpDefault string          `json:"host_service_up_default"`
	TechType             string          `json:"tech_type"`
	UUID                 string          `json:"uuid,omitempty"`
}

// Encode writes the envelope as one line of JSON without HTML escaping
func (e *Envelope) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(e)
}

// Bytes returns the encoded envelope without the trailing newline
func (e *Envelope) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
