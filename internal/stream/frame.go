package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/msto63/kflogs/internal/api"
)

// EventSubscribe asks the server to stream the logs of one job
const EventSubscribe = "logs:subscribe"

// SubscribeData is the data payload of a subscribe frame
type SubscribeData struct {
	JobID int `json:"jobId"`
}

// SubscribeFrame is the one-shot request for live logs of a job
type SubscribeFrame struct {
	Event             string        `json:"event"`
	Data              SubscribeData `json:"data"`
	ResourceNamespace string        `json:"resource_namespace"`
	ResourceName      string        `json:"resource_name"`
}

// NewSubscribeFrame builds the subscribe frame for a job
func NewSubscribeFrame(job *api.Job) SubscribeFrame {
	return SubscribeFrame{
		Event:             EventSubscribe,
		Data:              SubscribeData{JobID: job.ID},
		ResourceNamespace: job.Meta.Namespace,
		ResourceName:      job.Name,
	}
}

// Encode serializes the frame
func (f SubscribeFrame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// LineFrame is an inbound frame carrying one log line
type LineFrame struct {
	Data *string `json:"data"`
}

var errMissingData = errors.New(`missing string field "data"`)

// DecodeLine extracts the log line of an inbound frame. Unknown fields are
// ignored; a frame without a string "data" field is a decode error.
func DecodeLine(raw []byte) (string, error) {
	var f LineFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", newError(CodeDecode, "decode frame", err)
	}
	if f.Data == nil {
		return "", newError(CodeDecode, "decode frame", errMissingData)
	}
	return *f.Data, nil
}

// EncodeLine builds an inbound frame for a line, used by the server side
func EncodeLine(line string) []byte {
	b, err := json.Marshal(LineFrame{Data: &line})
	if err != nil {
		// a string payload always marshals
		panic(fmt.Sprintf("encode line frame: %v", err))
	}
	return b
}
