package nativemsg

import (
	"encoding/json"
	"fmt"
)

// Inbound actions sent by the extension
const (
	ActionGetTrackingData    = "getTrackingData"
	ActionTaskCompleted      = "taskCompleted"
	ActionTaskUncompleted    = "taskUncompleted"
	ActionTrackWebsite       = "trackWebsite"
	ActionUpdateProductivity = "updateProductivity"

	ActionTabActivated     = "tabActivated"
	ActionTabUpdated       = "tabUpdated"
	ActionIdleStateChanged = "idleStateChanged"
	ActionActiveTab        = "activeTab"
)

// Outbound commands sent to the extension
const (
	CommandQueryActiveTab           = "queryActiveTab"
	CommandSetIdleDetectionInterval = "setIdleDetectionInterval"
)

// Request is an inbound message. ID is echoed in the response when set.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the request data into v
func (r *Request) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return fmt.Errorf("%s: missing data", r.Action)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("%s: invalid data: %w", r.Action, err)
	}
	return nil
}

// Response answers a Request. Payload fields are merged at the top level
// so the extension sees {success: true} or {trackingData: {...}}.
type Response struct {
	ID      string `json:"id,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	// TrackingData is set for getTrackingData
	TrackingData any `json:"trackingData,omitempty"`
}

// SuccessResponse acknowledges request id
func SuccessResponse(id string) Response {
	ok := true
	return Response{ID: id, Success: &ok}
}

// ErrorResponse reports err as the failure of request id
func ErrorResponse(id string, err error) Response {
	ok := false
	return Response{ID: id, Success: &ok, Error: err.Error()}
}

// Command is an outbound request from the host to the extension
type Command struct {
	Command string `json:"command"`
	Data    any    `json:"data,omitempty"`
}

// Event payloads

type TabActivatedData struct {
	URL string `json:"url"`
}

type TabUpdatedData struct {
	URL string `json:"url"`
	// Status mirrors chrome.tabs changeInfo.status
	Status string `json:"status,omitempty"`
	// URLChanged is set when changeInfo carried a url
	URLChanged bool `json:"urlChanged,omitempty"`
}

type IdleStateData struct {
	State string `json:"state"`
}

type ActiveTabData struct {
	RequestID string `json:"requestId"`
	URL       string `json:"url"`
}

type QueryActiveTabData struct {
	RequestID string `json:"requestId"`
}

type IdleIntervalData struct {
	Seconds int `json:"seconds"`
}

type TrackWebsiteData struct {
	Domain    string `json:"domain"`
	TimeSpent int64  `json:"timeSpent"`
	Category  string `json:"category"`
}
