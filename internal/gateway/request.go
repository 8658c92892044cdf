package gateway

import (
	"encoding/json"
	"fmt"
)

// RequestTypeLaunch is the request-type discriminator that starts an
// instance. Any other type gets the "not understood" acknowledgement.
const RequestTypeLaunch = "LaunchRequest"

// TriggerRequest is the decoded inbound request: who is asking, what kind
// of request it is, and the opaque task parameters.
type TriggerRequest struct {
	UserID  string
	Type    string
	Payload map[string]any
}

// envelope mirrors the skill platform's request body.
type envelope struct {
	Version string `json:"version"`
	Session struct {
		User struct {
			UserID string `json:"userId"`
		} `json:"user"`
	} `json:"session"`
	Request struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	} `json:"request"`
}

// decodeTrigger parses a verified request body into a TriggerRequest.
func decodeTrigger(body []byte) (TriggerRequest, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return TriggerRequest{}, fmt.Errorf("invalid request body: %w", err)
	}

	return TriggerRequest{
		UserID:  env.Session.User.UserID,
		Type:    env.Request.Type,
		Payload: env.Request.Payload,
	}, nil
}
