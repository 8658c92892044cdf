package gateway

import (
	"encoding/json"
	"net/http"
)

const (
	ackLaunched      = "Started the long-running job. I will notify you of the result."
	ackNotUnderstood = "Sorry, I did not understand that."
)

// speechResponse is the synchronous acknowledgement envelope returned to
// the skill platform. The session always ends; the real result arrives
// later through the push channel.
type speechResponse struct {
	Version  string `json:"version"`
	Response struct {
		OutputSpeech struct {
			Type   string `json:"type"`
			Values struct {
				Type  string `json:"type"`
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"values"`
		} `json:"outputSpeech"`
		ShouldEndSession bool `json:"shouldEndSession"`
	} `json:"response"`
}

func newSpeechResponse(text string) speechResponse {
	var resp speechResponse
	resp.Version = "1.0"
	resp.Response.OutputSpeech.Type = "SimpleSpeech"
	resp.Response.OutputSpeech.Values.Type = "PlainText"
	resp.Response.OutputSpeech.Values.Lang = "en"
	resp.Response.OutputSpeech.Values.Value = text
	resp.Response.ShouldEndSession = true
	return resp
}

// errorResponse is the JSON body for non-speech error replies on the
// inspection endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
