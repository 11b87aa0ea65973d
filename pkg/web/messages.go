package web

import (
	"encoding/json"

	"github.com/greg-hellings/portal/pkg/state"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client -> Server
	TypePing MessageType = "ping" // Keep-alive

	// Server -> Client
	TypePong    MessageType = "pong"
	TypeStatus  MessageType = "status"  // Status log text changed
	TypeLoading MessageType = "loading" // Generation started or finished
	TypeReady   MessageType = "ready"   // New assessment data stored, popup raised
	TypeState   MessageType = "state"   // Selection or modal state changed
)

// Message is the base WebSocket message structure
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StatusPayload carries the whole status log.
type StatusPayload struct {
	Status string `json:"status"`
}

// LoadingPayload carries the loading flag.
type LoadingPayload struct {
	Loading bool `json:"loading"`
}

// ReadyPayload is sent when a generation run stored new data.
type ReadyPayload struct {
	Repos []string `json:"repos"`
}

// StatePayload summarizes the page state.
type StatePayload struct {
	FileName        string `json:"fileName,omitempty"`
	Popup           bool   `json:"popup"`
	HasData         bool   `json:"hasData"`
	SelectedRepo    string `json:"selectedRepo"`
	SelectedService string `json:"selectedService"`
	ArtifactOpen    bool   `json:"artifactOpen"`
	FolderOpen      bool   `json:"folderOpen"`
}

func newMessage(t MessageType, payload interface{}) Message {
	payloadBytes, _ := json.Marshal(payload)
	return Message{Type: t, Payload: payloadBytes}
}

// NewStatusMessage builds a status message.
func NewStatusMessage(status string) Message {
	return newMessage(TypeStatus, StatusPayload{Status: status})
}

// NewLoadingMessage builds a loading message.
func NewLoadingMessage(loading bool) Message {
	return newMessage(TypeLoading, LoadingPayload{Loading: loading})
}

// NewReadyMessage builds a ready message.
func NewReadyMessage(repos []string) Message {
	return newMessage(TypeReady, ReadyPayload{Repos: repos})
}

// NewStateMessage builds a state message from a snapshot.
func NewStateMessage(v state.View) Message {
	return newMessage(TypeState, statePayload(v))
}

func statePayload(v state.View) StatePayload {
	return StatePayload{
		FileName:        v.FileName,
		Popup:           v.Popup,
		HasData:         v.HasData,
		SelectedRepo:    v.SelectedRepo,
		SelectedService: v.SelectedService,
		ArtifactOpen:    v.Artifact != nil,
		FolderOpen:      v.FolderOpen,
	}
}
