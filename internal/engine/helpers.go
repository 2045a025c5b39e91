package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	errPayloadNotObject = errors.New("payload must be a JSON object")
	errMissingRoomCode  = errors.New("roomCode is required")
)

type roomRequest struct {
	RoomCode string
	Fields   map[string]any
}

// parseRoomRequest reads an object payload carrying a roomCode. roomCode may
// be a string or a number; every field, roomCode included, is kept.
func parseRoomRequest(payload json.RawMessage) (*roomRequest, error) {
	if !gjson.ValidBytes(payload) || !gjson.ParseBytes(payload).IsObject() {
		return nil, errPayloadNotObject
	}
	code := gjson.GetBytes(payload, "roomCode")
	if !code.Exists() || code.Type == gjson.Null || code.IsObject() || code.IsArray() || code.String() == "" {
		return nil, errMissingRoomCode
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return &roomRequest{RoomCode: code.String(), Fields: fields}, nil
}

// parseLocation accepts a bare JSON string or number, or an object with a
// "location" field.
func parseLocation(payload json.RawMessage) (string, bool) {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return "", false
	}
	value := gjson.ParseBytes(payload)
	if value.IsObject() {
		value = value.Get("location")
	}
	switch value.Type {
	case gjson.String, gjson.Number:
		loc := value.String()
		return loc, loc != ""
	default:
		return "", false
	}
}
