package ws

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

const (
	frameMessage       = "message"
	frameMemberProfile = "member_profile"
	frameMetadata      = "metadata"
	frameError         = "error"
)

var validate = validator.New()

type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type messagePayload struct {
	Content string `json:"content" validate:"required"`
}

type memberProfilePayload struct {
	Pseudo *string `json:"pseudo" validate:"omitempty,max=64"`
	Smiley *string `json:"smiley"`
}

type metadataPayload struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=128"`
	IsLocked  *bool   `json:"is_locked"`
	IsVisible *bool   `json:"is_visible"`
}

type errorFrame struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
}

// decode unmarshals and validates the payload of f.
func decode(f inboundFrame, payload any) error {
	if len(f.Payload) == 0 {
		return validate.Struct(payload)
	}
	if err := json.Unmarshal(f.Payload, payload); err != nil {
		return err
	}
	return validate.Struct(payload)
}
