package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is an opaque record on its way to the remote store. Values
// are whatever the caller serialized; the engine only interprets the
// client-local bookkeeping fields below.
type Payload map[string]any

// Client-local-only fields. These never cross the remote boundary.
var localOnlyFields = []string{
	"image_base64_data",
	"image_mime_type",
	"image_file_name",
	"record_type_for_image",
	"tempId",
	"originalId",
	"created_at",
	"updated_at",
	"_offline",
}

// sanitize returns a copy of the payload with all client-local staging
// and bookkeeping fields stripped.
func sanitize(p Payload) Payload {
	cleaned := make(Payload, len(p))
	for k, v := range p {
		cleaned[k] = v
	}
	for _, k := range localOnlyFields {
		delete(cleaned, k)
	}
	return cleaned
}

// stagedImage is deferred binary-asset data carried inside a queued
// payload: the raw bytes wait in the durable queue until connectivity
// returns, then upload ahead of the record replay.
type stagedImage struct {
	Data       []byte
	MIMEType   string
	FileName   string
	RecordType string
}

// stagedImageFrom extracts staged image data, if present. The original
// bytes are base64 (optionally a data: URL with a comma prefix).
func stagedImageFrom(p Payload) (*stagedImage, error) {
	raw, ok := p["image_base64_data"].(string)
	if !ok || raw == "" {
		return nil, nil
	}
	recordType, ok := p["record_type_for_image"].(string)
	if !ok || recordType == "" {
		return nil, nil
	}

	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode staged image: %w", err)
	}

	img := &stagedImage{Data: data, RecordType: recordType, FileName: "upload.jpg"}
	if name, ok := p["image_file_name"].(string); ok && name != "" {
		img.FileName = name
	}
	if mime, ok := p["image_mime_type"].(string); ok {
		img.MIMEType = mime
	}
	return img, nil
}

// dropStagedImage removes the raw-bytes staging fields after a
// successful upload so a replay cannot re-upload.
func dropStagedImage(p Payload) {
	delete(p, "image_base64_data")
	delete(p, "image_mime_type")
	delete(p, "image_file_name")
}

func decodePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	if len(raw) == 0 {
		return Payload{}, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

func encodePayload(p Payload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}
