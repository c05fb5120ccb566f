package content

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
)

// Unknown carries content from a tab without extraction logic. It never yields
// references and rejects every edit.
type Unknown struct {
	Tab TabType         `json:"-"`
	Raw json.RawMessage `json:"raw,omitempty"`
}

func (u *Unknown) TabType() TabType { return u.Tab }

func (u *Unknown) Extract() Extraction { return Extraction{} }

func (u *Unknown) ApplyEdit(e Edit) error { return result(u.Tab, 0, e) }

func (u *Unknown) Clone() Payload {
	return &Unknown{Tab: u.Tab, Raw: slices.Clone(u.Raw)}
}

// Envelope is the transport form of a content unit.
type Envelope struct {
	TabType     TabType         `json:"tabType" yaml:"tab_type" validate:"required"`
	ContentType string          `json:"contentType" yaml:"content_type" validate:"required"`
	Content     json.RawMessage `json:"content" validate:"required"`
}

// Decode builds the typed payload for a tab type. Unknown tab types decode to
// an Unknown payload instead of failing.
func Decode(tab TabType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch tab {
	case TabScript:
		p = &Script{}
	case TabCasting:
		p = &Casting{}
	case TabStoryboard:
		p = &Storyboard{}
	case TabSchedule:
		p = &Schedule{}
	case TabWorldbuilding:
		p = &Worldbuilding{}
	case TabOutline:
		p = &Outline{}
	default:
		return &Unknown{Tab: tab, Raw: slices.Clone(raw)}, nil
	}
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decoding %s content: %w", tab, err)
	}
	return p, nil
}

// Hash fingerprints a payload together with its tab and content type. JSON
// encoding sorts map keys, so equal payloads always hash equally.
func Hash(tab TabType, contentType string, p Payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(tab))
	h.Write([]byte{0})
	h.Write([]byte(contentType))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}
