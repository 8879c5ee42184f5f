package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// The portable, zero-dependency option. Report blobs are small enough
// that the stdlib encoder is rarely the bottleneck; class indexes with
// millions of members decode noticeably faster with GoJSON.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used when options leave it unset.
var Default Codec = GoJSON{}
