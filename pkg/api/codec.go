package api

import "encoding/json"

// Codec marshals the plain Go messages of this package as JSON. It is
// registered under the name "json", so clients and handlers speak the
// Connect protocol with Content-Type application/json.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) { return json.Marshal(msg) }

func (Codec) Unmarshal(data []byte, msg any) error { return json.Unmarshal(data, msg) }
