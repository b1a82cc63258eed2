package codecs

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type JSONIterCodec struct{}

func NewJSONIter() *JSONIterCodec {
	return &JSONIterCodec{}
}

func (c *JSONIterCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONIterCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Get returns the string at path inside data, or "" when absent. Used to
// peek at a discriminator without decoding the whole document.
func (c *JSONIterCodec) Get(data []byte, path ...any) string {
	return json.Get(data, path...).ToString()
}
