package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	type status struct {
		Code  int      `json:"code"`
		Hosts []string `json:"hosts,omitempty"`
	}
	b, err := Marshal(map[string]any{"b": 1, "a": "<x>"})
	assert.Nil(t, err)
	assert.Equal(t, `{"a":"\u003cx\u003e","b":1}`, string(b))

	var s status
	assert.Nil(t, Unmarshal([]byte(`{"code":404,"hosts":["a","b"]}`), &s))
	assert.Equal(t, status{Code: 404, Hosts: []string{"a", "b"}}, s)

	_, err = Marshal(func() {})
	assert.NotNil(t, err)
	assert.NotEmpty(t, Name)
}
