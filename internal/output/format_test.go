package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextJoinsContentBlocks(t *testing.T) {
	raw := []byte(`{"content":[{"type":"text","text":"hello"},{"type":"text","text":"world"}]}`)
	assert.Equal(t, "hello\n\nworld", Text(raw))
}

func TestTextPlaceholdersNonTextContent(t *testing.T) {
	raw := []byte(`{"content":[{"type":"image","data":"base64"}]}`)
	assert.Equal(t, "[image content omitted]", Text(raw))
}

func TestIsErrorReflectsFlag(t *testing.T) {
	assert.True(t, IsError([]byte(`{"isError":true}`)))
	assert.False(t, IsError([]byte(`{"isError":false}`)))
	assert.False(t, IsError([]byte(`{}`)))
}

func TestJSONStripsNullMeta(t *testing.T) {
	out := JSON([]byte(`{"content":[],"_meta":null}`))
	assert.NotContains(t, out, "_meta")
}

func TestJSONKeepsNonNullMeta(t *testing.T) {
	out := JSON([]byte(`{"_meta":{"k":"v"}}`))
	assert.Contains(t, out, "\"k\"")
}
