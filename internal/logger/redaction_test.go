package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name   string
		input  string
		secret string
	}{
		{"openai key", "key=sk-proj-AbCdEfGhIjKlMnOpQrStUvWx", "sk-proj-AbCdEfGhIjKlMnOpQrStUvWx"},
		{"anthropic key", "using sk-ant-REDACTED", "sk-ant-REDACTED"},
		{"bearer token", "Authorization: Bearer abc.def.ghi", "abc.def.ghi"},
		{"shared secret header", `X-Companion-Secret: hunter2`, "hunter2"},
		{"config key", `"shared_secret":"hunter2"`, "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Redact(tt.input)
			assert.NotContains(t, out, tt.secret)
			assert.Contains(t, out, redacted)
		})
	}

	t.Run("plain text untouched", func(t *testing.T) {
		assert.Equal(t, "Hello world test", r.Redact("Hello world test"))
	})
}

func TestAddPattern(t *testing.T) {
	r := NewRedactor()

	require.NoError(t, r.AddPattern(`student-\d+`))
	assert.Equal(t, "id "+redacted, r.Redact("id student-42"))

	assert.Error(t, r.AddPattern(`(`))
}

func TestWrap(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactor().Wrap(&buf)

	input := []byte("token Bearer secret-token-value\n")
	n, err := w.Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)
	assert.NotContains(t, buf.String(), "secret-token-value")
}
