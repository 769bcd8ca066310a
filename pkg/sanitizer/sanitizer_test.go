package sanitizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/signupkit/pkg/sanitizer"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase and trim", "  John.Doe@Example.COM ", "john.doe@example.com"},
		{"consecutive dots", "a..b@example.com", "a.b@example.com"},
		{"leading trailing dots", ".ab.@example.com", "ab@example.com"},
		{"invalid shape unchanged", "not-an-email", "not-an-email"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sanitizer.NormalizeEmail(tt.input))
		})
	}
}

func TestMaskEmail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "j***@example.com", sanitizer.MaskEmail("john@example.com"))
	assert.Equal(t, "*@example.com", sanitizer.MaskEmail("j@example.com"))
	assert.Equal(t, "not-an-email", sanitizer.MaskEmail("not-an-email"))
}

func TestMaskToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abcd...wxyz", sanitizer.MaskToken("abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "********", sanitizer.MaskToken("12345678"))
	assert.Equal(t, "", sanitizer.MaskToken(""))
}
