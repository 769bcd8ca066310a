package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/signupkit/pkg/validator"
)

func TestValidEmail(t *testing.T) {
	t.Parallel()

	valid := []string{
		"user@example.com",
		"first.last@sub.example.co",
		"a+tag@example.org",
	}
	for _, email := range valid {
		t.Run(email, func(t *testing.T) {
			t.Parallel()
			assert.NoError(t, validator.Apply(validator.ValidEmail("email", email)))
		})
	}

	invalid := []string{
		"",
		"   ",
		"plainaddress",
		"@example.com",
		"user@nodot",
		"user@.example.com",
		"user@example.com.",
		"Display Name <user@example.com>",
	}
	for _, email := range invalid {
		t.Run("invalid_"+email, func(t *testing.T) {
			t.Parallel()
			err := validator.Apply(validator.ValidEmail("email", email))
			require.Error(t, err)

			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.True(t, verrs.Has("email"))
		})
	}
}

func TestApplyCollectsAllFailures(t *testing.T) {
	t.Parallel()

	err := validator.Apply(
		validator.Required("email", ""),
		validator.ValidEmail("email", ""),
	)
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
}
