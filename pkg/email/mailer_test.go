package email_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/signupkit/pkg/email"
	"github.com/dmitrymomot/signupkit/pkg/logger"
)

func TestSendEmailParamsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  email.SendEmailParams
		wantErr bool
	}{
		{
			name: "valid html only",
			params: email.SendEmailParams{
				SendTo:   "user@example.com",
				Subject:  "Subject",
				BodyHTML: "<p>hi</p>",
			},
		},
		{
			name: "valid text only",
			params: email.SendEmailParams{
				SendTo:   "user@example.com",
				Subject:  "Subject",
				BodyText: "hi",
			},
		},
		{
			name:    "missing recipient",
			params:  email.SendEmailParams{Subject: "S", BodyText: "hi"},
			wantErr: true,
		},
		{
			name: "invalid recipient",
			params: email.SendEmailParams{
				SendTo: "nope", Subject: "S", BodyText: "hi",
			},
			wantErr: true,
		},
		{
			name: "missing subject",
			params: email.SendEmailParams{
				SendTo: "user@example.com", BodyText: "hi",
			},
			wantErr: true,
		},
		{
			name: "missing body",
			params: email.SendEmailParams{
				SendTo: "user@example.com", Subject: "S",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, email.ErrInvalidParams)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewPostmarkClientConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := email.NewPostmarkClient(email.Config{})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	_, err = email.NewPostmarkClient(email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "not-an-email",
		SupportEmail:         "support@example.com",
	})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	sender := email.NewDevSender(logger.NewDiscard())

	err := sender.SendEmail(context.Background(), email.VerificationEmail("user@example.com", "https://app.test/signup/verify?token=abc"))
	require.NoError(t, err)

	err = sender.SendEmail(context.Background(), email.SendEmailParams{})
	assert.ErrorIs(t, err, email.ErrInvalidParams)
}

func TestVerificationEmail(t *testing.T) {
	t.Parallel()

	params := email.VerificationEmail("user@example.com", "https://app.test/v?token=raw")
	assert.Equal(t, "user@example.com", params.SendTo)
	assert.Contains(t, params.BodyHTML, "https://app.test/v?token=raw")
	assert.Contains(t, params.BodyText, "https://app.test/v?token=raw")
	assert.Equal(t, "magic-link", params.Tag)
}
