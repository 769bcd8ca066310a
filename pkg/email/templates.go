package email

import "fmt"

// VerificationEmail builds the magic-link message. The raw token is embedded
// only in the URL; it never appears in logs or storage.
func VerificationEmail(to, verifyURL string) SendEmailParams {
	return SendEmailParams{
		SendTo:  to,
		Subject: "Confirm your email to sign in",
		Tag:     "magic-link",
		BodyHTML: fmt.Sprintf(`<p>Click the link below to sign in. The link works once and expires in 24 hours.</p>
<p><a href="%s">Sign in</a></p>
<p>If you did not request this email you can safely ignore it.</p>`, verifyURL),
		BodyText: fmt.Sprintf(`Click the link below to sign in. The link works once and expires in 24 hours.

%s

If you did not request this email you can safely ignore it.`, verifyURL),
	}
}
