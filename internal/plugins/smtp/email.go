package smtp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

// The bodies below are written directly as templ.ComponentFunc values
// rather than generated from .templ files. Every interpolated value goes
// through templ.EscapeString.

// Email is a rendered message ready for SendMail.
type Email struct {
	Subject string
	HTML    string
}

// WelcomeEmail greets a newly registered user by name.
func WelcomeEmail(name string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return layout(w, "Welcome", func(w io.Writer) error {
			_, err := fmt.Fprintf(w,
				`<p>Hello %s,</p>`+
					`<p>Your account has been created. You are now signed in.</p>`+
					`<p>If you did not create this account, please contact support.</p>`,
				templ.EscapeString(name))
			return err
		})
	})
}

// RecoveryPinEmail carries a password recovery PIN and how long it stays valid.
func RecoveryPinEmail(pin string, validFor time.Duration) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return layout(w, "Password recovery", func(w io.Writer) error {
			_, err := fmt.Fprintf(w,
				`<p>Use this code to reset your password:</p>`+
					`<p style="font-size:28px;font-weight:bold;letter-spacing:6px">%s</p>`+
					`<p>The code expires in %d minutes. If you did not ask for it, you can ignore this email.</p>`,
				templ.EscapeString(pin), int(validFor.Minutes()))
			return err
		})
	})
}

// layout wraps body in the shared HTML envelope.
func layout(w io.Writer, title string, body func(io.Writer) error) error {
	if _, err := fmt.Fprintf(w,
		`<!DOCTYPE html><html><head><meta charset="utf-8"><title>%s</title></head>`+
			`<body style="font-family:sans-serif;color:#222"><h1>%s</h1>`,
		templ.EscapeString(title), templ.EscapeString(title)); err != nil {
		return err
	}
	if err := body(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, `</body></html>`)
	return err
}

// Render renders a component into an Email with the given subject.
func Render(ctx context.Context, subject string, c templ.Component) (Email, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return Email{}, fmt.Errorf("rendering email %q: %w", subject, err)
	}
	return Email{Subject: subject, HTML: buf.String()}, nil
}
