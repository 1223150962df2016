// Package template renders outbound mail bodies.
//
// Supported variables:
//
//	{{user.email}}, {{token}}, {{link}}, {{expires_in}}, {{expires_at}}
package template

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	PasswordResetSubject = "Reset your password"
	PasswordResetBody    = `Hello {{user.email}},

Use the link below to choose a new password. It expires in {{expires_in}}.

{{link}}

If you did not request a reset you can ignore this message.
`

	VerificationSubject = "Verify your email address"
	VerificationBody    = `Hello {{user.email}},

Confirm your email address with the link below. It expires in {{expires_in}}.

{{link}}
`
)

// MessageData - values substituted into a mail body
type MessageData struct {
	Email     string
	Token     string
	Link      string
	ExpiresIn time.Duration
	ExpiresAt time.Time
}

// RenderBody - replaces the variables in body with values from data
//
// A nil data renders every variable as an empty string.
func RenderBody(body string, data *MessageData) string {
	pairs := make([]string, 0, 10)

	if data != nil {
		expiresAt := ""
		if !data.ExpiresAt.IsZero() {
			expiresAt = data.ExpiresAt.UTC().Format(time.RFC3339)
		}
		pairs = append(pairs,
			"{{user.email}}", data.Email,
			"{{token}}", data.Token,
			"{{link}}", data.Link,
			"{{expires_in}}", humanDuration(data.ExpiresIn),
			"{{expires_at}}", expiresAt,
		)
	} else {
		pairs = append(pairs,
			"{{user.email}}", "",
			"{{token}}", "",
			"{{link}}", "",
			"{{expires_in}}", "",
			"{{expires_at}}", "",
		)
	}

	return strings.NewReplacer(pairs...).Replace(body)
}

// BuildLink - appends path and the token query parameter to baseURL
//
// An empty baseURL yields the bare token so the message is still usable.
func BuildLink(baseURL, path, token string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return token
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return token
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return strconv.Itoa(h) + " hours"
	case d%time.Minute == 0:
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return strconv.Itoa(m) + " minutes"
	default:
		return d.String()
	}
}
