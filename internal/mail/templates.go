package mail

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/kartevonmorgen/kvmsync/internal/datastore"
	"github.com/kartevonmorgen/kvmsync/internal/errors"
	"github.com/kartevonmorgen/kvmsync/internal/ofdb"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// digestEntry is one entry formatted for the digest template.
type digestEntry struct {
	ID          string
	Title       string
	Description string
	AddressLine string
	Tags        string
	Homepage    string
}

type digestContext struct {
	Subscription    *datastore.SubscriptionRecord
	Entries         []digestEntry
	Interval        string
	Domain          string
	UnsubscribeLink string
}

type activationContext struct {
	SubscriptionTitle string
	ActivationLink    string
}

// RenderDigest renders the digest email body for a subscription and its
// matching entries.
func RenderDigest(sub *datastore.SubscriptionRecord, entries []ofdb.Entry, domain, unsubscribeLink string) (string, error) {
	formatted := make([]digestEntry, 0, len(entries))
	for i := range entries {
		formatted = append(formatted, formatDigestEntry(&entries[i]))
	}

	var buf strings.Builder
	err := templates.ExecuteTemplate(&buf, "digest.html", &digestContext{
		Subscription:    sub,
		Entries:         formatted,
		Interval:        sub.Interval,
		Domain:          domain,
		UnsubscribeLink: unsubscribeLink,
	})
	if err != nil {
		return "", errors.New(err).
			Component("mail").
			Category(errors.CategoryGeneric).
			Context("template", "digest").
			Build()
	}
	return buf.String(), nil
}

// RenderActivation renders the activation email body.
func RenderActivation(subscriptionTitle, activationLink string) (string, error) {
	var buf strings.Builder
	err := templates.ExecuteTemplate(&buf, "activation.html", &activationContext{
		SubscriptionTitle: subscriptionTitle,
		ActivationLink:    activationLink,
	})
	if err != nil {
		return "", errors.New(err).
			Component("mail").
			Category(errors.CategoryGeneric).
			Context("template", "activation").
			Build()
	}
	return buf.String(), nil
}

// formatDigestEntry flattens an entry into the strings the template shows.
// The address line joins whatever address parts are present.
func formatDigestEntry(e *ofdb.Entry) digestEntry {
	var parts []string
	for _, p := range []string{e.Street, e.Zip, e.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return digestEntry{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		AddressLine: strings.Join(parts, " "),
		Tags:        strings.Join(e.Tags, ", "),
		Homepage:    e.Homepage,
	}
}

// SendActivation renders and delivers the activation email for a new
// subscription. The token goes into the activation link instead of the
// subscription ID so that only the mail recipient can activate.
func (s *Sender) SendActivation(ctx context.Context, sub *datastore.SubscriptionRecord, token string) error {
	body, err := RenderActivation(sub.Title, s.ActivationLink(token))
	if err != nil {
		return err
	}
	return s.Send(ctx, KindActivation, &Message{
		To:      sub.Email,
		Subject: "Confirm your subscription",
		HTML:    body,
	})
}

// SendDigest renders and delivers one digest email.
func (s *Sender) SendDigest(ctx context.Context, sub *datastore.SubscriptionRecord, entries []ofdb.Entry) error {
	body, err := RenderDigest(sub, entries, s.settings.Domain, s.UnsubscribeLink(sub.ID))
	if err != nil {
		return err
	}
	return s.Send(ctx, KindDigest, &Message{
		To:      sub.Email,
		Subject: fmt.Sprintf("Your %s update: %s", sub.Interval, sub.Title),
		HTML:    body,
	})
}

// ActivationLink builds the public activation URL for a token.
func (s *Sender) ActivationLink(token string) string {
	return fmt.Sprintf("%s/%s/activate",
		strings.TrimRight(s.settings.ActivationURL, "/"), token)
}

// UnsubscribeLink builds the public unsubscribe URL for a subscription.
func (s *Sender) UnsubscribeLink(subscriptionID string) string {
	return fmt.Sprintf("%s/%s/unsubscribe",
		strings.TrimRight(s.settings.UnsubscribeURL, "/"), subscriptionID)
}
