package mail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/datastore"
	"github.com/kartevonmorgen/kvmsync/internal/errors"
	"github.com/kartevonmorgen/kvmsync/internal/ofdb"
)

func newTestSender(t *testing.T, serverURL string) *Sender {
	t.Helper()

	sender := NewSender(&conf.EmailSettings{
		Enabled:        true,
		Domain:         "kvm.example",
		APIKey:         "key-test",
		URL:            serverURL,
		Sender:         "KvM Sync <noreply@kvm.example>",
		MaxRetries:     2,
		ActivationURL:  "https://kvm.example/subscriptions",
		UnsubscribeURL: "https://kvm.example/subscriptions",
	})
	t.Cleanup(sender.Close)
	return sender
}

func TestSendPostsMailgunForm(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "api", user)
		assert.Equal(t, "key-test", pass)

		assert.Equal(t, "/kvm.example/messages", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "KvM Sync <noreply@kvm.example>", r.PostForm.Get("from"))
		assert.Equal(t, "a@example.org", r.PostForm.Get("to"))
		assert.Equal(t, "hello", r.PostForm.Get("subject"))
		assert.Equal(t, "<p>body</p>", r.PostForm.Get("html"))
		assert.Contains(t, r.PostForm.Get("text"), "body", "a plain-text part is derived from the html")
	}))
	defer srv.Close()

	sender := newTestSender(t, srv.URL)
	err := sender.Send(context.Background(), KindDigest, &Message{
		To:      "a@example.org",
		Subject: "hello",
		HTML:    "<p>body</p>",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, requests.Load())
}

func TestSendRetriesProviderErrors(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sender := newTestSender(t, srv.URL)
	err := sender.Send(context.Background(), KindActivation, &Message{To: "a@example.org", HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, requests.Load())
}

func TestSendReportsExhaustedRetries(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		http.Error(w, "no", http.StatusBadRequest)
	}))
	defer srv.Close()

	sender := newTestSender(t, srv.URL)
	err := sender.Send(context.Background(), KindDigest, &Message{To: "a@example.org", HTML: "<p>x</p>"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMailDelivery))
	assert.EqualValues(t, 2, requests.Load())
}

func TestSendDisabledDropsMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected while delivery is disabled")
	}))
	defer srv.Close()

	sender := NewSender(&conf.EmailSettings{Enabled: false, URL: srv.URL})
	defer sender.Close()

	err := sender.Send(context.Background(), KindDigest, &Message{To: "a@example.org"})
	assert.NoError(t, err)
}

func TestSendTestRecipientOverridesTo(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "qa@kvm.example", r.PostForm.Get("to"))
	}))
	defer srv.Close()

	sender := NewSender(&conf.EmailSettings{
		Enabled:       true,
		Domain:        "kvm.example",
		URL:           srv.URL,
		MaxRetries:    1,
		TestRecipient: "qa@kvm.example",
	})
	defer sender.Close()

	err := sender.Send(context.Background(), KindDigest, &Message{To: "real@example.org", HTML: "<p>x</p>"})
	assert.NoError(t, err)
}

func TestActivationAndUnsubscribeLinks(t *testing.T) {
	t.Parallel()

	sender := newTestSender(t, "http://unused.invalid")

	assert.Equal(t, "https://kvm.example/subscriptions/tok123/activate", sender.ActivationLink("tok123"))
	assert.Equal(t, "https://kvm.example/subscriptions/sub456/unsubscribe", sender.UnsubscribeLink("sub456"))
}

func TestRenderActivation(t *testing.T) {
	t.Parallel()

	body, err := RenderActivation("Berlin Mitte", "https://kvm.example/subscriptions/tok/activate")
	require.NoError(t, err)
	assert.Contains(t, body, "Berlin Mitte")
	assert.Contains(t, body, "https://kvm.example/subscriptions/tok/activate")
}

func TestRenderDigest(t *testing.T) {
	t.Parallel()

	sub := &datastore.SubscriptionRecord{
		ID:       "sub-1",
		Title:    "Berlin Mitte",
		Email:    "a@example.org",
		Interval: "weekly",
	}
	entries := []ofdb.Entry{
		{
			ID:          "e1",
			Title:       "New food coop",
			Description: "A cooperative grocery",
			Street:      "Hauptstr. 1",
			Zip:         "10115",
			City:        "Berlin",
			Tags:        []string{"organic", "coop"},
		},
	}

	body, err := RenderDigest(sub, entries, "kvm.example", "https://kvm.example/subscriptions/sub-1/unsubscribe")
	require.NoError(t, err)
	assert.Contains(t, body, "New food coop")
	assert.Contains(t, body, "Hauptstr. 1 10115 Berlin")
	assert.Contains(t, body, "organic, coop")
	assert.Contains(t, body, "https://kvm.example/subscriptions/sub-1/unsubscribe")
}

func TestFormatDigestEntrySkipsEmptyAddressParts(t *testing.T) {
	t.Parallel()

	entry := ofdb.Entry{ID: "e1", Title: "t", City: "Berlin"}
	formatted := formatDigestEntry(&entry)
	assert.Equal(t, "Berlin", formatted.AddressLine)
	assert.Empty(t, formatted.Tags)
}
