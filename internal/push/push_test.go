package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/volunteerd/internal/model"
)

func testSubscription(t *testing.T, endpoint string) model.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return model.PushSubscription{
		VolunteerID: 1,
		Endpoint:    endpoint,
		P256dhKey:   base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		AuthKey:     base64.RawURLEncoding.EncodeToString(secret),
	}
}

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	require.NoError(t, err)
	assert.Len(t, pubBytes, 65)
	assert.Equal(t, byte(0x04), pubBytes[0])

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	require.NoError(t, err)
	assert.Len(t, privBytes, 32)
}

func TestSend(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	status := http.StatusCreated
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(status)
	}))
	defer ts.Close()

	svc := NewService(pub, priv, "mailto:ops@example.org")
	assert.Equal(t, pub, svc.VAPIDPublicKey())
	sub := testSubscription(t, ts.URL+"/push/abc")

	require.NoError(t, svc.Send(context.Background(), sub, Payload{Title: "hi"}))
	assert.Contains(t, gotAuth, "vapid")

	status = http.StatusGone
	assert.ErrorIs(t, svc.Send(context.Background(), sub, Payload{Title: "hi"}), ErrExpired)

	status = http.StatusInternalServerError
	err = svc.Send(context.Background(), sub, Payload{Title: "hi"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExpired)
}

type fakeSender struct {
	mu      sync.Mutex
	sent    map[string][]Payload
	expired map[string]bool
}

func (f *fakeSender) Send(_ context.Context, sub model.PushSubscription, p Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired[sub.Endpoint] {
		return ErrExpired
	}
	if f.sent == nil {
		f.sent = make(map[string][]Payload)
	}
	f.sent[sub.Endpoint] = append(f.sent[sub.Endpoint], p)
	return nil
}

type fakeReminderStore struct {
	due      []model.Reminder
	subs     map[int64][]model.PushSubscription
	deleted  []string
	reminded map[[2]int64]time.Time
}

func (f *fakeReminderStore) DueReminders(_ context.Context, from, to time.Time) ([]model.Reminder, error) {
	var out []model.Reminder
	for _, r := range f.due {
		if _, done := f.reminded[[2]int64{r.VolunteerID, r.OpportunityID}]; done {
			continue
		}
		if !r.StartTime.Before(from) && !r.StartTime.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReminderStore) ListByVolunteer(_ context.Context, id int64) ([]model.PushSubscription, error) {
	return f.subs[id], nil
}

func (f *fakeReminderStore) DeleteByEndpoint(_ context.Context, endpoint string) error {
	f.deleted = append(f.deleted, endpoint)
	return nil
}

func (f *fakeReminderStore) MarkReminded(_ context.Context, v, o int64, at time.Time) error {
	if f.reminded == nil {
		f.reminded = make(map[[2]int64]time.Time)
	}
	f.reminded[[2]int64{v, o}] = at
	return nil
}

func TestRemindersTick(t *testing.T) {
	now := time.Date(2030, time.June, 1, 8, 0, 0, 0, time.UTC)
	store := &fakeReminderStore{
		due: []model.Reminder{
			{VolunteerID: 1, OpportunityID: 10, Title: "Park cleanup", Location: "Riverside", StartTime: now.Add(30 * time.Minute)},
			{VolunteerID: 2, OpportunityID: 10, Title: "Park cleanup", StartTime: now.Add(30 * time.Minute)},
			{VolunteerID: 1, OpportunityID: 11, Title: "Food drive", StartTime: now.Add(72 * time.Hour)},
		},
		subs: map[int64][]model.PushSubscription{
			1: {{VolunteerID: 1, Endpoint: "https://push/a"}, {VolunteerID: 1, Endpoint: "https://push/b"}},
			2: {{VolunteerID: 2, Endpoint: "https://push/gone"}},
		},
	}
	sender := &fakeSender{expired: map[string]bool{"https://push/gone": true}}

	r := NewReminders(sender, store, 24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = func() time.Time { return now }

	reached, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reached)

	require.Len(t, sender.sent["https://push/a"], 1)
	require.Len(t, sender.sent["https://push/b"], 1)
	p := sender.sent["https://push/a"][0]
	assert.Equal(t, "Upcoming: Park cleanup", p.Title)
	assert.Equal(t, "Starts in 30 minutes at Riverside", p.Body)
	assert.Equal(t, "/opportunities/10", p.URL)

	assert.Equal(t, []string{"https://push/gone"}, store.deleted)
	assert.Len(t, store.reminded, 2)

	// Already reminded pairs are not sent again.
	reached, err = r.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, reached)
	assert.Len(t, sender.sent["https://push/a"], 1)
}

type failingStore struct{ fakeReminderStore }

func (f *failingStore) DueReminders(context.Context, time.Time, time.Time) ([]model.Reminder, error) {
	return nil, errors.New("db down")
}

func TestRemindersTickStoreError(t *testing.T) {
	r := NewReminders(&fakeSender{}, &failingStore{}, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := r.Tick(context.Background())
	assert.Error(t, err)
}

func TestReminderBody(t *testing.T) {
	now := time.Date(2030, time.June, 1, 8, 0, 0, 0, time.UTC)
	rem := model.Reminder{StartTime: now.Add(5 * time.Hour)}
	assert.Equal(t, "Starts Sat Jun 1, 1:00 PM UTC", reminderBody(rem, now))
}
