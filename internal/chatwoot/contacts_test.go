package chatwoot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

type fakeChatwoot struct {
	mu     sync.Mutex
	calls  []call
	handle func(w http.ResponseWriter, c call)
}

func (f *fakeChatwoot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		if len(b) > 0 {
			_ = json.Unmarshal(b, &c.Body)
		}
	}
	if r.Header.Get("api_access_token") != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	f.handle(w, c)
}

func (f *fakeChatwoot) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newTestClient(t *testing.T, f *fakeChatwoot) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", Token: "secret", AccountID: "7"}, nil)
	require.NoError(t, err)
	return c
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(Config{BaseURL: "http://x"}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestListAndSearch(t *testing.T) {
	f := &fakeChatwoot{handle: func(w http.ResponseWriter, c call) {
		_, _ = io.WriteString(w, `{"meta":{"count":1},"payload":[{"id":3,"name":"Ana"}]}`)
	}}
	c := newTestClient(t, f)

	list, err := c.ListContacts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list.Payload, 1)
	assert.Equal(t, "Ana", list.Payload[0].Name)

	_, err = c.SearchContacts(context.Background(), "ana maria")
	require.NoError(t, err)

	calls := f.recorded()
	assert.Equal(t, "/api/v1/accounts/7/contacts/", calls[0].Path)
	assert.Equal(t, "/api/v1/accounts/7/contacts/search", calls[1].Path)
	assert.Equal(t, "q=ana+maria", calls[1].Query)
}

func TestCreateContactFixesCountry(t *testing.T) {
	f := &fakeChatwoot{handle: func(w http.ResponseWriter, c call) {
		switch c.Method {
		case http.MethodPost:
			_, _ = io.WriteString(w, `{"payload":{"contact":{"id":42,"name":"Ana","additional_attributes":{"city":"Recife"}}}}`)
		case http.MethodPatch:
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"payload":{"id":42,"name":"Ana","additional_attributes":{"city":"Recife","country_code":"BR","country":"Brazil"}}}`)
		}
	}}
	c := newTestClient(t, f)

	got, err := c.CreateContact(context.Background(), NewContact{
		InboxID:    2,
		Name:       "Ana",
		Identifier: "5581999990000@s.whatsapp.net",
		City:       "Recife",
		Socials:    Socials{Instagram: "https://instagram.com/ana.rec/"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, "BR", got.AdditionalAttributes["country_code"])

	calls := f.recorded()
	require.Len(t, calls, 3)
	post := calls[0].Body
	assert.Equal(t, "+5581999990000", post["phone_number"])
	assert.Equal(t, float64(2), post["inbox_id"])
	assert.NotContains(t, post, "email")
	assert.NotContains(t, post, "custom_attributes")
	aa := post["additional_attributes"].(map[string]any)
	assert.Equal(t, "BR", aa["country_code"])
	assert.Equal(t, "Brazil", aa["country"])
	assert.Equal(t, map[string]any{"instagram": "ana.rec"}, aa["social_profiles"])

	assert.Equal(t, http.MethodPatch, calls[1].Method)
	assert.Equal(t, "/api/v1/accounts/7/contacts/42", calls[1].Path)
	patched := calls[1].Body["additional_attributes"].(map[string]any)
	assert.Equal(t, map[string]any{"city": "Recife", "country_code": "BR", "country": "Brazil"}, patched)
}

func TestCreateContactNeedsIdentity(t *testing.T) {
	c := newTestClient(t, &fakeChatwoot{handle: func(w http.ResponseWriter, c call) {
		t.Errorf("unexpected %s %s", c.Method, c.Path)
	}})
	_, err := c.CreateContact(context.Background(), NewContact{Name: "nobody"})
	require.ErrorIs(t, err, ErrContactIdentity)
}

func TestUpdateContactMerges(t *testing.T) {
	f := &fakeChatwoot{handle: func(w http.ResponseWriter, c call) {
		if c.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"payload":{"id":9,"additional_attributes":{"city":"Lisboa","country_code":"PT"},"custom_attributes":{"tier":"gold"}}}`)
		}
	}}
	c := newTestClient(t, f)

	bio := "Cliente antigo"
	_, err := c.UpdateContact(context.Background(), "9", ContactPatch{
		Bio:              &bio,
		CustomAttributes: map[string]any{"source": "sheet"},
	})
	require.NoError(t, err)

	calls := f.recorded()
	require.Len(t, calls, 3)
	patch := calls[1]
	assert.Equal(t, http.MethodPatch, patch.Method)
	assert.Equal(t, map[string]any{"city": "Lisboa", "country_code": "PT", "description": "Cliente antigo"}, patch.Body["additional_attributes"])
	assert.Equal(t, map[string]any{"tier": "gold", "source": "sheet"}, patch.Body["custom_attributes"])
}

func TestUpdateContactDerivesPhone(t *testing.T) {
	f := &fakeChatwoot{handle: func(w http.ResponseWriter, c call) {
		if c.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"payload":{"id":9}}`)
		}
	}}
	c := newTestClient(t, f)

	ident := "351912345678@s.whatsapp.net"
	_, err := c.UpdateContact(context.Background(), "9", ContactPatch{Identifier: &ident})
	require.NoError(t, err)

	body := f.recorded()[1].Body
	assert.Equal(t, "+351912345678", body["phone_number"])
	aa := body["additional_attributes"].(map[string]any)
	assert.Equal(t, "PT", aa["country_code"])
	assert.Equal(t, "Portugal", aa["country"])
}

func TestDeleteContact(t *testing.T) {
	deleted := false
	f := &fakeChatwoot{handle: func(w http.ResponseWriter, c call) {
		switch c.Method {
		case http.MethodDelete:
			deleted = true
		case http.MethodGet:
			if deleted {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = io.WriteString(w, `{"payload":{"id":5}}`)
		}
	}}
	c := newTestClient(t, f)

	res, err := c.DeleteContact(context.Background(), "5", DeleteOptions{Verify: true, OKOn404: true})
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{OK: true, Status: http.StatusOK, Verified: true}, res)
}

func TestDeleteContactNotFound(t *testing.T) {
	f := &fakeChatwoot{handle: func(w http.ResponseWriter, c call) {
		w.WriteHeader(http.StatusNotFound)
	}}
	c := newTestClient(t, f)

	res, err := c.DeleteContact(context.Background(), "5", DeleteOptions{OKOn404: true})
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{OK: true, Status: http.StatusNotFound}, res)

	_, err = c.DeleteContact(context.Background(), "5", DeleteOptions{})
	assert.True(t, IsNotFound(err))
}

func TestDeleteContactStillPresent(t *testing.T) {
	f := &fakeChatwoot{handle: func(w http.ResponseWriter, c call) {
		if c.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"payload":{"id":5}}`)
		}
	}}
	c := newTestClient(t, f)

	res, err := c.DeleteContact(context.Background(), "5", DeleteOptions{Verify: true})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.False(t, res.Verified)
}
