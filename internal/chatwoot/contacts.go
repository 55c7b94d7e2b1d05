package chatwoot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

var ErrContactIdentity = errors.New("chatwoot: contact needs an identifier, email or phone")

type Contact struct {
	ID                   int64          `json:"id"`
	Name                 string         `json:"name,omitempty"`
	Email                string         `json:"email,omitempty"`
	PhoneNumber          string         `json:"phone_number,omitempty"`
	Identifier           string         `json:"identifier,omitempty"`
	Thumbnail            string         `json:"thumbnail,omitempty"`
	AdditionalAttributes map[string]any `json:"additional_attributes,omitempty"`
	CustomAttributes     map[string]any `json:"custom_attributes,omitempty"`
}

type ContactList struct {
	Meta    map[string]any `json:"meta"`
	Payload []Contact      `json:"payload"`
}

// Socials holds profile handles or URLs; both are reduced to the handle.
type Socials struct {
	Instagram string `json:"instagram,omitempty" yaml:"instagram"`
	Facebook  string `json:"facebook,omitempty" yaml:"facebook"`
	LinkedIn  string `json:"linkedin,omitempty" yaml:"linkedin"`
	Twitter   string `json:"twitter,omitempty" yaml:"twitter"`
	GitHub    string `json:"github,omitempty" yaml:"github"`
}

func (s Socials) profiles() map[string]any {
	return cleanMap(map[string]any{
		"instagram": NormalizeHandle(s.Instagram),
		"facebook":  NormalizeHandle(s.Facebook),
		"linkedin":  NormalizeHandle(s.LinkedIn),
		"twitter":   NormalizeHandle(s.Twitter),
		"github":    NormalizeHandle(s.GitHub),
	})
}

// NewContact is the input of CreateContact. Identifier is usually a WhatsApp
// JID; the phone number is derived from its leading digits.
type NewContact struct {
	InboxID     int64
	Name        string
	Identifier  string
	AvatarURL   string
	Email       string
	City        string
	Country     string
	CountryCode string
	Bio         string
	CompanyName string
	Socials     Socials
	Custom      map[string]any
}

// ContactPatch is the input of UpdateContact. Nil fields are left alone.
// AdditionalAttributes and CustomAttributes merge into the stored values
// unless the matching Replace flag is set.
type ContactPatch struct {
	Name        *string
	Email       *string
	Identifier  *string
	PhoneNumber *string
	AvatarURL   *string

	City        *string
	CompanyName *string
	Country     *string
	CountryCode *string
	Bio         *string
	Socials     *Socials

	AdditionalAttributes map[string]any
	CustomAttributes     map[string]any
	ReplaceAdditional    bool
	ReplaceCustom        bool
}

type DeleteOptions struct {
	Verify  bool // GET the contact afterwards and expect a 404
	OKOn404 bool
}

type DeleteResult struct {
	OK       bool `json:"ok"`
	Status   int  `json:"status"`
	Verified bool `json:"verified"`
}

func (c *Client) ListContacts(ctx context.Context, page int) (*ContactList, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	var out ContactList
	if err := c.do(ctx, http.MethodGet, c.contactsPath()+"/", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SearchContacts(ctx context.Context, query string) (*ContactList, error) {
	var out ContactList
	if err := c.do(ctx, http.MethodGet, c.contactsPath("search"), url.Values{"q": {query}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	var env struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := c.do(ctx, http.MethodGet, c.contactsPath(id), nil, nil, &env); err != nil {
		return nil, err
	}
	return unwrapContact(env.Payload)
}

// unwrapContact accepts both {"contact": {...}} and a bare contact object.
func unwrapContact(raw json.RawMessage) (*Contact, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("chatwoot: empty contact payload")
	}
	var wrapped struct {
		Contact *Contact `json:"contact"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Contact != nil {
		return wrapped.Contact, nil
	}
	var ct Contact
	if err := json.Unmarshal(raw, &ct); err != nil {
		return nil, fmt.Errorf("chatwoot: decode contact: %w", err)
	}
	return &ct, nil
}

// CreateContact posts the contact, then makes sure country and country_code
// landed in additional_attributes, and returns the stored contact. Failures
// of that follow-up are logged, not returned.
func (c *Client) CreateContact(ctx context.Context, in NewContact) (*Contact, error) {
	phone := ToE164(in.Identifier)
	if in.Identifier == "" && in.Email == "" && phone == "" {
		return nil, ErrContactIdentity
	}

	cc := strings.ToUpper(in.CountryCode)
	if cc == "" {
		cc = InferRegion(phone)
	}
	country := in.Country
	if country == "" && cc != "" {
		country = RegionName(cc)
	}

	aa := cleanMap(map[string]any{
		"city":            in.City,
		"country":         country,
		"country_code":    cc,
		"description":     in.Bio,
		"company_name":    in.CompanyName,
		"social_profiles": in.Socials.profiles(),
	})
	body := map[string]any{
		"name":                  in.Name,
		"identifier":            in.Identifier,
		"email":                 in.Email,
		"phone_number":          phone,
		"avatar_url":            in.AvatarURL,
		"additional_attributes": aa,
	}
	if in.InboxID > 0 {
		body["inbox_id"] = in.InboxID
	}
	if len(in.Custom) > 0 {
		body["custom_attributes"] = in.Custom
	}

	var env struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := c.do(ctx, http.MethodPost, c.contactsPath(), nil, cleanMap(body), &env); err != nil {
		return nil, err
	}
	created, err := unwrapContact(env.Payload)
	if err != nil {
		return nil, err
	}
	if created.ID == 0 {
		return created, nil
	}

	id := strconv.FormatInt(created.ID, 10)
	patch := map[string]any{}
	for k, v := range created.AdditionalAttributes {
		patch[k] = v
	}
	if cc != "" {
		patch["country_code"] = cc
	}
	if country != "" {
		patch["country"] = country
	}
	if !reflect.DeepEqual(patch, created.AdditionalAttributes) && len(patch) > 0 {
		if err := c.do(ctx, http.MethodPatch, c.contactsPath(id), nil, map[string]any{"additional_attributes": patch}, nil); err != nil {
			c.log.Warnw("chatwoot: country fix-up failed", "contact", id, "error", err)
			return created, nil
		}
	}
	got, err := c.GetContact(ctx, id)
	if err != nil {
		c.log.Warnw("chatwoot: reload after create failed", "contact", id, "error", err)
		return created, nil
	}
	return got, nil
}

// UpdateContact merges p into the stored contact and returns the result.
func (c *Client) UpdateContact(ctx context.Context, id string, p ContactPatch) (*Contact, error) {
	body := map[string]any{}
	setStr := func(key string, v *string) {
		if v != nil {
			body[key] = *v
		}
	}
	setStr("name", p.Name)
	setStr("email", p.Email)
	setStr("identifier", p.Identifier)
	setStr("phone_number", p.PhoneNumber)
	setStr("avatar_url", p.AvatarURL)
	if p.PhoneNumber == nil && p.Identifier != nil {
		if ph := ToE164(*p.Identifier); ph != "" {
			body["phone_number"] = ph
		}
	}

	aa := map[string]any{}
	for k, v := range p.AdditionalAttributes {
		aa[k] = v
	}
	for key, v := range map[string]*string{
		"city": p.City, "company_name": p.CompanyName, "country": p.Country,
		"country_code": p.CountryCode, "description": p.Bio,
	} {
		if v != nil {
			aa[key] = *v
		}
	}
	if p.Socials != nil {
		aa["social_profiles"] = p.Socials.profiles()
	}
	phone, _ := body["phone_number"].(string)
	normalizeAdditional(aa, phone)

	var current *Contact
	if !p.ReplaceAdditional || !p.ReplaceCustom {
		var err error
		if current, err = c.GetContact(ctx, id); err != nil {
			return nil, err
		}
	}
	if len(aa) > 0 || p.ReplaceAdditional {
		if !p.ReplaceAdditional {
			aa = merge(current.AdditionalAttributes, aa)
		}
		body["additional_attributes"] = aa
	}
	if len(p.CustomAttributes) > 0 || p.ReplaceCustom {
		ca := p.CustomAttributes
		if !p.ReplaceCustom {
			ca = merge(current.CustomAttributes, ca)
		}
		body["custom_attributes"] = ca
	}

	if err := c.do(ctx, http.MethodPatch, c.contactsPath(id), nil, cleanMap(body), nil); err != nil {
		return nil, err
	}
	return c.GetContact(ctx, id)
}

// normalizeAdditional folds bio aliases into description, reduces social
// handles and fills country fields from phone when absent.
func normalizeAdditional(aa map[string]any, phone string) {
	for _, alias := range []string{"bio", "about", "notes", "descricao"} {
		if v, ok := aa[alias]; ok {
			if _, has := aa["description"]; !has {
				aa["description"] = v
			}
			delete(aa, alias)
		}
	}
	if s, ok := aa["socials"]; ok {
		if _, has := aa["social_profiles"]; !has {
			aa["social_profiles"] = s
		}
		delete(aa, "socials")
	}
	if sp, ok := aa["social_profiles"].(map[string]any); ok {
		for k, v := range sp {
			if s, ok := v.(string); ok {
				sp[k] = NormalizeHandle(s)
			}
		}
	}
	if cc, ok := aa["country_code"].(string); ok {
		aa["country_code"] = strings.ToUpper(cc)
	}
	if _, ok := aa["country_code"]; !ok {
		if r := InferRegion(phone); r != "" {
			aa["country_code"] = r
		}
	}
	if _, ok := aa["country"]; !ok {
		if cc, _ := aa["country_code"].(string); cc != "" {
			aa["country"] = RegionName(cc)
		}
	}
}

func merge(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func (c *Client) DeleteContact(ctx context.Context, id string, opts DeleteOptions) (DeleteResult, error) {
	err := c.do(ctx, http.MethodDelete, c.contactsPath(id), nil, nil, nil)
	res := DeleteResult{OK: true, Status: http.StatusOK}
	if err != nil {
		var he *HTTPError
		if !errors.As(err, &he) || he.Status != http.StatusNotFound || !opts.OKOn404 {
			return DeleteResult{}, err
		}
		res.Status = he.Status
	}
	if !opts.Verify {
		return res, nil
	}
	_, err = c.GetContact(ctx, id)
	switch {
	case err == nil:
		return DeleteResult{OK: false, Status: res.Status}, nil
	case IsNotFound(err):
		res.Verified = true
		return res, nil
	default:
		return DeleteResult{}, err
	}
}
