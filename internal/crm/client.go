// Package crm is a thin client for the external GoHighLevel-style CRM REST
// API: calendar free slots, contact lookup/create, appointment create, and
// the inbound lead webhook. All callers treat failures as degradable; nothing
// here is allowed to take the conversation down.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

// API version headers the upstream requires per resource family.
const (
	calendarAPIVersion = "2021-04-15"
	contactAPIVersion  = "2021-07-28"
)

// ErrNotConfigured is returned when required credentials are absent.
var ErrNotConfigured = errors.New("crm: credentials not configured")

// Config holds CRM connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	LocationID string
	CalendarID string
	WebhookURL string
	Timezone   string
}

// Client issues authenticated requests against the CRM.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *logging.Logger
}

// NewClient builds a CRM client.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://services.leadconnectorhq.com"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "America/Chicago"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// WithHTTPClient swaps the transport, for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

func (c *Client) configured() error {
	if c.cfg.APIKey == "" || c.cfg.LocationID == "" || c.cfg.CalendarID == "" {
		return ErrNotConfigured
	}
	return nil
}

// FreeSlots returns the raw availability map for the window: date key
// ("2025-01-13") to absolute slot instants.
func (c *Client) FreeSlots(ctx context.Context, start, end time.Time) (map[string][]string, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("startDate", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endDate", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("timezone", c.cfg.Timezone)
	endpoint := fmt.Sprintf("%s/calendars/%s/free-slots?%s", c.cfg.BaseURL, c.cfg.CalendarID, q.Encode())

	var raw map[string]json.RawMessage
	if err := c.get(ctx, endpoint, calendarAPIVersion, &raw); err != nil {
		return nil, fmt.Errorf("crm: free slots fetch failed: %w", err)
	}

	slots := make(map[string][]string, len(raw))
	for date, blob := range raw {
		var day struct {
			Slots []string `json:"slots"`
		}
		// Non-date metadata keys in the response are skipped.
		if err := json.Unmarshal(blob, &day); err != nil || len(day.Slots) == 0 {
			continue
		}
		slots[date] = day.Slots
	}
	return slots, nil
}

// LookupContact finds an existing contact id by email, then by phone.
// Returns "" when no match exists.
func (c *Client) LookupContact(ctx context.Context, email, phone string) (string, error) {
	if err := c.configured(); err != nil {
		return "", err
	}

	if email != "" {
		id, err := c.lookupBy(ctx, "email", email)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	if phone != "" {
		id, err := c.lookupBy(ctx, "phone", phone)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	return "", nil
}

func (c *Client) lookupBy(ctx context.Context, field, value string) (string, error) {
	q := url.Values{}
	q.Set(field, value)
	q.Set("locationId", c.cfg.LocationID)
	endpoint := fmt.Sprintf("%s/contacts/lookup?%s", c.cfg.BaseURL, q.Encode())

	var body struct {
		Contacts []struct {
			ID string `json:"id"`
		} `json:"contacts"`
		Contact *struct {
			ID string `json:"id"`
		} `json:"contact"`
	}
	if err := c.get(ctx, endpoint, contactAPIVersion, &body); err != nil {
		// Lookup misses surface as errors upstream; treat them as no match.
		c.logger.Debug("crm: contact lookup miss", "field", field, "error", err)
		return "", nil
	}
	if len(body.Contacts) > 0 {
		return body.Contacts[0].ID, nil
	}
	if body.Contact != nil {
		return body.Contact.ID, nil
	}
	return "", nil
}

// CreateContact creates a contact record and returns its id. A duplicate
// rejection that carries the existing contact id is treated as success.
func (c *Client) CreateContact(ctx context.Context, name, email, phone string) (string, error) {
	if err := c.configured(); err != nil {
		return "", err
	}

	first, last := splitName(name)
	payload := map[string]string{
		"locationId": c.cfg.LocationID,
		"firstName":  first,
		"lastName":   last,
		"email":      email,
		"phone":      phone,
	}

	status, raw, err := c.post(ctx, c.cfg.BaseURL+"/contacts/", contactAPIVersion, payload)
	if err != nil {
		return "", fmt.Errorf("crm: contact create failed: %w", err)
	}
	if status >= 400 {
		var dup struct {
			Meta struct {
				ContactID string `json:"contactId"`
			} `json:"meta"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &dup) == nil && dup.Meta.ContactID != "" {
			c.logger.Info("crm: duplicate contact, reusing existing", "contact_id", dup.Meta.ContactID)
			return dup.Meta.ContactID, nil
		}
		return "", fmt.Errorf("crm: contact create rejected: status %d: %s", status, dup.Message)
	}

	var body struct {
		Contact struct {
			ID string `json:"id"`
		} `json:"contact"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Contact.ID == "" {
		return "", errors.New("crm: contact create returned no id")
	}
	return body.Contact.ID, nil
}

// CreateAppointment books a confirmed appointment for the contact at the
// given absolute start instant.
func (c *Client) CreateAppointment(ctx context.Context, contactID, startTime, title string) error {
	if err := c.configured(); err != nil {
		return err
	}

	payload := map[string]string{
		"calendarId":        c.cfg.CalendarID,
		"locationId":        c.cfg.LocationID,
		"contactId":         contactID,
		"startTime":         startTime,
		"title":             title,
		"appointmentStatus": "confirmed",
	}
	status, raw, err := c.post(ctx, c.cfg.BaseURL+"/calendars/events/appointments", calendarAPIVersion, payload)
	if err != nil {
		return fmt.Errorf("crm: appointment create failed: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("crm: appointment create rejected: status %d: %s", status, strings.TrimSpace(string(raw)))
	}
	return nil
}

// PostWebhook forwards a lead payload to the configured inbound webhook.
func (c *Client) PostWebhook(ctx context.Context, payload any) error {
	if c.cfg.WebhookURL == "" {
		return errors.New("crm: webhook URL not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("crm: failed to encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("crm: failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm: webhook post failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("crm: webhook rejected: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint, version string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, version)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, endpoint, version string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	c.setHeaders(req, version)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, raw, nil
}

func (c *Client) setHeaders(req *http.Request, version string) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Version", version)
	req.Header.Set("Content-Type", "application/json")
}

// splitName divides a display name into the first/last pair the CRM expects.
func splitName(name string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) == 0 {
		return name, ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
