package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"
)

const postmarkURL = "https://api.postmarkapp.com/email"

// Client sends transactional email through the Postmark HTTP API.
type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// OpportunityNotice describes the opportunity an email is about.
type OpportunityNotice struct {
	To            string
	VolunteerName string
	OpportunityID int64
	Title         string
	Location      string
	Start         time.Time
	End           time.Time
}

func (n OpportunityNotice) when() string {
	return fmt.Sprintf("%s, %s to %s",
		n.Start.Format("Mon Jan 2, 2006"), n.Start.Format("3:04 PM"), n.End.Format("3:04 PM MST"))
}

// SendSignupConfirmation tells a volunteer their spot is confirmed.
func (c *Client) SendSignupConfirmation(ctx context.Context, n OpportunityNotice) error {
	link := fmt.Sprintf("%s/opportunities/%d", c.baseURL, n.OpportunityID)
	subject := fmt.Sprintf("You're signed up: %s", n.Title)

	textBody := fmt.Sprintf("Hi %s,\n\nYour spot for %s is confirmed.\n\nWhen: %s\nWhere: %s\n\nDetails: %s\n",
		n.VolunteerName, n.Title, n.when(), n.Location, link)
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>Your spot for <strong>%s</strong> is confirmed.</p><p>When: %s<br>Where: %s</p><p><a href="%s">View details</a></p>`,
		html.EscapeString(n.VolunteerName), html.EscapeString(n.Title), n.when(), html.EscapeString(n.Location), link,
	)

	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       n.To,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
		Tag:      "signup-confirmation",
	})
}

// SendOpportunityCanceled tells a signed-up volunteer the opportunity will
// not take place.
func (c *Client) SendOpportunityCanceled(ctx context.Context, n OpportunityNotice) error {
	subject := fmt.Sprintf("Canceled: %s", n.Title)

	textBody := fmt.Sprintf("Hi %s,\n\n%s on %s has been canceled. Thank you for signing up.\n",
		n.VolunteerName, n.Title, n.when())
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p><strong>%s</strong> on %s has been canceled. Thank you for signing up.</p>`,
		html.EscapeString(n.VolunteerName), html.EscapeString(n.Title), n.when(),
	)

	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       n.To,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
		Tag:      "opportunity-canceled",
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}
	if payload.To == "" {
		return fmt.Errorf("email has no recipient")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
