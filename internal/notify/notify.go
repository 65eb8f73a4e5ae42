// Package notify sends transactional email about family membership events
// through Postmark.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/dukerupert/famboard/internal/model"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email not configured: missing server token")

// Notifier is told about membership events worth an email.
type Notifier interface {
	JoinRequested(ctx context.Context, owner, requester model.Member, f model.Family) error
	JoinApproved(ctx context.Context, member model.Member, f model.Family) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) JoinRequested(context.Context, model.Member, model.Member, model.Family) error {
	return nil
}

func (Nop) JoinApproved(context.Context, model.Member, model.Family) error { return nil }

type Postmark struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Postmark)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Postmark) { p.httpClient = c }
}

func WithAPIURL(url string) Option {
	return func(p *Postmark) { p.apiURL = url }
}

func NewPostmark(serverToken, fromEmail, baseURL string, opts ...Option) *Postmark {
	p := &Postmark{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      defaultAPIURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Postmark) Configured() bool {
	return p.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// JoinRequested tells the owner someone is waiting for approval. Owners
// without an email address are skipped.
func (p *Postmark) JoinRequested(ctx context.Context, owner, requester model.Member, f model.Family) error {
	if owner.Email == nil {
		return nil
	}
	link := p.baseURL + "/family"
	subject := fmt.Sprintf("%s wants to join %s", requester.DisplayName, f.Name)
	text := fmt.Sprintf("%s asked to join %s on Famboard.\n\nReview the request: %s", requester.DisplayName, f.Name, link)
	body := fmt.Sprintf(`<p>%s asked to join %s on Famboard.</p><p><a href="%s">Review the request</a></p>`,
		html.EscapeString(requester.DisplayName), html.EscapeString(f.Name), link)
	return p.send(ctx, *owner.Email, subject, text, body)
}

// JoinApproved tells a member their request was accepted.
func (p *Postmark) JoinApproved(ctx context.Context, member model.Member, f model.Family) error {
	if member.Email == nil {
		return nil
	}
	subject := fmt.Sprintf("Welcome to %s", f.Name)
	text := fmt.Sprintf("Your request to join %s was approved.\n\nOpen Famboard: %s", f.Name, p.baseURL)
	body := fmt.Sprintf(`<p>Your request to join %s was approved.</p><p><a href="%s">Open Famboard</a></p>`,
		html.EscapeString(f.Name), p.baseURL)
	return p.send(ctx, *member.Email, subject, text, body)
}

func (p *Postmark) send(ctx context.Context, to, subject, text, htmlBody string) error {
	if !p.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(postmarkEmail{
		From:     p.fromEmail,
		To:       to,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: text,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.serverToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}
