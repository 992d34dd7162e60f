package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	goption "google.golang.org/api/option"
)

// Mailer sends one notification email to a user. Implementations are
// best-effort: the caller logs and swallows any error.
type Mailer interface {
	Send(ctx context.Context, userID int64, subject, body string) error
}

// GmailMailer sends mail through the Gmail API with a pre-authorized OAuth
// token (created with cmd/oauth-init). Recipient addresses come from a
// static user map with a fallback address.
type GmailMailer struct {
	svc        *gmail.Service
	from       string
	recipients map[int64]string
	defaultTo  string
}

var _ Mailer = (*GmailMailer)(nil)

// NewGmailMailerFromEnv creates a mailer using environment variables.
// Required: GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE, plus
// GOOGLE_OAUTH_TOKEN_FILE and NOTIFY_FROM.
// Optional: NOTIFY_RECIPIENTS ("1=ana@example.com,2=luis@example.com"),
// NOTIFY_DEFAULT_TO for users without a mapped address.
func NewGmailMailerFromEnv(ctx context.Context) (*GmailMailer, error) {
	clientJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))

	var b []byte
	var err error
	switch {
	case clientJSON != "":
		b = []byte(clientJSON)
	case clientFile != "":
		b, err = os.ReadFile(clientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
	default:
		return nil, errors.New("missing oauth client credentials (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}

	cfg, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))
	if tokenFile == "" {
		tokenFile = "token.json"
	}
	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token (run oauth-init first): %w", err)
	}

	svc, err := gmail.NewService(ctx, goption.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	from := strings.TrimSpace(os.Getenv("NOTIFY_FROM"))
	if from == "" {
		return nil, errors.New("missing NOTIFY_FROM")
	}

	recipients, err := parseRecipients(os.Getenv("NOTIFY_RECIPIENTS"))
	if err != nil {
		return nil, err
	}

	return &GmailMailer{
		svc:        svc,
		from:       from,
		recipients: recipients,
		defaultTo:  strings.TrimSpace(os.Getenv("NOTIFY_DEFAULT_TO")),
	}, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

// parseRecipients parses "1=ana@example.com,2=luis@example.com".
func parseRecipients(raw string) (map[int64]string, error) {
	out := make(map[int64]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, addr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid NOTIFY_RECIPIENTS entry %q", pair)
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id in NOTIFY_RECIPIENTS entry %q: %w", pair, err)
		}
		out[userID] = strings.TrimSpace(addr)
	}
	return out, nil
}

func (m *GmailMailer) recipientFor(userID int64) string {
	if addr, ok := m.recipients[userID]; ok {
		return addr
	}
	return m.defaultTo
}

// Send delivers one email via the Gmail API. Users with no mapped address
// and no default address get a logged skip, not an error.
func (m *GmailMailer) Send(ctx context.Context, userID int64, subject, body string) error {
	to := m.recipientFor(userID)
	if to == "" {
		slog.InfoContext(ctx, "No recipient address for user, skipping email",
			"user_id", userID,
			"subject", subject)
		return nil
	}

	raw := buildRFC822(m.from, to, subject, body)
	_, err := m.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send gmail message: %w", err)
	}

	slog.InfoContext(ctx, "Notification email sent",
		"user_id", userID,
		"to", to,
		"subject", subject)
	return nil
}

func buildRFC822(from, to, subject, body string) string {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return sb.String()
}
