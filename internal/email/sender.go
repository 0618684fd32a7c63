package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// ErrMissingAPIKey is returned when no provider credential is configured.
var ErrMissingAPIKey = errors.New("missing RESEND_API_KEY")

// Sender delivers one email and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message, opts SendOptions) (string, error)
}

// SendOptions are per-call provider options.
type SendOptions struct {
	// IdempotencyKey deduplicates retried calls on the provider side.
	IdempotencyKey string
}

// SendError is a failed send, whether the provider answered with an error or
// the call never completed. StatusCode is zero when no response was received.
type SendError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *SendError) Error() string {
	status := "unknown"
	if e.StatusCode != 0 {
		status = fmt.Sprint(e.StatusCode)
	}
	return fmt.Sprintf("resend send failed (%s): %s", status, e.Message)
}

func (e *SendError) Unwrap() error { return e.Err }

// ResendSender sends through the Resend API.
type ResendSender struct {
	client *resend.Client
}

// NewResendSender builds a sender for apiKey. It returns ErrMissingAPIKey when the key is blank.
func NewResendSender(apiKey string, timeout time.Duration) (*ResendSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: statusRecorder{base: http.DefaultTransport},
	}
	return &ResendSender{client: resend.NewCustomClient(httpClient, apiKey)}, nil
}

// WithBaseURL points the sender at another API root, e.g. a local stub.
func (s *ResendSender) WithBaseURL(raw string) (*ResendSender, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse resend base url: %w", err)
	}
	s.client.BaseURL = u
	return s, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message, opts SendOptions) (string, error) {
	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		ReplyTo: msg.ReplyTo,
	}

	var status int
	ctx = context.WithValue(ctx, statusKey{}, &status)

	var (
		resp *resend.SendEmailResponse
		err  error
	)
	if opts.IdempotencyKey != "" {
		resp, err = s.client.Emails.SendWithOptions(ctx, req, &resend.SendEmailOptions{IdempotencyKey: opts.IdempotencyKey})
	} else {
		resp, err = s.client.Emails.SendWithContext(ctx, req)
	}
	if err != nil {
		return "", newSendError(status, err)
	}
	if resp == nil || resp.Id == "" {
		return "", &SendError{StatusCode: status, Message: "response carried no message id"}
	}
	return resp.Id, nil
}

func newSendError(status int, err error) *SendError {
	var rl *resend.RateLimitError
	if errors.As(err, &rl) {
		return &SendError{StatusCode: http.StatusTooManyRequests, Message: rl.Message, Err: err}
	}
	return &SendError{
		StatusCode: status,
		Message:    strings.TrimPrefix(err.Error(), "[ERROR]: "),
		Err:        err,
	}
}

type statusKey struct{}

// statusRecorder copies the response status into the request context so
// errors the SDK flattens to strings keep their HTTP status.
type statusRecorder struct {
	base http.RoundTripper
}

func (t statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if resp != nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}
