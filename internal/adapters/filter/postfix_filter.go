package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/core"
)

// HeaderNames are the headers written on filtered mail
type HeaderNames struct {
	Score   string
	Level   string
	Verdict string
	Reason  string
}

// PostfixOptions configures the Postfix content filter
type PostfixOptions struct {
	ListenAddr     string
	BlockHighRisk  bool
	Headers        HeaderNames
	PostfixAddr    string
	PostfixPort    int
	PostfixEnabled bool
	SubjectPrefix  string
	ModifySubject  bool
	ScanTimeout    time.Duration
}

// PostfixFilter implements a Postfix content filter that scores the links
// in each message and relays it with risk headers
type PostfixFilter struct {
	scanner *LinkScanner
	logger  *zap.Logger
	opts    PostfixOptions
	server  *smtp.Server

	// relay delivers the rewritten message, sendToPostfix unless replaced in tests
	relay func(sender string, recipients []string, data []byte) error
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(scanner *LinkScanner, logger *zap.Logger, opts PostfixOptions) *PostfixFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	// If subject prefix is not set but modify subject is enabled, use default prefix
	if opts.SubjectPrefix == "" && opts.ModifySubject {
		opts.SubjectPrefix = "[**RISK**] "
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 20 * time.Second
	}

	f := &PostfixFilter{
		scanner: scanner,
		logger:  logger,
		opts:    opts,
	}
	f.relay = f.sendToPostfix
	return f
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.opts.ListenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	f.server.MaxRecipients = 50

	f.logger.Info("Postfix filter starting", zap.String("address", f.opts.ListenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ScanMessage scores the links of a message without relaying it
func (f *PostfixFilter) ScanMessage(ctx context.Context, msg *core.Message) (*core.LinkReport, error) {
	return f.scanner.Scan(ctx, msg, false), nil
}

// process scans a raw message and returns it rewritten with risk headers.
// A non-nil error rejects the message.
func (f *PostfixFilter) process(ctx context.Context, sender string, recipients []string, rawData []byte) ([]byte, error) {
	message, err := ReadMessage(bytes.NewReader(rawData))
	if message == nil {
		return nil, err
	}
	if err != nil {
		f.logger.Warn("Failed to extract text content, scanning what was read", zap.Error(err))
	}
	subject := message.Subject
	message.From = sender
	message.To = recipients

	ctx, cancel := context.WithTimeout(ctx, f.opts.ScanTimeout)
	defer cancel()

	report := f.scanner.Scan(ctx, message, false)
	if report.Riskiest == nil {
		f.logger.Debug("No links found", zap.String("from", sender))
		return rewriteMessage(rawData, nil, ""), nil
	}

	result := report.Riskiest.Result
	if result.ThreatLevel == core.ThreatHigh && f.opts.BlockHighRisk {
		f.logger.Info("Rejecting high risk email",
			zap.String("from", sender),
			zap.String("url", report.Riskiest.URL),
			zap.Int("score", result.Score),
			zap.String("reason", result.Reason))
		return nil, &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as high risk (score: %d)", result.Score),
		}
	}

	headers := []header{
		{name: f.opts.Headers.Score, value: strconv.Itoa(result.Score)},
		{name: f.opts.Headers.Level, value: string(result.ThreatLevel)},
		{name: f.opts.Headers.Verdict, value: string(result.Verdict)},
		{name: f.opts.Headers.Reason, value: result.Reason},
	}

	newSubject := ""
	if result.ThreatLevel == core.ThreatHigh && f.opts.ModifySubject && f.opts.SubjectPrefix != "" &&
		!strings.HasPrefix(subject, f.opts.SubjectPrefix) {
		newSubject = f.opts.SubjectPrefix + subject
	}

	f.logger.Info("Processed email",
		zap.String("from", sender),
		zap.Int("links", len(report.Links)),
		zap.String("url", report.Riskiest.URL),
		zap.Int("score", result.Score),
		zap.String("threat_level", string(result.ThreatLevel)))

	return rewriteMessage(rawData, headers, newSubject), nil
}

type header struct {
	name  string
	value string
}

// rewriteMessage prepends the given headers, drops any existing headers of
// the same names and replaces the subject when newSubject is set. The body
// is preserved byte for byte.
func rewriteMessage(raw []byte, headers []header, newSubject string) []byte {
	headerBlock, body := splitMessage(raw)

	drop := make(map[string]bool, len(headers)+1)
	for _, h := range headers {
		if h.name != "" {
			drop[strings.ToLower(h.name)] = true
		}
	}
	if newSubject != "" {
		drop["subject"] = true
	}

	var out bytes.Buffer
	for _, h := range headers {
		if h.name == "" {
			continue
		}
		fmt.Fprintf(&out, "%s: %s\r\n", h.name, encodeHeaderValue(h.value))
	}
	if newSubject != "" {
		fmt.Fprintf(&out, "Subject: %s\r\n", encodeHeaderValue(newSubject))
	}

	skipping := false
	for _, line := range splitLines(headerBlock) {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			// Continuation of the previous header
			if !skipping {
				out.WriteString(line)
				out.WriteString("\r\n")
			}
			continue
		}

		name, _, _ := strings.Cut(line, ":")
		skipping = drop[strings.ToLower(strings.TrimSpace(name))]
		if !skipping {
			out.WriteString(line)
			out.WriteString("\r\n")
		}
	}

	out.WriteString("\r\n")
	out.Write(body)
	return out.Bytes()
}

// splitMessage separates the header block from the body
func splitMessage(raw []byte) (string, []byte) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return string(raw[:i]), raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return string(raw[:i]), raw[i+2:]
	}
	return string(raw), nil
}

func splitLines(block string) []string {
	if block == "" {
		return nil
	}
	lines := strings.Split(block, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// encodeHeaderValue keeps header values on one line and RFC 2047 encodes non-ASCII
func encodeHeaderValue(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	for _, r := range value {
		if r > 127 {
			return mime.QEncoding.Encode("utf-8", value)
		}
	}
	return value
}

// sendToPostfix sends the processed email back to Postfix on the configured port using go-smtp
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, emailData []byte) error {
	postfixAddr := net.JoinHostPort(f.opts.PostfixAddr, strconv.Itoa(f.opts.PostfixPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}

	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}

	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}

	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// The message is already accepted
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		filter:     b.filter,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data scans the message and relays it
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	modified, err := s.filter.process(context.Background(), s.sender, s.recipients, rawData)
	if err != nil {
		var smtpErr *smtp.SMTPError
		if !errors.As(err, &smtpErr) {
			s.filter.logger.Error("Failed to process email", zap.Error(err), zap.String("from", s.sender))
		}
		return err
	}

	if !s.filter.opts.PostfixEnabled {
		s.filter.logger.Warn("Postfix forwarding disabled, this is likely a misconfiguration")
		return nil
	}

	if err := s.filter.relay(s.sender, s.recipients, modified); err != nil {
		s.filter.logger.Error("Failed to send email back to Postfix",
			zap.Error(err),
			zap.String("from", s.sender))
		return err
	}

	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
