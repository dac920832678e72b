package filter

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/mikey/link-risk-engine/internal/core"
)

// maxMultipartDepth limits recursion into nested multipart bodies
const maxMultipartDepth = 5

// ReadMessage parses a raw email into a core.Message with the decoded subject
// and the text of its body. When the body cannot be fully decoded the message
// is returned with the text extracted so far along with the error.
func ReadMessage(r io.Reader) (*core.Message, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email message: %w", err)
	}

	subject, err := decodeEncodedHeader(msg.Header.Get("Subject"))
	if err != nil {
		subject = msg.Header.Get("Subject")
	}

	var to []string
	if addrs, err := msg.Header.AddressList("To"); err == nil {
		for _, addr := range addrs {
			to = append(to, addr.Address)
		}
	}

	message := &core.Message{
		From:    msg.Header.Get("From"),
		To:      to,
		Subject: subject,
		Headers: msg.Header,
	}

	message.Body, err = extractTextFromMessage(msg)
	if err != nil {
		return message, fmt.Errorf("failed to extract text content: %w", err)
	}
	return message, nil
}

// extractTextFromMessage extracts the text content from an email message.
// For multipart messages, text/plain and text/html parts are concatenated
// so links in either are found.
func extractTextFromMessage(msg *mail.Message) (string, error) {
	var textContent bytes.Buffer
	header := textproto.MIMEHeader(msg.Header)

	if err := extractText(&textContent, header, msg.Body, 0); err != nil {
		if textContent.Len() > 0 {
			return textContent.String(), nil
		}
		return "", err
	}

	return textContent.String(), nil
}

func extractText(out *bytes.Buffer, header textproto.MIMEHeader, body io.Reader, depth int) error {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		// Missing or broken Content-Type is treated as plain text
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary, ok := params["boundary"]
		if !ok || depth >= maxMultipartDepth {
			return nil
		}

		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := extractText(out, part.Header, part, depth+1); err != nil {
				return err
			}
		}
	}

	if !strings.HasPrefix(mediaType, "text/") {
		// Skip attachments and other non-text parts
		return nil
	}

	partBytes, err := io.ReadAll(decodeTransferEncoding(body, header.Get("Content-Transfer-Encoding")))
	if err != nil {
		return err
	}
	out.Write(partBytes)
	out.WriteString("\n")
	return nil
}

// decodeTransferEncoding wraps r with a decoder for the given
// Content-Transfer-Encoding. multipart.Reader already strips
// quoted-printable from parts, which leaves the header empty.
func decodeTransferEncoding(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

var wordDecoder = &mime.WordDecoder{}

// decodeEncodedHeader decodes RFC 2047 encoded words in a header value
func decodeEncodedHeader(value string) (string, error) {
	return wordDecoder.DecodeHeader(value)
}
