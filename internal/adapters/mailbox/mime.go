package mailbox

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/features"
	"github.com/mikey/phishwatch/internal/utils"
)

// MaxSnippetLength bounds the body text kept on a parsed message
const MaxSnippetLength = 4096

var (
	htmlTag    = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

var wordDecoder = &mime.WordDecoder{}

// ParseMessage turns a raw RFC 5322 message into a pipeline message. The
// id is left empty.
func ParseMessage(raw []byte) (*core.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email message: %w", err)
	}

	var parts textParts
	if err := parts.collect(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body); err != nil {
		return nil, fmt.Errorf("failed to extract text content: %w", err)
	}

	body := parts.text()
	links := utils.ExtractLinks(append(parts.plain, parts.html...)...)

	return &core.Message{
		Sender:      decodeHeader(msg.Header.Get("From")),
		Subject:     decodeHeader(msg.Header.Get("Subject")),
		Body:        utils.Shorten(body, MaxSnippetLength),
		Links:       links,
		AuthResults: features.AuthResultsFromHeaders(msg.Header["Authentication-Results"], msg.Header["Received-Spf"]),
	}, nil
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

type textParts struct {
	plain []string
	html  []string
}

// text returns the plain parts, or the tag-stripped html parts when there are none
func (p *textParts) text() string {
	if len(p.plain) > 0 {
		return strings.TrimSpace(strings.Join(p.plain, "\n"))
	}
	var out []string
	for _, h := range p.html {
		out = append(out, strings.TrimSpace(whitespace.ReplaceAllString(htmlTag.ReplaceAllString(h, " "), " ")))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// collect walks a (possibly nested) MIME entity and keeps its text parts
func (p *textParts) collect(contentType, encoding string, body io.Reader) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || contentType == "" {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary, ok := params["boundary"]
		if !ok {
			return nil
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// keep what was read so far
				if len(p.plain)+len(p.html) > 0 {
					return nil
				}
				return err
			}
			if err := p.collect(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part); err != nil {
				continue
			}
		}
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return nil
	}

	data, err := io.ReadAll(decodeTransfer(encoding, body))
	if err != nil {
		return err
	}

	text := strings.ToValidUTF8(string(data), "")
	if mediaType == "text/html" {
		p.html = append(p.html, text)
	} else {
		p.plain = append(p.plain, text)
	}
	return nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}
