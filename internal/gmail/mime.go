package gmail

import (
	"encoding/base64"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	gmailv1 "google.golang.org/api/gmail/v1"
)

var (
	styleBlock    = regexp.MustCompile(`(?is)<style.*?</style>`)
	htmlTag       = regexp.MustCompile(`<[^>]+?>`)
	whitespaceRun = regexp.MustCompile(`[\s\x{00a0}]+`)

	textNormalizer = strings.NewReplacer(
		"\u00a0", " ",
		"\r\n", " \n",
		"\r", " \n",
	)
)

// DecodeBody turns a full-format message into normalized text.
//
// Every text/plain leaf in the part tree is concatenated in tree order. Only
// when the whole tree has no plain text are the text/html leaves used, with
// markup stripped. A message without a part tree decodes its top-level body.
// An empty result falls back to the message snippet.
func DecodeBody(msg *gmailv1.Message) string {
	if msg == nil {
		return ""
	}

	var body string
	payload := msg.Payload
	switch {
	case payload != nil && len(payload.Parts) > 0:
		body = decodeParts(payload.Parts)
	case payload != nil && payload.Body != nil && payload.Body.Data != "":
		body = decodePart(payload)
		if strings.EqualFold(payload.MimeType, "text/html") {
			body = stripHTML(body)
		}
	}

	if body == "" {
		body = msg.Snippet
	}
	return textNormalizer.Replace(body)
}

func decodeParts(parts []*gmailv1.MessagePart) string {
	var plain, html strings.Builder
	collectLeaves(parts, &plain, &html)
	if plain.Len() > 0 {
		return plain.String()
	}
	if html.Len() > 0 {
		return stripHTML(html.String())
	}
	return ""
}

func collectLeaves(parts []*gmailv1.MessagePart, plain, html *strings.Builder) {
	for _, part := range parts {
		if part == nil {
			continue
		}
		switch strings.ToLower(part.MimeType) {
		case "text/plain":
			plain.WriteString(decodePart(part))
		case "text/html":
			html.WriteString(decodePart(part))
		default:
			if len(part.Parts) > 0 {
				collectLeaves(part.Parts, plain, html)
			}
		}
	}
}

// decodePart returns the leaf's body as UTF-8 text. Undecodable data yields "".
func decodePart(part *gmailv1.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}
	raw, ok := decodeBase64URL(part.Body.Data)
	if !ok {
		return ""
	}
	if cs := partCharset(part); cs != "" {
		if r, err := charset.Reader(cs, strings.NewReader(string(raw))); err == nil {
			if converted, err := io.ReadAll(r); err == nil {
				raw = converted
			}
		}
	}
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}

// partCharset reads the charset parameter of the part's Content-Type header.
func partCharset(part *gmailv1.MessagePart) string {
	for _, h := range part.Headers {
		if h == nil || !strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		var hdr message.Header
		hdr.Set("Content-Type", h.Value)
		_, params, err := hdr.ContentType()
		if err != nil {
			return ""
		}
		return params["charset"]
	}
	return ""
}

// stripHTML drops <style> blocks, replaces every tag with a space and
// collapses whitespace runs.
func stripHTML(html string) string {
	s := styleBlock.ReplaceAllString(html, "")
	s = htmlTag.ReplaceAllString(s, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func decodeBase64URL(data string) ([]byte, bool) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return nil, false
		}
	}
	return b, true
}
