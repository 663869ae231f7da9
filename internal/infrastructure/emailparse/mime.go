package emailparse

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

const maxMultipartDepth = 8

var (
	headerDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

	htmlDropBlocks = regexp.MustCompile(`(?is)<(script|style|head)\b.*?</(script|style|head)>`)
	htmlBreaks     = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|tr|li|h[1-6]|table)>`)
	htmlCells      = regexp.MustCompile(`(?i)</t[dh]>`)
	htmlTags       = regexp.MustCompile(`<[^>]*>`)
)

type headerGetter interface {
	Get(key string) string
}

// bodies collects the first text/plain and text/html part of a message.
type bodies struct {
	plain string
	html  string
}

// DecodeHeader decodes RFC 2047 encoded words. Undecodable input is
// returned as is.
func DecodeHeader(v string) string {
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

func (b *bodies) walk(h headerGetter, r io.Reader, depth int) error {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxMultipartDepth || params["boundary"] == "" {
			return nil
		}
		mr := multipart.NewReader(r, params["boundary"])
		for {
			p, err := mr.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read multipart body: %w", err)
			}
			if err := b.walk(p.Header, p, depth+1); err != nil {
				return err
			}
		}
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return nil
	}
	if disp, _, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil && disp == "attachment" {
		return nil
	}

	data, err := io.ReadAll(transferDecoder(h.Get("Content-Transfer-Encoding"), r))
	if err != nil {
		return fmt.Errorf("failed to decode %s part: %w", mediaType, err)
	}
	text := decodeCharset(params["charset"], data)

	switch mediaType {
	case "text/html":
		if b.html == "" {
			b.html = text
		}
	default:
		if b.plain == "" {
			b.plain = text
		}
	}
	return nil
}

// text prefers the plain part and falls back to stripped HTML.
func (b *bodies) text() string {
	if strings.TrimSpace(b.plain) != "" {
		return b.plain
	}
	return stripHTML(b.html)
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	default:
		return r
	}
}

// newlineStripper drops CR and LF so line-wrapped base64 decodes.
type newlineStripper struct {
	r io.Reader
}

func (n newlineStripper) Read(p []byte) (int, error) {
	for {
		c, err := n.r.Read(p)
		kept := 0
		for _, ch := range p[:c] {
			if ch != '\r' && ch != '\n' {
				p[kept] = ch
				kept++
			}
		}
		if kept > 0 || err != nil {
			return kept, err
		}
	}
}

func decodeCharset(charset string, data []byte) string {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii":
		return string(data)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(data)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = htmlDropBlocks.ReplaceAllString(s, "")
	s = htmlBreaks.ReplaceAllString(s, "\n")
	s = htmlCells.ReplaceAllString(s, " ")
	s = htmlTags.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	var out bytes.Buffer
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	return out.String()
}
