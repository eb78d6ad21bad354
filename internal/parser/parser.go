package parser

import (
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"mail-chain-analyzer/internal/chain"
)

// Message holds the fields extracted from a raw RFC 5322 message
type Message struct {
	Subject     string
	From        string
	FromAddress string
	To          string
	Date        time.Time
	Text        string
	HTML        string
	HeaderLines []chain.HeaderLine
}

// Parse reads a full message (headers and body) and extracts its fields.
// Only a message whose header block cannot be read is an error; body parts
// that fail to decode are skipped.
func Parse(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	msg := &Message{}
	header := mr.Header

	fields := header.Fields()
	for fields.Next() {
		key := fields.Key()
		msg.HeaderLines = append(msg.HeaderLines, chain.HeaderLine{
			Key:  key,
			Line: key + ": " + fields.Value(),
		})
	}

	if subject, err := header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = header.Get("Subject")
	}

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = formatAddresses(from)
		msg.FromAddress = from[0].Address
	} else {
		msg.From = header.Get("From")
		msg.FromAddress = msg.From
	}

	if to, err := header.AddressList("To"); err == nil && len(to) > 0 {
		msg.To = formatAddresses(to)
	} else {
		msg.To = header.Get("To")
	}

	if date, err := header.Date(); err == nil {
		msg.Date = date
	}

	readBody(mr, msg)
	return msg, nil
}

func readBody(mr *mail.Reader, msg *Message) {
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return
		}
		if err != nil {
			logrus.WithError(err).Debug("Stopped reading message parts")
			return
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := h.ContentType()
		if err != nil {
			contentType = "text/plain"
		}

		switch {
		case contentType == "text/plain" && msg.Text == "":
			if body, err := io.ReadAll(p.Body); err == nil {
				msg.Text = string(body)
			}
		case contentType == "text/html" && msg.HTML == "":
			if body, err := io.ReadAll(p.Body); err == nil {
				msg.HTML = string(body)
			}
		}
	}
}

// formatAddresses renders addresses in display form: "Name <addr>" or "addr"
func formatAddresses(list []*mail.Address) string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a.Name != "" {
			out = append(out, fmt.Sprintf("%s <%s>", a.Name, a.Address))
		} else {
			out = append(out, a.Address)
		}
	}
	return strings.Join(out, ", ")
}

// BodyText returns the plain text body, or the HTML body when no plain text exists
func (m *Message) BodyText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.HTML
}
