package mailbox

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
)

// FetchedMessage is the raw content of one message
type FetchedMessage struct {
	UID  uint32
	Body []byte
}

// Session is a handle on the one live, selected mailbox. It is only valid
// while the trigger it was handed out with is being handled.
type Session struct {
	client Client
}

// NewSession wraps a connected client whose mailbox is already selected
func NewSession(c Client) *Session {
	return &Session{client: c}
}

// SearchUnseen returns the UIDs of unseen messages. A subject that is not
// blank narrows the search with a HEADER Subject criterion.
func (s *Session) SearchUnseen(subject string) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if strings.TrimSpace(subject) != "" {
		criteria.Header.Add("Subject", subject)
	}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	return uids, nil
}

// FetchAndMarkSeen downloads the full messages and flags them \Seen before
// returning. Messages fetched before a transport error are still returned
// alongside the error.
func (s *Session) FetchAndMarkSeen(uids []uint32) ([]FetchedMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var fetched []FetchedMessage
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			logrus.WithField("uid", msg.Uid).Warn("Server returned no body for message")
			continue
		}
		body, err := io.ReadAll(r)
		if err != nil {
			logrus.WithError(err).WithField("uid", msg.Uid).Warn("Failed to read message body")
			continue
		}
		fetched = append(fetched, FetchedMessage{UID: msg.Uid, Body: body})
	}

	if err := <-done; err != nil {
		if len(fetched) > 0 {
			if seenErr := s.markSeen(fetched); seenErr != nil {
				logrus.WithError(seenErr).Warn("Failed to mark partially fetched messages seen")
			}
		}
		return fetched, fmt.Errorf("failed to fetch messages: %w", err)
	}

	if len(fetched) > 0 {
		if err := s.markSeen(fetched); err != nil {
			return fetched, err
		}
	}
	return fetched, nil
}

func (s *Session) markSeen(fetched []FetchedMessage) error {
	seqSet := new(imap.SeqSet)
	for _, m := range fetched {
		seqSet.AddNum(m.UID)
	}

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := s.client.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark messages seen: %w", err)
	}
	return nil
}
