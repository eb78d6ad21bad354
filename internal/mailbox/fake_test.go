package mailbox

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

type fakeClient struct {
	mu sync.Mutex

	updates chan<- client.Update

	selectErr error
	selected  []string
	readOnly  []bool

	searchUIDs []uint32
	searchErr  error
	criteria   []*imap.SearchCriteria

	messages map[uint32]string
	fetchErr error

	storeErr   error
	storeSets  []string
	storeItem  imap.StoreItem
	storeValue interface{}

	drop       chan error
	idling     chan struct{}
	loggedOut  chan struct{}
	logoutOnce sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages:  map[uint32]string{},
		drop:      make(chan error, 1),
		idling:    make(chan struct{}, 16),
		loggedOut: make(chan struct{}),
	}
}

func (f *fakeClient) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, name)
	f.readOnly = append(f.readOnly, readOnly)
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return imap.NewMailboxStatus(name, nil), nil
}

func (f *fakeClient) UidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.criteria = append(f.criteria, criteria)
	return f.searchUIDs, f.searchErr
}

func (f *fakeClient) UidFetch(seqset *imap.SeqSet, _ []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)

	f.mu.Lock()
	uids := make([]uint32, 0, len(f.messages))
	for uid := range f.messages {
		if seqset.Contains(uid) {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	bodies := make([]string, len(uids))
	for i, uid := range uids {
		bodies[i] = f.messages[uid]
	}
	fetchErr := f.fetchErr
	f.mu.Unlock()

	for i, uid := range uids {
		ch <- &imap.Message{
			Uid: uid,
			Body: map[*imap.BodySectionName]imap.Literal{
				{}: bytes.NewBufferString(bodies[i]),
			},
		}
	}
	return fetchErr
}

func (f *fakeClient) UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, _ chan *imap.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeSets = append(f.storeSets, seqset.String())
	f.storeItem = item
	f.storeValue = value
	return f.storeErr
}

func (f *fakeClient) Idle(stop <-chan struct{}, _ *client.IdleOptions) error {
	select {
	case f.idling <- struct{}{}:
	default:
	}

	select {
	case <-stop:
		return nil
	case err := <-f.drop:
		f.Logout()
		return err
	case <-f.loggedOut:
		return errors.New("connection closed")
	}
}

func (f *fakeClient) Logout() error {
	f.logoutOnce.Do(func() { close(f.loggedOut) })
	return nil
}

func (f *fakeClient) LoggedOut() <-chan struct{} {
	return f.loggedOut
}

func (f *fakeClient) push(u client.Update) {
	f.mu.Lock()
	updates := f.updates
	f.mu.Unlock()
	updates <- u
}

func (f *fakeClient) isLoggedOut() bool {
	select {
	case <-f.loggedOut:
		return true
	default:
		return false
	}
}

// fakeDialer hands out the queued clients in order, failing while errs remain
type fakeDialer struct {
	mu      sync.Mutex
	errs    []error
	clients []*fakeClient
	dials   int
}

func (d *fakeDialer) Dial(_ context.Context, updates chan<- client.Update) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++

	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	if len(d.clients) == 0 {
		return nil, errors.New("no more clients")
	}

	c := d.clients[0]
	d.clients = d.clients[1:]
	c.mu.Lock()
	c.updates = updates
	c.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
