package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/mailwatch/mailwatch/internal/mailclient"
	"github.com/mailwatch/mailwatch/internal/model"
)

// fakeFolder is the canned contents of one folder served by fakeClient.
type fakeFolder struct {
	folder model.Folder
	msgs   []model.Message
}

// fakeClient serves canned accounts and folder contents. A positive
// notReady counter makes folder queries fail with FolderNotReadyError
// that many times before succeeding.
type fakeClient struct {
	accounts []model.Account
	folders  map[model.FolderKey]*fakeFolder
	notReady map[model.FolderKey]int

	listCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		folders:  make(map[model.FolderKey]*fakeFolder),
		notReady: make(map[model.FolderKey]int),
	}
}

func (c *fakeClient) addFolder(folder model.Folder, msgs ...model.Message) {
	c.folders[folder.Key()] = &fakeFolder{folder: folder, msgs: msgs}
}

func (c *fakeClient) setMessages(key model.FolderKey, msgs ...model.Message) {
	c.folders[key].msgs = msgs
}

func (c *fakeClient) lookup(key model.FolderKey) (*fakeFolder, error) {
	if n := c.notReady[key]; n > 0 {
		c.notReady[key] = n - 1
		return nil, &mailclient.FolderNotReadyError{
			Folder: key,
			Err:    fmt.Errorf("mailbox not resolvable"),
		}
	}
	f, ok := c.folders[key]
	if !ok {
		return nil, fmt.Errorf("unknown folder %v", key)
	}
	return f, nil
}

func (c *fakeClient) Accounts(context.Context) ([]model.Account, error) {
	return c.accounts, nil
}

func (c *fakeClient) Folders(_ context.Context, accountID string) ([]model.Folder, error) {
	var out []model.Folder
	for _, f := range c.folders {
		if f.folder.AccountID == accountID {
			out = append(out, f.folder)
		}
	}
	return out, nil
}

func (c *fakeClient) HasUnread(_ context.Context, folder model.Folder) (bool, error) {
	f, err := c.lookup(folder.Key())
	if err != nil {
		return false, err
	}
	for _, m := range f.msgs {
		if !m.Read && !m.Junk {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeClient) FolderInfo(_ context.Context, folder model.Folder) (*mailclient.FolderInfo, error) {
	f, err := c.lookup(folder.Key())
	if err != nil {
		return nil, err
	}
	info := &mailclient.FolderInfo{TotalMessages: len(f.msgs)}
	for _, m := range f.msgs {
		if !m.Read {
			info.UnreadMessages++
		}
	}
	return info, nil
}

func (c *fakeClient) ListMessages(_ context.Context, folder model.Folder) (mailclient.Pager, error) {
	c.listCalls++
	f, err := c.lookup(folder.Key())
	if err != nil {
		return nil, err
	}
	msgs := make([]model.Message, len(f.msgs))
	copy(msgs, f.msgs)
	return &slicePager{msgs: msgs}, nil
}

type slicePager struct {
	msgs    []model.Message
	drained bool
}

func (p *slicePager) Next(context.Context) ([]model.Message, error) {
	if p.drained {
		return nil, nil
	}
	p.drained = true
	return p.msgs, nil
}

func (p *slicePager) Close() error { return nil }

// fakeNotifier records delivered payloads. A non-nil failWith makes every
// delivery fail.
type fakeNotifier struct {
	mu       sync.Mutex
	payloads []model.Payload
	failWith error
}

func (n *fakeNotifier) Deliver(_ context.Context, payload model.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.payloads = append(n.payloads, payload)
	return nil
}

func (n *fakeNotifier) delivered() []model.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.Payload, len(n.payloads))
	copy(out, n.payloads)
	return out
}
