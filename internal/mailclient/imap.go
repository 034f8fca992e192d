package mailclient

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/mailwatch/mailwatch/internal/model"
)

// defaultPageSize is how many messages a pager fetches per page.
const defaultPageSize = 200

// AccountSettings holds everything needed to talk to one account's IMAP
// server, plus the static metadata reported in extended payloads.
type AccountSettings struct {
	ID              string
	Name            string
	Type            string
	Host            string
	Port            string
	Username        string
	Password        string
	TLS             bool
	FavoriteFolders []string
	Identities      []model.Identity
}

// IMAP implements Client over go-imap v2 for a set of configured accounts.
// Each operation dials, runs, and logs out; no connection is held between
// calls.
type IMAP struct {
	accounts map[string]*AccountSettings
	order    []string
	pageSize int
}

// NewIMAP creates a client over the given accounts.
func NewIMAP(accounts []AccountSettings) *IMAP {
	c := &IMAP{
		accounts: make(map[string]*AccountSettings, len(accounts)),
		pageSize: defaultPageSize,
	}
	for i := range accounts {
		acct := accounts[i]
		c.accounts[acct.ID] = &acct
		c.order = append(c.order, acct.ID)
	}
	return c
}

// connect establishes a connection for the given account, authenticates,
// and returns the connected client. The caller is responsible for calling
// Logout on the returned client.
func (c *IMAP) connect(_ context.Context, accountID string) (*imapclient.Client, *AccountSettings, error) {
	acct, ok := c.accounts[accountID]
	if !ok {
		return nil, nil, fmt.Errorf("unknown account %q", accountID)
	}

	addr := acct.Host + ":" + acct.Port

	var client *imapclient.Client
	var err error

	if acct.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(acct.Username, acct.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, nil, fmt.Errorf(
			"authentication failed for %s: %w", acct.Username, err,
		)
	}

	return client, acct, nil
}

// selectFolder selects the folder's mailbox. A failure here is classified
// as FolderNotReady: the mailbox may not be resolvable yet right after the
// server comes up.
func selectFolder(client *imapclient.Client, folder model.Folder) error {
	if _, err := client.Select(mailboxName(folder), nil).Wait(); err != nil {
		return &FolderNotReadyError{Folder: folder.Key(), Err: err}
	}
	return nil
}

// Accounts enumerates the configured accounts and their identities.
func (c *IMAP) Accounts(_ context.Context) ([]model.Account, error) {
	accounts := make([]model.Account, 0, len(c.order))
	for _, id := range c.order {
		acct := c.accounts[id]
		identities := acct.Identities
		if identities == nil {
			identities = []model.Identity{}
		}
		accounts = append(accounts, model.Account{
			ID:         acct.ID,
			Identities: identities,
			Name:       acct.Name,
			Type:       acct.Type,
		})
	}
	return accounts, nil
}

// Folders lists the mailboxes of one account as folders, classifying their
// type from SPECIAL-USE attributes and marking configured favorites.
func (c *IMAP) Folders(ctx context.Context, accountID string) ([]model.Folder, error) {
	client, acct, err := c.connect(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	list, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders for %s: %w", accountID, err)
	}

	favorites := make(map[string]bool, len(acct.FavoriteFolders))
	for _, path := range acct.FavoriteFolders {
		favorites[path] = true
	}

	var folders []model.Folder
	for _, mbox := range list {
		if hasAttr(mbox.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		path := "/" + mbox.Mailbox
		folders = append(folders, model.Folder{
			AccountID: accountID,
			Path:      path,
			Name:      folderName(mbox.Mailbox, mbox.Delim),
			Type:      folderType(mbox.Mailbox, mbox.Attrs, acct.Type),
			Favorite:  favorites[path],
		})
	}

	return folders, nil
}

// HasUnread reports whether the folder contains at least one unread
// message. One UID search per call; no caching.
func (c *IMAP) HasUnread(ctx context.Context, folder model.Folder) (bool, error) {
	client, _, err := c.connect(ctx, folder.AccountID)
	if err != nil {
		return false, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if err := selectFolder(client, folder); err != nil {
		return false, err
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return false, fmt.Errorf("searching unread in %s: %w", folder.Path, err)
	}

	return len(searchData.AllUIDs()) > 0, nil
}

// FolderInfo returns the folder's current message counts via STATUS.
func (c *IMAP) FolderInfo(ctx context.Context, folder model.Folder) (*FolderInfo, error) {
	client, _, err := c.connect(ctx, folder.AccountID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	status, err := client.Status(mailboxName(folder), &imap.StatusOptions{
		NumMessages: true,
		NumUnseen:   true,
	}).Wait()
	if err != nil {
		return nil, &FolderNotReadyError{Folder: folder.Key(), Err: err}
	}

	info := &FolderInfo{}
	if status.NumMessages != nil {
		info.TotalMessages = int(*status.NumMessages)
	}
	if status.NumUnseen != nil {
		info.UnreadMessages = int(*status.NumUnseen)
	}

	return info, nil
}

// ListMessages starts a paged listing of every message in the folder.
// The returned pager holds its own connection until drained or closed.
func (c *IMAP) ListMessages(ctx context.Context, folder model.Folder) (Pager, error) {
	client, _, err := c.connect(ctx, folder.AccountID)
	if err != nil {
		return nil, err
	}

	if err := selectFolder(client, folder); err != nil {
		_ = client.Logout().Wait()
		return nil, err
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("listing %s: %w", folder.Path, err)
	}

	return &imapPager{
		client:   client,
		folder:   folder,
		uids:     searchData.AllUIDs(),
		pageSize: c.pageSize,
	}, nil
}

// imapPager fetches a folder's messages one page of UIDs at a time.
type imapPager struct {
	client   *imapclient.Client
	folder   model.Folder
	uids     []imap.UID
	pos      int
	pageSize int
	closed   bool
}

// Next returns the next page, or nil once every UID has been fetched.
func (p *imapPager) Next(_ context.Context) ([]model.Message, error) {
	if p.pos >= len(p.uids) {
		_ = p.Close()
		return nil, nil
	}

	end := p.pos + p.pageSize
	if end > len(p.uids) {
		end = len(p.uids)
	}
	page := p.uids[p.pos:end]
	p.pos = end

	headerSection := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierHeader,
		Peek:      true,
	}

	fetchCmd := p.client.Fetch(imap.UIDSetNum(page...), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{headerSection},
	})

	var messages []model.Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		messages = append(messages, messageFromBuffer(buf, headerSection, p.folder))
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching page of %s: %w", p.folder.Path, err)
	}

	return messages, nil
}

// Close logs the pager's connection out. Safe to call more than once.
func (p *imapPager) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.client.Logout().Wait()
}

// messageFromBuffer builds a Message from a fetched buffer: envelope data,
// flags, and spam headers parsed out of the header section.
func messageFromBuffer(
	buf *imapclient.FetchMessageBuffer,
	headerSection *imap.FetchItemBodySection,
	folder model.Folder,
) model.Message {
	msg := model.Message{
		ID:     strconv.FormatUint(uint64(buf.UID), 10),
		Size:   buf.RFC822Size,
		Folder: folder,
		CcList: []string{},
		Tags:   []string{},
	}

	if buf.Envelope != nil {
		msg.MessageID = buf.Envelope.MessageID
		msg.Subject = buf.Envelope.Subject
		msg.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			msg.Author = formatAddress(buf.Envelope.From[0])
		}
		for _, cc := range buf.Envelope.Cc {
			msg.CcList = append(msg.CcList, cc.Addr())
		}
	}

	for _, flag := range buf.Flags {
		switch flag {
		case imap.FlagSeen:
			msg.Read = true
		case imap.FlagFlagged:
			msg.Flagged = true
		case imap.FlagJunk:
			msg.Junk = true
		case imap.FlagAnswered, imap.FlagDeleted, imap.FlagDraft,
			imap.FlagNotJunk, imap.FlagImportant:
			// System flags that are not tags.
		default:
			if !strings.HasPrefix(string(flag), `\`) {
				msg.Tags = append(msg.Tags, string(flag))
			}
		}
	}

	if raw := buf.FindBodySection(headerSection); raw != nil {
		applySpamHeaders(&msg, raw)
	}

	return msg
}

// applySpamHeaders reads spam-filter headers (SpamAssassin et al.) from the
// raw message header and folds them into the junk flag and score.
func applySpamHeaders(msg *model.Message, rawHeader []byte) {
	mr, err := mail.CreateReader(bytes.NewReader(rawHeader))
	if err != nil {
		return
	}
	defer mr.Close()

	if flag, err := mr.Header.Text("X-Spam-Flag"); err == nil {
		if strings.EqualFold(strings.TrimSpace(flag), "YES") {
			msg.Junk = true
		}
	}
	if score, err := mr.Header.Text("X-Spam-Score"); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(score), 64); err == nil {
			msg.JunkScore = int(parsed)
		}
	}
}

// formatAddress renders an address in "Name <addr>" display form.
func formatAddress(addr imap.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Addr())
	}
	return addr.Addr()
}

// mailboxName maps a folder path ("/INBOX") to its IMAP mailbox name.
func mailboxName(folder model.Folder) string {
	return strings.TrimPrefix(folder.Path, "/")
}

// folderName returns the display name of a mailbox: its last path segment.
func folderName(mailbox string, delim rune) string {
	if delim == 0 {
		return mailbox
	}
	parts := strings.Split(mailbox, string(delim))
	return parts[len(parts)-1]
}

// folderType classifies a mailbox using SPECIAL-USE attributes and the
// owning account's type.
func folderType(mailbox string, attrs []imap.MailboxAttr, accountType string) string {
	if hasAttr(attrs, imap.MailboxAttrTrash) {
		return model.FolderTypeTrash
	}
	if accountType == model.AccountTypeFeed {
		return model.FolderTypeFeed
	}
	if strings.EqualFold(mailbox, "INBOX") {
		return model.FolderTypeInbox
	}
	return model.FolderTypeOther
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, attr := range attrs {
		if attr == want {
			return true
		}
	}
	return false
}
