package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mailwatch/mailwatch/internal/mailclient"
	"github.com/mailwatch/mailwatch/internal/model"
	"github.com/mailwatch/mailwatch/tests/testutil"
)

var (
	inbox = model.Folder{
		AccountID: "acct-1",
		Path:      "/INBOX",
		Name:      "Inbox",
		Type:      model.FolderTypeInbox,
	}
	archive = model.Folder{
		AccountID: "acct-1",
		Path:      "/Archive",
		Name:      "Archive",
		Type:      model.FolderTypeOther,
	}
)

func msg(id string, read, junk bool) model.Message {
	return model.Message{
		ID:        id,
		MessageID: "<" + id + "@example.com>",
		Subject:   "subject " + id,
		Read:      read,
		Junk:      junk,
		Folder:    inbox,
	}
}

// newTestEngine wires an engine over canned folder contents and an
// in-memory store with the given folders watched.
func newTestEngine(t *testing.T, mode model.Mode, client *fakeClient, watched ...model.Folder) (*Engine, *fakeNotifier) {
	t.Helper()

	st := testutil.NewTestStore(t)
	ctx := context.Background()
	if err := st.SetWatchedFolders(ctx, watched); err != nil {
		t.Fatalf("setting watched folders: %v", err)
	}
	if err := st.SetMode(ctx, mode); err != nil {
		t.Fatalf("setting mode: %v", err)
	}

	notifier := &fakeNotifier{}
	eng := New(st, client, notifier, Options{
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})
	return eng, notifier
}

func extendedPayload(t *testing.T, p model.Payload) *model.ExtendedPayload {
	t.Helper()
	ext, ok := p.(*model.ExtendedPayload)
	if !ok {
		t.Fatalf("payload is %T, want *model.ExtendedPayload", p)
	}
	return ext
}

func TestStartScansUnreadMessages(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox,
		msg("m1", false, false),
		msg("m2", false, false),
		msg("m3", true, false),
		msg("mj", false, true),
	)
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	key := inbox.Key()
	for _, id := range []string{"m1", "m2"} {
		if !eng.Seen().IsSeen(key, id) {
			t.Errorf("unread %s missing from seen set after startup scan", id)
		}
	}
	if eng.Seen().IsSeen(key, "m3") {
		t.Error("read message entered the seen set on startup")
	}
	if eng.Seen().IsSeen(key, "mj") {
		t.Error("junk message entered the seen set on startup")
	}

	payloads := notifier.delivered()
	if len(payloads) != 1 {
		t.Fatalf("delivered %d payloads, want 1 start notification", len(payloads))
	}
	ext := extendedPayload(t, payloads[0])
	if ext.Event != model.EventStart {
		t.Errorf("event = %q, want %q", ext.Event, model.EventStart)
	}
	if ext.Message != nil {
		t.Errorf("start payload carries message %+v, want nil", ext.Message)
	}
	if len(ext.Folders) != 1 || ext.Folders[0].SeenMessageCount != 2 {
		t.Errorf("folder summaries = %+v, want one entry with 2 seen", ext.Folders)
	}
}

func TestStartSimpleReportsUnread(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox, msg("m1", false, false))
	eng, notifier := newTestEngine(t, model.ModeSimple, client, inbox)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	payloads := notifier.delivered()
	if len(payloads) != 1 {
		t.Fatalf("delivered %d payloads, want 1", len(payloads))
	}
	if got := payloads[0].(model.SimplePayload); !bool(got) {
		t.Errorf("start payload = %v, want true with unread mail present", got)
	}
}

func TestStartSimpleNoUnread(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox, msg("m1", true, false))
	eng, notifier := newTestEngine(t, model.ModeSimple, client, inbox)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	payloads := notifier.delivered()
	if len(payloads) != 1 {
		t.Fatalf("delivered %d payloads, want 1", len(payloads))
	}
	if got := payloads[0].(model.SimplePayload); bool(got) {
		t.Errorf("start payload = %v, want false with no unread mail", got)
	}
}

func TestStartRetriesUntilFolderReady(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox, msg("m1", false, false))
	client.notReady[inbox.Key()] = 2
	eng, _ := newTestEngine(t, model.ModeExtended, client, inbox)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start did not survive transient folder failures: %v", err)
	}
	if !eng.Seen().IsSeen(inbox.Key(), "m1") {
		t.Error("seen set not populated after retried scan")
	}
}

func TestStartRetryExhausted(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox, msg("m1", false, false))
	client.notReady[inbox.Key()] = 10
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)

	err := eng.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded with the folder never becoming ready")
	}
	if !mailclient.IsFolderNotReady(err) {
		t.Fatalf("Start returned %v, want the folder-not-ready cause", err)
	}
	if len(notifier.delivered()) != 0 {
		t.Error("notification delivered despite failed startup")
	}
}

func TestStartNoWatchedFolders(t *testing.T) {
	client := newFakeClient()
	eng, notifier := newTestEngine(t, model.ModeExtended, client)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(notifier.delivered()) != 0 {
		t.Error("notification delivered with nothing configured")
	}
}

func TestNewMailExtendedNotifiesPerMessage(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox)
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)

	arrivals := []model.Message{
		msg("m1", false, false),
		msg("m2", false, false),
		msg("mj", false, true),
	}
	client.setMessages(inbox.Key(), arrivals...)

	if err := eng.HandleNewMail(context.Background(), inbox, arrivals); err != nil {
		t.Fatalf("HandleNewMail: %v", err)
	}

	payloads := notifier.delivered()
	if len(payloads) != 2 {
		t.Fatalf("delivered %d payloads, want one per non-junk message", len(payloads))
	}
	for i, want := range []string{"m1", "m2"} {
		ext := extendedPayload(t, payloads[i])
		if ext.Event != model.EventNew {
			t.Errorf("payload %d event = %q, want %q", i, ext.Event, model.EventNew)
		}
		if ext.Message == nil || ext.Message.ID != want {
			t.Errorf("payload %d message = %+v, want %s", i, ext.Message, want)
		}
	}

	key := inbox.Key()
	if !eng.Seen().IsSeen(key, "m1") || !eng.Seen().IsSeen(key, "m2") {
		t.Error("notified messages not marked seen")
	}
	if eng.Seen().IsSeen(key, "mj") {
		t.Error("junk message marked seen")
	}
}

func TestNewMailExtendedDuplicateSilent(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox, msg("m1", false, false))
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)

	batch := []model.Message{msg("m1", false, false)}
	if err := eng.HandleNewMail(context.Background(), inbox, batch); err != nil {
		t.Fatalf("first HandleNewMail: %v", err)
	}
	if err := eng.HandleNewMail(context.Background(), inbox, batch); err != nil {
		t.Fatalf("second HandleNewMail: %v", err)
	}

	if got := len(notifier.delivered()); got != 1 {
		t.Fatalf("delivered %d payloads for a redelivered message, want 1", got)
	}
}

func TestNewMailSimpleOnePerBatch(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox)
	eng, notifier := newTestEngine(t, model.ModeSimple, client, inbox)

	batch := []model.Message{
		msg("m1", false, false),
		msg("m2", false, false),
	}
	if err := eng.HandleNewMail(context.Background(), inbox, batch); err != nil {
		t.Fatalf("HandleNewMail: %v", err)
	}

	payloads := notifier.delivered()
	if len(payloads) != 1 {
		t.Fatalf("delivered %d payloads for one batch, want 1", len(payloads))
	}
	if got := payloads[0].(model.SimplePayload); !bool(got) {
		t.Errorf("new-mail payload = %v, want true", got)
	}
	if eng.Seen().Count(inbox.Key()) != 0 {
		t.Error("simple mode touched the seen set")
	}
}

func TestNewMailSimpleAllJunkSilent(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox)
	eng, notifier := newTestEngine(t, model.ModeSimple, client, inbox)

	batch := []model.Message{msg("mj", false, true)}
	if err := eng.HandleNewMail(context.Background(), inbox, batch); err != nil {
		t.Fatalf("HandleNewMail: %v", err)
	}
	if len(notifier.delivered()) != 0 {
		t.Error("junk-only batch produced a notification")
	}
}

func TestNewMailUnwatchedFolderIgnored(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox)
	client.addFolder(archive)
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)

	m := msg("m1", false, false)
	m.Folder = archive
	if err := eng.HandleNewMail(context.Background(), archive, []model.Message{m}); err != nil {
		t.Fatalf("HandleNewMail: %v", err)
	}
	if len(notifier.delivered()) != 0 {
		t.Error("unwatched folder produced a notification")
	}
}

func TestMessageReadNotifiesAndKeepsSeen(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox, msg("m1", true, false), msg("m2", false, false))
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)
	eng.Seen().MarkSeen(inbox.Key(), "m1")

	read := true
	m := msg("m1", true, false)
	if err := eng.HandleMessageUpdated(context.Background(), m, model.FlagChange{Read: &read}); err != nil {
		t.Fatalf("HandleMessageUpdated: %v", err)
	}

	payloads := notifier.delivered()
	if len(payloads) != 1 {
		t.Fatalf("delivered %d payloads, want 1 read notification", len(payloads))
	}
	ext := extendedPayload(t, payloads[0])
	if ext.Event != model.EventRead {
		t.Errorf("event = %q, want %q", ext.Event, model.EventRead)
	}
	if ext.Message == nil || ext.Message.ID != "m1" {
		t.Errorf("message = %+v, want m1", ext.Message)
	}
	if !eng.Seen().IsSeen(inbox.Key(), "m1") {
		t.Error("reading a message removed it from the seen set")
	}
}

func TestMessageReadSimpleReflectsRemainingUnread(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox, msg("m1", true, false))
	eng, notifier := newTestEngine(t, model.ModeSimple, client, inbox)

	read := true
	m := msg("m1", true, false)
	if err := eng.HandleMessageUpdated(context.Background(), m, model.FlagChange{Read: &read}); err != nil {
		t.Fatalf("HandleMessageUpdated: %v", err)
	}

	payloads := notifier.delivered()
	if len(payloads) != 1 {
		t.Fatalf("delivered %d payloads, want 1", len(payloads))
	}
	if got := payloads[0].(model.SimplePayload); bool(got) {
		t.Errorf("payload = %v after last unread message was read, want false", got)
	}
}

func TestMessageUpdateJunkIgnored(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox)
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)

	read := true
	m := msg("mj", true, true)
	if err := eng.HandleMessageUpdated(context.Background(), m, model.FlagChange{Read: &read}); err != nil {
		t.Fatalf("HandleMessageUpdated: %v", err)
	}
	if len(notifier.delivered()) != 0 {
		t.Error("junk message update produced a notification")
	}
}

func TestMessageUpdateWithoutReadMarksSeen(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox)
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)

	m := msg("m1", false, false)
	if err := eng.HandleMessageUpdated(context.Background(), m, model.FlagChange{}); err != nil {
		t.Fatalf("HandleMessageUpdated: %v", err)
	}
	if len(notifier.delivered()) != 0 {
		t.Error("flag-only update produced a notification")
	}
	if !eng.Seen().IsSeen(inbox.Key(), "m1") {
		t.Error("flag-only update did not record the message as seen")
	}
}

func TestDeletedWhileReadSilent(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox)
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)
	eng.Seen().MarkSeen(inbox.Key(), "m1")

	m := msg("m1", true, false)
	if err := eng.HandleMessagesDeleted(context.Background(), []model.Message{m}); err != nil {
		t.Fatalf("HandleMessagesDeleted: %v", err)
	}
	if len(notifier.delivered()) != 0 {
		t.Error("deleting a read message produced a notification")
	}
	if eng.Seen().IsSeen(inbox.Key(), "m1") {
		t.Error("deleted message still in the seen set")
	}
}

func TestDeletedWhileUnreadNotifies(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox)
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)
	eng.Seen().MarkSeen(inbox.Key(), "m1")

	m := msg("m1", false, false)
	if err := eng.HandleMessagesDeleted(context.Background(), []model.Message{m}); err != nil {
		t.Fatalf("HandleMessagesDeleted: %v", err)
	}

	payloads := notifier.delivered()
	if len(payloads) != 1 {
		t.Fatalf("delivered %d payloads, want 1 deletion notification", len(payloads))
	}
	ext := extendedPayload(t, payloads[0])
	if ext.Event != model.EventDeleted {
		t.Errorf("event = %q, want %q", ext.Event, model.EventDeleted)
	}
	if ext.Message == nil || ext.Message.ID != "m1" {
		t.Errorf("message = %+v, want m1", ext.Message)
	}
	if eng.Seen().IsSeen(inbox.Key(), "m1") {
		t.Error("deleted message still in the seen set")
	}
}

func TestDeletedSimpleOnePerBatch(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox)
	eng, notifier := newTestEngine(t, model.ModeSimple, client, inbox)

	batch := []model.Message{
		msg("m1", false, false),
		msg("m2", false, false),
	}
	if err := eng.HandleMessagesDeleted(context.Background(), batch); err != nil {
		t.Fatalf("HandleMessagesDeleted: %v", err)
	}
	if got := len(notifier.delivered()); got != 1 {
		t.Fatalf("delivered %d payloads for one deletion batch, want 1", got)
	}
}

func TestReloadConfigDropsUnwatchedState(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox, msg("m1", false, false))
	client.addFolder(archive)
	eng, _ := newTestEngine(t, model.ModeExtended, client, inbox)
	eng.Seen().MarkSeen(archive.Key(), "old")

	if err := eng.ReloadConfig(context.Background()); err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}

	if eng.Seen().IsSeen(archive.Key(), "old") {
		t.Error("seen state of an unwatched folder survived the reload")
	}
	if !eng.Seen().IsSeen(inbox.Key(), "m1") {
		t.Error("watched folder not rescanned on reload")
	}
}

func TestDeliveryFailureSurfacedAndNotMarkedSeen(t *testing.T) {
	client := newFakeClient()
	client.addFolder(inbox)
	eng, notifier := newTestEngine(t, model.ModeExtended, client, inbox)

	sentinel := errors.New("consumer gone")
	notifier.failWith = sentinel

	batch := []model.Message{msg("m1", false, false)}
	err := eng.HandleNewMail(context.Background(), inbox, batch)
	if !errors.Is(err, sentinel) {
		t.Fatalf("HandleNewMail returned %v, want the delivery failure", err)
	}
	if eng.Seen().IsSeen(inbox.Key(), "m1") {
		t.Error("undelivered message was marked seen")
	}

	// The consumer recovers; the next event for the message notifies.
	notifier.failWith = nil
	if err := eng.HandleNewMail(context.Background(), inbox, batch); err != nil {
		t.Fatalf("HandleNewMail after recovery: %v", err)
	}
	if got := len(notifier.delivered()); got != 1 {
		t.Fatalf("delivered %d payloads after recovery, want 1", got)
	}
}
