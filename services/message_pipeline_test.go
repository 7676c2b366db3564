package services

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"messenger/crypto"
	"messenger/domain"
	msgerrors "messenger/errors"
	"messenger/mocks"
	"messenger/moderation"
	"messenger/observability"
	"messenger/repositories"
)

// testApp wires the full service stack onto a throwaway badger instance
// with small RSA keys so identity creation stays fast.
type testApp struct {
	identities  *IdentityService
	chats       *ChatService
	pipeline    *MessagePipeline
	attachments *AttachmentService
	delivery    repositories.IDeliveryRepository
	messages    repositories.IMessageRepository
	metrics     *observability.Metrics
}

func newTestApp(t *testing.T, engine crypto.Engine, moderator *moderation.Moderator, maxContentLength int) *testApp {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelError)
	metrics := observability.NewMetrics(log)
	keystore := crypto.NewKeystore("test passphrase")

	identityRepo := repositories.NewIdentityRepository(db)
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db, log)
	delivery := repositories.NewDeliveryRepository(db)
	attachmentRepo := repositories.NewAttachmentRepository(db)

	identities := NewIdentityService(identityRepo, keystore, 1024, log)
	guard := NewMembershipGuard(conversations)
	pipeline := NewMessagePipeline(guard, conversations, messages, delivery, attachmentRepo,
		identities, engine, moderator, metrics, log, maxContentLength)

	blobs := memoryBlobStore{blobs: map[string][]byte{}}
	attachments := NewAttachmentService(guard, messages, attachmentRepo, blobs, log, 0)

	return &testApp{
		identities:  identities,
		chats:       NewChatService(conversations, identities, log),
		pipeline:    pipeline,
		attachments: attachments,
		delivery:    delivery,
		messages:    messages,
		metrics:     metrics,
	}
}

type memoryBlobStore struct {
	blobs map[string][]byte
}

func (s memoryBlobStore) Put(name string, content []byte) (string, error) {
	locator := uuid.New().String()
	s.blobs[locator] = content
	return locator, nil
}

func (s memoryBlobStore) Delete(locator string) error {
	delete(s.blobs, locator)
	return nil
}

func (a *testApp) identity(t *testing.T, username string) domain.Identity {
	t.Helper()
	identity, err := a.identities.CreateIdentity(username)
	require.NoError(t, err)
	return identity
}

func Test_Send_And_Read_Between_Direct_Participants(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, crypto.NewEngine(), nil, 0)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")

	conv, err := app.chats.GetOrCreateDirect(alice.ID, bob.ID)
	req.NoError(err)

	receipt, err := app.pipeline.Send(domain.SendMessageCommand{
		SenderID:       alice.ID,
		ConversationID: conv.ID,
		Content:        "hello",
		Type:           domain.TypeText,
	})
	req.NoError(err)
	req.Equal(conv.ID, receipt.ConversationID)

	// The stored row carries ciphertext only, with one wrap per member.
	stored, err := app.messages.GetMessage(receipt.ID)
	req.NoError(err)
	req.NotContains(stored.Ciphertext, "hello")
	req.Len(stored.WrappedKeys, 2)

	decrypted, err := app.pipeline.Read(domain.ReadMessageCommand{
		RequesterID: bob.ID,
		MessageID:   receipt.ID,
	})
	req.NoError(err)
	req.Equal("hello", decrypted.Content)
	req.Equal(alice.ID, decrypted.SenderID)
	req.True(decrypted.IsRead)
}

func Test_Read_Marks_Read_Lazily(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, crypto.NewEngine(), nil, 0)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")

	conv, err := app.chats.GetOrCreateDirect(alice.ID, bob.ID)
	req.NoError(err)
	receipt, err := app.pipeline.Send(domain.SendMessageCommand{
		SenderID: alice.ID, ConversationID: conv.ID, Content: "ping", Type: domain.TypeText,
	})
	req.NoError(err)

	read, err := app.delivery.IsRead(receipt.ID, bob.ID)
	req.NoError(err)
	req.False(read)

	_, err = app.pipeline.Read(domain.ReadMessageCommand{RequesterID: bob.ID, MessageID: receipt.ID})
	req.NoError(err)

	rec, found, err := app.delivery.GetRecord(receipt.ID, bob.ID)
	req.NoError(err)
	req.True(found)
	req.True(rec.IsRead())
	firstReadAt := *rec.ReadAt

	// A second read keeps the original timestamp.
	_, err = app.pipeline.Read(domain.ReadMessageCommand{RequesterID: bob.ID, MessageID: receipt.ID})
	req.NoError(err)
	rec, _, err = app.delivery.GetRecord(receipt.ID, bob.ID)
	req.NoError(err)
	req.Equal(firstReadAt, *rec.ReadAt)

	// The sender reading their own message never creates a read record.
	_, err = app.pipeline.Read(domain.ReadMessageCommand{RequesterID: alice.ID, MessageID: receipt.ID})
	req.NoError(err)
	_, found, err = app.delivery.GetRecord(receipt.ID, alice.ID)
	req.NoError(err)
	req.False(found)
}

func Test_Non_Member_Is_Denied(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, crypto.NewEngine(), nil, 0)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")
	mallory := app.identity(t, "mallory")

	conv, err := app.chats.GetOrCreateDirect(alice.ID, bob.ID)
	req.NoError(err)
	receipt, err := app.pipeline.Send(domain.SendMessageCommand{
		SenderID: alice.ID, ConversationID: conv.ID, Content: "private", Type: domain.TypeText,
	})
	req.NoError(err)

	_, err = app.pipeline.Send(domain.SendMessageCommand{
		SenderID: mallory.ID, ConversationID: conv.ID, Content: "hi", Type: domain.TypeText,
	})
	req.ErrorIs(err, msgerrors.ErrAccessDenied)

	_, err = app.pipeline.Read(domain.ReadMessageCommand{RequesterID: mallory.ID, MessageID: receipt.ID})
	req.ErrorIs(err, msgerrors.ErrAccessDenied)

	_, err = app.pipeline.ListHistory(domain.ListHistoryCommand{RequesterID: mallory.ID, ConversationID: conv.ID})
	req.ErrorIs(err, msgerrors.ErrAccessDenied)

	req.Equal(uint64(3), app.metrics.Snapshot().AccessDenials)
}

func Test_Non_Member_Never_Triggers_Decryption(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	// No expectations are registered: any Seal or Open call fails the test.
	engine := mocks.NewMockEngine(ctrl)
	app := newTestApp(t, engine, nil, 0)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")
	mallory := app.identity(t, "mallory")

	conv, err := app.chats.GetOrCreateDirect(alice.ID, bob.ID)
	req.NoError(err)

	msg := domain.SealedMessage{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Ciphertext:     "deadbeef",
		WrappedKeys:    map[string]string{alice.ID.String(): "cafe", bob.ID.String(): "cafe"},
		Nonce:          "0102030405060708090a0b0c",
		Type:           domain.TypeText,
		CreatedAt:      time.Now().UTC(),
	}
	req.NoError(app.messages.StoreMessage(msg))

	_, err = app.pipeline.Read(domain.ReadMessageCommand{RequesterID: mallory.ID, MessageID: msg.ID})
	req.ErrorIs(err, msgerrors.ErrAccessDenied)

	_, err = app.pipeline.ListHistory(domain.ListHistoryCommand{RequesterID: mallory.ID, ConversationID: conv.ID})
	req.ErrorIs(err, msgerrors.ErrAccessDenied)
}

func Test_Send_Validation(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, crypto.NewEngine(), nil, 0)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")
	conv, err := app.chats.GetOrCreateDirect(alice.ID, bob.ID)
	req.NoError(err)

	base := domain.SendMessageCommand{
		SenderID:       alice.ID,
		ConversationID: conv.ID,
		Content:        "hello",
		Type:           domain.TypeText,
	}

	tests := []struct {
		description string
		modify      func(c *domain.SendMessageCommand)
	}{
		{"Should fail without sender", func(c *domain.SendMessageCommand) { c.SenderID = uuid.UUID{} }},
		{"Should fail without conversation", func(c *domain.SendMessageCommand) { c.ConversationID = uuid.UUID{} }},
		{"Should fail without content", func(c *domain.SendMessageCommand) { c.Content = "" }},
		{"Should fail on unknown type", func(c *domain.SendMessageCommand) { c.Type = "sticker" }},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			cmd := base
			tt.modify(&cmd)
			_, err := app.pipeline.Send(cmd)
			require.ErrorIs(t, err, msgerrors.ErrValidationFailed, tt.description)
		})
	}
}

func Test_Send_Rejects_Oversized_Content(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, crypto.NewEngine(), nil, 8)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")
	conv, err := app.chats.GetOrCreateDirect(alice.ID, bob.ID)
	req.NoError(err)

	_, err = app.pipeline.Send(domain.SendMessageCommand{
		SenderID: alice.ID, ConversationID: conv.ID, Content: "way past the limit", Type: domain.TypeText,
	})
	req.ErrorIs(err, msgerrors.ErrValidationFailed)
}

func Test_Moderator_Censors_Before_Sealing(t *testing.T) {
	req := require.New(t)
	moderator, err := moderation.New([]string{"secret"}, '*')
	req.NoError(err)
	app := newTestApp(t, crypto.NewEngine(), moderator, 0)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")
	conv, err := app.chats.GetOrCreateDirect(alice.ID, bob.ID)
	req.NoError(err)

	receipt, err := app.pipeline.Send(domain.SendMessageCommand{
		SenderID: alice.ID, ConversationID: conv.ID, Content: "the secret plan", Type: domain.TypeText,
	})
	req.NoError(err)

	decrypted, err := app.pipeline.Read(domain.ReadMessageCommand{RequesterID: bob.ID, MessageID: receipt.ID})
	req.NoError(err)
	req.Equal("the ****** plan", decrypted.Content)
}

func Test_List_History_Skips_Undecryptable_Messages(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, crypto.NewEngine(), nil, 0)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")
	conv, err := app.chats.GetOrCreateDirect(alice.ID, bob.ID)
	req.NoError(err)

	good, err := app.pipeline.Send(domain.SendMessageCommand{
		SenderID: alice.ID, ConversationID: conv.ID, Content: "readable", Type: domain.TypeText,
	})
	req.NoError(err)

	// A row with no wrap entry for bob, as if his key had never been included.
	broken := domain.SealedMessage{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Ciphertext:     "deadbeef",
		WrappedKeys:    map[string]string{alice.ID.String(): "cafe"},
		Nonce:          "0102030405060708090a0b0c",
		Type:           domain.TypeText,
		CreatedAt:      time.Now().UTC().Add(1 * time.Second),
	}
	req.NoError(app.messages.StoreMessage(broken))

	history, err := app.pipeline.ListHistory(domain.ListHistoryCommand{
		RequesterID: bob.ID, ConversationID: conv.ID,
	})
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(good.ID, history[0].ID)

	// The decryptable foreign message got marked delivered along the way.
	rec, found, err := app.delivery.GetRecord(good.ID, bob.ID)
	req.NoError(err)
	req.True(found)
	req.True(rec.IsDelivered())
	req.False(rec.IsRead())
}

func Test_List_History_Is_Chronological(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, crypto.NewEngine(), nil, 0)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")
	conv, err := app.chats.GetOrCreateDirect(alice.ID, bob.ID)
	req.NoError(err)

	contents := []string{"first", "second", "third"}
	for _, content := range contents {
		_, err := app.pipeline.Send(domain.SendMessageCommand{
			SenderID: alice.ID, ConversationID: conv.ID, Content: content, Type: domain.TypeText,
		})
		req.NoError(err)
		time.Sleep(2 * time.Millisecond)
	}

	history, err := app.pipeline.ListHistory(domain.ListHistoryCommand{
		RequesterID: bob.ID, ConversationID: conv.ID,
	})
	req.NoError(err)
	req.Len(history, len(contents))
	for i, content := range contents {
		req.Equal(content, history[i].Content)
	}
}

func Test_Delete_Message_Author_Only(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, crypto.NewEngine(), nil, 0)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")
	conv, err := app.chats.GetOrCreateDirect(alice.ID, bob.ID)
	req.NoError(err)

	receipt, err := app.pipeline.Send(domain.SendMessageCommand{
		SenderID: alice.ID, ConversationID: conv.ID, Content: "oops", Type: domain.TypeText,
	})
	req.NoError(err)

	req.ErrorIs(app.pipeline.DeleteMessage(domain.DeleteMessageCommand{
		RequesterID: bob.ID, MessageID: receipt.ID,
	}), msgerrors.ErrNotAuthor)

	req.NoError(app.pipeline.DeleteMessage(domain.DeleteMessageCommand{
		RequesterID: alice.ID, MessageID: receipt.ID,
	}))
	_, err = app.pipeline.Read(domain.ReadMessageCommand{RequesterID: bob.ID, MessageID: receipt.ID})
	req.ErrorIs(err, msgerrors.ErrMessageNotFound)
}

func Test_Group_Fan_Out_And_Removal(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, crypto.NewEngine(), nil, 0)
	alice := app.identity(t, "alice")
	bob := app.identity(t, "bob")
	clara := app.identity(t, "clara")

	conv, err := app.chats.CreateGroup(domain.CreateGroupCommand{
		CreatorID: alice.ID,
		Name:      "trio",
		MemberIDs: []uuid.UUID{bob.ID, clara.ID},
	})
	req.NoError(err)

	receipt, err := app.pipeline.Send(domain.SendMessageCommand{
		SenderID: alice.ID, ConversationID: conv.ID, Content: "welcome all", Type: domain.TypeText,
	})
	req.NoError(err)

	for _, member := range []domain.Identity{alice, bob, clara} {
		decrypted, err := app.pipeline.Read(domain.ReadMessageCommand{
			RequesterID: member.ID, MessageID: receipt.ID,
		})
		req.NoError(err, member.Username)
		req.Equal("welcome all", decrypted.Content)
	}

	// After removal clara keeps no access, even to messages she could read.
	req.NoError(app.chats.RemoveMember(alice.ID, conv.ID, clara.ID))
	_, err = app.pipeline.Read(domain.ReadMessageCommand{RequesterID: clara.ID, MessageID: receipt.ID})
	req.ErrorIs(err, msgerrors.ErrAccessDenied)

	// Messages sent after the removal are not wrapped for her either.
	later, err := app.pipeline.Send(domain.SendMessageCommand{
		SenderID: alice.ID, ConversationID: conv.ID, Content: "without clara", Type: domain.TypeText,
	})
	req.NoError(err)
	stored, err := app.messages.GetMessage(later.ID)
	req.NoError(err)
	req.Len(stored.WrappedKeys, 2)
	req.NotContains(stored.WrappedKeys, clara.ID.String())
}

func Test_Send_Fails_When_Recipient_Key_Unresolvable(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelError)
	conversations := repositories.NewConversationRepository(db)
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIdentityDirectory(ctrl)
	pipeline := NewMessagePipeline(
		NewMembershipGuard(conversations), conversations,
		repositories.NewMessageRepository(db, log),
		repositories.NewDeliveryRepository(db),
		repositories.NewAttachmentRepository(db),
		directory, crypto.NewEngine(), nil, observability.NewMetrics(log), log, 0,
	)

	alice, bob := uuid.New(), uuid.New()
	conv, err := conversations.GetOrCreateDirect(alice, bob)
	req.NoError(err)

	// A member row without a resolvable key must abort the send; nothing
	// may be stored half-wrapped.
	directory.EXPECT().PublicKey(gomock.Any()).Return(nil, msgerrors.ErrIdentityNotFound).AnyTimes()

	_, err = pipeline.Send(domain.SendMessageCommand{
		SenderID: alice, ConversationID: conv.ID, Content: "hi", Type: domain.TypeText,
	})
	req.ErrorIs(err, msgerrors.ErrIdentityNotFound)

	msgs, err := repositories.NewMessageRepository(db, log).ListMessages(conv.ID)
	req.NoError(err)
	req.Empty(msgs)
}

func Test_Self_Notes_Round_Trip(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, crypto.NewEngine(), nil, 0)
	alice := app.identity(t, "alice")

	conv, err := app.chats.GetOrCreateSelfNotes(alice.ID)
	req.NoError(err)

	receipt, err := app.pipeline.Send(domain.SendMessageCommand{
		SenderID: alice.ID, ConversationID: conv.ID, Content: "note to self", Type: domain.TypeText,
	})
	req.NoError(err)

	stored, err := app.messages.GetMessage(receipt.ID)
	req.NoError(err)
	req.Len(stored.WrappedKeys, 1)

	decrypted, err := app.pipeline.Read(domain.ReadMessageCommand{
		RequesterID: alice.ID, MessageID: receipt.ID,
	})
	req.NoError(err)
	req.Equal("note to self", decrypted.Content)
}
