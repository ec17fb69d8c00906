package messaging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangaverse/pkg/database/dbtest"
	"mangaverse/pkg/models"
)

func setup(t *testing.T) *Repo {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.CreateUser(t, db, "u-a", "alice", false)
	dbtest.CreateUser(t, db, "u-b", "bob", false)
	dbtest.CreateUser(t, db, "u-c", "carol", false)
	return NewRepo(db)
}

func send(t *testing.T, r *Repo, from, to, content string) *models.Message {
	t.Helper()
	m := &models.Message{SenderID: from, RecipientID: to, Content: content}
	require.NoError(t, r.Send(context.Background(), m))
	return m
}

func TestSendValidation(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		msg  models.Message
		want error
	}{
		{"empty", models.Message{SenderID: "u-a", RecipientID: "u-b", Content: "   "}, ErrEmptyMessage},
		{"too long", models.Message{SenderID: "u-a", RecipientID: "u-b", Content: strings.Repeat("x", MaxContentLen+1)}, ErrMessageTooLong},
		{"self", models.Message{SenderID: "u-a", RecipientID: "u-a", Content: "hi"}, ErrSelfMessage},
		{"unknown", models.Message{SenderID: "u-a", RecipientID: "nobody", Content: "hi"}, ErrUnknownRecipient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.msg
			assert.ErrorIs(t, r.Send(ctx, &m), tc.want)
		})
	}

	ok := send(t, r, "u-a", "u-b", strings.Repeat("y", MaxContentLen))
	assert.NotZero(t, ok.ID)
}

func TestThreadOrderAndReadState(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	send(t, r, "u-a", "u-b", "one")
	send(t, r, "u-b", "u-a", "two")
	send(t, r, "u-a", "u-b", "three")
	send(t, r, "u-a", "u-c", "elsewhere")

	unread, err := r.UnreadCount(ctx, "u-b")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	thread, err := r.Thread(ctx, "u-b", "u-a")
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{thread[0].Content, thread[1].Content, thread[2].Content})
	assert.False(t, thread[0].IsRead)

	unread, err = r.UnreadCount(ctx, "u-b")
	require.NoError(t, err)
	assert.Zero(t, unread)

	// alice has not opened the thread, so bob's reply is still unread for her
	unread, err = r.UnreadCount(ctx, "u-a")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestInbox(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	send(t, r, "u-b", "u-a", "from bob")
	send(t, r, "u-a", "u-c", "to carol")
	send(t, r, "u-c", "u-a", "carol replies")
	send(t, r, "u-c", "u-a", "carol again")

	inbox, err := r.Inbox(ctx, "u-a")
	require.NoError(t, err)
	require.Len(t, inbox, 2)

	assert.Equal(t, "carol", inbox[0].Username)
	assert.Equal(t, "carol again", inbox[0].LastMessage)
	assert.Equal(t, 2, inbox[0].Unread)
	assert.Equal(t, "bob", inbox[1].Username)
	assert.Equal(t, 1, inbox[1].Unread)
}

func TestDeleteChat(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	send(t, r, "u-a", "u-b", "x")
	send(t, r, "u-b", "u-a", "y")
	send(t, r, "u-a", "u-c", "keep")

	n, err := r.DeleteChat(ctx, "u-b", "u-a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	thread, err := r.Thread(ctx, "u-a", "u-b")
	require.NoError(t, err)
	assert.Empty(t, thread)

	inbox, err := r.Inbox(ctx, "u-a")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "carol", inbox[0].Username)
}
