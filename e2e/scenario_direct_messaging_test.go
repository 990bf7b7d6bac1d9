package e2e

import (
	"context"
	"testing"

	"chat-relay/client"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type testDirectMessagingSuite struct {
	BaseRelaySuite
}

func TestDirectMessagingSuite(t *testing.T) {
	suite.Run(t, &testDirectMessagingSuite{})
}

func (s *testDirectMessagingSuite) TestOfflineReplayThenReadReceipt() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice := s.NewAccount("alice")
	bob := s.NewAccount("bob")
	bobID := chat.ParticipantID(bob.User.Email)
	var messageID string

	// --- STEP 1: SEND WHILE THE RECEIVER IS AWAY ---
	s.Run("Step 1: Message to an offline user is only acknowledged", func() {
		s.Step("alice writes to offline bob")
		aliceConn := s.Connect(ctx, alice)

		var err error
		messageID, err = aliceConn.Send(bobID, "are you there?")
		s.Require().NoError(err)

		sent, ok := s.Await(aliceConn, event.MessageSentEvent).(*event.MessageSent)
		s.Require().True(ok)
		s.Require().Equal(messageID, sent.MessageID)
		s.Require().False(sent.Delivered)
		s.Require().NoError(aliceConn.Close())
	})

	// --- STEP 2: REPLAY ON CONNECT ---
	s.Run("Step 2: Backlog is replayed after registration", func() {
		s.Step("bob connects and receives the backlog")
		bobConn := s.Connect(ctx, bob)

		received, ok := s.Await(bobConn, event.ReceiveMessageEvent).(*event.ReceiveMessage)
		s.Require().True(ok)
		s.Require().Equal(messageID, received.MessageID)
		s.Require().Equal("are you there?", received.Message)

		s.Require().NoError(bobConn.MarkRead(messageID))
	})

	// --- STEP 3: HISTORY REFLECTS THE FLAGS ---
	s.Run("Step 3: History shows the message delivered and read", func() {
		s.Step("history over REST")
		s.Require().Eventually(func() bool {
			page, err := s.API.History(bob.Token, bobID, chat.ParticipantID(alice.User.Email), nil)
			if err != nil || len(page.Messages) != 1 {
				return false
			}
			return page.Messages[0].Delivered && page.Messages[0].Read
		}, awaitTimeout, awaitTimeout/50)
	})
}

func (s *testDirectMessagingSuite) TestSecondSessionTakesOver() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	carol := s.NewAccount("carol")

	first := s.Connect(ctx, carol)
	s.Step("carol connects a second time")
	second := s.Connect(ctx, carol)

	notice, ok := s.Await(first, event.ForceDisconnectEvent).(*event.ForceDisconnect)
	s.Require().True(ok)
	s.Require().Equal("New session detected", notice.Message)

	users, err := s.API.Users(carol.Token)
	s.Require().NoError(err)
	me, found := lo.Find(users, func(u client.User) bool {
		return u.Email == carol.User.Email
	})
	s.Require().True(found)
	s.Require().True(me.Online)
	s.Require().NoError(second.Close())
}
