package integration

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/test/testhelpers"
)

// TestMultipleClientsMessageExchange verifies that every member of a room
// receives every message sent to it, in send order per sender.
func TestMultipleClientsMessageExchange(t *testing.T) {
	stack := testhelpers.NewStack(t, nil)

	const numClients = 5
	clients := make([]*websocket.Conn, numClients)
	for i := range clients {
		clients[i] = stack.Join(t, fmt.Sprintf("user%d", i), "lobby")
	}
	// Drain the join notifications of later arrivals.
	for i, conn := range clients {
		for j := i + 1; j < numClients; j++ {
			require.Equal(t, chat.TypeJoin, testhelpers.ReadMessage(t, conn).Type)
		}
	}

	testhelpers.SendChat(t, clients[0], "lobby", "user0", "first")
	testhelpers.SendChat(t, clients[0], "lobby", "user0", "second")

	for i, conn := range clients {
		assert.Equal(t, "first", testhelpers.ReadMessage(t, conn).Body, "client %d", i)
		assert.Equal(t, "second", testhelpers.ReadMessage(t, conn).Body, "client %d", i)
	}
	assert.Equal(t, numClients, stack.Service.OnlineCount("lobby"))
}

// TestMultipleClientsConcurrentJoins joins many clients across rooms at once
// and checks that the counts add up.
func TestMultipleClientsConcurrentJoins(t *testing.T) {
	stack := testhelpers.NewStack(t, nil)

	const numClients = 20
	var wg sync.WaitGroup
	conns := make(chan *websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := testhelpers.ConnectWebSocket(stack.RoomURL(fmt.Sprintf("user%d", i), fmt.Sprintf("room%d", i%4)), stack.Server.URL)
			if err != nil {
				t.Errorf("client %d: %v", i, err)
				return
			}
			conns <- conn
		}(i)
	}
	wg.Wait()
	close(conns)
	for conn := range conns {
		t.Cleanup(func() { _ = conn.Close() })
	}

	assert.Eventually(t, func() bool {
		total := 0
		for r := 0; r < 4; r++ {
			if stack.Service.OnlineCount(fmt.Sprintf("room%d", r)) != numClients/4 {
				return false
			}
			total += stack.Service.OnlineCount(fmt.Sprintf("room%d", r))
		}
		return total == numClients && stack.Hub.ClientCount() == numClients
	}, 2*time.Second, 10*time.Millisecond)
}

// TestMultipleClientsAbruptDisconnect drops one member without a close frame
// and checks that the rest of the room keeps working and hears the quit.
func TestMultipleClientsAbruptDisconnect(t *testing.T) {
	stack := testhelpers.NewStack(t, nil)

	alice := stack.Join(t, "alice", "lobby")
	bob := stack.Join(t, "bob", "lobby")
	testhelpers.ReadMessage(t, alice)

	require.NoError(t, bob.Close())

	quit := testhelpers.ReadUntil(t, alice, chat.TypeQuit)
	assert.Equal(t, "bob", quit.Sender)

	testhelpers.SendChat(t, alice, "lobby", "alice", "still here")
	assert.Equal(t, "still here", testhelpers.ReadUntil(t, alice, chat.TypeChat).Body)
	assert.Equal(t, 1, stack.Service.OnlineCount("lobby"))
}

func TestSameUserInTwoRooms(t *testing.T) {
	stack := testhelpers.NewStack(t, nil)

	lobby := stack.Join(t, "alice", "lobby")
	games := stack.Join(t, "alice", "games")

	testhelpers.SendChat(t, lobby, "lobby", "alice", "lobby only")
	assert.Equal(t, "lobby only", testhelpers.ReadMessage(t, lobby).Body)
	testhelpers.ExpectNoMessage(t, games, 200*time.Millisecond)

	assert.Equal(t, 1, stack.Service.OnlineCount("lobby"))
	assert.Equal(t, 1, stack.Service.OnlineCount("games"))
}
