package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/common"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/vcp"
)

func startTestServer(t *testing.T, conn *fakeConnection) *websocket.Conn {
	t.Helper()
	server := NewServer(newTestBridge(conn), 0, nil)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	url := fmt.Sprintf("ws://%v/", server.Addr())
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func readResponse(t *testing.T, client *websocket.Conn) common.Response {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	var response common.Response
	require.NoError(t, json.Unmarshal(data, &response))
	return response
}

func TestServerRoutesCommand(t *testing.T) {
	conn := &fakeConnection{
		state: vcp.StateOpen,
		sendFn: func(ctx context.Context, def *registry.OutgoingMessage, payload interface{}, messageID string) (interface{}, error) {
			return &pingResponse{Echo: "pong"}, nil
		},
	}
	client := startTestServer(t, conn)

	require.NoError(t, client.WriteJSON(common.Command{
		Action:    "Ping",
		MessageID: "admin-1",
		Payload:   json.RawMessage(`{"value":"ping"}`),
	}))

	response := readResponse(t, client)
	require.Nil(t, response.Err)
	assert.Equal(t, "admin-1", response.MessageID)
}

func TestServerRejectsInvalidJSON(t *testing.T) {
	client := startTestServer(t, &fakeConnection{state: vcp.StateOpen})

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`not json`)))

	response := readResponse(t, client)
	require.NotNil(t, response.Err)
	assert.Equal(t, common.ErrCodeInvalidCommand, response.Err.Code)
}

func TestServerReportsNotConnected(t *testing.T) {
	client := startTestServer(t, &fakeConnection{state: vcp.StateIdle})

	require.NoError(t, client.WriteJSON(common.Command{
		Action:    "Ping",
		MessageID: "admin-1",
		Payload:   json.RawMessage(`{"value":"ping"}`),
	}))

	response := readResponse(t, client)
	require.NotNil(t, response.Err)
	assert.Equal(t, common.ErrCodeNotConnected, response.Err.Code)
	assert.Equal(t, "admin-1", response.MessageID)
}

// One admin session serves many commands in sequence.
func TestServerServesSequentialCommands(t *testing.T) {
	conn := &fakeConnection{
		state: vcp.StateOpen,
		sendFn: func(ctx context.Context, def *registry.OutgoingMessage, payload interface{}, messageID string) (interface{}, error) {
			return &pingResponse{Echo: messageID}, nil
		},
	}
	client := startTestServer(t, conn)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("admin-%d", i)
		require.NoError(t, client.WriteJSON(common.Command{
			Action:    "Ping",
			MessageID: id,
			Payload:   json.RawMessage(`{"value":"ping"}`),
		}))
		response := readResponse(t, client)
		require.Nil(t, response.Err)
		assert.Equal(t, id, response.MessageID)
	}
}
