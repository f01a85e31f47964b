package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supportbot/storebot-go/internal/model"
)

type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func wsURL(srv *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, eventType string, data interface{}) {
	t.Helper()
	env := map[string]interface{}{"type": eventType}
	if data != nil {
		env["data"] = data
	}
	require.NoError(t, conn.WriteJSON(env))
}

func next(t *testing.T, conn *websocket.Conn) inboundEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev inboundEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// nextTurn 跳过欢迎语，返回下一条对话消息
func nextTurn(t *testing.T, conn *websocket.Conn) model.TurnPayload {
	t.Helper()
	for {
		ev := next(t, conn)
		if ev.Type != model.EventReceiveMessage {
			continue
		}
		var turn model.TurnPayload
		require.NoError(t, json.Unmarshal(ev.Data, &turn))
		if !turn.IsWelcome {
			return turn
		}
	}
}

func join(t *testing.T, conn *websocket.Conn, owner int64) {
	t.Helper()
	emit(t, conn, model.EventJoinChat, map[string]int64{"userId": owner})
	ev := next(t, conn)
	require.Equal(t, model.EventJoined, ev.Type, string(ev.Data))
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketRequiresJoin(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	conn := dial(t, srv, app.token)
	emit(t, conn, model.EventGetChatHistory, nil)

	ev := next(t, conn)
	require.Equal(t, model.EventChatError, ev.Type)
	var payload model.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "validation", payload.Kind)

	// 不能加入他人的频道
	emit(t, conn, model.EventJoinChat, app.user.ID+1)
	ev = next(t, conn)
	require.Equal(t, model.EventChatError, ev.Type)
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "auth", payload.Kind)
}

func TestWebSocketWelcomeOnJoin(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	conn := dial(t, srv, app.token)
	join(t, conn, app.user.ID)

	ev := next(t, conn)
	require.Equal(t, model.EventReceiveMessage, ev.Type)
	var turn model.TurnPayload
	require.NoError(t, json.Unmarshal(ev.Data, &turn))
	assert.True(t, turn.IsWelcome)
	assert.True(t, turn.IsBot)
	assert.Equal(t, app.rules.Templates.Welcome, turn.Text)
}

func TestWebSocketExchangeAndTyping(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	first := dial(t, srv, app.token)
	second := dial(t, srv, app.token)
	join(t, first, app.user.ID)
	join(t, second, app.user.ID)
	assert.Eventually(t, func() bool { return app.sessions.ChannelSize(app.user.ID) == 2 }, time.Second, 10*time.Millisecond)

	// 输入状态只转发给其他会话
	emit(t, first, model.EventTypingStart, map[string]int64{"userId": app.user.ID})
	for {
		ev := next(t, second)
		if ev.Type == model.EventUserTyping {
			assert.JSONEq(t, `{"typing":true}`, string(ev.Data))
			break
		}
	}

	emit(t, first, model.EventSendMessage, map[string]interface{}{
		"userId":  app.user.ID,
		"message": "I forgot my password",
	})

	for _, conn := range []*websocket.Conn{first, second} {
		userTurn := nextTurn(t, conn)
		assert.False(t, userTurn.IsBot)
		assert.Equal(t, "I forgot my password", userTurn.Text)

		botTurn := nextTurn(t, conn)
		assert.True(t, botTurn.IsBot)
		assert.Equal(t, app.rules.Templates.Account, botTurn.Text)
		assert.True(t, botTurn.Timestamp.After(userTurn.Timestamp))
	}

	emit(t, first, model.EventGetChatHistory, nil)
	for {
		ev := next(t, first)
		require.NotEqual(t, model.EventUserTyping, ev.Type, "发送方不应收到自己的输入状态")
		if ev.Type != model.EventChatHistory {
			continue
		}
		var history model.HistoryPayload
		require.NoError(t, json.Unmarshal(ev.Data, &history))
		require.Len(t, history.Messages, 2)
		assert.Equal(t, model.OriginUser, history.Messages[0].Origin)
		assert.Equal(t, model.OriginBot, history.Messages[1].Origin)
		break
	}
}

func TestWebSocketSendValidation(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	conn := dial(t, srv, app.token)
	join(t, conn, app.user.ID)

	emit(t, conn, model.EventSendMessage, map[string]interface{}{"message": "  "})
	for {
		ev := next(t, conn)
		if ev.Type != model.EventChatError {
			continue
		}
		var payload model.ErrorPayload
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		assert.Equal(t, "validation", payload.Kind)
		break
	}
}
