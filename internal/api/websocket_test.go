package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderhub/internal/auth"
	"orderhub/internal/realtime"
	"orderhub/internal/session"
)

type wireFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

func newRealtimeServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newTestStore(t)
	admin := auth.NewAdmin("pw", "secret", time.Hour)
	hub := realtime.NewHub(nil)
	router := session.NewRouter(store, hub, admin)
	api := NewOrderAPI(store, admin, realtime.NewEndpoint(hub, router, "*"))

	srv := httptest.NewServer(api.Router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, id, action string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(realtime.Request{ID: id, Action: action, Data: raw}))
}

// next reads frames until match accepts one
func next(t *testing.T, conn *websocket.Conn, match func(wireFrame) bool) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f wireFrame
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func ackFor(id string) func(wireFrame) bool {
	return func(f wireFrame) bool { return f.Type == realtime.FrameAck && f.ID == id }
}

func eventNamed(name string) func(wireFrame) bool {
	return func(f wireFrame) bool { return f.Type == realtime.FrameEvent && f.Event == name }
}

func TestRealtimeAcceptFlow(t *testing.T) {
	srv := newRealtimeServer(t)
	customer := dial(t, srv)
	admin := dial(t, srv)

	send(t, customer, "1", "placeOrder", map[string]interface{}{
		"customerName":    "Ann",
		"customerPhone":   "555",
		"customerAddress": "1 Main St",
		"items":           []map[string]interface{}{{"id": "m1", "name": "Pizza", "price": 12.5, "quantity": 2}},
	})
	var placed struct {
		Success bool `json:"success"`
		Order   struct {
			OrderID     string  `json:"orderId"`
			Status      string  `json:"status"`
			TotalAmount float64 `json:"totalAmount"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(next(t, customer, ackFor("1")).Data, &placed))
	require.True(t, placed.Success)
	assert.Equal(t, "pending", placed.Order.Status)
	assert.Equal(t, 62.5, placed.Order.TotalAmount)

	send(t, admin, "a1", "adminLogin", map[string]string{"password": "pw"})
	assert.JSONEq(t, `{"success":true}`, string(next(t, admin, ackFor("a1")).Data))

	send(t, admin, "a2", "acceptOrder", map[string]interface{}{"orderId": placed.Order.OrderID, "estimatedTime": 20})
	var accepted struct {
		Success bool `json:"success"`
		Order   struct {
			Status        string `json:"status"`
			EstimatedTime int    `json:"estimatedTime"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(next(t, admin, ackFor("a2")).Data, &accepted))
	assert.True(t, accepted.Success)
	assert.Equal(t, "confirmed", accepted.Order.Status)
	assert.Equal(t, 20, accepted.Order.EstimatedTime)

	ev := next(t, customer, eventNamed(session.EventOrderAccepted))
	assert.JSONEq(t, `{"orderId":"`+placed.Order.OrderID+`","estimatedTime":20}`, string(ev.Data))
}

func TestRealtimeRejectsAdminActionsBeforeLogin(t *testing.T) {
	srv := newRealtimeServer(t)
	conn := dial(t, srv)

	send(t, conn, "1", "getLiveStats", nil)

	assert.JSONEq(t, `{"success":false,"message":"Unauthorized"}`, string(next(t, conn, ackFor("1")).Data))
}

func TestRealtimeMalformedFrameKeepsConnection(t *testing.T) {
	srv := newRealtimeServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := next(t, conn, func(f wireFrame) bool { return f.Type == realtime.FrameAck })
	assert.JSONEq(t, `{"success":false,"message":"Malformed message"}`, string(f.Data))

	send(t, conn, "2", "noSuchAction", nil)
	f = next(t, conn, ackFor("2"))
	assert.JSONEq(t, `{"success":false,"message":"Unknown action: noSuchAction"}`, string(f.Data))
}
