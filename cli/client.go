package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultBaseURL = "http://localhost:5000"

// ApiClient talks to the order server: HTTP for reads, websocket for admin actions
type ApiClient struct {
	httpClient *http.Client
	BaseURL    string
	token      string

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int
}

// NewApiClient creates a new API client
func NewApiClient() *ApiClient {
	baseURL := os.Getenv("ORDERHUB_API_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &ApiClient{
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
		BaseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Order mirrors the order document served by the API
type Order struct {
	OrderID         string        `json:"orderId"`
	CustomerName    string        `json:"customerName"`
	CustomerPhone   string        `json:"customerPhone"`
	CustomerAddress string        `json:"customerAddress"`
	Items           []OrderItem   `json:"items"`
	Subtotal        float64       `json:"subtotal"`
	Tax             float64       `json:"tax"`
	DeliveryFee     float64       `json:"deliveryFee"`
	TotalAmount     float64       `json:"totalAmount"`
	SpecialNotes    string        `json:"specialNotes"`
	PaymentMethod   string        `json:"paymentMethod"`
	Status          string        `json:"status"`
	StatusHistory   []StatusEntry `json:"statusHistory"`
	EstimatedTime   *int          `json:"estimatedTime"`
	CreatedAt       time.Time     `json:"createdAt"`
}

type OrderItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Notes    string  `json:"notes"`
}

type StatusEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	By        string    `json:"by"`
	Note      string    `json:"note"`
}

// Stats mirrors the live dashboard counters
type Stats struct {
	TotalToday     int64 `json:"totalToday"`
	Pending        int64 `json:"pending"`
	Confirmed      int64 `json:"confirmed"`
	Preparing      int64 `json:"preparing"`
	Ready          int64 `json:"ready"`
	OutForDelivery int64 `json:"outForDelivery"`
	Delivered      int64 `json:"delivered"`
	Cancelled      int64 `json:"cancelled"`
}

type ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   *Order `json:"order"`
	Stats   *Stats `json:"stats"`
}

type frame struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// CheckHealth checks if the API is up and running
func (c *ApiClient) CheckHealth() error {
	resp, err := c.httpClient.Get(c.BaseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API health check failed with status code: %d", resp.StatusCode)
	}
	return nil
}

// Login obtains an HTTP token and opens an authenticated websocket session
func (c *ApiClient) Login(password string) error {
	body, _ := json.Marshal(map[string]string{"password": password})
	resp, err := c.httpClient.Post(c.BaseURL+"/api/admin/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("login failed: %s", result.Message)
	}
	c.token = result.Token

	return c.openSession(password)
}

func (c *ApiClient) openSession(password string) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if _, err := c.call("adminLogin", map[string]string{"password": password}); err != nil {
		c.Close()
		return err
	}
	return nil
}

// Close ends the websocket session
func (c *ApiClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// call sends one action and waits for its ack, skipping events in between
func (c *ApiClient) call(action string, data interface{}) (*ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("not logged in")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	c.nextID++
	id := strconv.Itoa(c.nextID)

	if err := c.conn.WriteJSON(map[string]interface{}{"id": id, "action": action, "data": json.RawMessage(raw)}); err != nil {
		return nil, err
	}

	c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return nil, err
		}
		if f.Type != "ack" || f.ID != id {
			continue
		}
		var a ack
		if err := json.Unmarshal(f.Data, &a); err != nil {
			return nil, err
		}
		if !a.Success {
			return nil, fmt.Errorf("%s: %s", action, a.Message)
		}
		return &a, nil
	}
}

// GetOrders retrieves the most recent orders, optionally filtered by status
func (c *ApiClient) GetOrders(status string) ([]Order, error) {
	endpoint := c.BaseURL + "/api/orders"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	var result struct {
		Success bool    `json:"success"`
		Message string  `json:"message"`
		Orders  []Order `json:"orders"`
	}
	if err := c.doJSON(req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("list orders: %s", result.Message)
	}
	return result.Orders, nil
}

// GetOrder retrieves a specific order
func (c *ApiClient) GetOrder(id string) (*Order, error) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"/api/orders/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Order   *Order `json:"order"`
	}
	if err := c.doJSON(req, &result); err != nil {
		return nil, err
	}
	if !result.Success || result.Order == nil {
		return nil, fmt.Errorf("get order: %s", result.Message)
	}
	return result.Order, nil
}

func (c *ApiClient) doJSON(req *http.Request, v interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("API returned status code %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// AcceptOrder confirms a pending order with an estimated time in minutes
func (c *ApiClient) AcceptOrder(id string, minutes int) (*Order, error) {
	a, err := c.call("acceptOrder", map[string]interface{}{"orderId": id, "estimatedTime": minutes})
	if err != nil {
		return nil, err
	}
	return a.Order, nil
}

// RejectOrder cancels a pending order
func (c *ApiClient) RejectOrder(id, reason string) error {
	_, err := c.call("rejectOrder", map[string]string{"orderId": id, "reason": reason})
	return err
}

// UpdateStatus moves an order along its lifecycle
func (c *ApiClient) UpdateStatus(id, status string) (*Order, error) {
	a, err := c.call("updateOrderStatus", map[string]string{"orderId": id, "newStatus": status})
	if err != nil {
		return nil, err
	}
	return a.Order, nil
}

// GetStats retrieves the live dashboard counters
func (c *ApiClient) GetStats() (*Stats, error) {
	a, err := c.call("getLiveStats", nil)
	if err != nil {
		return nil, err
	}
	return a.Stats, nil
}
