package reconciler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/terravale/api/internal/model"
)

// WSEvent mirrors handler.WSEvent for client-side deserialization.
type WSEvent struct {
	Type      string         `json:"type"`
	VillageID string         `json:"village_id"`
	Data      map[string]any `json:"data"`
}

// StartResponse is the server's answer to a start request. FinishTime is the
// single source of truth for the countdown.
type StartResponse struct {
	Success    bool          `json:"success"`
	Level      int           `json:"level"`
	FinishTime time.Time     `json:"finishTime"`
	Cost       int64         `json:"cost"`
	Costs      model.Amounts `json:"costs"`
}

// Client is an HTTP+WebSocket client for the village API.
type Client struct {
	name     string
	baseURL  string
	token    string
	userID   string
	wsConn   *websocket.Conn
	events   chan WSEvent
	httpC    *http.Client
	mu       sync.Mutex
	closedWS bool
}

// NewClient creates a client targeting the given server URL.
func NewClient(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		events:  make(chan WSEvent, 64),
		httpC:   &http.Client{Timeout: 30 * time.Second},
	}
}

// UserID returns the player's user ID after login.
func (c *Client) UserID() string { return c.userID }

// Login authenticates via the dev login endpoint.
func (c *Client) Login() error {
	resp, err := c.httpC.Get(c.baseURL + "/auth/dev?name=" + url.QueryEscape(c.name))
	if err != nil {
		return fmt.Errorf("dev login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dev login status %d: %s", resp.StatusCode, body)
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("decode tokens: %w", err)
	}
	c.token = tokens.AccessToken

	var user model.User
	if err := c.getJSON("/api/v1/users/me", &user); err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	c.userID = user.ID
	log.Debug().Str("name", c.name).Str("userId", c.userID).Msg("Reconciler logged in")
	return nil
}

// ListVillages fetches the player's villages with buildings and resources.
// This is the only source the reconciler rebuilds its queue from.
func (c *Client) ListVillages() ([]model.Village, error) {
	var villages []model.Village
	if err := c.getJSON("/api/v1/villages", &villages); err != nil {
		return nil, err
	}
	return villages, nil
}

// StartUpgrade requests a new upgrade order and returns the authoritative
// finish time.
func (c *Client) StartUpgrade(villageID, kind string, level int) (*StartResponse, error) {
	payload := map[string]any{"upgradeType": kind, "level": level}
	var resp StartResponse
	if err := c.postJSON("/api/v1/villages/"+villageID+"/upgrades/start", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompleteUpgrade asks the server to finish a due order.
func (c *Client) CompleteUpgrade(villageID, kind string, level int) error {
	payload := map[string]any{"upgradeType": kind, "level": level}
	return c.postJSON("/api/v1/villages/"+villageID+"/upgrades/complete", payload, nil)
}

// CancelUpgrade cancels the newest pending order, echoing the finish time
// the player was shown.
func (c *Client) CancelUpgrade(villageID, kind string, level int, finish time.Time, refund model.Amounts) error {
	payload := map[string]any{
		"upgradeType": kind,
		"level":       level,
		"refund":      refund,
		"finishTime":  finish,
	}
	return c.postJSON("/api/v1/villages/"+villageID+"/upgrades/cancel", payload, nil)
}

// ConnectWS opens a WebSocket connection and starts listening for events.
func (c *Client) ConnectWS() error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/v1/ws?token=" + url.QueryEscape(c.token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	c.wsConn = conn

	go c.readWSLoop()
	return nil
}

// SubscribeVillage sends a subscribe message for the given village.
func (c *Client) SubscribeVillage(villageID string) error {
	msg := map[string]string{"action": "subscribe", "village_id": villageID}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wsConn.WriteJSON(msg)
}

// Events returns the channel of incoming WebSocket events.
func (c *Client) Events() <-chan WSEvent { return c.events }

// CloseWS closes the WebSocket connection.
func (c *Client) CloseWS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil && !c.closedWS {
		c.closedWS = true
		c.wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wsConn.Close()
	}
}

func (c *Client) readWSLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.wsConn.ReadMessage()
		if err != nil {
			if !c.closedWS {
				log.Debug().Err(err).Str("name", c.name).Msg("WS read error")
			}
			return
		}
		// The server may coalesce queued events into one frame, newline separated.
		for _, line := range bytes.Split(msg, []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var event WSEvent
			if err := json.Unmarshal(line, &event); err != nil {
				continue
			}
			c.events <- event
		}
	}
}

func (c *Client) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpC.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(path string, payload, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpC.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
