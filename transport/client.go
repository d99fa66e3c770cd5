// Package transport implements sync.Interface over an Electrum-style
// JSON-RPC session carried on a websocket connection, grounded in the
// qshuai/go-electrum request/response shape (method names,
// "blockchain.scripthash.*" surface) adapted onto
// github.com/clevergo/websocket, which is already in the teacher's
// dependency stack.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"strings"
	"time"

	"github.com/clevergo/websocket"
	"github.com/pkg/errors"

	"github.com/chainwallet/syncer/log"
	chainsync "github.com/chainwallet/syncer/sync"
)

const (
	methodSubscribe     = "blockchain.scripthash.subscribe"
	methodGetHistory    = "blockchain.scripthash.get_history"
	methodGetTx         = "blockchain.transaction.get"
	methodUnsubscribe   = "blockchain.scripthash.unsubscribe"
	defaultCallTimeout  = 30 * time.Second
)

type rpcRequest struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type rpcMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type historyRow struct {
	TxHash string `json:"tx_hash"`
	Height int64  `json:"height"`
	Fee    *int64 `json:"fee,omitempty"`
}

// Client implements sync.Interface over one websocket connection. Status
// pushes (unsolicited "blockchain.scripthash.subscribe" notifications) are
// handed to a push handler installed via SetPushHandler — normally
// Engine.NotifyStatus or Synchronizer.NotifyStatus.
type Client struct {
	conn *websocket.Conn
	log  log.Logger

	mu      gosync.Mutex
	nextID  uint64
	pending map[uint64]chan rpcMessage

	subMu       gosync.Mutex
	shByAddr    map[string]chainsync.Scripthash // reverse lookup for subscribe notifications keyed by scripthash hex
	pushHandler func(sh chainsync.Scripthash, status chainsync.AddressStatus)

	closeOnce gosync.Once
	closed    chan struct{}
}

// Dial connects to url (e.g. "wss://electrumx.example.com:50004") and
// starts the read loop.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial electrum endpoint %s", url)
	}
	c := &Client{
		conn:     conn,
		log:      log.NewModuleLogger(log.Sync),
		pending:  make(map[uint64]chan rpcMessage),
		shByAddr: make(map[string]chainsync.Scripthash),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// SetPushHandler installs the callback invoked for every unsolicited status
// notification. Must be called once, before Subscribe traffic starts.
func (c *Client) SetPushHandler(h func(sh chainsync.Scripthash, status chainsync.AddressStatus)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.pushHandler = h
}

func (c *Client) readLoop() {
	defer close(c.closed)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Warn("electrum connection read failed, closing", "err", err)
			c.failAllPending(err)
			return
		}
		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("discarding malformed electrum message", "err", err)
			continue
		}
		if msg.ID != nil {
			c.deliver(*msg.ID, msg)
			continue
		}
		if msg.Method == methodSubscribe {
			c.handlePush(msg.Params)
		}
	}
}

func (c *Client) deliver(id uint64, msg rpcMessage) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- rpcMessage{Error: &rpcError{Message: err.Error()}}
		delete(c.pending, id)
	}
}

// handlePush decodes a "[scripthash, status]" notification payload and
// forwards it to the installed push handler.
func (c *Client) handlePush(params json.RawMessage) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) != 2 {
		c.log.Warn("malformed subscribe notification params", "raw", string(params))
		return
	}
	var shHex string
	if err := json.Unmarshal(args[0], &shHex); err != nil {
		c.log.Warn("malformed scripthash in notification", "err", err)
		return
	}
	var statusHex *string
	if err := json.Unmarshal(args[1], &statusHex); err != nil {
		c.log.Warn("malformed status in notification", "err", err)
		return
	}

	c.subMu.Lock()
	sh, known := c.shByAddr[shHex]
	handler := c.pushHandler
	c.subMu.Unlock()
	if !known || handler == nil {
		return
	}
	handler(sh, decodeStatusHex(statusHex))
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan rpcMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := rpcRequest{ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode rpc request")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, errors.Wrap(err, "write rpc request")
	}

	callCtx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-callCtx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, callCtx.Err()
	case <-c.closed:
		return nil, errors.New("electrum connection closed")
	}
}

// SubscribeScripthash implements sync.Interface.
func (c *Client) SubscribeScripthash(ctx context.Context, sh chainsync.Scripthash) (chainsync.AddressStatus, error) {
	shHex := sh.String()
	c.subMu.Lock()
	c.shByAddr[shHex] = sh
	c.subMu.Unlock()

	result, err := c.call(ctx, methodSubscribe, []interface{}{shHex})
	if err != nil {
		if isHistoryTooLargeRPC(err) {
			return nil, chainsync.ErrGracefulDisconnect
		}
		return nil, err
	}
	var statusHex *string
	if err := json.Unmarshal(result, &statusHex); err != nil {
		return nil, errors.Wrap(err, "decode subscribe result")
	}
	return decodeStatusHex(statusHex), nil
}

// GetHistoryForScripthash implements sync.Interface.
func (c *Client) GetHistoryForScripthash(ctx context.Context, sh chainsync.Scripthash) ([]chainsync.HistoryEntry, error) {
	result, err := c.call(ctx, methodGetHistory, []interface{}{sh.String()})
	if err != nil {
		return nil, err
	}
	var rows []historyRow
	if err := json.Unmarshal(result, &rows); err != nil {
		return nil, errors.Wrap(err, "decode history result")
	}
	hist := make([]chainsync.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		if row.TxHash == "*" {
			hist = append(hist, chainsync.HistoryEntry{Height: row.Height, Pruned: true})
			continue
		}
		id, err := decodeTxID(row.TxHash)
		if err != nil {
			return nil, errors.Wrapf(err, "decode txid %q", row.TxHash)
		}
		hist = append(hist, chainsync.HistoryEntry{TxID: id, Height: row.Height, Fee: row.Fee})
	}
	return hist, nil
}

// GetTransaction implements sync.Interface.
func (c *Client) GetTransaction(ctx context.Context, id chainsync.TxID) ([]byte, error) {
	result, err := c.call(ctx, methodGetTx, []interface{}{id.String()})
	if err != nil {
		return nil, err
	}
	var rawHex string
	if err := json.Unmarshal(result, &rawHex); err != nil {
		return nil, errors.Wrap(err, "decode transaction result")
	}
	return decodeHex(rawHex)
}

// Unsubscribe implements sync.Interface: best-effort, then closes the
// connection.
func (c *Client) Unsubscribe(ctx context.Context) error {
	defer c.close()
	_, err := c.call(ctx, methodUnsubscribe, nil)
	return err
}

func (c *Client) close() {
	c.closeOnce.Do(func() { _ = c.conn.Close() })
}

func isHistoryTooLargeRPC(err error) bool {
	rpcErr, ok := err.(*rpcError)
	return ok && rpcErr != nil && len(rpcErr.Message) > 0 &&
		(rpcErr.Code == -32600 || containsHistoryTooLarge(rpcErr.Message))
}

func containsHistoryTooLarge(msg string) bool {
	return strings.Contains(msg, "history too large")
}
