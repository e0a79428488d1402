package main

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	sagecrypto "github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/engine"
	"github.com/e2ee-core/relay/envelope"
	"github.com/e2ee-core/relay/kep"
	"github.com/e2ee-core/relay/session"
)

var (
	chatRelayURL string
	chatToken    string
	chatIdentity string
	chatSelfID   string
	chatPeerID   string
	chatInitiate bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open a session with a peer through a relay and exchange messages",
	Long: `chat uploads this identity's public key, fetches the peer's, performs
the KEP handshake over a WebSocket connection to a relay, and then reads
lines from stdin to send as encrypted messages while printing whatever it
receives back.

One side must pass --initiate; the other waits for the incoming
KEP_INIT and responds automatically.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatRelayURL, "relay", "http://127.0.0.1:8443", "relay base URL (REST); the WebSocket endpoint is derived from it")
	chatCmd.Flags().StringVar(&chatToken, "token", "", "bearer token the relay's authenticator accepts")
	chatCmd.Flags().StringVar(&chatIdentity, "identity", "identity.pem", "path to this identity's PEM key file (created if missing)")
	chatCmd.Flags().StringVar(&chatSelfID, "self", "", "this user's id (must match the bearer token's subject)")
	chatCmd.Flags().StringVar(&chatPeerID, "peer", "", "the peer's user id")
	chatCmd.Flags().BoolVar(&chatInitiate, "initiate", false, "start the handshake instead of waiting for the peer to")
	_ = chatCmd.MarkFlagRequired("token")
	_ = chatCmd.MarkFlagRequired("self")
	_ = chatCmd.MarkFlagRequired("peer")
}

// client bundles everything one chat session needs across the handshake
// and the send/receive loops: the websocket connection (write-guarded by
// mu, since the handshake responder path and the stdin-reading goroutine
// both push frames), the in-process session store, and whichever half of
// the handshake this side is running.
type client struct {
	ws *websocket.Conn
	mu sync.Mutex

	rest     *relayClient
	identity sagecrypto.SignerKeyPair
	selfID   string
	peerID   string

	store     session.Store
	sessionID string

	initiator *kep.Initiator
	ready     chan struct{}
	readyOnce sync.Once
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	identity, err := loadOrCreateIdentity(chatIdentity)
	if err != nil {
		return err
	}
	rest := newRelayClient(chatRelayURL, chatToken)

	pub, err := publicJWK(identity)
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}
	if err := rest.UploadKey(ctx, chatSelfID, pub); err != nil {
		log.Printf("warning: upload-key failed (continuing, it may already be uploaded): %v", err)
	}
	if err := rest.CreateSession(ctx, chatSelfID, chatPeerID); err != nil {
		log.Printf("warning: create-session failed (continuing): %v", err)
	}

	ws, err := dialRelay(chatRelayURL, chatToken)
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}
	defer ws.Close()

	c := &client{
		ws:        ws,
		rest:      rest,
		identity:  identity,
		selfID:    chatSelfID,
		peerID:    chatPeerID,
		store:     session.NewInMemoryStore(),
		sessionID: kep.SessionID(chatSelfID, chatPeerID),
		ready:     make(chan struct{}),
	}

	go c.readLoop(ctx)

	if chatInitiate {
		peerPub, err := rest.GetKey(ctx, chatPeerID)
		if err != nil {
			return fmt.Errorf("fetch peer key: %w", err)
		}
		if err := c.startHandshake(ctx, peerPub); err != nil {
			return fmt.Errorf("start handshake: %w", err)
		}
	} else {
		fmt.Println("waiting for peer to initiate the handshake...")
	}

	select {
	case <-c.ready:
		fmt.Println("session established, type a message and press enter to send (Ctrl-D to quit)")
	case <-time.After(60 * time.Second):
		return fmt.Errorf("timed out waiting for the handshake to complete")
	}

	sendErr := c.sendLoop(ctx)
	log.Printf("local session store: %d session(s) live before teardown", c.store.Stats().TotalSessions)
	if removed, err := c.store.DeleteForUser(c.selfID); err != nil {
		log.Printf("local session teardown: %v", err)
	} else if removed > 0 {
		log.Printf("zeroized %d local session(s) on exit", removed)
	}
	return sendErr
}

// publicJWK extracts identity's ECDSA public key and encodes it as the
// canonical JWK §3 requires for upload and signature verification.
func publicJWK(identity sagecrypto.SignerKeyPair) (sagecrypto.JWK, error) {
	pub, ok := identity.PublicKey().(*ecdsa.PublicKey)
	if !ok {
		return sagecrypto.JWK{}, fmt.Errorf("identity: unexpected public key type %T", identity.PublicKey())
	}
	return sagecrypto.PublicJWKFromECDSA(pub)
}

// dialRelay derives the relay's WebSocket endpoint from its REST base URL
// (http(s):// -> ws(s)://, path /ws) and upgrades with the same bearer
// token used for REST calls.
func dialRelay(baseURL, token string) (*websocket.Conn, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	header := make(map[string][]string)
	header["Authorization"] = []string{"Bearer " + token}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	return ws, err
}

func (c *client) send(env *envelope.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(env)
}

func (c *client) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// startHandshake runs the initiator half: produce and send KEP_INIT, then
// return immediately — HandleResponse runs from readLoop once the
// KEP_RESPONSE arrives.
func (c *client) startHandshake(ctx context.Context, peerPub sagecrypto.JWK) error {
	c.initiator = kep.NewInitiator(c.identity, c.selfID, c.peerID, peerPub)
	init, err := c.initiator.Start(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(init)
	if err != nil {
		return err
	}
	return c.send(&envelope.Envelope{
		Type:     envelope.TypeKEPInit,
		Sender:   c.selfID,
		Receiver: c.peerID,
		Meta:     payload,
	})
}

// readLoop pumps every inbound frame off the websocket: KEP_INIT/
// KEP_RESPONSE drive the handshake, everything else goes through the
// message engine once a session exists.
func (c *client) readLoop(ctx context.Context) {
	for {
		var env envelope.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			log.Printf("connection closed: %v", err)
			return
		}
		switch env.Type {
		case envelope.TypeKEPInit:
			c.handleInboundInit(ctx, &env)
		case envelope.TypeKEPResp:
			c.handleInboundResponse(ctx, &env)
		case envelope.TypeMSG:
			c.handleInboundMessage(&env)
		case envelope.TypeFileMeta, envelope.TypeFileChunk:
			fmt.Printf("[file transfer %s from %s, not rendered here]\n", env.Type, env.Sender)
		case envelope.TypeKeyUpdate:
			fmt.Println("[peer rotated keys; re-run the handshake to continue]")
		}
	}
}

func (c *client) handleInboundInit(ctx context.Context, env *envelope.Envelope) {
	var init envelope.KEPInit
	if err := json.Unmarshal(env.Meta, &init); err != nil {
		log.Printf("malformed KEP_INIT: %v", err)
		return
	}
	initiatorPub, err := c.rest.GetKey(ctx, init.From)
	if err != nil {
		log.Printf("fetch initiator key for %s: %v", init.From, err)
		return
	}
	resp, result, err := kep.HandleInit(ctx, c.identity, c.selfID, &init, initiatorPub)
	if err != nil {
		log.Printf("handshake rejected: %v", err)
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		log.Printf("encode KEP_RESPONSE: %v", err)
		return
	}
	if err := c.send(&envelope.Envelope{
		Type:     envelope.TypeKEPResp,
		Sender:   c.selfID,
		Receiver: init.From,
		Meta:     payload,
	}); err != nil {
		log.Printf("send KEP_RESPONSE: %v", err)
		return
	}
	c.installSession(result)
}

func (c *client) handleInboundResponse(ctx context.Context, env *envelope.Envelope) {
	if c.initiator == nil {
		log.Printf("received KEP_RESPONSE with no handshake in progress")
		return
	}
	var resp envelope.KEPResponse
	if err := json.Unmarshal(env.Meta, &resp); err != nil {
		log.Printf("malformed KEP_RESPONSE: %v", err)
		return
	}
	result, err := c.initiator.HandleResponse(ctx, &resp)
	if err != nil {
		log.Printf("handshake failed: %v", err)
		return
	}
	c.installSession(result)
}

func (c *client) installSession(result *kep.Result) {
	sess := session.New(result.SessionID, result.SelfID, result.PeerID, result.RootKey, result.SendKey, result.RecvKey)
	if _, _, err := c.store.Create(sess); err != nil {
		log.Printf("install session: %v", err)
		return
	}
	result.Zeroize()
	c.markReady()
}

func (c *client) handleInboundMessage(env *envelope.Envelope) {
	plaintext, err := engine.Receive(c.store, env)
	if err != nil {
		log.Printf("dropping unreadable message from %s: %v", env.Sender, err)
		return
	}
	fmt.Printf("%s: %s\n", env.Sender, string(plaintext))
}

// sendLoop reads stdin line by line and pushes each line as an encrypted
// MSG envelope until stdin closes.
func (c *client) sendLoop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		env, err := engine.Send(c.store, c.sessionID, []byte(line))
		if err != nil {
			log.Printf("encrypt message: %v", err)
			continue
		}
		if err := c.send(env); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return scanner.Err()
}
