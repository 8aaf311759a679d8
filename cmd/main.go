package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"olament/pkg/api"
	"olament/pkg/chat"
	"olament/pkg/negotiation"
	"olament/pkg/realtime"
	"olament/pkg/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	apiURL := envOr("OLAMENT_API_URL", "http://localhost:4000/api")
	wsURL := envOr("OLAMENT_WS_URL", "ws://localhost:4000/socket")

	tokenPath, err := session.DefaultTokenPath()
	if err != nil {
		log.Fatalw("token path", "error", err)
	}
	store := session.NewTokenStore(tokenPath)

	var sess *session.Session
	client := api.NewClient(apiURL,
		api.WithTokenSource(tokenSourceFunc(func() (string, bool) { return sess.Token() })),
		api.WithUnauthorizedHook(func() {
			sess.Invalidate()
			fmt.Println("session expired, please log in again")
		}),
		api.WithLogger(log),
	)
	sess = session.New(client, store, session.WithLogger(log))

	ctx := context.Background()
	user, err := ensureLogin(ctx, sess)
	if err != nil {
		log.Fatalw("login failed", "error", err)
	}
	fmt.Printf("Signed in as %s\n", user.Name)

	conn := realtime.Dial(wsURL, sess, realtime.WithLogger(log))
	defer conn.Close()

	ui := &cli{
		sess:          sess,
		chats:         chat.NewClient(client),
		engine:        negotiation.NewEngine(client, user.ID, log),
		conn:          conn,
		conversations: chat.NewConversationList(),
		transcript:    chat.NewTranscript(),
		selfID:        user.ID,
	}

	conn.OnStateChange(func(s realtime.State) {
		fmt.Printf("[connection %s]\n", s)
	})
	conn.OnMessage(ui.handleIncoming)
	conn.OnTyping(func(ev realtime.TypingEvent) {
		if ev.IsTyping && ev.ConversationID == ui.activeConversation() {
			fmt.Println("[other participant is typing]")
		}
	})

	ui.run(ctx)
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("OLAMENT_DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type tokenSourceFunc func() (string, bool)

func (f tokenSourceFunc) Token() (string, bool) { return f() }

// ensureLogin restores a persisted session or prompts for credentials. A
// failed bootstrap is an error to retry, never a degraded offline mode.
func ensureLogin(ctx context.Context, sess *session.Session) (session.User, error) {
	u, err := sess.Restore(ctx)
	if err == nil {
		return u, nil
	}
	if errors.Is(err, session.ErrBootstrapFailed) {
		fmt.Println("could not validate stored session:", err)
	}

	reader := bufio.NewReader(os.Stdin)
	for attempts := 0; attempts < 3; attempts++ {
		fmt.Print("email: ")
		email, _ := reader.ReadString('\n')
		fmt.Print("password: ")
		password, _ := reader.ReadString('\n')

		u, err = sess.Login(ctx, strings.TrimSpace(email), strings.TrimSpace(password))
		if err == nil {
			return u, nil
		}
		fmt.Println("login failed:", err)
	}
	return session.User{}, errors.New("too many failed login attempts")
}

type cli struct {
	sess          *session.Session
	chats         *chat.Client
	engine        *negotiation.Engine
	conn          *realtime.Conn
	conversations *chat.ConversationList
	selfID        string

	// mu guards active and transcript, which the realtime dispatch
	// goroutine and the prompt loop both touch.
	mu         sync.Mutex
	active     string
	transcript *chat.Transcript
}

func (c *cli) activeConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *cli) setActive(id string, t *chat.Transcript) {
	c.mu.Lock()
	c.active = id
	c.transcript = t
	c.mu.Unlock()
}

// handleIncoming runs on the realtime dispatch goroutine.
func (c *cli) handleIncoming(m chat.Message) {
	c.mu.Lock()
	active := c.active
	transcript := c.transcript
	c.mu.Unlock()

	c.conversations.ApplyMessage(m, c.selfID, active)
	if m.ConversationID != active {
		return
	}
	if transcript.Merge(m) {
		printMessage(m, c.selfID)
	}
	if m.Offer != nil {
		c.engine.Track(*m.Offer)
	}
}

func (c *cli) run(ctx context.Context) {
	fmt.Println("commands: /chats, /open <id>, /offer <price> [qty], /accept <offerId>, /decline <offerId>, /counter <offerId> <price> [qty], /withdraw <offerId>, /logout, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			c.sendText(line)
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return
		case "/logout":
			c.sess.Logout()
			fmt.Println("logged out")
			return
		case "/chats":
			c.listChats(ctx)
		case "/open":
			if len(fields) < 2 {
				fmt.Println("usage: /open <conversationId>")
				continue
			}
			c.open(ctx, fields[1])
		case "/offer":
			c.offer(ctx, fields[1:])
		case "/accept":
			c.action(ctx, fields[1:], c.engine.Accept)
		case "/decline":
			c.action(ctx, fields[1:], c.engine.Decline)
		case "/withdraw":
			c.action(ctx, fields[1:], c.engine.Withdraw)
		case "/counter":
			c.counter(ctx, fields[1:])
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func (c *cli) listChats(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	convs, err := c.chats.ListConversations(fetchCtx)
	if err != nil {
		fmt.Println("could not load chats:", err)
		return
	}
	for _, conv := range convs {
		c.conversations.Replace(conv)
	}
	for _, conv := range c.conversations.Ordered() {
		line := conv.ID
		if conv.LastMessage != nil {
			line += "  " + conv.LastMessage.Body
		}
		if conv.UnreadCount > 0 {
			line += fmt.Sprintf("  (%d unread)", conv.UnreadCount)
		}
		fmt.Println(line)
	}
}

func (c *cli) open(ctx context.Context, id string) {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	history, err := c.chats.History(fetchCtx, id, 1, 50)
	if err != nil {
		fmt.Println("could not load history:", err)
		return
	}

	transcript := chat.NewTranscript()
	var unreadIDs []string
	for _, m := range history {
		transcript.Merge(m)
		if m.Offer != nil {
			c.engine.Track(*m.Offer)
		}
		if m.SenderID != c.selfID && m.Status != chat.StatusRead {
			unreadIDs = append(unreadIDs, m.ID)
		}
	}
	c.setActive(id, transcript)
	for _, m := range transcript.Messages() {
		printMessage(m, c.selfID)
	}

	if err := c.conn.JoinConversation(id); err != nil {
		fmt.Println("realtime subscription failed:", err)
	}
	c.conversations.MarkViewed(id)
	if len(unreadIDs) > 0 {
		if err := c.conn.EmitMessageRead(id, unreadIDs); err != nil {
			fmt.Println("read receipt not sent:", err)
		}
	}
}

func (c *cli) sendText(body string) {
	c.mu.Lock()
	active := c.active
	transcript := c.transcript
	c.mu.Unlock()
	if active == "" {
		fmt.Println("open a conversation first (/open <id>)")
		return
	}
	m := chat.NewOutgoing(active, c.selfID, body)
	transcript.Merge(m)
	if err := c.conn.SendMessage(active, m, ""); err != nil {
		fmt.Println("not delivered:", err)
	}
}

func (c *cli) offer(ctx context.Context, args []string) {
	active := c.activeConversation()
	if active == "" || len(args) < 1 {
		fmt.Println("usage (inside a conversation): /offer <price-minor-units> [qty]")
		return
	}
	price, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || price <= 0 {
		fmt.Println("price must be a positive integer in minor units")
		return
	}
	qty := 1
	if len(args) > 1 {
		if qty, err = strconv.Atoi(args[1]); err != nil || qty < 1 {
			fmt.Println("quantity must be a positive integer")
			return
		}
	}
	o, err := c.engine.Propose(ctx, active, price, qty)
	if err != nil {
		fmt.Println("offer failed:", err)
		return
	}
	fmt.Printf("offer %s proposed: %d x%d\n", o.ID, o.Price, o.Quantity)
}

func (c *cli) action(ctx context.Context, args []string, fn func(context.Context, string) (negotiation.Offer, error)) {
	if len(args) < 1 {
		fmt.Println("usage: /<action> <offerId>")
		return
	}
	o, err := fn(ctx, args[0])
	if err != nil {
		fmt.Println("action failed:", err)
		return
	}
	fmt.Printf("offer %s is now %s\n", o.ID, o.Status)
}

func (c *cli) counter(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: /counter <offerId> <price-minor-units> [qty]")
		return
	}
	price, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Println("price must be an integer in minor units")
		return
	}
	in := negotiation.CounterInput{Price: price}
	if len(args) > 2 {
		if in.Quantity, err = strconv.Atoi(args[2]); err != nil {
			fmt.Println("quantity must be an integer")
			return
		}
	}
	child, err := c.engine.Counter(ctx, args[0], in)
	if err != nil {
		fmt.Println("counter failed:", err)
		return
	}
	fmt.Printf("counter-offer %s proposed: %d x%d (parent %s)\n", child.ID, child.Price, child.Quantity, child.ParentID)
}

func printMessage(m chat.Message, selfID string) {
	who := m.SenderName
	if who == "" {
		who = m.SenderID
	}
	if m.SenderID == selfID {
		who = "me"
	}
	ts := m.Timestamp.Local().Format("15:04")
	switch {
	case m.Offer != nil:
		fmt.Printf("[%s] %s offered %d x%d (%s, offer %s)\n", ts, who, m.Offer.Price, m.Offer.Quantity, m.Offer.Status, m.Offer.ID)
	default:
		fmt.Printf("[%s] %s: %s (%s)\n", ts, who, m.Body, m.Status)
	}
}
