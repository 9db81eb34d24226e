package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatbot/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/webhook"
)

var (
	ErrEmptyMessage         = errors.New("message text is required")
	ErrBusy                 = errors.New("an exchange is already in flight")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSessionNotReady      = errors.New("session id not ready")
)

const (
	DefaultGreeting = "👋 Olá! Estou aqui para te ajudar com qualquer dúvida. Como posso te auxiliar hoje? 😊"
	DefaultFallback = "Desculpe, ocorreu um erro ao processar sua mensagem. Tente novamente."
)

// Identity resolves the session identifier attached to every exchange.
type Identity interface {
	GetOrCreate(ctx context.Context) (string, error)
}

// Exchanger performs one request/reply cycle with the chatbot backend.
type Exchanger interface {
	SendMessage(ctx context.Context, sessionID, text string) (chat.InboundMessage, error)
}

// Config tunes the user-facing copy and the error hook.
type Config struct {
	Greeting string
	Fallback string
	// OnExchangeError receives the real cause of a failed exchange. The user
	// only ever sees Fallback.
	OnExchangeError func(conversationID string, err error)
}

type conversationState struct {
	conversation chat.Conversation
	busy         bool
	lastActive   time.Time
}

// Service owns the transient conversations shown by widget instances.
type Service struct {
	mu            sync.Mutex
	identity      Identity
	exchanger     Exchanger
	cfg           Config
	now           func() time.Time
	conversations map[string]*conversationState
}

// NewService wires the identity manager and exchange client together.
func NewService(identity Identity, exchanger Exchanger, cfg Config) *Service {
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultFallback
	}
	return &Service{
		identity:      identity,
		exchanger:     exchanger,
		cfg:           cfg,
		now:           time.Now,
		conversations: make(map[string]*conversationState),
	}
}

// StartConversation opens a transcript seeded with the greeting. The session id
// is left empty when storage cannot provide one yet.
func (s *Service) StartConversation(ctx context.Context) chat.Conversation {
	sessionID, err := s.identity.GetOrCreate(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session id unavailable, conversation starts without one")
	}

	conversation := chat.Conversation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Messages:  []chat.Message{chat.NewMessage(uuid.NewString(), s.cfg.Greeting, false, s.now())},
	}

	s.mu.Lock()
	s.conversations[conversation.ID] = &conversationState{conversation: conversation, lastActive: s.now()}
	s.mu.Unlock()

	return copyConversation(conversation)
}

// EndConversation drops a transcript.
func (s *Service) EndConversation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return ErrConversationNotFound
	}
	delete(s.conversations, conversationID)
	return nil
}

// SweepIdle drops conversations untouched for longer than ttl as of now.
// Conversations with an exchange in flight are kept. It returns how many
// were dropped.
func (s *Service) SweepIdle(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for id, state := range s.conversations {
		if state.busy || now.Sub(state.lastActive) <= ttl {
			continue
		}
		delete(s.conversations, id)
		dropped++
	}
	return dropped
}

// RunSweeper calls SweepIdle every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepIdle(s.now(), ttl); n > 0 {
				log.Debug().Int("dropped", n).Msg("swept idle conversations")
			}
		}
	}
}

// Transcript returns a copy of the conversation.
func (s *Service) Transcript(_ context.Context, conversationID string) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	state.lastActive = s.now()
	return copyConversation(state.conversation), nil
}

// Send relays text to the backend and returns the message to display. A failed
// exchange is not an error here: the fallback message is returned instead and
// the cause goes to the log and OnExchangeError.
func (s *Service) Send(ctx context.Context, conversationID, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	if err := s.acquire(conversationID); err != nil {
		return chat.Message{}, err
	}
	defer s.release(conversationID)

	sessionID, err := s.identity.GetOrCreate(ctx)
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: %w", ErrSessionNotReady, err)
	}
	if sessionID == "" {
		return chat.Message{}, ErrSessionNotReady
	}

	s.append(conversationID, chat.NewMessage(uuid.NewString(), text, true, s.now()), sessionID)

	reply, err := s.exchanger.SendMessage(ctx, sessionID, text)
	var botText string
	if err != nil {
		log.Error().
			Err(err).
			Str("kind", webhook.Kind(err)).
			Str("conversation_id", conversationID).
			Str("session_id", sessionID).
			Msg("chatbot exchange failed")
		if s.cfg.OnExchangeError != nil {
			s.cfg.OnExchangeError(conversationID, err)
		}
		botText = s.cfg.Fallback
	} else {
		if reply.SessionID != "" && reply.SessionID != sessionID {
			log.Warn().
				Str("session_id", sessionID).
				Str("echoed_session_id", reply.SessionID).
				Msg("chatbot reply echoed a different session id")
		}
		botText = reply.Response
	}

	botMessage := chat.NewMessage(uuid.NewString(), botText, false, s.now())
	s.append(conversationID, botMessage, sessionID)
	return botMessage, nil
}

func (s *Service) acquire(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	if state.busy {
		return ErrBusy
	}
	state.busy = true
	state.lastActive = s.now()
	return nil
}

func (s *Service) release(conversationID string) {
	s.mu.Lock()
	if state, ok := s.conversations[conversationID]; ok {
		state.busy = false
		state.lastActive = s.now()
	}
	s.mu.Unlock()
}

func (s *Service) append(conversationID string, message chat.Message, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.conversations[conversationID]
	if !ok {
		// ended while the exchange was in flight
		return
	}
	if state.conversation.SessionID == "" {
		state.conversation.SessionID = sessionID
	}
	state.conversation.Messages = append(state.conversation.Messages, message)
}

func copyConversation(c chat.Conversation) chat.Conversation {
	messages := make([]chat.Message, len(c.Messages))
	copy(messages, c.Messages)
	c.Messages = messages
	return c
}

