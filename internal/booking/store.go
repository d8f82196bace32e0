package booking

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
	"github.com/hilthontt/bookingsync/internal/infrastructure/metrics"
	"github.com/hilthontt/bookingsync/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/bookingsync/internal/infrastructure/repository"
	"github.com/hilthontt/bookingsync/internal/infrastructure/ws"
)

// Transport is the socket side of the store. *realtime.ConnectionManager
// satisfies it.
type Transport interface {
	Connected() bool
	Emit(ctx context.Context, typ string, data any) error
	Request(ctx context.Context, typ string, data any, out any) error
}

// Fallback is the REST side of the store. *rest.Client satisfies it.
type Fallback interface {
	FetchMessages(ctx context.Context, bookingID string) ([]domain.Message, error)
	PostMessage(ctx context.Context, bookingID, content string, typ domain.MessageType) (*domain.Message, error)
	MarkRead(ctx context.Context, bookingID, messageID string) error
	UploadImage(ctx context.Context, bookingID, filename string, r io.Reader) (string, error)
}

type StoreOptions struct {
	Capacity       uint
	SendLimiter    ratelimiter.Limiter
	TypingInterval time.Duration
	SelfID         string
	Role           domain.Role
	Metrics        *metrics.Metrics
}

// MessageStore holds the message list and typing state of the active booking.
// Every write re-checks the booking id so results that arrive after a switch
// are dropped.
type MessageStore struct {
	transport Transport
	fallback  Fallback
	limiter   ratelimiter.Limiter
	self      domain.Participant
	metrics   *metrics.Metrics
	logger    logging.Logger

	mu         sync.RWMutex
	bookingID  string
	log        *repository.MessageLog
	peerTyping bool
	typing     *rate.Limiter
	typingSent bool
	interval   time.Duration
	listeners  []func()
}

func NewMessageStore(transport Transport, fallback Fallback, opts StoreOptions, logger logging.Logger) *MessageStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.TypingInterval <= 0 {
		opts.TypingInterval = 2 * time.Second
	}
	return &MessageStore{
		transport: transport,
		fallback:  fallback,
		limiter:   opts.SendLimiter,
		self:      *domain.NewParticipant(opts.SelfID, opts.Role),
		metrics:   opts.Metrics,
		logger:    logger,
		log:       repository.NewMessageLog(opts.Capacity),
		interval:  opts.TypingInterval,
		typing:    rate.NewLimiter(rate.Every(opts.TypingInterval), 1),
	}
}

func (s *MessageStore) BookingID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookingID
}

// SwitchBooking makes bookingID the active booking and clears everything
// held for the previous one.
func (s *MessageStore) SwitchBooking(bookingID string) {
	s.mu.Lock()
	s.bookingID = bookingID
	s.log.Reset()
	s.peerTyping = false
	s.typingSent = false
	s.typing = rate.NewLimiter(rate.Every(s.interval), 1)
	s.mu.Unlock()

	s.notify()
}

// Reset clears the message list and typing state, keeping the booking.
func (s *MessageStore) Reset() {
	s.mu.Lock()
	s.log.Reset()
	s.peerTyping = false
	s.mu.Unlock()

	s.notify()
}

// Append stores msg if it belongs to the active booking and its id is new.
func (s *MessageStore) Append(msg domain.Message) bool {
	s.mu.Lock()
	if msg.BookingID == "" {
		msg.BookingID = s.bookingID
	}
	if s.bookingID == "" || msg.BookingID != s.bookingID {
		s.mu.Unlock()
		return false
	}
	added := s.log.Append(msg)
	s.mu.Unlock()

	if added {
		s.notify()
	}
	return added
}

func (s *MessageStore) MarkRead(bookingID, messageID string) bool {
	s.mu.Lock()
	if bookingID != s.bookingID {
		s.mu.Unlock()
		return false
	}
	changed := s.log.MarkRead(messageID)
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return changed
}

func (s *MessageStore) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.All()
}

// UnreadCount counts unread messages not sent by the local participant.
func (s *MessageStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.CountUnread(s.self.ID)
}

// Self is the local participant. Its Counterpart is the peer whose typing
// state PeerTyping reports.
func (s *MessageStore) Self() domain.Participant {
	return s.self
}

func (s *MessageStore) PeerTyping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerTyping
}

// OnChange registers fn to run after every visible change.
func (s *MessageStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// HandleNewMessage, HandleMessageRead and HandleTyping are the event sinks
// wired to the dispatcher by the session.
func (s *MessageStore) HandleNewMessage(ev domain.NewMessageEvent) {
	msg := ev.Message
	if msg.BookingID == "" {
		msg.BookingID = ev.BookingID
	}
	s.Append(msg)
}

func (s *MessageStore) HandleMessageRead(ev domain.MessageReadEvent) {
	s.MarkRead(ev.BookingID, ev.MessageID)
}

func (s *MessageStore) HandleTyping(ev domain.TypingEvent) {
	if s.self.ID != "" && ev.UserID == s.self.ID {
		return
	}

	s.mu.Lock()
	if ev.BookingID != s.bookingID || s.peerTyping == ev.IsTyping {
		s.mu.Unlock()
		return
	}
	s.peerTyping = ev.IsTyping
	s.mu.Unlock()

	s.notify()
}

// Load appends the server history of the active booking in order, skipping
// ids already held. It stops early if the booking changes meanwhile.
func (s *MessageStore) Load(ctx context.Context) error {
	bookingID := s.BookingID()
	if bookingID == "" {
		return apperr.Wrap(apperr.Validation, domain.ErrMissingBookingID, "")
	}

	history, err := s.fallback.FetchMessages(ctx, bookingID)
	if err != nil {
		return err
	}
	for _, msg := range history {
		if msg.BookingID == "" {
			msg.BookingID = bookingID
		}
		if !s.Append(msg) && s.BookingID() != bookingID {
			return nil
		}
	}
	return nil
}

// Send delivers content and waits for the server to confirm it. The socket is
// used when connected, REST otherwise. On failure nothing is appended and the
// draft stays with the caller.
func (s *MessageStore) Send(ctx context.Context, content string, typ domain.MessageType) (*domain.Message, error) {
	bookingID := s.BookingID()
	draft, err := domain.NewMessage(bookingID, content, typ)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, err.Error())
	}
	if err := s.allow(bookingID); err != nil {
		return nil, err
	}

	msg, echoed, err := s.deliver(ctx, draft)
	if err != nil {
		s.logger.Warn(logging.Chat, logging.Send, "send failed", map[logging.ExtraKey]any{
			logging.BookingID:    bookingID,
			logging.ErrorKind:    string(apperr.KindOf(err)),
			logging.ErrorMessage: err.Error(),
		})
		return nil, apperr.Classify(err)
	}

	if echoed && !s.Append(*msg) && s.BookingID() != bookingID {
		s.logger.Debug(logging.Chat, logging.Send, "send confirmed after booking switch", map[logging.ExtraKey]any{
			logging.BookingID: bookingID,
			logging.ActiveID:  s.BookingID(),
		})
	}
	return msg, nil
}

// SendAsync is the fire-and-forget variant. Only validation errors are
// returned; rate limiting and delivery failures are logged.
func (s *MessageStore) SendAsync(ctx context.Context, content string, typ domain.MessageType) error {
	bookingID := s.BookingID()
	if _, err := domain.NewMessage(bookingID, content, typ); err != nil {
		return apperr.Wrap(apperr.Validation, err, err.Error())
	}

	go func() {
		ctx := context.WithoutCancel(ctx)
		if _, err := s.Send(ctx, content, typ); err != nil {
			s.logger.Error(logging.Chat, logging.Send, "background send failed", map[logging.ExtraKey]any{
				logging.BookingID:    bookingID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}()
	return nil
}

// SendImage uploads r and sends the hosted URL as an image message.
func (s *MessageStore) SendImage(ctx context.Context, filename string, r io.Reader) (*domain.Message, error) {
	bookingID := s.BookingID()
	if bookingID == "" {
		return nil, apperr.Wrap(apperr.Validation, domain.ErrMissingBookingID, "")
	}

	url, err := s.fallback.UploadImage(ctx, bookingID, filename, r)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if s.BookingID() != bookingID {
		return nil, apperr.Wrap(apperr.Validation, errors.New("booking changed during upload"), "")
	}
	return s.Send(ctx, url, domain.MessageImage)
}

// SendReadReceipt marks messageID read locally and tells the server. Delivery
// failures are logged, not returned.
func (s *MessageStore) SendReadReceipt(ctx context.Context, messageID string) {
	bookingID := s.BookingID()
	if bookingID == "" || messageID == "" {
		return
	}
	s.MarkRead(bookingID, messageID)

	var err error
	if s.transport.Connected() {
		err = s.transport.Emit(ctx, ws.MarkRead, ws.MarkReadPayload{BookingID: bookingID, MessageID: messageID})
	} else {
		err = s.fallback.MarkRead(ctx, bookingID, messageID)
	}
	if err != nil {
		s.logger.Warn(logging.Chat, logging.ReadState, "read receipt not delivered", map[logging.ExtraKey]any{
			logging.BookingID:    bookingID,
			logging.MessageID:    messageID,
			logging.ErrorMessage: err.Error(),
		})
	}
}

// SetTyping announces the local typing state. Starts are throttled to one
// per typing interval; a stop is always sent if a start went out.
func (s *MessageStore) SetTyping(ctx context.Context, isTyping bool) {
	s.mu.Lock()
	bookingID := s.bookingID
	if bookingID == "" {
		s.mu.Unlock()
		return
	}
	if isTyping {
		if !s.typing.Allow() {
			s.mu.Unlock()
			return
		}
		s.typingSent = true
	} else {
		if !s.typingSent {
			s.mu.Unlock()
			return
		}
		s.typingSent = false
	}
	s.mu.Unlock()

	if !s.transport.Connected() {
		return
	}
	err := s.transport.Emit(ctx, ws.SetTyping, ws.TypingPayload{BookingID: bookingID, IsTyping: isTyping})
	if err != nil {
		s.logger.Debug(logging.Chat, logging.Typing, "typing not sent", map[logging.ExtraKey]any{
			logging.BookingID:    bookingID,
			logging.ErrorMessage: err.Error(),
		})
	}
}

// deliver reports echoed=false when the server confirmed without returning
// the stored message; the new-message event then carries it.
func (s *MessageStore) deliver(ctx context.Context, draft *domain.Message) (msg *domain.Message, echoed bool, err error) {
	if !s.transport.Connected() {
		msg, err = s.fallback.PostMessage(ctx, draft.BookingID, draft.Content, draft.Type)
		s.metrics.ObserveSend("rest", err)
		if err != nil {
			return nil, false, err
		}
		return msg, true, nil
	}

	var ack domain.Message
	payload := ws.SendMessagePayload{BookingID: draft.BookingID, Content: draft.Content, Type: string(draft.Type)}
	err = s.transport.Request(ctx, ws.SendMessage, payload, &ack)
	s.metrics.ObserveSend("socket", err)
	if err != nil {
		return nil, false, err
	}
	if ack.Content == "" && !ack.HasID() {
		return draft, false, nil
	}
	if ack.BookingID == "" {
		ack.BookingID = draft.BookingID
	}
	return &ack, true, nil
}

func (s *MessageStore) allow(bookingID string) error {
	if s.limiter == nil {
		return nil
	}
	if ok, retryAfter := s.limiter.Allow(bookingID); !ok {
		return apperr.NewRateLimited(retryAfter)
	}
	return nil
}

func (s *MessageStore) notify() {
	s.mu.RLock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
