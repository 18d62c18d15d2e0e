package chatbot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/shiplog/vesseltrack/internal/broker/messages"
	"github.com/shiplog/vesseltrack/internal/dateparse"
	"github.com/shiplog/vesseltrack/internal/models"
)

// ErrNoActiveRequest: колбэк пришёл, а PENDING-запроса под этим ключом нет.
// Отдаём вызывающему как not found, автоматических ретраев не делаем.
var ErrNoActiveRequest = errors.New("no active chat request")

type Repository interface {
	GetChatRequest(ctx context.Context, conversationID, vesselName string, voyageCode *string) (*models.ChatEtaRequest, error)
	MarkChatAsked(ctx context.Context, conversationID, vesselName string, voyageCode *string, askedAt time.Time) error
	IncrementChatAttempts(ctx context.Context, conversationID, vesselName string, voyageCode *string) (int32, bool, error)
	GetChatAttempts(ctx context.Context, conversationID, vesselName string, voyageCode *string) (int32, bool, error)
	AppendChatTranscript(ctx context.Context, conversationID, vesselName string, voyageCode *string, msg models.ChatMessage) error
	ResolveChatRequest(ctx context.Context, conversationID, vesselName string, voyageCode *string, status string, eta *time.Time) (bool, error)
}

// Service — медленный фолбэк для терминалов без автоматизируемого лукапа:
// спрашиваем оператора в чате, но не чаще одного раза за окно.
type Service struct {
	repo   Repository
	window time.Duration
	now    func() time.Time
}

func New(repo Repository, window time.Duration) *Service {
	if window <= 0 {
		window = 3 * time.Hour
	}
	return &Service{
		repo:   repo,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) withNow(now func() time.Time) *Service {
	s.now = now
	return s
}

type AskDecision struct {
	Ask       bool       `json:"ask"`
	CachedEta *time.Time `json:"cachedEta,omitempty"`
	AgeHours  float64    `json:"ageHours,omitempty"`
}

// ShouldAskNew решает, спрашивать ли оператора снова. Спрашиваем если:
// ни разу не спрашивали, ИЛИ кэшированной ETA нет, ИЛИ окно с последнего
// вопроса истекло. Иначе отдаём кэш с его возрастом в часах.
func (s *Service) ShouldAskNew(ctx context.Context, conversationID, vesselName string, voyageCode *string) (AskDecision, error) {
	r, err := s.repo.GetChatRequest(ctx, conversationID, vesselName, voyageCode)
	if err != nil {
		return AskDecision{}, err
	}

	now := s.now()
	if r == nil || r.LastAskedAt == nil {
		return AskDecision{Ask: true}, nil
	}
	if r.LastKnownEta == nil {
		return AskDecision{Ask: true}, nil
	}
	if now.Sub(*r.LastAskedAt) >= s.window {
		return AskDecision{Ask: true}, nil
	}

	return AskDecision{
		CachedEta: r.LastKnownEta,
		AgeHours:  now.Sub(*r.LastAskedAt).Hours(),
	}, nil
}

// StartRequest переводит запрос в PENDING и пишет вопрос в переписку.
func (s *Service) StartRequest(ctx context.Context, conversationID, vesselName string, voyageCode *string, question string) error {
	now := s.now()
	if err := s.repo.MarkChatAsked(ctx, conversationID, vesselName, voyageCode, now); err != nil {
		return err
	}
	return s.repo.AppendChatTranscript(ctx, conversationID, vesselName, voyageCode, models.ChatMessage{
		Sender:  "bot",
		Message: question,
		SentAt:  now,
	})
}

func (s *Service) IncrementAttempts(ctx context.Context, conversationID, vesselName string, voyageCode *string) (int32, bool, error) {
	return s.repo.IncrementChatAttempts(ctx, conversationID, vesselName, voyageCode)
}

func (s *Service) GetAttempts(ctx context.Context, conversationID, vesselName string, voyageCode *string) (int32, bool, error) {
	return s.repo.GetChatAttempts(ctx, conversationID, vesselName, voyageCode)
}

func (s *Service) AppendMessage(ctx context.Context, conversationID, vesselName string, voyageCode *string, sender, message string) error {
	return s.repo.AppendChatTranscript(ctx, conversationID, vesselName, voyageCode, models.ChatMessage{
		Sender:  sender,
		Message: message,
		SentAt:  s.now(),
	})
}

// ReceiveResult применяет ответ из внешнего чат-воркфлоу.
// При COMPLETE кэшируем ETA, переписка чистится на стороне стораджа.
func (s *Service) ReceiveResult(ctx context.Context, reply messages.ChatReply) error {
	st := strings.ToUpper(strings.TrimSpace(reply.Status))
	if st != models.ChatStatusComplete && st != models.ChatStatusFailed {
		return errors.Errorf("unexpected chat reply status %q", reply.Status)
	}

	var voyage *string
	if reply.VoyageCode != "" {
		voyage = &reply.VoyageCode
	}

	if reply.Message != "" {
		if err := s.AppendMessage(ctx, reply.ConversationID, reply.VesselName, voyage, "operator", reply.Message); err != nil {
			return err
		}
	}

	var eta *time.Time
	if reply.Eta != "" {
		if parsed, ok := dateparse.Parse(reply.Eta); ok {
			eta = &parsed
		} else {
			slog.Warn("unparseable eta in chat reply",
				"conversation_id", reply.ConversationID, "vessel", reply.VesselName, "eta", reply.Eta)
		}
	}

	ok, err := s.repo.ResolveChatRequest(ctx, reply.ConversationID, reply.VesselName, voyage, st, eta)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoActiveRequest
	}
	return nil
}
