package pgeta

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/shiplog/vesseltrack/internal/models"
)

const chatColumns = `
  id, conversation_id, vessel_name, voyage_code, status,
  last_known_eta, last_asked_at, attempts, transcript,
  created_at, updated_at`

func scanChatRequest(row pgx.Row) (*models.ChatEtaRequest, error) {
	var r models.ChatEtaRequest
	var voyage string
	var transcript []byte
	err := row.Scan(
		&r.ID, &r.ConversationID, &r.VesselName, &voyage, &r.Status,
		&r.LastKnownEta, &r.LastAskedAt, &r.Attempts, &transcript,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.VoyageCode = voyagePtr(voyage)
	if len(transcript) > 0 {
		_ = json.Unmarshal(transcript, &r.Transcript)
	}
	return &r, nil
}

func (s *Storage) GetChatRequest(ctx context.Context, conversationID, vesselName string, voyageCode *string) (*models.ChatEtaRequest, error) {
	r, err := scanChatRequest(s.db.QueryRow(ctx, `
SELECT`+chatColumns+`
FROM chat_eta_requests
WHERE conversation_id = $1 AND vessel_name = $2 AND voyage_code = $3
`, conversationID, vesselName, voyageKey(voyageCode)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select chat request")
	}
	return r, nil
}

// MarkChatAsked переводит запрос в PENDING и фиксирует время вопроса.
// Создаёт запись при первом обращении к паре (судно, рейс) в этом разговоре.
func (s *Storage) MarkChatAsked(ctx context.Context, conversationID, vesselName string, voyageCode *string, askedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO chat_eta_requests (
  conversation_id, vessel_name, voyage_code, status, last_asked_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$5,$5)
ON CONFLICT (conversation_id, vessel_name, voyage_code)
DO UPDATE SET
  status = EXCLUDED.status,
  last_asked_at = EXCLUDED.last_asked_at,
  updated_at = now()
`, conversationID, vesselName, voyageKey(voyageCode), models.ChatStatusPending, askedAt.UTC())
	return errors.Wrap(err, "mark chat asked")
}

// IncrementChatAttempts — атомарный инкремент, никаких read-modify-write на
// стороне приложения: конкурентные фолоу-апы не должны терять апдейты.
func (s *Storage) IncrementChatAttempts(ctx context.Context, conversationID, vesselName string, voyageCode *string) (int32, bool, error) {
	var attempts int32
	err := s.db.QueryRow(ctx, `
UPDATE chat_eta_requests
SET attempts = attempts + 1, updated_at = now()
WHERE conversation_id = $1 AND vessel_name = $2 AND voyage_code = $3
RETURNING attempts
`, conversationID, vesselName, voyageKey(voyageCode)).Scan(&attempts)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "increment chat attempts")
	}
	return attempts, true, nil
}

func (s *Storage) GetChatAttempts(ctx context.Context, conversationID, vesselName string, voyageCode *string) (int32, bool, error) {
	var attempts int32
	err := s.db.QueryRow(ctx, `
SELECT attempts FROM chat_eta_requests
WHERE conversation_id = $1 AND vessel_name = $2 AND voyage_code = $3
`, conversationID, vesselName, voyageKey(voyageCode)).Scan(&attempts)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "select chat attempts")
	}
	return attempts, true, nil
}

// AppendChatTranscript дописывает сообщение в конец; существующие записи
// никогда не переписываются.
func (s *Storage) AppendChatTranscript(ctx context.Context, conversationID, vesselName string, voyageCode *string, msg models.ChatMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal chat message")
	}
	_, err = s.db.Exec(ctx, `
UPDATE chat_eta_requests
SET transcript = transcript || $4::jsonb, updated_at = now()
WHERE conversation_id = $1 AND vessel_name = $2 AND voyage_code = $3
`, conversationID, vesselName, voyageKey(voyageCode), string(b))
	return errors.Wrap(err, "append chat transcript")
}

// ResolveChatRequest закрывает PENDING-запрос. При COMPLETE кэшируем ETA и
// чистим переписку — дальше важна только дата. Возвращает false, если
// активного запроса под этим ключом нет.
func (s *Storage) ResolveChatRequest(ctx context.Context, conversationID, vesselName string, voyageCode *string, status string, eta *time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE chat_eta_requests
SET
  status = $4,
  last_known_eta = COALESCE($5, last_known_eta),
  transcript = CASE WHEN $4 = 'COMPLETE' THEN '[]'::jsonb ELSE transcript END,
  updated_at = now()
WHERE conversation_id = $1 AND vessel_name = $2 AND voyage_code = $3
  AND status = 'PENDING'
`, conversationID, vesselName, voyageKey(voyageCode), status, eta)
	if err != nil {
		return false, errors.Wrap(err, "resolve chat request")
	}
	return tag.RowsAffected() > 0, nil
}
