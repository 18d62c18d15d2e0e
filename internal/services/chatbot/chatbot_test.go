package chatbot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shiplog/vesseltrack/internal/broker/messages"
	"github.com/shiplog/vesseltrack/internal/models"
)

type fakeRepo struct {
	req        *models.ChatEtaRequest
	asked      []time.Time
	attempts   int32
	hasRecord  bool
	transcript []models.ChatMessage
	resolved   []string
	resolvedOK bool
}

func (r *fakeRepo) GetChatRequest(ctx context.Context, conversationID, vesselName string, voyageCode *string) (*models.ChatEtaRequest, error) {
	return r.req, nil
}

func (r *fakeRepo) MarkChatAsked(ctx context.Context, conversationID, vesselName string, voyageCode *string, askedAt time.Time) error {
	r.asked = append(r.asked, askedAt)
	return nil
}

func (r *fakeRepo) IncrementChatAttempts(ctx context.Context, conversationID, vesselName string, voyageCode *string) (int32, bool, error) {
	if !r.hasRecord {
		return 0, false, nil
	}
	r.attempts++
	return r.attempts, true, nil
}

func (r *fakeRepo) GetChatAttempts(ctx context.Context, conversationID, vesselName string, voyageCode *string) (int32, bool, error) {
	return r.attempts, r.hasRecord, nil
}

func (r *fakeRepo) AppendChatTranscript(ctx context.Context, conversationID, vesselName string, voyageCode *string, msg models.ChatMessage) error {
	r.transcript = append(r.transcript, msg)
	return nil
}

func (r *fakeRepo) ResolveChatRequest(ctx context.Context, conversationID, vesselName string, voyageCode *string, status string, eta *time.Time) (bool, error) {
	r.resolved = append(r.resolved, status)
	return r.resolvedOK, nil
}

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }

func newTestService(r *fakeRepo) *Service {
	return New(r, 3*time.Hour).withNow(func() time.Time { return testNow })
}

func TestShouldAskNew_NeverAsked(t *testing.T) {
	s := newTestService(&fakeRepo{req: nil})
	d, err := s.ShouldAskNew(context.Background(), "conv-1", "ATLANTIC STAR", strPtr("112S"))
	require.NoError(t, err)
	require.True(t, d.Ask)
}

func TestShouldAskNew_ReadyRecordNeverAsked(t *testing.T) {
	// Запись есть (создана вне бота, статус по умолчанию), но вопрос ещё
	// не задавали.
	s := newTestService(&fakeRepo{req: &models.ChatEtaRequest{
		Status: models.ChatStatusReady,
	}})
	d, err := s.ShouldAskNew(context.Background(), "conv-1", "ATLANTIC STAR", strPtr("112S"))
	require.NoError(t, err)
	require.True(t, d.Ask)
}

func TestShouldAskNew_NoCachedEta(t *testing.T) {
	// ETA пустая — переспрашиваем независимо от прошедшего времени.
	s := newTestService(&fakeRepo{req: &models.ChatEtaRequest{
		Status:      models.ChatStatusPending,
		LastAskedAt: timePtr(testNow.Add(-10 * time.Minute)),
	}})
	d, err := s.ShouldAskNew(context.Background(), "conv-1", "ATLANTIC STAR", strPtr("112S"))
	require.NoError(t, err)
	require.True(t, d.Ask)
}

func TestShouldAskNew_WindowLapsed(t *testing.T) {
	s := newTestService(&fakeRepo{req: &models.ChatEtaRequest{
		Status:       models.ChatStatusComplete,
		LastKnownEta: timePtr(time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)),
		LastAskedAt:  timePtr(testNow.Add(-4 * time.Hour)),
	}})
	d, err := s.ShouldAskNew(context.Background(), "conv-1", "ATLANTIC STAR", strPtr("112S"))
	require.NoError(t, err)
	require.True(t, d.Ask)
}

func TestShouldAskNew_FreshCacheReturned(t *testing.T) {
	eta := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	s := newTestService(&fakeRepo{req: &models.ChatEtaRequest{
		Status:       models.ChatStatusComplete,
		LastKnownEta: timePtr(eta),
		LastAskedAt:  timePtr(testNow.Add(-2 * time.Hour)),
	}})
	d, err := s.ShouldAskNew(context.Background(), "conv-1", "ATLANTIC STAR", strPtr("112S"))
	require.NoError(t, err)
	require.False(t, d.Ask)
	require.NotNil(t, d.CachedEta)
	require.Equal(t, eta, *d.CachedEta)
	require.InDelta(t, 2.0, d.AgeHours, 0.01)
}

func TestStartRequest_MarksPendingAndLogsQuestion(t *testing.T) {
	r := &fakeRepo{}
	s := newTestService(r)

	require.NoError(t, s.StartRequest(context.Background(), "conv-1", "ATLANTIC STAR", strPtr("112S"), "When is ATLANTIC STAR 112S arriving?"))
	require.Len(t, r.asked, 1)
	require.Equal(t, testNow, r.asked[0])
	require.Len(t, r.transcript, 1)
	require.Equal(t, "bot", r.transcript[0].Sender)
}

func TestAttempts(t *testing.T) {
	r := &fakeRepo{hasRecord: true}
	s := newTestService(r)

	n, found, err := s.IncrementAttempts(context.Background(), "conv-1", "ATLANTIC STAR", nil)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int32(1), n)

	n, found, err = s.GetAttempts(context.Background(), "conv-1", "ATLANTIC STAR", nil)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int32(1), n)
}

func TestGetAttempts_NoRecord(t *testing.T) {
	s := newTestService(&fakeRepo{hasRecord: false})
	n, found, err := s.GetAttempts(context.Background(), "conv-1", "ATLANTIC STAR", nil)
	require.NoError(t, err)
	require.False(t, found)
	require.Zero(t, n)
}

func TestReceiveResult_Complete(t *testing.T) {
	r := &fakeRepo{resolvedOK: true}
	s := newTestService(r)

	err := s.ReceiveResult(context.Background(), messages.ChatReply{
		ConversationID: "conv-1",
		VesselName:     "ATLANTIC STAR",
		VoyageCode:     "112S",
		Status:         "COMPLETE",
		Eta:            "2025-06-11",
		Message:        "Arrives June 11",
	})
	require.NoError(t, err)
	require.Equal(t, []string{models.ChatStatusComplete}, r.resolved)
	require.Len(t, r.transcript, 1)
	require.Equal(t, "operator", r.transcript[0].Sender)
}

func TestReceiveResult_NoPendingRequest(t *testing.T) {
	s := newTestService(&fakeRepo{resolvedOK: false})
	err := s.ReceiveResult(context.Background(), messages.ChatReply{
		ConversationID: "conv-1",
		VesselName:     "ATLANTIC STAR",
		Status:         "FAILED",
	})
	require.ErrorIs(t, err, ErrNoActiveRequest)
}

func TestReceiveResult_UnknownStatusRejected(t *testing.T) {
	s := newTestService(&fakeRepo{resolvedOK: true})
	err := s.ReceiveResult(context.Background(), messages.ChatReply{
		ConversationID: "conv-1",
		VesselName:     "ATLANTIC STAR",
		Status:         "MAYBE",
	})
	require.Error(t, err)
}
