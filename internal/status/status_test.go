package status

import (
	"testing"
	"time"

	"github.com/shiplog/vesseltrack/internal/models"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

var planned = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func confirmedInput(eta string) Input {
	return Input{
		VesselFound:     true,
		VoyageFound:     true,
		Eta:             strPtr(eta),
		PlannedDelivery: timePtr(planned),
	}
}

func TestEvaluate_EarlierThanPlanned(t *testing.T) {
	res := Evaluate(confirmedInput("2025-06-08"))
	require.Equal(t, models.TrackingStatusEarly, res.Status)
	require.False(t, res.Departed)
	require.NotNil(t, res.UpdatedEta)
	require.Equal(t, time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), *res.UpdatedEta)
}

func TestEvaluate_EqualToPlanned(t *testing.T) {
	res := Evaluate(confirmedInput("2025-06-10"))
	require.Equal(t, models.TrackingStatusOnTrack, res.Status)
}

func TestEvaluate_TwelveHoursLateStillOnTrack(t *testing.T) {
	res := Evaluate(confirmedInput("2025-06-10T12:00:00"))
	require.Equal(t, models.TrackingStatusOnTrack, res.Status)
}

func TestEvaluate_OneDayLateStillOnTrack(t *testing.T) {
	res := Evaluate(confirmedInput("2025-06-11"))
	require.Equal(t, models.TrackingStatusOnTrack, res.Status)
}

func TestEvaluate_TwoDaysLateIsDelay(t *testing.T) {
	res := Evaluate(confirmedInput("2025-06-12"))
	require.Equal(t, models.TrackingStatusDelay, res.Status)
}

func TestEvaluate_UnparseableEtaFailsOpen(t *testing.T) {
	in := confirmedInput("TBA")
	res := Evaluate(in)
	require.Equal(t, models.TrackingStatusOnTrack, res.Status)
	require.Nil(t, res.UpdatedEta)
}

func TestEvaluate_ConfirmedWithoutEtaFailsOpen(t *testing.T) {
	in := Input{VesselFound: true, VoyageFound: true, PlannedDelivery: timePtr(planned)}
	res := Evaluate(in)
	require.Equal(t, models.TrackingStatusOnTrack, res.Status)
}

func TestEvaluate_DepartureInferenceRetainsStatus(t *testing.T) {
	priorEta := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
	in := Input{
		VesselFound:     false,
		PlannedDelivery: timePtr(planned),
		Prior: &models.EtaCheckLog{
			TrackingStatus: models.TrackingStatusDelay,
			VesselFound:    true,
			VoyageFound:    true,
			UpdatedEta:     timePtr(priorEta),
		},
	}
	res := Evaluate(in)
	require.Equal(t, models.TrackingStatusDelay, res.Status)
	require.True(t, res.Departed)
	require.NotNil(t, res.UpdatedEta)
	require.Equal(t, priorEta, *res.UpdatedEta)
}

func TestEvaluate_DepartureInferenceOnTrack(t *testing.T) {
	in := Input{
		VesselFound:     false,
		PlannedDelivery: timePtr(planned),
		Prior: &models.EtaCheckLog{
			TrackingStatus: models.TrackingStatusOnTrack,
			VesselFound:    true,
			VoyageFound:    true,
		},
	}
	res := Evaluate(in)
	require.Equal(t, models.TrackingStatusOnTrack, res.Status)
	require.True(t, res.Departed)
	require.Nil(t, res.UpdatedEta)
}

func TestEvaluate_PriorNotFoundGivesNotFound(t *testing.T) {
	in := Input{
		VesselFound: false,
		Prior: &models.EtaCheckLog{
			TrackingStatus: models.TrackingStatusNotFound,
		},
	}
	res := Evaluate(in)
	require.Equal(t, models.TrackingStatusNotFound, res.Status)
	require.False(t, res.Departed)
}

func TestEvaluate_NoHistoryNotFound(t *testing.T) {
	res := Evaluate(Input{VesselFound: false, PlannedDelivery: timePtr(planned)})
	require.Equal(t, models.TrackingStatusNotFound, res.Status)
	require.False(t, res.Departed)
}

func TestEvaluate_VoyageMissingTreatedAsNotConfirmed(t *testing.T) {
	in := Input{
		VesselFound:     true,
		VoyageFound:     false,
		Eta:             strPtr("2025-06-10"),
		PlannedDelivery: timePtr(planned),
	}
	res := Evaluate(in)
	require.Equal(t, models.TrackingStatusNotFound, res.Status)
}
