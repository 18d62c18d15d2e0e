package status

import (
	"time"

	"github.com/shiplog/vesseltrack/internal/dateparse"
	"github.com/shiplog/vesseltrack/internal/models"
)

// Input is everything one evaluation needs. Prior is the most recent check log
// row where both vessel and voyage were confirmed and an ETA was recorded; it
// is consulted only when the current lookup fails to confirm presence.
type Input struct {
	VesselFound     bool
	VoyageFound     bool
	Eta             *string
	PlannedDelivery *time.Time
	Prior           *models.EtaCheckLog
}

type Result struct {
	Status     string
	Departed   bool
	UpdatedEta *time.Time
}

// onTrackTolerance: lateness of up to one day is not worth surfacing as a
// delay. The tolerance is one-sided, an earlier ETA is always reported early.
const onTrackTolerance = 24 * time.Hour

// Evaluate computes the new tracking status. Pure function: persistence and
// log writing are the caller's job.
func Evaluate(in Input) Result {
	if in.VesselFound && in.VoyageFound {
		if in.Eta != nil {
			if eta, ok := dateparse.Parse(*in.Eta); ok {
				return Result{Status: compare(eta, in.PlannedDelivery), UpdatedEta: &eta}
			}
		}
		// Присутствие подтверждено, ETA в этом цикле не разобрали — не паникуем.
		return Result{Status: models.TrackingStatusOnTrack}
	}

	// Судно пропало из выдачи терминала. Если раньше его там видели,
	// считаем что оно ушло, а не что данные потерялись.
	if in.Prior != nil {
		switch in.Prior.TrackingStatus {
		case models.TrackingStatusEarly, models.TrackingStatusOnTrack, models.TrackingStatusDelay:
			return Result{
				Status:     in.Prior.TrackingStatus,
				Departed:   true,
				UpdatedEta: in.Prior.UpdatedEta,
			}
		}
	}
	return Result{Status: models.TrackingStatusNotFound}
}

func compare(eta time.Time, planned *time.Time) string {
	if planned == nil {
		return models.TrackingStatusOnTrack
	}
	diff := eta.Sub(*planned)
	switch {
	case diff < 0:
		return models.TrackingStatusEarly
	case diff <= onTrackTolerance:
		return models.TrackingStatusOnTrack
	default:
		return models.TrackingStatusDelay
	}
}
