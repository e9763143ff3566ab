package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointments/internal/appointment"
	redisclient "github.com/hackgods/hospital-appointments/internal/redis"
)

// Reminder is one appointment due for a reminder. Delivery is up to the
// consumer of the sink.
type Reminder struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
	DoctorID      uuid.UUID `json:"doctorId"`
	PatientID     uuid.UUID `json:"patientId"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
}

func reminderFor(a appointment.Appointment) Reminder {
	return Reminder{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          a.Date,
		Time:          a.Time,
	}
}

type ReminderSink interface {
	Send(ctx context.Context, reminders []Reminder) error
}

type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, reminders []Reminder) error {
	for _, r := range reminders {
		s.log.Info().
			Str("appointment_id", r.AppointmentID.String()).
			Str("patient_id", r.PatientID.String()).
			Str("date", r.Date).
			Str("time", r.Time).
			Msg("appointment reminder due")
	}
	return nil
}

// PublisherSink publishes one message per reminder on a Redis channel.
type PublisherSink struct {
	pub *redisclient.Publisher
	log zerolog.Logger
}

func NewPublisherSink(pub *redisclient.Publisher, log zerolog.Logger) *PublisherSink {
	return &PublisherSink{pub: pub, log: log}
}

func (s *PublisherSink) Send(ctx context.Context, reminders []Reminder) error {
	var receivers int64
	for _, r := range reminders {
		n, err := s.pub.Publish(ctx, r)
		if err != nil {
			return fmt.Errorf("publish reminder %s: %w", r.AppointmentID, err)
		}
		receivers += n
	}
	s.log.Debug().
		Str("channel", s.pub.Channel()).
		Int("reminders", len(reminders)).
		Int64("receivers", receivers).
		Msg("reminders published")
	return nil
}
