// Package booking coordinates the appointment handshake: curating available
// slots from the CRM calendar and booking the chosen slot against a
// find-or-created contact record. External failures always degrade to a
// direct booking link; the conversation is never blocked on the calendar.
package booking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/myralabs/pura-chat-platform/internal/chat"
	"github.com/myralabs/pura-chat-platform/internal/notify"
	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

// State is the booking progression for a conversation.
type State string

const (
	StateNoContact        State = "no_contact"
	StateContactCollected State = "contact_collected"
	StateSlotsOffered     State = "slots_offered"
	StateSlotSelected     State = "slot_selected"
	StateBooked           State = "booked"
	// StateDeferred covers "see all slots" and "book later": the user left
	// for the external calendar instead of booking in-chat.
	StateDeferred State = "deferred_to_external_calendar"
)

// Progress derives the booking state from observed conversation facts.
func Progress(hasContact, slotsOffered, slotSelected, booked, deferred bool) State {
	switch {
	case deferred:
		return StateDeferred
	case booked:
		return StateBooked
	case slotSelected:
		return StateSlotSelected
	case slotsOffered:
		return StateSlotsOffered
	case hasContact:
		return StateContactCollected
	default:
		return StateNoContact
	}
}

// Result reports a booking attempt. BookingLink is set when the attempt
// degraded to the external calendar.
type Result struct {
	Success     bool
	Message     string
	Error       string
	BookingLink string
}

// CalendarAPI is the slice of the CRM client the coordinator needs.
type CalendarAPI interface {
	FreeSlots(ctx context.Context, start, end time.Time) (map[string][]string, error)
	LookupContact(ctx context.Context, email, phone string) (string, error)
	CreateContact(ctx context.Context, name, email, phone string) (string, error)
	CreateAppointment(ctx context.Context, contactID, startTime, title string) error
}

// Service implements the booking coordinator.
type Service struct {
	crm         CalendarAPI
	email       notify.EmailSender
	fallbackURL string
	logger      *logging.Logger
	tracer      trace.Tracer
}

// NewService builds the coordinator. email may be nil (no confirmation mail).
func NewService(crm CalendarAPI, email notify.EmailSender, fallbackURL string, logger *logging.Logger) *Service {
	if crm == nil {
		panic("booking: calendar API required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		crm:         crm,
		email:       email,
		fallbackURL: fallbackURL,
		logger:      logger,
		tracer:      otel.Tracer("pura.internal.booking"),
	}
}

// FallbackURL is the external calendar link offered on degradation.
func (s *Service) FallbackURL() string {
	return s.fallbackURL
}

// FetchAvailableSlots pulls availability for the window starting tomorrow and
// returns a curated subset: the earliest and latest slot of each of the first
// two days with any availability, so the user is never flooded with options.
// The second return is the total number of slots before curation.
func (s *Service) FetchAvailableSlots(ctx context.Context, windowDays int) ([]chat.AvailableSlot, int, error) {
	ctx, span := s.tracer.Start(ctx, "booking.fetch_slots")
	defer span.End()
	if windowDays <= 0 {
		windowDays = 14
	}
	span.SetAttributes(attribute.Int("pura.booking.window_days", windowDays))

	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	end := start.AddDate(0, 0, windowDays)

	raw, err := s.crm.FreeSlots(ctx, start, end)
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("booking: availability fetch failed: %w", err)
	}

	byDate := make(map[string][]chat.AvailableSlot, len(raw))
	total := 0
	for date, instants := range raw {
		for _, instant := range instants {
			slot, ok := formatSlot(date, instant)
			if !ok {
				continue
			}
			byDate[date] = append(byDate[date], slot)
			total++
		}
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		sort.Slice(byDate[date], func(i, j int) bool {
			return byDate[date][i].DateTime < byDate[date][j].DateTime
		})
		dates = append(dates, date)
	}
	sort.Strings(dates)

	curated := make([]chat.AvailableSlot, 0, 4)
	for i := 0; i < len(dates) && i < 2; i++ {
		day := byDate[dates[i]]
		curated = append(curated, day[0])
		if len(day) > 1 {
			curated = append(curated, day[len(day)-1])
		}
	}
	return curated, total, nil
}

// BookAppointment find-or-creates the CRM contact (email lookup, then phone,
// then create) and books the slot. Never returns an error: failures come back
// as a degraded Result carrying the external booking link.
func (s *Service) BookAppointment(ctx context.Context, contact chat.ContactInfo, slot chat.AvailableSlot) Result {
	ctx, span := s.tracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(attribute.String("pura.booking.slot", slot.DateTime))

	contactID, err := s.crm.LookupContact(ctx, contact.Email, contact.Phone)
	if err == nil && contactID == "" {
		contactID, err = s.crm.CreateContact(ctx, contact.Name, contact.Email, contact.Phone)
	}
	if err != nil || contactID == "" {
		span.RecordError(err)
		s.logger.Error("booking: contact resolution failed", "error", err)
		return s.degraded("Unable to process booking. Please use the booking link instead.")
	}

	title := fmt.Sprintf("Venue Match Call - %s", contact.Name)
	if err := s.crm.CreateAppointment(ctx, contactID, slot.DateTime, title); err != nil {
		span.RecordError(err)
		s.logger.Error("booking: appointment create failed", "error", err, "contact_id", contactID)
		return s.degraded("Unable to complete booking. Please use the booking link instead.")
	}

	s.logger.Info("booking confirmed", "contact_id", contactID, "slot", slot.Display)
	s.sendConfirmation(ctx, contact, slot)

	return Result{
		Success: true,
		Message: fmt.Sprintf("You're confirmed for %s.", slot.Display),
	}
}

func (s *Service) degraded(msg string) Result {
	return Result{
		Success:     false,
		Error:       msg,
		BookingLink: s.fallbackURL,
	}
}

// sendConfirmation emails the booked slot. Best effort; failures are logged
// and never surfaced to the chat.
func (s *Service) sendConfirmation(ctx context.Context, contact chat.ContactInfo, slot chat.AvailableSlot) {
	if s.email == nil || contact.Email == "" {
		return
	}
	msg := notify.EmailMessage{
		To:      contact.Email,
		ToName:  contact.Name,
		Subject: "Your Venue Match Call is booked",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour Venue Match Call is confirmed for %s. We'll walk through your shortlist together.\n\nTalk soon,\nThe MyRA Team",
			contact.Name, slot.Display,
		),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("booking: confirmation email failed", "error", err, "to", contact.Email)
	}
}

// formatSlot turns a raw calendar instant into the wire slot shape, including
// the human display label.
func formatSlot(date, instant string) (chat.AvailableSlot, bool) {
	t, err := time.Parse(time.RFC3339, instant)
	if err != nil {
		return chat.AvailableSlot{}, false
	}
	return chat.AvailableSlot{
		Date:     date,
		Time:     t.Format("15:04"),
		DateTime: instant,
		Display:  t.Format("Mon, Jan 2 @ 3:04 PM"),
	}, true
}
