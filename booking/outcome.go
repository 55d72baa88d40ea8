package booking

import (
	"fmt"

	"parking-finder-cli/service"
)

// Outcome is the result of a remote commit attempt.
type Outcome int

const (
	// OutcomeConfirmed means the service accepted the request.
	OutcomeConfirmed Outcome = iota
	// OutcomeRejected means the service answered with a non-success status.
	OutcomeRejected
	// OutcomeTransportError means no response was received.
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportError:
		return "transport error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Classify maps a commit error onto an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeConfirmed
	}
	if service.IsRejection(err) {
		return OutcomeRejected
	}
	return OutcomeTransportError
}

const (
	bookingFailedMessage = "Booking failed"
	ratingFailedMessage  = "Rating failed"
	networkErrorMessage  = "Network error. Please check your connection and try again."
)

// BookingResult describes how a booking settled.
type BookingResult struct {
	Outcome Outcome
	LotID   int
	LotName string
	// Message is the user-facing notification text.
	Message string
	// Err is the commit error for the rejected and transport paths.
	Err error
	// Refreshed is true once the post-success refetch replaced the list.
	Refreshed  bool
	RefreshErr error
}

// Succeeded reports whether the booking was confirmed.
func (r BookingResult) Succeeded() bool {
	return r.Outcome == OutcomeConfirmed
}

// RatingResult describes how a rating submission settled.
type RatingResult struct {
	Outcome    Outcome
	LotID      int
	LotName    string
	Rating     int
	Message    string
	Err        error
	Refreshed  bool
	RefreshErr error
}

func (r RatingResult) Succeeded() bool {
	return r.Outcome == OutcomeConfirmed
}

func bookingMessage(outcome Outcome, lotName string, err error) string {
	switch outcome {
	case OutcomeConfirmed:
		return fmt.Sprintf("Spot booked at %s.", lotName)
	case OutcomeRejected:
		if msg := service.RejectionMessage(err); msg != "" {
			return msg
		}
		return bookingFailedMessage
	default:
		return networkErrorMessage
	}
}

func ratingMessage(outcome Outcome, lotName string, rating int, err error) string {
	switch outcome {
	case OutcomeConfirmed:
		return fmt.Sprintf("Thanks! You rated %s %d/5.", lotName, rating)
	case OutcomeRejected:
		if msg := service.RejectionMessage(err); msg != "" {
			return msg
		}
		return ratingFailedMessage
	default:
		return networkErrorMessage
	}
}
