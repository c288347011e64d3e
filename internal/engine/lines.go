package engine

import (
	"github.com/hammamikhairi/ottochat/internal/domain"
)

// Assistant-authored lines the engine writes into the transcript.

// LineCancelled is appended when the user stops a generation.
const LineCancelled = "Message generation was cancelled."

// LineApology is appended when a send fails.
func LineApology(err error) string {
	detail := domain.Detail(err)
	if detail == "" {
		return "Sorry, I couldn't get a response. Please try again."
	}
	return "Sorry, I couldn't get a response: " + detail
}
