package dto

import (
	"encoding/json"

	"github.com/frappe/press-billing/internal/domain/processor"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// IngestProcessorEventRequest carries a raw inbound processor notification.
// The payload stays verbatim; signature verification happens before parsing.
type IngestProcessorEventRequest struct {
	Processor types.ProcessorName `json:"processor"`
	Signature string              `json:"-"`
	Payload   json.RawMessage     `json:"payload"`
}

func (r *IngestProcessorEventRequest) Validate() error {
	if err := r.Processor.Validate(); err != nil {
		return err
	}
	if len(r.Payload) == 0 {
		return ierr.NewError("event payload is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ProcessorEventResponse is the API shape of a stored inbound event
type ProcessorEventResponse struct {
	*processor.Event
	// Duplicate is set when the event id was seen before and nothing changed.
	Duplicate bool `json:"duplicate,omitempty"`
}
