package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/tanjh/roombook/pkg/client"
)

var (
	// ErrEmptySelection is returned when dropping out-of-range positions
	// leaves nothing to book. No network call is made.
	ErrEmptySelection = errors.New("no valid slots in selection")
	// ErrConfirmFailed is returned when the confirm phase is rejected; the
	// transaction is aborted and the finalize phase never runs.
	ErrConfirmFailed = errors.New("booking confirmation failed")
	// ErrFinalizeFailed is returned when the finalize phase fails after a
	// successful confirm. This is a dangling commit: the server may hold a
	// reservation this run could not finalize. It must reach the operator
	// distinctly from a confirm failure.
	ErrFinalizeFailed = errors.New("booking finalization failed after confirmation")
)

// Outcome is the result of a booking transaction.
type Outcome int

const (
	// OutcomeNone means no transaction was attempted.
	OutcomeNone Outcome = iota
	// OutcomeCommitted means both phases succeeded; the selected slots are
	// consumed.
	OutcomeCommitted
	// OutcomeConfirmFailed means the confirm phase failed; no reservation
	// was made.
	OutcomeConfirmFailed
	// OutcomeFinalizeFailed means confirm succeeded but finalize failed;
	// the server-side reservation state is unknown.
	OutcomeFinalizeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeConfirmFailed:
		return "confirm failed"
	case OutcomeFinalizeFailed:
		return "finalize failed (dangling commit)"
	default:
		return "not attempted"
	}
}

// SlotEntry is one slot in the confirm payload's slot list.
type SlotEntry struct {
	Sequence        int     `json:"SRNO"`
	SlotID          string  `json:"SLT_ID"`
	StartTime       string  `json:"SLT_Time"`
	TimeRange       string  `json:"SLT_Desc"`
	EncryptedStatus *string `json:"encryptedSlotStatus"`
	Status          int     `json:"SLT_STATUS"`
	EncryptedTime   *string `json:"encryptedSLT_Time"`
}

// Request is a validated booking request for a single resource. All slots
// belong to the resource identified by ResourceID/ResourceTypeID; the caller
// must not mix resources in one selection; the ids are taken from the first
// selected slot and the rest are not cross-checked.
type Request struct {
	ResourceID     string
	ResourceTypeID string
	Slots          []SlotEntry
}

// BuildRequest turns selected positions into a booking request. Selection
// order is preserved and each entry's sequence number is its 1-based
// position in the supplied selection; out-of-range positions are silently
// dropped but still consume a sequence number. An all-dropped selection
// yields ErrEmptySelection.
func BuildRequest(slots []Slot, positions []int) (*Request, error) {
	req := &Request{}
	for i, pos := range positions {
		if pos < 0 || pos >= len(slots) {
			continue
		}
		slot := slots[pos]
		if req.ResourceID == "" {
			req.ResourceID = slot.ResourceID
			req.ResourceTypeID = slot.ResourceTypeID
		}
		req.Slots = append(req.Slots, SlotEntry{
			Sequence:  i + 1,
			SlotID:    slot.ID,
			StartTime: slot.StartTime(),
			TimeRange: slot.TimeRange,
			Status:    slotStatusBookable,
		})
	}
	if len(req.Slots) == 0 {
		return nil, ErrEmptySelection
	}
	return req, nil
}

// Coordinator executes the two-phase reservation: confirm reserves the
// selected slots, finalize commits the attendance and purpose metadata. A
// transaction is committed only when both phases succeed.
type Coordinator struct {
	client    *client.Client
	date      string
	attendees int
	purpose   string
	log       *zap.Logger
}

// NewCoordinator creates a booking coordinator for the given search date.
func NewCoordinator(c *client.Client, date string, attendees int, purpose string, log *zap.Logger) *Coordinator {
	return &Coordinator{client: c, date: date, attendees: attendees, purpose: purpose, log: log}
}

// Book reserves the selected positions from one room's slot list. The index
// is a snapshot: a competing client may have taken a slot since it was
// built, in which case the confirm phase is where that surfaces. After any
// failure the index must be considered stale; re-resolve availability
// before retrying.
func (c *Coordinator) Book(ctx context.Context, index *SlotIndex, room string, positions []int, token string) (Outcome, error) {
	req, err := BuildRequest(index.Slots(room), positions)
	if err != nil {
		return OutcomeNone, err
	}

	slotList, err := json.Marshal(req.Slots)
	if err != nil {
		return OutcomeNone, err
	}
	confirmForm := url.Values{
		"__RequestVerificationToken": {token},
		"RSRC_ID":                    {req.ResourceID},
		"RSRC_TYP_ID":                {req.ResourceTypeID},
		"SearchDate":                 {c.date},
		"SlotList":                   {string(slotList)},
		"APPRV_EXEMP":                {"false"},
		"SUPPT_EXEMP":                {"false"},
		"checkReorNot":               {"0"},
		"IS_IN4SIT":                  {"false"},
		"IS_SUPT":                    {"false"},
		"IS_APPRVL":                  {"false"},
	}

	c.log.Info("confirming booking",
		zap.String("room", room),
		zap.Int("slots", len(req.Slots)))
	resp, err := c.client.PostForm(ctx, client.PathConfirm, confirmForm)
	if err != nil {
		return OutcomeConfirmFailed, fmt.Errorf("%w: %v", ErrConfirmFailed, err)
	}
	if resp.StatusCode != 200 {
		return OutcomeConfirmFailed, fmt.Errorf("%w: status %d: %s",
			ErrConfirmFailed, resp.StatusCode, snippet(resp.Body))
	}
	if resp.SessionExpired() {
		return OutcomeConfirmFailed, fmt.Errorf("%w: session expired mid-transaction", ErrConfirmFailed)
	}

	finalizeForm := url.Values{
		"__RequestVerificationToken": {token},
		"RSRC_TYP_ID":                {req.ResourceTypeID},
		"NUM_ATTND":                  {strconv.Itoa(c.attendees)},
		"Event_TypeText":             {""},
		"Acad_Text":                  {""},
		"Purpose":                    {c.purpose},
		"supptList":                  {"[]"},
		"OVERWRITE":                  {"0"},
		"slcPurpose":                 {""},
	}

	c.log.Info("finalizing booking", zap.String("room", room))
	resp, err = c.client.PostForm(ctx, client.PathFinalize, finalizeForm)
	if err != nil {
		return OutcomeFinalizeFailed, fmt.Errorf("%w: %v", ErrFinalizeFailed, err)
	}
	if resp.StatusCode != 200 {
		return OutcomeFinalizeFailed, fmt.Errorf("%w: status %d: %s",
			ErrFinalizeFailed, resp.StatusCode, snippet(resp.Body))
	}
	if resp.SessionExpired() {
		return OutcomeFinalizeFailed, fmt.Errorf("%w: session expired mid-transaction", ErrFinalizeFailed)
	}

	c.log.Info("booking committed",
		zap.String("room", room),
		zap.Int("slots", len(req.Slots)))
	return OutcomeCommitted, nil
}

// snippet trims a response body to a diagnosable size for error messages.
func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
