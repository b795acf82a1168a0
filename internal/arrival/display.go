package arrival

import (
	"fmt"
	"time"

	"nextbus/internal/daytype"
)

type DisplayMode string

const (
	DisplayLoading   DisplayMode = "loading"
	DisplayCountdown DisplayMode = "countdown"
	DisplayTomorrow  DisplayMode = "tomorrow"
	DisplayNoService DisplayMode = "no_service"
	DisplayNoData    DisplayMode = "no_data"
)

const (
	LabelNoService = "no trips"
	LabelNoData    = "no data"
	labelLoading   = "—"
)

type Display struct {
	Mode        DisplayMode      `json:"mode"`
	Label       string           `json:"label"`
	SecondsLeft *int             `json:"secondsLeft,omitempty"`
	Progress    *float64         `json:"progress,omitempty"`
	ArrivalAt   time.Time        `json:"arrivalAt,omitzero"`
	DayType     daytype.Category `json:"dayTypeUsed,omitempty"`
}

func (d Display) Expired() bool {
	return d.Mode == DisplayCountdown && d.SecondsLeft != nil && *d.SecondsLeft <= 0
}

func Loading() Display {
	return Display{Mode: DisplayLoading, Label: labelLoading}
}

func NoData() Display {
	return Display{Mode: DisplayNoData, Label: LabelNoData}
}

// Format renders r at now. startSeconds is the seconds-left value when the
// countdown began and scales Progress; pass 0 to start a new countdown.
func Format(r Result, now time.Time, startSeconds int) Display {
	switch r.Mode {
	case ModeCountdown:
		left := int(r.ArrivalAt.Sub(now) / time.Second)
		if startSeconds <= 0 {
			startSeconds = left
		}
		progress := 0.0
		if startSeconds > 0 {
			progress = min(1, max(0, 1-float64(left)/float64(startSeconds)))
		}
		return Display{
			Mode:        DisplayCountdown,
			Label:       FormatMinSec(left),
			SecondsLeft: &left,
			Progress:    &progress,
			ArrivalAt:   r.ArrivalAt,
			DayType:     r.DayType,
		}
	case ModeTomorrow:
		return Display{
			Mode:      DisplayTomorrow,
			Label:     "tomorrow " + r.ArrivalAt.Format("15:04"),
			ArrivalAt: r.ArrivalAt,
			DayType:   r.DayType,
		}
	}
	return Display{Mode: DisplayNoService, Label: LabelNoService}
}

// FormatMinSec renders seconds as MM:SS. Minutes are not wrapped at an hour
// and negative input renders as 00:00.
func FormatMinSec(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}
