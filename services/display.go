package services

import "sensorboard/models"

// Display is the page surface the panel drives: the three value elements,
// their pulse targets, the LED toggle and the notice dialog.
type Display interface {
	SetText(elementID, text string)
	SetPulse(elementID string, active bool)
	SetToggle(enabled bool)
	ShowNotice(notice models.Notice)
}
