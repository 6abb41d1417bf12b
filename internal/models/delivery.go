package models

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxIssueLength caps the free-text description of a delivery problem.
const MaxIssueLength = 500

var (
	ErrIssueRequired = errors.New("please describe the issue")
	ErrIssueTooLong  = errors.New("issue description must be at most 500 characters")
)

// DeliveryConfirmation is the customer's answer to "did you receive this order".
// IssueDescription is nil whenever Received is true.
type DeliveryConfirmation struct {
	Received         bool    `json:"received"`
	IssueDescription *string `json:"issue_description"`
}

// NewDeliveryConfirmation builds the payload, dropping the issue text on a "yes".
func NewDeliveryConfirmation(received bool, issue string) DeliveryConfirmation {
	if received {
		return DeliveryConfirmation{Received: true}
	}
	return DeliveryConfirmation{Received: false, IssueDescription: &issue}
}

// Validate enforces the issue description rules.
func (c DeliveryConfirmation) Validate() error {
	if c.Received {
		return nil
	}
	if c.IssueDescription == nil || strings.TrimSpace(*c.IssueDescription) == "" {
		return ErrIssueRequired
	}
	if utf8.RuneCountInString(*c.IssueDescription) > MaxIssueLength {
		return ErrIssueTooLong
	}
	return nil
}
