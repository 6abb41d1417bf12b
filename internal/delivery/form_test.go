package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/naqsh/internal/models"
	"github.com/kingrea/naqsh/internal/shop"
)

type recordingConfirmer struct {
	calls []models.DeliveryConfirmation
	msg   string
	err   error
}

func (r *recordingConfirmer) ConfirmDelivery(_ context.Context, _ int64, c models.DeliveryConfirmation) (string, error) {
	r.calls = append(r.calls, c)
	return r.msg, r.err
}

func TestToggleNeverSubmits(t *testing.T) {
	f := NewForm(7)
	c := &recordingConfirmer{}
	for i := 0; i < 5; i++ {
		f.Choose(i%2 == 0)
		f.SetIssue("attempt")
	}
	assert.Empty(t, c.calls)
	assert.Equal(t, AnsweredYes, f.Answer())
	assert.Equal(t, "attempt", f.Issue())
	assert.False(t, f.Submitting())
}

func TestCanSubmit(t *testing.T) {
	f := NewForm(1)
	assert.False(t, f.CanSubmit(), "unanswered")
	f.Choose(true)
	assert.True(t, f.CanSubmit())
	f.Choose(false)
	assert.False(t, f.CanSubmit(), "no without issue")
	f.SetIssue("   ")
	assert.False(t, f.CanSubmit(), "whitespace issue")
	f.SetIssue("Parcel never arrived")
	assert.True(t, f.CanSubmit())
}

func TestBeginRejectsMissingIssueWithoutNetwork(t *testing.T) {
	f := NewForm(1)
	c := &recordingConfirmer{}
	f.Choose(false)
	err := f.Submit(context.Background(), c)
	assert.ErrorIs(t, err, ErrIssueRequired)
	assert.Equal(t, "Please describe the issue", f.Error())
	assert.Empty(t, c.calls)
	assert.False(t, f.Submitting())

	f.SetIssue("torn packaging")
	assert.Empty(t, f.Error(), "typing an issue clears the prompt")
}

func TestBeginRejectsUnanswered(t *testing.T) {
	f := NewForm(1)
	_, err := f.Begin()
	assert.ErrorIs(t, err, ErrUnanswered)
	assert.NotEmpty(t, f.Error())
}

func TestSubmitReceivedSendsNullIssue(t *testing.T) {
	f := NewForm(9)
	f.Choose(false)
	f.SetIssue("leftover text")
	f.Choose(true)
	c := &recordingConfirmer{msg: "Delivery confirmed. Thank you for shopping with us!"}
	require.NoError(t, f.Submit(context.Background(), c))
	require.Len(t, c.calls, 1)
	assert.True(t, c.calls[0].Received)
	assert.Nil(t, c.calls[0].IssueDescription)
	assert.True(t, f.Done())
	assert.True(t, f.Received())
	assert.Equal(t, "Delivery confirmed. Thank you for shopping with us!", f.Acknowledgement())
}

func TestSubmitNotReceivedSendsIssue(t *testing.T) {
	f := NewForm(9)
	f.Choose(false)
	f.SetIssue("Wrong size delivered")
	c := &recordingConfirmer{}
	require.NoError(t, f.Submit(context.Background(), c))
	require.Len(t, c.calls, 1)
	require.NotNil(t, c.calls[0].IssueDescription)
	assert.Equal(t, "Wrong size delivered", *c.calls[0].IssueDescription)
	assert.False(t, f.Received())
	assert.Equal(t, "Delivery confirmed", f.Acknowledgement())
}

func TestIssueTruncatedAt500(t *testing.T) {
	f := NewForm(1)
	f.SetIssue(strings.Repeat("ü", 600))
	assert.Equal(t, 500, f.IssueLength())
}

func TestFailureKeepsStateAndPicksMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"server message", &shop.APIError{Status: 400, Message: "Delivery has already been confirmed"}, "Delivery has already been confirmed"},
		{"server without message", &shop.APIError{Status: 500}, "Failed to confirm delivery"},
		{"transport", errors.New("connection refused"), "Error confirming delivery"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewForm(3)
			f.Choose(false)
			f.SetIssue("damaged")
			err := f.Submit(context.Background(), &recordingConfirmer{err: tc.err})
			require.Error(t, err)
			assert.Equal(t, tc.want, f.Error())
			assert.False(t, f.Submitting())
			assert.False(t, f.Done())
			assert.Equal(t, AnsweredNo, f.Answer())
			assert.Equal(t, "damaged", f.Issue())
			assert.True(t, f.CanSubmit(), "form is editable again")
		})
	}
}

func TestLockedWhileSubmitting(t *testing.T) {
	f := NewForm(1)
	f.Choose(true)
	_, err := f.Begin()
	require.NoError(t, err)
	f.Choose(false)
	f.SetIssue("ignored")
	assert.Equal(t, AnsweredYes, f.Answer())
	assert.Empty(t, f.Issue())
	_, err = f.Begin()
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, f.CanSubmit())
}
