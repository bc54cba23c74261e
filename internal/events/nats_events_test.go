package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-gateway/internal/models"
)

type recordingPublisher struct {
	subjects []string
	payloads []interface{}
	err      error
}

func (r *recordingPublisher) PublishJSON(subject string, v interface{}) error {
	r.subjects = append(r.subjects, subject)
	r.payloads = append(r.payloads, v)
	return r.err
}

func TestPublishOperation(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewNATSPublisher(rec, "", nil)

	op := &models.LendingOperation{
		ID:        "op-1",
		Operation: "supplyCollateral",
		Method:    "supplyCollateral(bytes,bytes)",
		Network:   "testnet",
		Status:    models.LendingOperationStatusSubmitted,
		Requester: "0xabc",
		ShardsKey: "9",
	}
	require.NoError(t, p.PublishOperation(NewOperationEvent(op)))

	require.Len(t, rec.subjects, 1)
	assert.Equal(t, "lending.testnet.supplyCollateral.submitted", rec.subjects[0])

	ev, ok := rec.payloads[0].(OperationEvent)
	require.True(t, ok)
	assert.Equal(t, "op-1", ev.ID)
	assert.Equal(t, "9", ev.ShardsKey)
	assert.False(t, ev.Timestamp.IsZero())
	assert.True(t, ev.Final)

	op.Status = models.LendingOperationStatusPending
	assert.False(t, NewOperationEvent(op).Final)
}

func TestSubjectSanitizesTokens(t *testing.T) {
	p := NewNATSPublisher(&recordingPublisher{}, "gw", nil)
	subject := p.Subject(OperationEvent{Network: "main.net", Operation: "re*pay", Status: ""})
	assert.Equal(t, "gw.main_net.re_pay.unknown", subject)
}

func TestPublishOperationError(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("no responders")}
	p := NewNATSPublisher(rec, "lending", nil)

	err := p.PublishOperation(OperationEvent{Status: "failed"})
	assert.ErrorIs(t, err, rec.err)
}

func TestStreamSubjects(t *testing.T) {
	assert.Equal(t, []string{"lending.>"}, StreamSubjects(""))
	assert.Equal(t, []string{"gw.>"}, StreamSubjects("gw"))
	assert.NoError(t, NoopPublisher{}.PublishOperation(OperationEvent{}))
}
