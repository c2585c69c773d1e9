package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doria/internal/doi/models"
	"doria/pkg/domainerrors"
)

var testNow = time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)

func draft(t *testing.T) *models.DOI {
	t.Helper()
	d, err := models.New("10.5072/0003-rj0r", "sample.repo", "sample", "https://example.org/x", testNow)
	require.NoError(t, err)
	d.Title = "Sample Dataset"
	return d
}

func TestRegisterEmitsHandleAndIndexCommands(t *testing.T) {
	d := draft(t)

	out, err := Transition(d, EventRegister, Input{}, testNow)
	require.NoError(t, err)

	assert.Equal(t, models.StateDraft, out.From)
	assert.Equal(t, models.StateRegistered, out.To)
	assert.Equal(t, []Command{CmdRegisterHandle, CmdSyncIndex}, out.Commands)
	assert.Equal(t, models.StateRegistered, d.State)
}

func TestRegisterRejectedOutsideDraft(t *testing.T) {
	d := draft(t)
	_, err := Transition(d, EventRegister, Input{}, testNow)
	require.NoError(t, err)

	_, err = Transition(d, EventRegister, Input{}, testNow)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeInvariantViolation))
}

func TestPublishFromDraftAndRegistered(t *testing.T) {
	fromDraft := draft(t)
	out, err := Transition(fromDraft, EventPublish, Input{HasValidClient: true}, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, out.From)
	assert.Equal(t, models.StateFindable, out.To)
	assert.Equal(t, []Command{CmdRegisterHandle, CmdSyncIndex}, out.Commands)

	fromRegistered := draft(t)
	_, err = Transition(fromRegistered, EventRegister, Input{}, testNow)
	require.NoError(t, err)
	out, err = Transition(fromRegistered, EventPublish, Input{HasValidClient: true}, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.StateRegistered, out.From)
	assert.Equal(t, models.StateFindable, out.To)
}

func TestPublishRejectsDoublePublishAndInvalidClient(t *testing.T) {
	d := draft(t)
	_, err := Transition(d, EventPublish, Input{HasValidClient: true}, testNow)
	require.NoError(t, err)

	_, err = Transition(d, EventPublish, Input{HasValidClient: true}, testNow)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeInvariantViolation))

	other := draft(t)
	_, err = Transition(other, EventPublish, Input{HasValidClient: false}, testNow)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))
	assert.Equal(t, models.StateDraft, other.State, "record untouched on rejection")
}

func TestHideSkipsHandleCommand(t *testing.T) {
	d := draft(t)
	_, err := Transition(d, EventPublish, Input{HasValidClient: true}, testNow)
	require.NoError(t, err)

	out, err := Transition(d, EventHide, Input{}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []Command{CmdSyncIndex}, out.Commands, "hiding never touches the handle record")
	assert.Equal(t, models.StateRegistered, d.State)
}

func TestRejectedTransitionLeavesRecordUntouched(t *testing.T) {
	d := draft(t)
	d.Title = ""
	before := *d

	_, err := Transition(d, EventRegister, Input{}, testNow)
	require.Error(t, err)
	assert.Equal(t, before, *d)
}

func TestUnknownEvent(t *testing.T) {
	d := draft(t)
	_, err := Transition(d, Event("freeze"), Input{}, testNow)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeBadRequest))
}
