package terminal

import (
	"bytes"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequester struct {
	closes  atomic.Int32
	cancels atomic.Int32
}

func (f *fakeRequester) RequestClose()  { f.closes.Add(1) }
func (f *fakeRequester) RequestCancel() { f.cancels.Add(1) }

func apply(t *testing.T, m model, msgs ...tea.Msg) (model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(model)
	}
	return m, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelRendersState(t *testing.T) {
	t.Parallel()

	m, _ := apply(t, newModel(),
		titleMsg("Backup"),
		labelMsg("Copying files"),
		fractionMsg(0.5),
		progressTextMsg(" 50% 1.0 KiB of 2.0 KiB"),
		stageMsg("Processing..."),
		warningMsg{text: "disk almost full", visible: true},
	)
	view := m.View()
	assert.Contains(t, view, "Backup")
	assert.Contains(t, view, "Copying files")
	assert.Contains(t, view, "50% 1.0 KiB of 2.0 KiB")
	assert.Contains(t, view, "Processing...")
	assert.Contains(t, view, "disk almost full")

	m, _ = apply(t, m, warningMsg{})
	assert.NotContains(t, m.View(), "disk almost full")
}

func TestModelPulseAdvancesSpinner(t *testing.T) {
	t.Parallel()

	m, _ := apply(t, newModel(), pulseMsg{})
	require.True(t, m.pulsing)
	first := m.spinner.View()

	m, _ = apply(t, m, pulseMsg{})
	assert.NotEqual(t, first, m.spinner.View())

	m, _ = apply(t, m, fractionMsg(0.1))
	assert.False(t, m.pulsing)
}

func TestModelCancelHint(t *testing.T) {
	t.Parallel()

	m, _ := apply(t, newModel(), cancelVisibleMsg(true))
	assert.Contains(t, m.View(), "c: cancel")

	m, _ = apply(t, m, cancelVisibleMsg(false))
	assert.NotContains(t, m.View(), "c: cancel")
}

func TestModelKeysForwardToRequester(t *testing.T) {
	t.Parallel()

	req := &fakeRequester{}
	m := newModel()
	m.requester = req

	_, cmd := apply(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, int32(1), req.closes.Load())

	// The cancel key only works while cancel is offered.
	_, cmd = apply(t, m, runes("c"))
	assert.Nil(t, cmd)

	m, _ = apply(t, m, cancelVisibleMsg(true))
	_, cmd = apply(t, m, runes("c"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, int32(1), req.cancels.Load())
}

func TestModelConfirm(t *testing.T) {
	t.Parallel()

	reply := make(chan bool, 1)
	m, _ := apply(t, newModel(), confirmMsg{reply: reply})
	assert.Contains(t, m.View(), "Cancel the running job?")

	m, _ = apply(t, m, runes("y"))
	assert.True(t, <-reply)
	assert.Nil(t, m.confirm)

	reply = make(chan bool, 1)
	m, _ = apply(t, m, confirmMsg{reply: reply}, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, <-reply)
	assert.Nil(t, m.confirm)
}

func TestModelRejectsSecondConfirm(t *testing.T) {
	t.Parallel()

	first := make(chan bool, 1)
	second := make(chan bool, 1)
	m, _ := apply(t, newModel(), confirmMsg{reply: first}, confirmMsg{reply: second})
	assert.False(t, <-second)
	assert.Equal(t, first, m.confirm)
}

func TestSurfaceBeforePresent(t *testing.T) {
	t.Parallel()

	s := New(WithOutput(&bytes.Buffer{}), WithInput(&bytes.Buffer{}))
	s.SetTitle("Sync")
	s.SetStageText("Processing...")
	assert.Equal(t, "Sync", s.model.title)
	assert.Contains(t, s.model.View(), "Processing...")
	assert.False(t, s.ConfirmBeforeClosing())

	s.Destroy()
	s.SetTitle("ignored")
	assert.Equal(t, "Sync", s.model.title)
}

func TestSurfaceShowError(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := New(WithOutput(&out))
	s.ShowError("Backup failed: disk full", "trace")
	assert.Contains(t, out.String(), "Backup failed: disk full")
	assert.Contains(t, out.String(), "trace")
}
