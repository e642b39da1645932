package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/speecherr"
	"github.com/stretchr/testify/require"
)

type fakeIndicator struct {
	listening    atomic.Int32
	stopCues     atomic.Int32
	completeCues atomic.Int32
	cancelCues   atomic.Int32
	lastError    atomic.Value
}

func (f *fakeIndicator) ShowListening(context.Context)            { f.listening.Add(1) }
func (*fakeIndicator) ShowTranscribing(context.Context)           {}
func (f *fakeIndicator) ShowError(_ context.Context, text string) { f.lastError.Store(text) }
func (f *fakeIndicator) CueStop(context.Context)                  { f.stopCues.Add(1) }
func (f *fakeIndicator) CueComplete(context.Context)              { f.completeCues.Add(1) }
func (f *fakeIndicator) CueCancel(context.Context)                { f.cancelCues.Add(1) }
func (*fakeIndicator) Hide(context.Context)                       {}

func (f *fakeIndicator) errorText() string {
	text, _ := f.lastError.Load().(string)
	return text
}

type fakeTranscriber struct {
	startErr    error
	transcript  string
	stopErr     error
	stopCalls   atomic.Int32
	cancelCalls atomic.Int32
}

func (f *fakeTranscriber) Start(context.Context) error {
	return f.startErr
}

func (f *fakeTranscriber) StopAndTranscribe(context.Context) (StopResult, error) {
	f.stopCalls.Add(1)
	return StopResult{
		Transcript:    f.transcript,
		Path:          "test",
		Language:      "en-AU",
		AudioDevice:   "test mic",
		BytesCaptured: 3200,
		Latency:       200 * time.Millisecond,
	}, f.stopErr
}

func (f *fakeTranscriber) Cancel(context.Context) error {
	f.cancelCalls.Add(1)
	return nil
}

// liveTranscriber ends on its own when done is closed.
type liveTranscriber struct {
	fakeTranscriber
	done     chan struct{}
	progress Progress
}

func (l *liveTranscriber) Done() <-chan struct{} { return l.done }
func (l *liveTranscriber) Progress() Progress    { return l.progress }

func runAsync(ctx context.Context, ctrl *Controller) <-chan Result {
	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx)
	}()
	return resultCh
}

func TestControllerCancel(t *testing.T) {
	transcriber := &fakeTranscriber{}
	ind := &fakeIndicator{}
	ctrl := NewController(nil, transcriber, nil, ind)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := runAsync(ctx, ctrl)

	waitForPhase(t, ctrl, PhaseRecording)
	resp := ctrl.Handle(ctx, ipc.Request{Command: "cancel"})
	require.True(t, resp.OK, "%+v", resp)

	result := <-resultCh
	require.True(t, result.Cancelled)
	require.Equal(t, PhaseIdle, ctrl.Phase())
	require.NotZero(t, transcriber.cancelCalls.Load())
	require.NotZero(t, ind.cancelCues.Load())
	require.Zero(t, ind.stopCues.Load())
	require.Zero(t, ind.completeCues.Load())
}

func TestControllerStopCommitsTranscript(t *testing.T) {
	var committed atomic.Value
	ind := &fakeIndicator{}
	ctrl := NewController(
		nil,
		&fakeTranscriber{transcript: "hello world"},
		CommitFunc(func(_ context.Context, text string) error {
			committed.Store(text)
			return nil
		}),
		ind,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := runAsync(ctx, ctrl)

	waitForPhase(t, ctrl, PhaseRecording)
	require.True(t, ctrl.Handle(ctx, ipc.Request{Command: "stop"}).OK)

	result := <-resultCh
	require.NoError(t, result.Err)
	require.Equal(t, "hello world", result.Transcript)
	require.Equal(t, "test mic", result.AudioDevice)
	require.Equal(t, "en-AU", result.Language)
	require.Equal(t, "test", result.Path)
	require.Equal(t, int64(3200), result.BytesCaptured)
	require.Equal(t, "hello world", committed.Load())
	require.Equal(t, PhaseIdle, result.Phase)
	require.NotZero(t, ind.listening.Load())
	require.NotZero(t, ind.stopCues.Load())
	require.Zero(t, ind.cancelCues.Load())
	require.NotZero(t, ind.completeCues.Load())
}

func TestControllerStopPipelineError(t *testing.T) {
	ind := &fakeIndicator{}
	ctrl := NewController(nil, &fakeTranscriber{stopErr: ErrPipelineUnavailable}, nil, ind)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := runAsync(ctx, ctrl)

	waitForPhase(t, ctrl, PhaseRecording)
	require.True(t, ctrl.Handle(ctx, ipc.Request{Command: "toggle"}).OK)

	result := <-resultCh
	require.ErrorIs(t, result.Err, ErrPipelineUnavailable)
	require.Empty(t, result.Code)
	require.Equal(t, PhaseIdle, ctrl.Phase())
	require.NotZero(t, ind.stopCues.Load())
	require.Zero(t, ind.completeCues.Load())
}

func TestControllerStopClassifiedError(t *testing.T) {
	ind := &fakeIndicator{}
	stopErr := speecherr.New(speecherr.CodeNetworkFailure, "connection reset")
	ctrl := NewController(nil, &fakeTranscriber{stopErr: stopErr}, nil, ind)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := runAsync(ctx, ctrl)
	waitForPhase(t, ctrl, PhaseRecording)
	require.True(t, ctrl.Handle(ctx, ipc.Request{Command: "stop"}).OK)

	result := <-resultCh
	require.Equal(t, speecherr.CodeNetworkFailure, result.Code)
	require.Equal(t, speecherr.Message(speecherr.CodeNetworkFailure, ""), ind.errorText())
}

func TestControllerStopEmptyTranscriptReturnsError(t *testing.T) {
	var committed atomic.Bool
	ind := &fakeIndicator{}
	ctrl := NewController(
		nil,
		&fakeTranscriber{transcript: "   "},
		CommitFunc(func(context.Context, string) error {
			committed.Store(true)
			return nil
		}),
		ind,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := runAsync(ctx, ctrl)

	waitForPhase(t, ctrl, PhaseRecording)
	require.True(t, ctrl.Handle(ctx, ipc.Request{Command: "stop"}).OK)

	result := <-resultCh
	require.ErrorIs(t, result.Err, ErrEmptyTranscript)
	require.Equal(t, speecherr.CodeNoSpeechDetected, result.Code)
	require.False(t, committed.Load())
	require.Equal(t, PhaseIdle, ctrl.Phase())
	require.NotZero(t, ind.stopCues.Load())
	require.Zero(t, ind.completeCues.Load())
}

func TestControllerAutoStopsWhenRecognitionEnds(t *testing.T) {
	live := &liveTranscriber{
		fakeTranscriber: fakeTranscriber{transcript: "turn on the lights"},
		done:            make(chan struct{}),
		progress:        Progress{Path: "native", Listening: true, Interim: "turn on", Language: "en-GB"},
	}
	var committed atomic.Bool
	ctrl := NewController(nil, live, CommitFunc(func(context.Context, string) error {
		committed.Store(true)
		return nil
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := runAsync(ctx, ctrl)
	waitForPhase(t, ctrl, PhaseRecording)

	status := ctrl.Handle(ctx, ipc.Request{Command: "status"})
	require.True(t, status.OK)
	require.Equal(t, "recording", status.State)
	require.Equal(t, "turn on", status.Interim)
	require.Equal(t, "native", status.Path)
	require.Equal(t, "en-GB", status.Language)

	close(live.done)

	result := <-resultCh
	require.NoError(t, result.Err)
	require.True(t, result.AutoStopped)
	require.Equal(t, "turn on the lights", result.Transcript)
	require.True(t, committed.Load())
	require.Equal(t, int32(1), live.stopCalls.Load())
}

func TestControllerStartFailureCarriesProgressCode(t *testing.T) {
	live := &liveTranscriber{
		fakeTranscriber: fakeTranscriber{startErr: speecherr.New(speecherr.CodePermissionBlocked, "")},
		done:            make(chan struct{}),
		progress:        Progress{Path: "native", Code: speecherr.CodePermissionBlocked},
	}
	ind := &fakeIndicator{}
	ctrl := NewController(nil, live, nil, ind)

	result := ctrl.Run(context.Background())
	require.Error(t, result.Err)
	require.Equal(t, speecherr.CodePermissionBlocked, result.Code)
	require.Equal(t, "native", result.Path)
	require.Equal(t, PhaseIdle, result.Phase)
	require.Equal(t, speecherr.Message(speecherr.CodePermissionBlocked, ""), ind.errorText())
	require.Zero(t, live.stopCalls.Load())
}

func TestControllerStartFailureWithoutPipeline(t *testing.T) {
	ind := &fakeIndicator{}
	ctrl := NewController(nil, &fakeTranscriber{startErr: ErrPipelineUnavailable}, nil, ind)

	result := ctrl.Run(context.Background())
	require.ErrorIs(t, result.Err, ErrPipelineUnavailable)
	require.Equal(t, speecherr.Message(speecherr.CodeUnsupported, ""), ind.errorText())
}

func TestRunTwiceIsAllowedAfterCompletion(t *testing.T) {
	ctrl := NewController(nil, &fakeTranscriber{transcript: "again"}, nil, nil)

	for range 2 {
		ctx, cancel := context.WithCancel(context.Background())
		resultCh := runAsync(ctx, ctrl)
		waitForPhase(t, ctrl, PhaseRecording)
		require.True(t, ctrl.Handle(ctx, ipc.Request{Command: "stop"}).OK)
		result := <-resultCh
		cancel()
		require.NoError(t, result.Err)
	}
}

func TestNextPhaseRejectsInvalidTransitions(t *testing.T) {
	_, err := nextPhase(PhaseIdle, eventStop)
	require.Error(t, err)

	next, err := nextPhase(PhaseTranscribing, eventFail)
	require.NoError(t, err)
	require.Equal(t, PhaseError, next)

	next, err = nextPhase(PhaseIdle, eventFail)
	require.NoError(t, err)
	require.Equal(t, PhaseError, next)

	_, err = nextPhase(PhaseTranscribing, eventCancel)
	require.Error(t, err)
}

func waitForPhase(t *testing.T, ctrl *Controller, desired Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.Phase() == desired {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %s (current=%s)", desired, ctrl.Phase())
}
