package supervisor

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(PhaseIdle, PhaseStarting))
	assert.True(t, canTransition(PhaseStarting, PhaseRunning))
	assert.True(t, canTransition(PhaseStarting, PhaseError))
	assert.True(t, canTransition(PhaseRunning, PhaseClosing))
	assert.True(t, canTransition(PhaseRunning, PhaseError))
	assert.True(t, canTransition(PhaseError, PhaseIdle))
	assert.True(t, canTransition(PhaseClosing, PhaseIdle))

	assert.False(t, canTransition(PhaseIdle, PhaseRunning))
	assert.False(t, canTransition(PhaseClosing, PhaseRunning))
	assert.False(t, canTransition(PhaseRunning, PhaseIdle))
}

func TestStatusCloneIsDeep(t *testing.T) {
	idx := 3
	file := "auth-3.json"
	st := Status{TargetIndex: &idx, LastAuthFile: &file}

	c := st.clone()
	*c.TargetIndex = 9
	*c.LastAuthFile = "auth-9.json"

	assert.Equal(t, 3, idx)
	assert.Equal(t, "auth-3.json", file)
}

func TestStatusJSONUsesNulls(t *testing.T) {
	out, err := json.Marshal(Status{Phase: PhaseIdle, Mode: capture.ModeCreate})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	for _, key := range []string{"targetIndex", "pid", "exitCode", "lastAuthFile", "lastAuthIndex", "error"} {
		v, present := decoded[key]
		assert.True(t, present, key)
		assert.Nil(t, v, key)
	}
	assert.Equal(t, false, decoded["continueSent"])
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, ok(MsgStarted).Err())

	tests := []struct {
		result Result
		code   int
	}{
		{fail(409, MsgAlreadyRunning, nil), exitcode.ErrBusy},
		{fail(409, MsgNotRunning, nil), exitcode.ErrConflict},
		{fail(400, MsgInvalidIndex, nil), exitcode.ErrUsage},
		{fail(500, MsgContinueFailed, errors.New("broken pipe")), exitcode.ErrInternal},
	}
	for _, tt := range tests {
		err := tt.result.Err()
		require.Error(t, err)
		assert.Equal(t, tt.code, exitcode.Code(err), string(tt.result.Message))
	}
	assert.Contains(t, fail(500, MsgContinueFailed, errors.New("broken pipe")).Err().Error(), "broken pipe")
}

func TestMergeEnv(t *testing.T) {
	env := mergeEnv([]string{"PATH=/bin", "SETUP_AUTH_MODE=stale", "HOME=/root"}, map[string]string{
		capture.EnvMode: "relogin",
		"SystemRoot":    `C:\Windows`,
	})
	assert.Equal(t, []string{"PATH=/bin", "HOME=/root", "SETUP_AUTH_MODE=relogin", `SystemRoot=C:\Windows`}, env)
}

func TestCaptureEnvSystemRootFallback(t *testing.T) {
	s := New(Config{Env: []string{`WINDIR=D:\Win`}}, nil)
	env := s.captureEnv(capture.ModeCreate, nil)
	assert.Equal(t, `D:\Win`, lookupEnv(env, "SystemRoot"))
	assert.Equal(t, "", lookupEnv(env, capture.EnvTargetIndex))
	assert.Equal(t, capture.DefaultLang, lookupEnv(env, capture.EnvLang))

	s = New(Config{Env: []string{`SystemRoot=E:\Sys`, `WINDIR=D:\Win`}}, nil)
	env = s.captureEnv(capture.ModeRelogin, intp(5))
	assert.Equal(t, `E:\Sys`, lookupEnv(env, "SystemRoot"))
	assert.Equal(t, "5", lookupEnv(env, capture.EnvTargetIndex))
	assert.Equal(t, "relogin", lookupEnv(env, capture.EnvMode))
}
