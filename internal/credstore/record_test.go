package credstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_ReplaceSessionPreservesOtherFields(t *testing.T) {
	raw := `{
  "accountName": "ops@example.com",
  "cookies": [{"name": "old", "value": "1", "domain": "a", "path": "/", "expires": -1, "httpOnly": false, "secure": false}],
  "origins": [{"origin": "https://old.example", "localStorage": []}],
  "meta": {"note": "keep me", "n": 3}
}`
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, "old", rec.Cookies[0].Name)

	rec.ReplaceSession(StorageState{
		Cookies: []Cookie{{Name: "new", Value: "2", Domain: "b", Path: "/", Expires: 1700000000}},
	})

	out, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.JSONEq(t, `"ops@example.com"`, string(decoded["accountName"]))
	assert.JSONEq(t, `{"note": "keep me", "n": 3}`, string(decoded["meta"]))
	assert.JSONEq(t, `[]`, string(decoded["origins"]))

	var again Record
	require.NoError(t, json.Unmarshal(out, &again))
	require.Len(t, again.Cookies, 1)
	assert.Equal(t, "new", again.Cookies[0].Name)
	assert.Empty(t, again.Origins)

	field, ok := again.Field("accountName")
	assert.True(t, ok)
	assert.JSONEq(t, `"ops@example.com"`, string(field))
}

func TestRecord_EmptyEncodesArrays(t *testing.T) {
	out, err := json.Marshal(Record{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cookies": [], "origins": []}`, string(out))
}

func TestRecord_RejectsNonObject(t *testing.T) {
	var rec Record
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`null`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`{"cookies": "nope"}`), &rec))
}
