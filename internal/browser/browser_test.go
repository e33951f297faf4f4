package browser

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifyshot/internal/fixture"
)

func TestNewEngine(t *testing.T) {
	for _, name := range []string{"", "playwright", "rod"} {
		e, err := New(name, nil)
		require.NoError(t, err, name)
		if name == "" {
			assert.Equal(t, "playwright", e.Name())
			continue
		}
		assert.Equal(t, name, e.Name())
	}

	_, err := New("selenium", nil)
	require.Error(t, err)
}

func TestTimeoutErrMatches(t *testing.T) {
	cause := errors.New("deadline")
	err := timeoutErr("wait for x", cause)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "wait for x")
}

func TestStorageStateConversion(t *testing.T) {
	assert.Nil(t, storageState(fixture.StorageState{}))

	st, err := fixture.Seed("http://localhost:5173", "mcp_tested_servers", fixture.Default())
	require.NoError(t, err)

	got := storageState(st)
	require.NotNil(t, got)
	require.Len(t, got.Origins, 1)
	assert.Equal(t, "http://localhost:5173", got.Origins[0].Origin)
	require.Len(t, got.Origins[0].LocalStorage, 1)
	assert.Equal(t, "mcp_tested_servers", got.Origins[0].LocalStorage[0].Name)

	want, _ := st.Lookup("http://localhost:5173", "mcp_tested_servers")
	assert.Equal(t, want, got.Origins[0].LocalStorage[0].Value)
}

func TestSeedScript(t *testing.T) {
	assert.Empty(t, seedScript(fixture.StorageState{}))

	st := fixture.StorageState{Origins: []fixture.Origin{{
		Origin:       "http://localhost:5173",
		LocalStorage: []fixture.Entry{{Name: "k", Value: `[{"url":"a'b"}]`}},
	}}}
	script := seedScript(st)
	assert.Contains(t, script, `location.origin === "http://localhost:5173"`)
	assert.Contains(t, script, `localStorage.setItem("k", "[{\"url\":\"a'b\"}]")`)
	assert.True(t, strings.Index(script, "sessionStorage.getItem") < strings.Index(script, "localStorage.setItem"))
}

func TestExactText(t *testing.T) {
	re := regexp.MustCompile(exactText("server2.com"))
	assert.True(t, re.MatchString("server2.com"))
	assert.True(t, re.MatchString("  server2.com\n"))
	assert.False(t, re.MatchString("server2Xcom"))
	assert.False(t, re.MatchString("server2.com\nLast Score: 80"))

	assert.True(t, regexp.MustCompile(exactText("×")).MatchString(" × "))
}
