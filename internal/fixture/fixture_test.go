package fixture

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCollection(t *testing.T) {
	c := Default()
	require.Len(t, c, 3)
	assert.Equal(t, []string{"server1.com", "server2.com", "server3.com"}, c.URLs())
	assert.Equal(t, Record{URL: "server1.com", Score: 95, Timestamp: 1678886400000}, c[0])
	assert.Equal(t, Record{URL: "server2.com", Score: 80, Timestamp: 1678886300000}, c[1])
	assert.Equal(t, Record{URL: "server3.com", Score: 75, Timestamp: 1678886200000}, c[2])
}

func TestValueRoundTripKeepsOrder(t *testing.T) {
	c := Collection{
		{URL: "z.example", Score: 1, Timestamp: 3},
		{URL: "a.example", Score: 2, Timestamp: 2},
		{URL: "m.example", Score: 3, Timestamp: 1},
	}
	value, err := c.Value()
	require.NoError(t, err)

	got, err := Parse(value)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestValueFieldNames(t *testing.T) {
	value, err := Default()[:1].Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"url":"server1.com","score":95,"timestamp":1678886400000}]`, value)
}

func TestValueFractionalScore(t *testing.T) {
	c := Collection{
		{URL: "a.example", Score: 87.5, Timestamp: 1},
		{URL: "b.example", Score: 95, Timestamp: 2},
	}
	value, err := c.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"url":"a.example","score":87.5,"timestamp":1},{"url":"b.example","score":95,"timestamp":2}]`, value)
	assert.Contains(t, value, `"score":95,`)

	got, err := Parse(value)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestNilCollectionIsEmptyList(t *testing.T) {
	var c Collection
	value, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", value)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("{not json")
	require.Error(t, err)
}

func TestSeed(t *testing.T) {
	state, err := Seed("http://localhost:5173", "mcp_tested_servers", Default())
	require.NoError(t, err)
	require.Len(t, state.Origins, 1)

	value, ok := state.Lookup("http://localhost:5173", "mcp_tested_servers")
	require.True(t, ok)
	got, err := Parse(value)
	require.NoError(t, err)
	assert.Equal(t, Default(), got)

	_, ok = state.Lookup("http://localhost:8080", "mcp_tested_servers")
	assert.False(t, ok)

	b, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"localStorage":[{"name":"mcp_tested_servers"`)
}

func TestSeedRequiresOriginAndKey(t *testing.T) {
	_, err := Seed("", "k", Default())
	require.Error(t, err)
	_, err = Seed("http://localhost", "", Default())
	require.Error(t, err)
}

func TestOriginOf(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:5173/report/dummy.server.com", want: "http://localhost:5173"},
		{in: "https://example.com", want: "https://example.com"},
		{in: "localhost:5173", wantErr: true},
		{in: "/report/x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := OriginOf(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
