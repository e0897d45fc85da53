package record

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalPreservesOrder(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"z":1,"a":"two","m":{"y":2,"b":3}}`), &r)
	require.NoError(t, err)
	require.Equal(t, []string{"z", "a", "m"}, r.Keys())

	out, err := json.Marshal(&r)
	require.NoError(t, err)
	require.Equal(t, `{"z":1,"a":"two","m":{"y":2,"b":3}}`, string(out))
}

func TestFingerprintOrderIndependent(t *testing.T) {
	var a, b Record
	require.NoError(t, json.Unmarshal([]byte(`{"x":1,"y":[1,2,{"k":"v"}]}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"y":[1,2,{"k":"v"}],"x":1}`), &b))
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintContentSensitive(t *testing.T) {
	a := FromMap(map[string]any{"id": "X"})
	b := FromMap(map[string]any{"id": "Y"})
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintNumberCanonicalization(t *testing.T) {
	var a, b Record
	require.NoError(t, json.Unmarshal([]byte(`{"price":1.50,"qty":10}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"price":1.5,"qty":1e1}`), &b))
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestRoundTrip(t *testing.T) {
	payload := `{"SC_BSEID":"500325","value":12.5,"nested":{"list":[1,"a",null],"flag":true}}`
	var r Record
	require.NoError(t, json.Unmarshal([]byte(payload), &r))

	out, err := json.Marshal(&r)
	require.NoError(t, err)

	var again Record
	require.NoError(t, json.Unmarshal(out, &again))
	out2, err := json.Marshal(&again)
	require.NoError(t, err)
	if diff := cmp.Diff(string(out), string(out2)); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, payload, string(out))
}

func TestSet(t *testing.T) {
	s := NewSet("f1")
	require.True(t, s.Has("f1"))
	require.False(t, s.Has("f2"))
	s.Add("f2")
	require.True(t, s.Has("f2"))
}
