package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordRoundTripKeepsKeyOrder(t *testing.T) {
	raw := `{"zeta":1,"alpha":{"z":"last","a":[1,2.50,{"y":null,"b":true}]},"mid":"text"}`
	rec, err := ParseRecord([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, rec.Keys())
	alpha, ok := rec.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a"}, alpha.Record().Keys())

	encoded, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, raw, string(encoded))
}

func TestParseRecordRejectsNonObjects(t *testing.T) {
	_, err := ParseRecord([]byte(`[1, 2]`))
	assert.Error(t, err)

	_, err = ParseRecord([]byte(`{"a": `))
	assert.Error(t, err)

	rec, err := ParseRecord([]byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Len())
}

func TestRecordSetBeforePlacesNewKeyAtAnchor(t *testing.T) {
	rec := NewRecord()
	rec.Set("a", String("1"))
	rec.Set("c", String("3"))

	rec.SetBefore("b", String("2"), "c")
	assert.Equal(t, []string{"a", "b", "c"}, rec.Keys())

	rec.SetBefore("a", String("updated"), "c")
	assert.Equal(t, []string{"a", "b", "c"}, rec.Keys())
	v, _ := rec.Get("a")
	assert.Equal(t, "updated", v.Text())

	rec.SetBefore("d", String("4"), "missing")
	assert.Equal(t, []string{"a", "b", "c", "d"}, rec.Keys())
}

func TestRecordRemovePrunesEmptyParents(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"originator": {"address": {"city": "Portland"}}, "originator_id": 2}`))
	require.NoError(t, err)

	assert.True(t, rec.Remove("originator.address.city"))
	assert.False(t, rec.Has("originator"))
	assert.Equal(t, []string{"originator_id"}, rec.Keys())

	assert.False(t, rec.Remove("originator.address.city"))
	assert.False(t, rec.Remove("originator_id.nested"))
}

func TestRecordRemoveKeepsNonEmptyParents(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"customer_address": {"city": "Portland", "zip": "97210"}}`))
	require.NoError(t, err)

	assert.True(t, rec.Remove("customer_address.city"))
	zip, ok := rec.Lookup("customer_address.zip")
	require.True(t, ok)
	assert.Equal(t, "97210", zip.Text())
}

func TestRecordSetPathReplacesScalarsAlongThePath(t *testing.T) {
	rec := NewRecord()
	rec.Set("a", String("scalar"))
	rec.SetPath("a.b.c", Int(7))

	v, ok := rec.Lookup("a.b.c")
	require.True(t, ok)
	assert.Equal(t, "7", v.Text())
}

func TestRecordCloneIsDeep(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"trip_claims": [{"id": 1}]}`))
	require.NoError(t, err)

	clone := rec.Clone()
	clone.SetPath("trip_claims", Sequence())
	claims, _ := rec.Get("trip_claims")
	assert.Len(t, claims.Items(), 1)
	assert.False(t, rec.Equal(clone))
}

func TestValueInt64(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{raw: `{"v": 42}`, want: 42, ok: true},
		{raw: `{"v": " 17 "}`, want: 17, ok: true},
		{raw: `{"v": 3.0}`, want: 3, ok: true},
		{raw: `{"v": 3.5}`, ok: false},
		{raw: `{"v": "abc-1"}`, ok: false},
		{raw: `{"v": ""}`, ok: false},
		{raw: `{"v": true}`, ok: false},
		{raw: `{"v": [1]}`, ok: false},
	}
	for _, tc := range cases {
		rec, err := ParseRecord([]byte(tc.raw))
		require.NoError(t, err)
		v, _ := rec.Get("v")
		got, ok := v.Int64()
		assert.Equal(t, tc.ok, ok, tc.raw)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.raw)
		}
	}
}

func TestValueEqualDistinguishesScalarTypes(t *testing.T) {
	assert.True(t, Int(1).Equal(Number("1")))
	assert.False(t, Int(1).Equal(String("1")))
	assert.False(t, Null().Equal(String("")))
	assert.True(t, Sequence(String("a")).Equal(Sequence(String("a"))))
}

func TestValueBlankAndText(t *testing.T) {
	assert.True(t, Null().IsBlank())
	assert.True(t, String("  ").IsBlank())
	assert.True(t, Sequence().IsBlank())
	assert.False(t, Bool(false).IsBlank())

	assert.Equal(t, "false", Bool(false).Text())
	assert.Equal(t, `["a",1]`, Sequence(String("a"), Int(1)).Text())
	assert.Equal(t, "", Null().Text())
}
