package frame

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractworks/hazidx/internal/domain"
)

func testFrame(t *testing.T, header string, rows ...string) *Frame {
	t.Helper()
	var data [][]string
	for _, r := range rows {
		data = append(data, strings.Split(r, ","))
	}
	f, err := FromRows(strings.Split(header, ","), data)
	require.NoError(t, err)
	return f
}

func TestFromRows_RejectsBadShape(t *testing.T) {
	_, err := FromRows([]string{"a", "a"}, nil)
	assert.ErrorContains(t, err, "duplicate column")

	_, err = FromRows([]string{"a", "b"}, [][]string{{"1"}})
	assert.ErrorContains(t, err, "header has 2")
}

func TestCoerceNumeric_SentinelsAndGarbage(t *testing.T) {
	f := testFrame(t, "state,NAME,B17001_002E,B17001_001E",
		"66,Agana,10,-666666666",
		"66,Dededo,oops,-999999999",
		"66,Yigo,,30",
	)
	f.CoerceNumeric([]string{"state", "NAME"})

	_, isString := f.Strings("state")
	assert.True(t, isString)

	col, ok := f.Floats("B17001_002E")
	require.True(t, ok)
	assert.Equal(t, 10.0, col[0])
	assert.True(t, math.IsNaN(col[1]))
	assert.True(t, math.IsNaN(col[2]))

	col, _ = f.Floats("B17001_001E")
	assert.True(t, math.IsNaN(col[0]))
	assert.True(t, math.IsNaN(col[1]))
	assert.Equal(t, 30.0, col[2])
}

func TestLeftJoin_AnchorsLeftRowSet(t *testing.T) {
	left := testFrame(t, "state,place,NAME,A",
		"66,100,Agana,1",
		"66,200,Dededo,2",
	)
	right := testFrame(t, "state,place,NAME,B",
		"66,200,Dededo,20",
		"66,300,Yigo,30",
	)

	out, err := LeftJoin(left, right, []string{"state", "place"})
	require.NoError(t, err)

	assert.Equal(t, 2, out.NumRows())
	// NAME came back on both sides; the left copy wins.
	assert.Equal(t, []string{"state", "place", "NAME", "A", "B"}, out.Columns())

	b, ok := out.Strings("B")
	require.True(t, ok)
	assert.Equal(t, []string{"", "20"}, b)
}

func TestLeftJoin_NumericColumnsGetMissingOnNoMatch(t *testing.T) {
	left := testFrame(t, "state,place", "66,100", "66,200")
	right := testFrame(t, "state,place,B", "66,100,7")
	right.CoerceNumeric([]string{"state", "place"})

	out, err := LeftJoin(left, right, []string{"state", "place"})
	require.NoError(t, err)

	b, ok := out.Floats("B")
	require.True(t, ok)
	assert.Equal(t, 7.0, b[0])
	assert.True(t, math.IsNaN(b[1]))
}

func TestLeftJoin_DuplicateKeyIsJoinError(t *testing.T) {
	left := testFrame(t, "state,place", "66,100")
	right := testFrame(t, "state,place,B", "66,100,1", "66,100,2")

	_, err := LeftJoin(left, right, []string{"state", "place"})
	var je *domain.JoinError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, "66/100", je.Key)
}

func TestCheckUniqueKeys(t *testing.T) {
	ok := testFrame(t, "state,place,B", "66,100,1", "66,200,2")
	require.NoError(t, CheckUniqueKeys(ok, []string{"state", "place"}))

	dup := testFrame(t, "state,place,B", "66,100,1", "66,300,2", "66,100,3")
	err := CheckUniqueKeys(dup, []string{"state", "place"})
	var je *domain.JoinError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, "66/100", je.Key)
}

func TestLeftJoin_DoesNotMutateInputs(t *testing.T) {
	left := testFrame(t, "state,place,A", "66,100,1")
	right := testFrame(t, "state,place,B", "66,100,2")

	_, err := LeftJoin(left, right, []string{"state", "place"})
	require.NoError(t, err)
	assert.Equal(t, []string{"state", "place", "A"}, left.Columns())
	assert.Equal(t, []string{"state", "place", "B"}, right.Columns())
}

func TestReorder(t *testing.T) {
	f := testFrame(t, "NAME,B,state,place", "x,1,66,100")
	f.Reorder([]string{"state", "place", "NAME"})
	assert.Equal(t, []string{"state", "place", "NAME", "B"}, f.Columns())
}

func TestCSV_RoundTrip(t *testing.T) {
	f := testFrame(t, "state,NAME,B17001_002E",
		"66,Agana,10.5",
		"66,Dededo,-666666666",
		"66,Yigo,3",
	)
	f.CoerceNumeric([]string{"state", "NAME"})

	var buf bytes.Buffer
	require.NoError(t, f.WriteCSV(&buf))

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	back.CoerceNumeric([]string{"state", "NAME"})

	assert.Equal(t, f.Columns(), back.Columns())
	want, _ := f.Floats("B17001_002E")
	got, ok := back.Floats("B17001_002E")
	require.True(t, ok)
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "row %d", i)
		} else {
			assert.InDelta(t, want[i], got[i], 1e-9, "row %d", i)
		}
	}
}
