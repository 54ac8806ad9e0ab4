package functions

import (
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDFunction(t *testing.T) {
	r := NewRegistry()

	first, ok := r.Call("uuid", nil)
	require.True(t, ok)
	second, ok := r.Call("uuid", nil)
	require.True(t, ok)

	assert.Len(t, first, 36)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`), first)
	assert.NotEqual(t, first, second)
}

func TestRandomStringDefaults(t *testing.T) {
	r := NewRegistry()

	out, ok := r.Call("randomString", nil)
	require.True(t, ok)
	assert.Len(t, out, 10)

	out, _ = r.Call("randomString", []string{"24"})
	assert.Len(t, out, 24)

	// Invalid length falls back to the default instead of failing.
	out, _ = r.Call("randomString", []string{"not-a-number"})
	assert.Len(t, out, 10)
}

func TestRandomCharsets(t *testing.T) {
	r := NewRegistry()

	alpha, _ := r.Call("randomAlpha", []string{"32"})
	assert.Regexp(t, `^[a-zA-Z]{32}$`, alpha)

	num, _ := r.Call("randomNumeric", []string{"8"})
	assert.Regexp(t, `^[0-9]{8}$`, num)

	hex, _ := r.Call("randomHex", nil)
	assert.Regexp(t, `^[0-9a-f]{16}$`, hex)
}

func TestRandomNumberRange(t *testing.T) {
	r := NewRegistry()

	for range 50 {
		out, ok := r.Call("randomNumber", []string{"10", "20"})
		require.True(t, ok)

		n, err := strconv.Atoi(out)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 10)
		assert.Less(t, n, 20)
	}

	// Inverted bounds still produce a value instead of failing.
	out, _ := r.Call("randomNumber", []string{"5", "5"})
	assert.Equal(t, "5", out)
}

func TestRandomEmail(t *testing.T) {
	r := NewRegistry()

	out, _ := r.Call("randomEmail", nil)
	assert.Regexp(t, `^[a-zA-Z]+@example\.com$`, out)
}

func TestTimestamps(t *testing.T) {
	r := NewRegistry()

	ms, _ := r.Call("timestamp", nil)
	n, err := strconv.ParseInt(ms, 10, 64)
	require.NoError(t, err)
	assert.InDelta(t, time.Now().UnixMilli(), n, 5000)

	iso, _ := r.Call("isoTimestamp", nil)
	_, err = time.Parse(time.RFC3339, iso)
	assert.NoError(t, err)
}

func TestDateArithmetic(t *testing.T) {
	r := NewRegistry()

	today, _ := r.Call("date", nil)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), today)

	tomorrow, _ := r.Call("date", []string{"1"})
	assert.Equal(t, time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02"), tomorrow)

	custom, _ := r.Call("date", []string{"0", "02/01/2006"})
	assert.Equal(t, time.Now().UTC().Format("02/01/2006"), custom)
}

func TestPickOne(t *testing.T) {
	r := NewRegistry()

	options := []string{"red", "green", "blue"}

	out, ok := r.Call("pickOne", options)
	require.True(t, ok)
	assert.Contains(t, options, out)

	empty, _ := r.Call("pickOne", nil)
	assert.Empty(t, empty)
}

func TestUnknownFunctionFallsThrough(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Call("definitelyNotAFunction", nil)
	assert.False(t, ok)
}
