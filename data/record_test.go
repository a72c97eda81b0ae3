package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordSetPreservesOrder(t *testing.T) {
	t.Parallel()

	rec := NewRecord("user").
		Set("handle", "amina").
		Set("email", "amina@example.com").
		Set("handle", "amina2")

	require.Equal(t, []string{"handle", "email"}, rec.Fields())

	v, ok := rec.Get("handle")
	require.True(t, ok)
	require.Equal(t, "amina2", v)
}

func TestRecordClearIsDistinctFromUnset(t *testing.T) {
	t.Parallel()

	rec := NewRecord("practice_record").Set("sentence_id", "abc")
	require.False(t, rec.IsCleared("sentence_id"))

	rec.Clear("sentence_id")
	require.True(t, rec.IsCleared("sentence_id"))

	v, ok := rec.Get("sentence_id")
	require.True(t, ok)
	require.Nil(t, v)

	// Setting the field again withdraws the clear.
	rec.Set("sentence_id", "def")
	require.False(t, rec.IsCleared("sentence_id"))

	require.False(t, rec.IsCleared("never_touched"))
}

func TestRecordGenIDKeepsExistingID(t *testing.T) {
	t.Parallel()

	rec := NewRecord("user").SetID("fixed")
	rec.GenID()
	require.Equal(t, "fixed", rec.ID())

	fresh := NewRecord("user")
	fresh.GenID()
	id, ok := fresh.ID().(string)
	require.True(t, ok)
	require.True(t, ValidXID(id))
}

func TestRecordIdentityReadsNamedKey(t *testing.T) {
	t.Parallel()

	rec := NewRecord("country").Set("code", "KE")
	require.Equal(t, "KE", rec.Identity("code"))
	require.Nil(t, rec.Identity(FieldID))
	require.Nil(t, rec.ID())
}

func TestRecordStampInsertLeavesIdentityAlone(t *testing.T) {
	t.Parallel()

	now := time.Now()
	rec := NewRecord("country").Set("code", "KE")
	rec.StampInsert(now)

	require.Nil(t, rec.ID())
	require.Equal(t, uint(1), rec.Version())
	created, _ := rec.Get(FieldCreatedAt)
	require.Equal(t, now, created)
}

func TestRecordPrepareInsert(t *testing.T) {
	t.Parallel()

	now := time.Now()
	rec := NewRecord("user").Set("handle", "amina")
	rec.PrepareInsert(now)

	require.NotNil(t, rec.ID())
	require.Equal(t, uint(1), rec.Version())

	created, ok := rec.Get(FieldCreatedAt)
	require.True(t, ok)
	require.Equal(t, now, created)

	modified, ok := rec.Get(FieldModifiedAt)
	require.True(t, ok)
	require.Equal(t, now, modified)
}

func TestRecordPrepareInsertKeepsExplicitCreatedAt(t *testing.T) {
	t.Parallel()

	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := NewRecord("user").Set(FieldCreatedAt, created)
	rec.PrepareInsert(time.Now())

	v, _ := rec.Get(FieldCreatedAt)
	require.Equal(t, created, v)
}

func TestRecordPrepareUpdateBumpsVersion(t *testing.T) {
	t.Parallel()

	rec := NewRecord("user").SetID("u1").Set(FieldVersion, 3)
	expected := rec.PrepareUpdate(time.Now())

	require.Equal(t, uint(3), expected)
	require.Equal(t, uint(4), rec.Version())
}

func TestRecordVersionCoercion(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint(0), NewRecord("x").Version())
	require.Equal(t, uint(7), NewRecord("x").Set(FieldVersion, int64(7)).Version())
	require.Equal(t, uint(7), NewRecord("x").Set(FieldVersion, 7).Version())
	require.Equal(t, uint(7), NewRecord("x").Set(FieldVersion, uint(7)).Version())
	require.Equal(t, uint(0), NewRecord("x").Set(FieldVersion, -1).Version())
}
