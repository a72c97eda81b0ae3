package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newUserPostRegistry(t *testing.T) *Registry {
	t.Helper()

	reg := New()
	reg.MustDefine("user", "users",
		Field{Name: "email", Type: FieldString, Unique: true},
	)
	reg.MustDefine("post", "posts",
		Field{Name: "user_id", Type: FieldString, Size: 50, Indexed: true},
		Field{Name: "body", Type: FieldText},
	)
	return reg
}

func TestDefineInjectsBookkeepingFields(t *testing.T) {
	t.Parallel()

	reg := New()
	def, err := reg.Define("user", "users", Field{Name: "email", Type: FieldString})
	require.NoError(t, err)

	id, ok := def.Field("id")
	require.True(t, ok)
	require.True(t, id.PrimaryKey)
	require.Equal(t, FieldString, id.Type)
	require.Equal(t, 50, id.Size)

	version, ok := def.Field("version")
	require.True(t, ok)
	require.Equal(t, FieldBigInt, version.Type)
	require.Equal(t, "0", version.Default)

	_, ok = def.Field("created_at")
	require.True(t, ok)
	_, ok = def.Field("modified_at")
	require.True(t, ok)

	require.Equal(t, "id", def.PrimaryKey().Name)
}

func TestDefineKeepsDeclaredPrimaryKey(t *testing.T) {
	t.Parallel()

	reg := New()
	def, err := reg.Define("country", "countries",
		Field{Name: "code", Type: FieldString, Size: 2, PrimaryKey: true},
	)
	require.NoError(t, err)

	require.Equal(t, "code", def.PrimaryKey().Name)
	_, hasID := def.Field("id")
	require.False(t, hasID)
}

func TestDefineValidation(t *testing.T) {
	t.Parallel()

	reg := New()
	_, err := reg.Define("", "users")
	require.Error(t, err)

	_, err = reg.Define("user", "")
	require.Error(t, err)

	_, err = reg.Define("user", "users")
	require.NoError(t, err)
	_, err = reg.Define("user", "users")
	require.Error(t, err)
	require.Contains(t, err.Error(), "already defined")

	_, err = reg.Define("bad", "bads",
		Field{Name: "x", Type: FieldInt},
		Field{Name: "x", Type: FieldInt},
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate field")
}

func TestRelateValidation(t *testing.T) {
	t.Parallel()

	reg := newUserPostRegistry(t)

	require.Error(t, reg.Relate("r", "ghost", "user_id", "user", DeleteCascade))
	require.Error(t, reg.Relate("r", "post", "user_id", "ghost", DeleteCascade))
	require.Error(t, reg.Relate("r", "post", "missing_fk", "user", DeleteCascade))

	// Set-null can only null out a nullable column.
	err := reg.Relate("r", "post", "user_id", "user", DeleteSetNull)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nullable")

	require.NoError(t, reg.Relate("user_posts", "post", "user_id", "user", DeleteCascade))

	err = reg.Relate("again", "post", "user_id", "user", DeleteRestrict)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already related")
}

func TestRelationshipLookups(t *testing.T) {
	t.Parallel()

	reg := newUserPostRegistry(t)
	reg.MustRelate("user_posts", "post", "user_id", "user", DeleteCascade)

	children := reg.ChildrenOf("user")
	require.Len(t, children, 1)
	require.Equal(t, "post", children[0].Child)
	require.Equal(t, DeleteCascade, children[0].OnDelete)

	refs := reg.ReferencesFrom("post")
	require.Len(t, refs, 1)
	require.Equal(t, "user", refs[0].Parent)

	rel, ok := reg.RelationshipFor("post", "user_id")
	require.True(t, ok)
	require.Equal(t, "user_posts", rel.Name)

	_, ok = reg.RelationshipFor("post", "other")
	require.False(t, ok)

	require.Empty(t, reg.ChildrenOf("post"))
	require.Empty(t, reg.ReferencesFrom("user"))
}

func TestLookupAndDefinitionsOrder(t *testing.T) {
	t.Parallel()

	reg := newUserPostRegistry(t)

	def, err := reg.Lookup("user")
	require.NoError(t, err)
	require.Equal(t, "users", def.Table)

	_, err = reg.Lookup("ghost")
	require.Error(t, err)

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	require.Equal(t, "user", defs[0].Name)
	require.Equal(t, "post", defs[1].Name)
}

func TestDeletePolicyString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "RESTRICT", DeleteRestrict.String())
	require.Equal(t, "CASCADE", DeleteCascade.String())
	require.Equal(t, "SET NULL", DeleteSetNull.String())
}
