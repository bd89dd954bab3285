package memory

import (
	"testing"

	"github.com/adwski/walkie-talkie/backend/model"
	"github.com/stretchr/testify/require"
)

func TestMemStore_Register_Duplicate(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()

	// Given alice is registered
	alice, err := ms.Register("alice")
	req.NoError(err)
	req.Len(alice.Token, 2*defaultTokenLength)

	// When the name is registered again
	_, err = ms.Register("alice")

	// Then registration fails
	req.ErrorIs(err, model.ErrNameTaken)

	// And the first token is still valid
	name, ok := ms.Authenticate(alice.Token)
	req.True(ok)
	req.Equal("alice", name)
}

func TestMemStore_Tokens_Are_Unique(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()

	alice, err := ms.Register("alice")
	req.NoError(err)
	bob, err := ms.Register("bob")
	req.NoError(err)

	req.NotEqual(alice.Token, bob.Token)
	name, ok := ms.Authenticate(bob.Token)
	req.True(ok)
	req.Equal("bob", name)
}

func TestMemStore_Unregister(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()

	alice, err := ms.Register("alice")
	req.NoError(err)

	req.True(ms.Unregister("alice"))
	req.False(ms.Unregister("alice"))

	_, ok := ms.Authenticate(alice.Token)
	req.False(ok)
	req.False(ms.IsRegistered("alice"))
	req.Empty(ms.List())

	// name can be taken again with a new token
	again, err := ms.Register("alice")
	req.NoError(err)
	req.NotEqual(alice.Token, again.Token)
}

func TestMemStore_List_Keeps_Registration_Order(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := ms.Register(name)
		req.NoError(err)
	}
	ms.Unregister("alice")
	_, err := ms.Register("alice")
	req.NoError(err)

	names := ms.List()
	req.Equal([]string{"carol", "bob", "alice"}, names)

	// returned slice is a copy
	names[0] = "mallory"
	req.Equal("carol", ms.List()[0])
}

func TestMemStore_Authenticate_Empty_Token(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()

	_, ok := ms.Authenticate("")
	req.False(ok)
}
