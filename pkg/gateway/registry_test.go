package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func identities(clients []*Client) []string {
	out := make([]string, 0, len(clients))
	for _, c := range clients {
		out = append(out, c.Identity)
	}
	return out
}

func TestClientRegistryRecipients(t *testing.T) {
	r := NewClientRegistry()
	r.Add(&Client{ID: "1", Identity: "alice", Authenticated: true})
	r.Add(&Client{ID: "2", Identity: "bob", Authenticated: true})
	r.Add(&Client{ID: "3", Identity: "eve"})

	assert.Len(t, r.Recipients(nil), 2)

	addressed := r.Recipients([]string{"bob", "eve"})
	assert.Equal(t, []string{"bob"}, identities(addressed))

	assert.Empty(t, r.Recipients([]string{"mallory"}))
}

func TestClientRegistryMultipleConnectionsPerIdentity(t *testing.T) {
	r := NewClientRegistry()
	r.Add(&Client{ID: "phone", Identity: "alice", Authenticated: true})
	r.Add(&Client{ID: "laptop", Identity: "alice", Authenticated: true})

	assert.Len(t, r.Recipients([]string{"alice", "alice"}), 2)

	r.Remove("phone")
	assert.Len(t, r.Recipients([]string{"alice"}), 1)

	r.Remove("laptop")
	assert.Empty(t, r.Recipients([]string{"alice"}))
	assert.Equal(t, 0, r.Count())
}

func TestClientRegistryBookkeeping(t *testing.T) {
	r := NewClientRegistry()
	r.Add(&Client{ID: "1", Identity: "alice", Authenticated: true})
	r.Add(&Client{ID: "2", Identity: "bob"})

	assert.Equal(t, 2, r.Count())
	assert.Len(t, r.All(), 2)

	_, ok := r.Get("1")
	assert.True(t, ok)

	r.Touch("1")
	r.Touch("missing")

	infos := r.Snapshot()
	assert.Len(t, infos, 2)
	for _, info := range infos {
		if info.ID == "1" {
			assert.True(t, info.Authenticated)
			assert.False(t, info.Idle)
		}
	}

	r.Remove("missing")
	r.Remove("2")
	assert.Equal(t, 1, r.Count())
}
