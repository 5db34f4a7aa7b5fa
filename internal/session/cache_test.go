package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKey_StableAndDistinct(t *testing.T) {
	require.Equal(t, Key("hello"), Key("hello"))
	require.NotEqual(t, Key("hello"), Key("world"))
}

func TestCache_RootRoundTrip(t *testing.T) {
	c := New()
	hash := Key("system prompt")

	_, ok := c.Root(hash)
	require.False(t, ok)

	node := &Node{Response: "hi", SessionToken: "tok-1"}
	c.PutRoot(hash, node)

	got, ok := c.Root(hash)
	require.True(t, ok)
	require.Same(t, node, got)
}

func TestNode_FollowUpRoundTrip(t *testing.T) {
	root := &Node{Response: "root"}

	hash := Key("follow up")
	_, ok := root.FollowUp(hash)
	require.False(t, ok)

	child := &Node{Response: "child"}
	root.PutFollowUp(hash, child)

	got, ok := root.FollowUp(hash)
	require.True(t, ok)
	require.Same(t, child, got)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			hash := Key(string(rune('a' + i)))
			c.PutRoot(hash, &Node{Response: "x"})
			c.Root(hash)
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
