// Package session implements the agentic plugin's conversation-tree
// cache: a map keyed by a stable hash of the initial system prompt, whose
// nodes recursively contain a map of follow-up hashes to child nodes.
// Cache hits replay a prior response without calling the transport.
//
// Keyed with xxhash rather than stdlib hash/maphash so that keys are
// stable across processes; maphash's documented per-process seed
// randomization would not give that. The cache itself lives in memory
// only: this package does not save it to disk or load it back.
package session

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Node is one entry in the conversation tree.
type Node struct {
	Response      string
	SessionToken  string
	LastMessageID string
	FollowUps     map[uint64]*Node
}

// Cache is the conversation-tree cache, safe for concurrent reads; writes
// are serialized by the foreground's single-threaded nature but guarded
// here regardless since the cache may be shared across a benchmark run's
// prompts.
type Cache struct {
	mu    sync.Mutex
	roots map[uint64]*Node
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{roots: make(map[uint64]*Node)}
}

// Key hashes a prompt string into a stable cache key.
func Key(prompt string) uint64 {
	return xxhash.Sum64String(prompt)
}

// Root looks up the root node for a hashed initial system prompt. The
// returned ok is false when no node is stored; nothing is created.
func (c *Cache) Root(systemPromptHash uint64) (*Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.roots[systemPromptHash]
	return n, ok
}

// PutRoot stores (or replaces) the root node for a hashed system prompt.
func (c *Cache) PutRoot(systemPromptHash uint64, node *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roots[systemPromptHash] = node
}

// FollowUp looks up a child node by hashed follow-up prompt.
func (n *Node) FollowUp(promptHash uint64) (*Node, bool) {
	if n.FollowUps == nil {
		return nil, false
	}
	child, ok := n.FollowUps[promptHash]
	return child, ok
}

// PutFollowUp stores a child node under the given hashed follow-up prompt.
func (n *Node) PutFollowUp(promptHash uint64, child *Node) {
	if n.FollowUps == nil {
		n.FollowUps = make(map[uint64]*Node)
	}
	n.FollowUps[promptHash] = child
}
