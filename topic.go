package mqttd

import (
	"strings"
	"unicode/utf8"
)

const (
	topicSeparator      = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// ValidateTopicName validates a publish topic name: non-empty, well-formed
// UTF-8, no NUL, no wildcards.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrInvalidTopicName
	}

	if !utf8.ValidString(topic) {
		return ErrInvalidTopicName
	}

	for _, r := range topic {
		if r == 0 || r == '+' || r == '#' {
			return ErrInvalidTopicName
		}
	}

	return nil
}

// ValidateTopicFilter validates a subscription filter: + must occupy a
// whole segment, # must occupy the whole final segment.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopicFilter
	}

	if !utf8.ValidString(filter) {
		return ErrInvalidTopicFilter
	}

	for _, r := range filter {
		if r == 0 {
			return ErrInvalidTopicFilter
		}
	}

	segments := strings.Split(filter, topicSeparator)

	for i, segment := range segments {
		if strings.Contains(segment, singleLevelWildcard) && segment != singleLevelWildcard {
			return ErrInvalidTopicFilter
		}

		if strings.Contains(segment, multiLevelWildcard) {
			if segment != multiLevelWildcard || i != len(segments)-1 {
				return ErrInvalidTopicFilter
			}
		}
	}

	return nil
}

// topicTrie is a segment trie from topic filters to subscriber records.
// The + and # wildcards occupy distinct child slots per node; # is only
// valid as the final segment. It is not safe for concurrent use; the
// SubscriptionManager serializes access.
type topicTrie struct {
	root *trieNode
}

type trieNode struct {
	children map[string]*trieNode
	plus     *trieNode
	hash     *trieNode

	// subscribers maps client identity to the granted options under this
	// exact filter node.
	subscribers map[string]trieLeaf
}

type trieLeaf struct {
	qos     byte
	subID   uint32
	noLocal bool
}

func newTopicTrie() *topicTrie {
	return &topicTrie{root: &trieNode{}}
}

func newTrieNode() *trieNode {
	return &trieNode{}
}

// insert adds or updates the subscriber record under the filter. Updating
// an existing (filter, identity) pair replaces the options in place.
func (t *topicTrie) insert(filter, identity string, leaf trieLeaf) {
	node := t.root

	for segment := range strings.SplitSeq(filter, topicSeparator) {
		node = node.child(segment, true)
	}

	if node.subscribers == nil {
		node.subscribers = make(map[string]trieLeaf)
	}
	node.subscribers[identity] = leaf
}

// remove deletes the subscriber record under the filter, pruning emptied
// nodes. Returns true if a record was removed.
func (t *topicTrie) remove(filter, identity string) bool {
	segments := strings.Split(filter, topicSeparator)
	return t.removeAt(t.root, segments, identity)
}

func (t *topicTrie) removeAt(node *trieNode, segments []string, identity string) bool {
	if len(segments) == 0 {
		if _, ok := node.subscribers[identity]; !ok {
			return false
		}
		delete(node.subscribers, identity)
		return true
	}

	child := node.child(segments[0], false)
	if child == nil {
		return false
	}

	removed := t.removeAt(child, segments[1:], identity)
	if removed && child.empty() {
		node.dropChild(segments[0])
	}
	return removed
}

// match collects every subscriber record whose filter matches the topic
// name. The same identity may appear once per matching filter; the caller
// aggregates. Root-level + and # never match a $-prefixed first segment.
func (t *topicTrie) match(topic string, visit func(identity string, leaf trieLeaf)) {
	segments := strings.Split(topic, topicSeparator)
	system := strings.HasPrefix(topic, "$")
	t.matchAt(t.root, segments, 0, system, visit)
}

func (t *topicTrie) matchAt(node *trieNode, segments []string, idx int, system bool, visit func(string, trieLeaf)) {
	// # matches zero or more trailing segments, so it fires at every node
	// on the walk, except at the root for $-topics.
	if node.hash != nil && (!system || idx > 0) {
		node.hash.visitAll(visit)
	}

	if idx >= len(segments) {
		node.visitAll(visit)
		return
	}

	if child := node.children[segments[idx]]; child != nil {
		t.matchAt(child, segments, idx+1, system, visit)
	}

	if node.plus != nil && (!system || idx > 0) {
		t.matchAt(node.plus, segments, idx+1, system, visit)
	}
}

func (n *trieNode) visitAll(visit func(string, trieLeaf)) {
	for identity, leaf := range n.subscribers {
		visit(identity, leaf)
	}
}

func (n *trieNode) child(segment string, create bool) *trieNode {
	switch segment {
	case singleLevelWildcard:
		if n.plus == nil && create {
			n.plus = newTrieNode()
		}
		return n.plus
	case multiLevelWildcard:
		if n.hash == nil && create {
			n.hash = newTrieNode()
		}
		return n.hash
	default:
		if n.children == nil {
			if !create {
				return nil
			}
			n.children = make(map[string]*trieNode)
		}
		child := n.children[segment]
		if child == nil && create {
			child = newTrieNode()
			n.children[segment] = child
		}
		return child
	}
}

func (n *trieNode) dropChild(segment string) {
	switch segment {
	case singleLevelWildcard:
		n.plus = nil
	case multiLevelWildcard:
		n.hash = nil
	default:
		delete(n.children, segment)
	}
}

func (n *trieNode) empty() bool {
	return len(n.subscribers) == 0 && len(n.children) == 0 && n.plus == nil && n.hash == nil
}
