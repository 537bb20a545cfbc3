package mqttd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTopicName(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		wantErr bool
	}{
		{name: "simple", topic: "sensors"},
		{name: "nested", topic: "sensors/room1/temp"},
		{name: "leading slash", topic: "/sensors"},
		{name: "trailing slash", topic: "sensors/"},
		{name: "empty segment", topic: "a//b"},
		{name: "system topic", topic: "$SYS/uptime"},
		{name: "utf8", topic: "датчики/кухня"},
		{name: "empty", topic: "", wantErr: true},
		{name: "plus wildcard", topic: "a/+/b", wantErr: true},
		{name: "hash wildcard", topic: "a/#", wantErr: true},
		{name: "embedded plus", topic: "a+b", wantErr: true},
		{name: "null character", topic: "a\x00b", wantErr: true},
		{name: "invalid utf8", topic: "a\xff", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopicName(tt.topic)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTopicName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTopicFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		wantErr bool
	}{
		{name: "exact", filter: "sport/tennis/player1"},
		{name: "single level", filter: "sport/+/player1"},
		{name: "multi level", filter: "sport/#"},
		{name: "bare plus", filter: "+"},
		{name: "bare hash", filter: "#"},
		{name: "plus chain", filter: "+/+/+"},
		{name: "plus then hash", filter: "+/tennis/#"},
		{name: "system subtree", filter: "$SYS/#"},
		{name: "empty", filter: "", wantErr: true},
		{name: "plus inside segment", filter: "sport+", wantErr: true},
		{name: "hash not last", filter: "sport/#/ranking", wantErr: true},
		{name: "hash inside segment", filter: "sport/tennis#", wantErr: true},
		{name: "null character", filter: "a\x00b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopicFilter(tt.filter)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTopicFilter)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func trieMatches(trie *topicTrie, topic string) map[string]int {
	hits := make(map[string]int)
	trie.match(topic, func(identity string, _ trieLeaf) {
		hits[identity]++
	})
	return hits
}

func TestTopicTrieMatch(t *testing.T) {
	trie := newTopicTrie()
	trie.insert("sport/tennis/player1", "exact", trieLeaf{})
	trie.insert("sport/+/player1", "plus", trieLeaf{})
	trie.insert("sport/#", "hash", trieLeaf{})
	trie.insert("#", "all", trieLeaf{})

	t.Run("all filters fire", func(t *testing.T) {
		hits := trieMatches(trie, "sport/tennis/player1")
		assert.Equal(t, map[string]int{"exact": 1, "plus": 1, "hash": 1, "all": 1}, hits)
	})

	t.Run("plus requires the segment", func(t *testing.T) {
		hits := trieMatches(trie, "sport/tennis")
		assert.NotContains(t, hits, "exact")
		assert.NotContains(t, hits, "plus")
		assert.Contains(t, hits, "hash")
	})

	t.Run("hash matches the parent level", func(t *testing.T) {
		hits := trieMatches(trie, "sport")
		assert.Contains(t, hits, "hash")
		assert.Contains(t, hits, "all")
	})

	t.Run("unrelated topic", func(t *testing.T) {
		hits := trieMatches(trie, "finance/gold")
		assert.Equal(t, map[string]int{"all": 1}, hits)
	})
}

func TestTopicTrieSystemTopics(t *testing.T) {
	trie := newTopicTrie()
	trie.insert("#", "all", trieLeaf{})
	trie.insert("+/monitor", "monitor", trieLeaf{})
	trie.insert("$SYS/#", "sys", trieLeaf{})
	trie.insert("$SYS/uptime", "uptime", trieLeaf{})

	t.Run("root wildcards skip dollar topics", func(t *testing.T) {
		hits := trieMatches(trie, "$SYS/uptime")
		assert.NotContains(t, hits, "all")
		assert.Contains(t, hits, "sys")
		assert.Contains(t, hits, "uptime")
	})

	t.Run("root plus skips dollar first segment", func(t *testing.T) {
		hits := trieMatches(trie, "$SYS/monitor")
		assert.NotContains(t, hits, "monitor")
		assert.Contains(t, hits, "sys")
	})

	t.Run("ordinary topics unaffected", func(t *testing.T) {
		hits := trieMatches(trie, "host1/monitor")
		assert.Contains(t, hits, "monitor")
		assert.Contains(t, hits, "all")
	})
}

func TestTopicTrieRemove(t *testing.T) {
	trie := newTopicTrie()
	trie.insert("a/b/c", "one", trieLeaf{})
	trie.insert("a/b/c", "two", trieLeaf{})
	trie.insert("a/+", "one", trieLeaf{})

	assert.True(t, trie.remove("a/b/c", "one"))
	assert.False(t, trie.remove("a/b/c", "one"))
	assert.False(t, trie.remove("a/b/c", "never-subscribed"))
	assert.False(t, trie.remove("x/y", "one"))

	hits := trieMatches(trie, "a/b/c")
	assert.Equal(t, map[string]int{"two": 1}, hits)

	// Pruning the last subscriber under a branch removes the branch.
	assert.True(t, trie.remove("a/b/c", "two"))
	assert.True(t, trie.remove("a/+", "one"))
	assert.True(t, trie.root.empty())
}

func TestTopicTrieInsertReplaces(t *testing.T) {
	trie := newTopicTrie()
	trie.insert("a/b", "one", trieLeaf{qos: 0})
	trie.insert("a/b", "one", trieLeaf{qos: 2})

	var got trieLeaf
	count := 0
	trie.match("a/b", func(_ string, leaf trieLeaf) {
		got = leaf
		count++
	})
	assert.Equal(t, 1, count)
	assert.Equal(t, byte(2), got.qos)
}
