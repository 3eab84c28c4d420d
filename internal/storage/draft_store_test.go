package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/emlanis/secret-ai-writer/internal/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var draftIDPattern = regexp.MustCompile(`^draft_\d+_[0-9a-z]{7}$`)

func newTestStore(t *testing.T, opts ...DraftStoreOption) *DraftStore {
	t.Helper()
	store, err := NewDraftStore(t.TempDir(), zerolog.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(store.locks.Close)
	return store
}

func TestAppendBuildsRecord(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)
	store := newTestStore(t, WithClock(func() time.Time { return fixed }))

	rec, err := store.Append("alice", "hello", map[string]interface{}{
		"timestamp":  int64(1),
		"word_count": 1,
		"model":      "m",
	})
	require.NoError(t, err)

	assert.Regexp(t, draftIDPattern, rec.ID)
	assert.Contains(t, rec.ID, fmt.Sprintf("draft_%d_", fixed.UnixMilli()))
	assert.Equal(t, "hello", rec.Content)
	assert.Equal(t, fixed.UnixMilli(), rec.Metadata["timestamp"])
	assert.Equal(t, "Draft 2025-03-14 09:26:53", rec.Metadata["title"])
	assert.Equal(t, 1, rec.Metadata["word_count"])
	assert.Equal(t, "m", rec.Metadata["model"])
	assert.Equal(t, utils.LocalTxHash(rec.ID, rec.Content), rec.TxHash)
	assert.Regexp(t, `^local_tx_[0-9a-f]{16}$`, rec.TxHash)
}

func TestAppendKeepsCallerTitle(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.Append("alice", "x", map[string]interface{}{"title": "Mine"})
	require.NoError(t, err)
	assert.Equal(t, "Mine", rec.Metadata["title"])

	rec, err = store.Append("alice", "y", map[string]interface{}{"title": ""})
	require.NoError(t, err)
	assert.Contains(t, rec.Metadata["title"], "Draft ")

	rec, err = store.Append("alice", "z", nil)
	require.NoError(t, err)
	assert.Contains(t, rec.Metadata["title"], "Draft ")

	rec, err = store.Append("alice", "n", map[string]interface{}{"title": nil})
	require.NoError(t, err)
	assert.Contains(t, rec.Metadata["title"], "Draft ")
}

func TestAppendKeepsNonStringTitle(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.Append("alice", "x", map[string]interface{}{"title": 42, "tags": []interface{}{"a"}})
	require.NoError(t, err)
	assert.Equal(t, 42, rec.Metadata["title"])

	list := store.List("alice")
	require.Len(t, list.Drafts, 1)
	assert.Equal(t, float64(42), list.Drafts[0].Metadata["title"])
	assert.Equal(t, []interface{}{"a"}, list.Drafts[0].Metadata["tags"])
}

func TestAliceNewestFirst(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Append("alice", "A", map[string]interface{}{"title": "t1"})
	require.NoError(t, err)
	_, err = store.Append("alice", "B", map[string]interface{}{"title": "t2"})
	require.NoError(t, err)

	list := store.List("alice")
	require.True(t, list.Found)
	require.Len(t, list.Drafts, 2)
	assert.Equal(t, "B", list.Drafts[0].Content)
	assert.Equal(t, "t2", list.Drafts[0].Title())
	assert.Equal(t, "A", list.Drafts[1].Content)
	assert.Equal(t, "t1", list.Drafts[1].Title())

	latest := store.Latest("alice")
	assert.True(t, latest.Found)
	assert.Equal(t, "B", latest.Content)
	assert.Equal(t, "t2", latest.Metadata["title"])
}

func TestPartitionIsPrettyPrintedArray(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Append("alice", "A", nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(store.PartitionPath("alice"))
	require.NoError(t, err)
	assert.Regexp(t, `^\[\n  \{\n    "id": "draft_`, string(raw))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
	assert.Contains(t, decoded[0], "tx_hash")
}

func TestListMissingPartition(t *testing.T) {
	store := newTestStore(t)

	list := store.List("nobody")
	assert.False(t, list.Found)
	assert.NotNil(t, list.Drafts)
	assert.Empty(t, list.Drafts)

	latest := store.Latest("nobody")
	assert.False(t, latest.Found)
	assert.Equal(t, "", latest.Content)
	assert.NotNil(t, latest.Metadata)
	assert.Empty(t, latest.Metadata)
}

func TestEmptyArrayPartitionIsNotFound(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.PartitionPath("carol"), []byte("[]"), 0644))

	list := store.List("carol")
	assert.False(t, list.Found)
	assert.Empty(t, list.Drafts)
}

func TestCorruptPartitionTreatedAsEmpty(t *testing.T) {
	for name, body := range map[string]string{
		"invalid json": "{not json",
		"object":       `{"id":"x"}`,
		"wrong types":  `[1, 2, 3]`,
	} {
		t.Run(name, func(t *testing.T) {
			store := newTestStore(t)
			path := store.PartitionPath("dave")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			list := store.List("dave")
			assert.False(t, list.Found)
			assert.Empty(t, list.Drafts)

			// the file is left alone until the next write
			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, body, string(raw))

			_, err = store.Append("dave", "fresh", nil)
			require.NoError(t, err)
			list = store.List("dave")
			require.True(t, list.Found)
			require.Len(t, list.Drafts, 1)
			assert.Equal(t, "fresh", list.Drafts[0].Content)
		})
	}
}

func TestRemoveIdempotent(t *testing.T) {
	store := newTestStore(t)
	a, err := store.Append("erin", "A", nil)
	require.NoError(t, err)
	b, err := store.Append("erin", "B", nil)
	require.NoError(t, err)

	res, err := store.Remove("erin", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RemoveResult{Success: true, Deleted: true}, res)

	after := store.List("erin")
	require.Len(t, after.Drafts, 1)
	assert.Equal(t, b.ID, after.Drafts[0].ID)

	res, err = store.Remove("erin", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RemoveResult{Success: true, Deleted: false}, res)
	assert.Equal(t, after, store.List("erin"))
}

func TestRemoveMissingPartitionCreatesNothing(t *testing.T) {
	store := newTestStore(t)

	res, err := store.Remove("bob", "draft_1_abcdefg")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, res.Deleted)
	assert.Equal(t, "No drafts found for this user", res.Error)

	_, statErr := os.Stat(store.PartitionPath("bob"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemoveOnCorruptPartitionRewrites(t *testing.T) {
	store := newTestStore(t)
	path := store.PartitionPath("frank")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	res, err := store.Remove("frank", "draft_1_abcdefg")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Deleted)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))
}

func TestAppendWriteFailureIsReturned(t *testing.T) {
	store := newTestStore(t)
	// a directory at the partition path makes the rename fail
	require.NoError(t, os.Mkdir(store.PartitionPath("gina"), 0755))

	_, err := store.Append("gina", "x", nil)
	require.Error(t, err)
}

func TestConcurrentAppendsSameKeyLoseNothing(t *testing.T) {
	store := newTestStore(t)
	const writers = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Append("hank", fmt.Sprintf("c%d", i), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list := store.List("hank")
	require.Len(t, list.Drafts, writers)
	seen := map[string]bool{}
	for _, d := range list.Drafts {
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
}

func TestAppendThenListProperty(t *testing.T) {
	store := newTestStore(t)
	contentGen := rapid.StringOf(rapid.RuneFrom(nil, unicode.Letter, unicode.Digit, unicode.Punct, unicode.Space))

	rapid.Check(t, func(rt *rapid.T) {
		key := rapid.StringMatching(`[A-Za-z0-9_-]{1,12}`).Draw(rt, "key")
		content := contentGen.Draw(rt, "content")

		before := store.List(key)
		rec, err := store.Append(key, content, map[string]interface{}{"title": "p"})
		if err != nil {
			rt.Fatalf("append: %v", err)
		}
		after := store.List(key)

		if len(after.Drafts) != len(before.Drafts)+1 {
			rt.Fatalf("expected %d drafts, got %d", len(before.Drafts)+1, len(after.Drafts))
		}
		if after.Drafts[0].ID != rec.ID {
			rt.Fatalf("new draft is not first")
		}
		if after.Drafts[0].Content != content {
			rt.Fatalf("content changed: %q != %q", after.Drafts[0].Content, content)
		}
		for i, d := range before.Drafts {
			if after.Drafts[i+1].ID != d.ID {
				rt.Fatalf("existing order changed at %d", i)
			}
		}
	})
}

func TestLockManagerCleanupKeepsBusyLocks(t *testing.T) {
	lm := NewLockManager()
	defer lm.Close()

	require.NoError(t, lm.ExecuteWithLock("idle", func() error { return nil }))

	release := make(chan struct{})
	started := make(chan struct{})
	go lm.ExecuteWithLock("busy", func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	lm.cleanupUnusedLocks(time.Now().Add(time.Hour))
	assert.Equal(t, 1, lm.Len())

	close(release)
}
