package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plant builds:
//
//	Engineering
//	  Backend
//	    Platform
//	  Frontend
//	Sales
func plant(t *testing.T) (*Forest, map[string]Node) {
	t.Helper()
	ctx := context.Background()
	f := buildForest(t)
	byName := map[string]Node{}
	add := func(name, parent string) {
		parentID := ""
		if parent != "" {
			parentID = byName[parent].ID
		}
		n, err := f.Create(ctx, name, parentID)
		require.NoError(t, err)
		byName[name] = n
	}
	add("Engineering", "")
	add("Backend", "Engineering")
	add("Platform", "Backend")
	add("Frontend", "Engineering")
	add("Sales", "")
	return f, byName
}

func names(seq func(func(Node) bool)) []string {
	var out []string
	for n := range seq {
		out = append(out, n.Name)
	}
	return out
}

func TestSubtreePreOrder(t *testing.T) {
	f, byName := plant(t)

	seq, err := f.Subtree(byName["Engineering"].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Engineering", "Backend", "Platform", "Frontend"}, names(seq))

	// Restartable: a second full pass over the same sequence.
	assert.Equal(t, []string{"Engineering", "Backend", "Platform", "Frontend"}, names(seq))

	// Early termination.
	var got []string
	for n := range seq {
		got = append(got, n.Name)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"Engineering", "Backend"}, got)

	_, err = f.Subtree("missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestContains(t *testing.T) {
	f, byName := plant(t)

	assert.True(t, f.Contains(byName["Engineering"].ID, byName["Platform"].ID))
	assert.True(t, f.Contains(byName["Backend"].ID, byName["Backend"].ID))
	assert.False(t, f.Contains(byName["Frontend"].ID, byName["Platform"].ID))
	assert.False(t, f.Contains(byName["Platform"].ID, byName["Engineering"].ID))
	assert.False(t, f.Contains("missing", byName["Platform"].ID))
}

func TestAncestors(t *testing.T) {
	f, byName := plant(t)

	chain, err := f.Ancestors(byName["Platform"].ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "Backend", chain[0].Name)
	assert.Equal(t, "Engineering", chain[1].Name)

	chain, err = f.Ancestors(byName["Sales"].ID)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestSearch(t *testing.T) {
	f, byName := plant(t)

	matches := f.Search("end")
	require.Len(t, matches, 2)
	assert.Equal(t, "Backend", matches[0].Node.Name)
	assert.Equal(t, "Frontend", matches[1].Node.Name)
	// Ancestor chains render root first.
	require.Len(t, matches[0].Ancestors, 1)
	assert.Equal(t, "Engineering", matches[0].Ancestors[0].Name)

	matches = f.Search("PLATFORM")
	require.Len(t, matches, 1)
	assert.Equal(t, byName["Platform"].ID, matches[0].Node.ID)
	require.Len(t, matches[0].Ancestors, 2)
	assert.Equal(t, "Engineering", matches[0].Ancestors[0].Name)
	assert.Equal(t, "Backend", matches[0].Ancestors[1].Name)

	assert.Empty(t, f.Search("   "))
	assert.Empty(t, f.Search("zzz"))
}
