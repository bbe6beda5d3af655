package dag_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sagacore/dag"
)

func linear5(t *testing.T) *dag.DAG[string] {
	t.Helper()
	b := dag.NewBuilder[string]()
	b.AddNode(0, "root").AddNode(1, "n1").AddNode(2, "n2").AddNode(3, "n3").AddNode(4, "leaf")
	b.AddEdge(0, 1).AddEdge(1, 2).AddEdge(2, 3).AddEdge(3, 4)
	d, err := b.Build()
	require.NoError(t, err)
	return d
}

func TestBuildLinear(t *testing.T) {
	d := linear5(t)
	require.Equal(t, 0, d.Root().ID)
	require.Equal(t, 4, d.Leaf().ID)
	require.Equal(t, 5, d.Len())

	kids := d.ChildrenOf(1)
	require.Len(t, kids, 1)
	require.Equal(t, 2, kids[0].ID)

	parents := d.ParentsOf(2)
	require.Len(t, parents, 1)
	require.Equal(t, 1, parents[0].ID)
}

func TestFanOutJoin(t *testing.T) {
	b := dag.NewBuilder[string]()
	b.AddNode(0, "root").AddNode(1, "n1").AddNode(2, "n2").AddNode(3, "n3").AddNode(4, "leaf")
	b.AddEdge(0, 1).AddEdge(1, 2).AddEdge(1, 3).AddEdge(2, 4).AddEdge(3, 4)
	d, err := b.Build()
	require.NoError(t, err)

	kids := d.ChildrenOf(1)
	require.Len(t, kids, 2)

	parents := d.ParentsOf(4)
	require.Len(t, parents, 2)
}

func TestMultipleRoots(t *testing.T) {
	b := dag.NewBuilder[string]()
	b.AddNode(0, "r1").AddNode(1, "r2").AddNode(2, "leaf")
	b.AddEdge(0, 2).AddEdge(1, 2)
	_, err := b.Build()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "multiple root"))
}

func TestMultipleLeaves(t *testing.T) {
	b := dag.NewBuilder[string]()
	b.AddNode(0, "root").AddNode(1, "l1").AddNode(2, "l2")
	b.AddEdge(0, 1).AddEdge(0, 2)
	_, err := b.Build()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "multiple leaf"))
}

func TestCycle(t *testing.T) {
	b := dag.NewBuilder[string]()
	b.AddNode(0, "a").AddNode(1, "b")
	b.AddEdge(0, 1).AddEdge(1, 0)
	_, err := b.Build()
	require.Error(t, err)
}

func TestUnreachableNode(t *testing.T) {
	b := dag.NewBuilder[string]()
	b.AddNode(0, "root").AddNode(1, "leaf").AddNode(2, "island")
	b.AddEdge(0, 1)
	_, err := b.Build()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "not reachable"))
}

func TestDeadEndNode(t *testing.T) {
	b := dag.NewBuilder[string]()
	b.AddNode(0, "root").AddNode(1, "mid").AddNode(2, "leaf")
	b.AddEdge(0, 1).AddEdge(0, 2)
	_, err := b.Build()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "dead end"))
}

func TestUnknownEdgeEndpoint(t *testing.T) {
	b := dag.NewBuilder[string]()
	b.AddNode(0, "root")
	b.AddEdge(0, 99)
	_, err := b.Build()
	require.Error(t, err)
}
