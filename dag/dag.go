// Package dag 提供单根单叶有向无环图的构建与只读遍历。
//
// 图在构建期一次性校验不变量（单根、单叶、无环、全可达），构建完成后的
// DAG 是不可变的：节点集合、边集合在 Build 之后不再变化，调度器据此安全地
//并发读取 ChildrenOf/ParentsOf 而无需加锁。
package dag

import "fmt"

// Node 是图中的一个顶点，携带调用方提供的负载 T。
type Node[T any] struct {
	ID    int
	Value T
}

// DAG 是构建完成的只读有向无环图。
type DAG[T any] struct {
	nodes    map[int]*Node[T]
	order    []int // 插入顺序，便于确定性遍历（测试友好）
	children map[int][]int
	parents  map[int][]int
	rootID   int
	leafID   int
}

// InvalidDAGError 描述构建期发现的具体不变量违反，命名是哪一个不变量失败
// 而不是一个笼统的错误，方便上层（saga 包）将其映射为
// DAGInvariantFailure 并在日志/错误里指出具体原因。
type InvalidDAGError struct {
	Reason string
}

func (e *InvalidDAGError) Error() string {
	return fmt.Sprintf("dag: invalid graph: %s", e.Reason)
}

// Builder 累积节点与边，Build 时一次性做不变量校验。
type Builder[T any] struct {
	nodes    map[int]*Node[T]
	order    []int
	children map[int][]int
	parents  map[int][]int
}

// NewBuilder 创建一个空的图构建器。
func NewBuilder[T any]() *Builder[T] {
	return &Builder[T]{
		nodes:    make(map[int]*Node[T]),
		children: make(map[int][]int),
		parents:  make(map[int][]int),
	}
}

// AddNode 注册一个节点。id 在同一图内必须唯一。
func (b *Builder[T]) AddNode(id int, value T) *Builder[T] {
	if _, exists := b.nodes[id]; !exists {
		b.order = append(b.order, id)
	}
	b.nodes[id] = &Node[T]{ID: id, Value: value}
	return b
}

// AddEdge 声明一条 parent -> child 的边。两端节点须已通过 AddNode 注册，
// 否则在 Build 时报告为不可达/未知节点错误。
func (b *Builder[T]) AddEdge(parent, child int) *Builder[T] {
	b.children[parent] = append(b.children[parent], child)
	b.parents[child] = append(b.parents[child], parent)
	return b
}

// Build 校验累积的节点与边，产出不可变的 DAG，或在不变量被违反时返回
// *InvalidDAGError。
func (b *Builder[T]) Build() (*DAG[T], error) {
	for parent, kids := range b.children {
		if _, ok := b.nodes[parent]; !ok {
			return nil, &InvalidDAGError{Reason: fmt.Sprintf("edge references unknown parent node %d", parent)}
		}
		for _, c := range kids {
			if _, ok := b.nodes[c]; !ok {
				return nil, &InvalidDAGError{Reason: fmt.Sprintf("edge references unknown child node %d", c)}
			}
		}
	}

	var roots, leaves []int
	for _, id := range b.order {
		if len(b.parents[id]) == 0 {
			roots = append(roots, id)
		}
		if len(b.children[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	if len(roots) == 0 {
		return nil, &InvalidDAGError{Reason: "no root node found (every node has an incoming edge, implying a cycle)"}
	}
	if len(roots) > 1 {
		return nil, &InvalidDAGError{Reason: fmt.Sprintf("multiple root nodes: %v", roots)}
	}
	if len(leaves) == 0 {
		return nil, &InvalidDAGError{Reason: "no leaf node found (every node has an outgoing edge, implying a cycle)"}
	}
	if len(leaves) > 1 {
		return nil, &InvalidDAGError{Reason: fmt.Sprintf("multiple leaf nodes: %v", leaves)}
	}
	rootID, leafID := roots[0], leaves[0]

	if cyc := findCycle(b.order, b.children); cyc != nil {
		return nil, &InvalidDAGError{Reason: fmt.Sprintf("cycle detected through node %d", *cyc)}
	}

	reachable := reachableFrom(rootID, b.children)
	for _, id := range b.order {
		if !reachable[id] {
			return nil, &InvalidDAGError{Reason: fmt.Sprintf("node %d is not reachable from root %d", id, rootID)}
		}
	}
	coReachable := reachableFrom(leafID, b.parents)
	for _, id := range b.order {
		if !coReachable[id] {
			return nil, &InvalidDAGError{Reason: fmt.Sprintf("node %d cannot reach leaf %d (dead end)", id, leafID)}
		}
	}

	d := &DAG[T]{
		nodes:    make(map[int]*Node[T], len(b.nodes)),
		order:    append([]int(nil), b.order...),
		children: make(map[int][]int, len(b.children)),
		parents:  make(map[int][]int, len(b.parents)),
		rootID:   rootID,
		leafID:   leafID,
	}
	for id, n := range b.nodes {
		d.nodes[id] = n
	}
	for id, kids := range b.children {
		d.children[id] = append([]int(nil), kids...)
	}
	for id, ps := range b.parents {
		d.parents[id] = append([]int(nil), ps...)
	}
	return d, nil
}

func findCycle(order []int, children map[int][]int) *int {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int]int, len(order))
	var cycleAt *int

	var visit func(n int) bool
	visit = func(n int) bool {
		color[n] = gray
		for _, c := range children[n] {
			switch color[c] {
			case gray:
				found := c
				cycleAt = &found
				return true
			case white:
				if visit(c) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for _, id := range order {
		if color[id] == white {
			if visit(id) {
				return cycleAt
			}
		}
	}
	return nil
}

func reachableFrom(start int, adj map[int][]int) map[int]bool {
	seen := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range adj[n] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// Root 返回唯一的根节点。
func (d *DAG[T]) Root() *Node[T] { return d.nodes[d.rootID] }

// Leaf 返回唯一的叶节点。
func (d *DAG[T]) Leaf() *Node[T] { return d.nodes[d.leafID] }

// NodeByID 按 id 查找节点。
func (d *DAG[T]) NodeByID(id int) (*Node[T], bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// ChildrenOf 返回给定节点 id 的直接后继，顺序为构建时声明顺序。
func (d *DAG[T]) ChildrenOf(id int) []*Node[T] {
	ids := d.children[id]
	out := make([]*Node[T], 0, len(ids))
	for _, c := range ids {
		out = append(out, d.nodes[c])
	}
	return out
}

// ParentsOf 返回给定节点 id 的直接前驱（预计算，见包注释）。
func (d *DAG[T]) ParentsOf(id int) []*Node[T] {
	ids := d.parents[id]
	out := make([]*Node[T], 0, len(ids))
	for _, p := range ids {
		out = append(out, d.nodes[p])
	}
	return out
}

// Nodes 返回图中全部节点，顺序为构建时声明顺序。
func (d *DAG[T]) Nodes() []*Node[T] {
	out := make([]*Node[T], 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.nodes[id])
	}
	return out
}

// Len 返回图中节点数。
func (d *DAG[T]) Len() int { return len(d.order) }
