package sweep

import "sort"

// TreeNode is one record in a display forest.
type TreeNode struct {
	Record   *FileRecord
	Children []*TreeNode
}

// BuildTree arranges records into a forest by ParentID. A record becomes a
// child only when its parent is present in records and is not the record
// itself; everything else is a root. Every record appears exactly once.
func BuildTree(records []*FileRecord) []*TreeNode {
	nodes := make(map[string]*TreeNode, len(records))
	order := make([]*TreeNode, 0, len(records))
	for _, r := range records {
		if _, dup := nodes[r.ExternalID]; dup {
			continue
		}
		n := &TreeNode{Record: r}
		nodes[r.ExternalID] = n
		order = append(order, n)
	}

	var roots []*TreeNode
	attached := make(map[*TreeNode]bool, len(order))
	for _, n := range order {
		pid := n.Record.ParentID
		parent, ok := nodes[pid]
		if pid == "" || pid == n.Record.ExternalID || !ok {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
		attached[n] = true
	}

	// Parent cycles (a -> b -> a) leave nodes unreachable from any root.
	// Detach each cycle at one member and promote it.
	reached := make(map[*TreeNode]bool, len(order))
	var mark func(n *TreeNode)
	mark = func(n *TreeNode) {
		if reached[n] {
			return
		}
		reached[n] = true
		for _, c := range n.Children {
			mark(c)
		}
	}
	for _, r := range roots {
		mark(r)
	}
	for _, n := range order {
		if reached[n] {
			continue
		}
		parent := nodes[n.Record.ParentID]
		parent.Children = removeChild(parent.Children, n)
		roots = append(roots, n)
		mark(n)
	}

	sortNodes(roots)
	return roots
}

func removeChild(children []*TreeNode, target *TreeNode) []*TreeNode {
	out := children[:0]
	for _, c := range children {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}

func sortNodes(nodes []*TreeNode) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i].Record, nodes[j].Record
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ExternalID < b.ExternalID
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// CountNodes returns the number of nodes in a forest.
func CountNodes(forest []*TreeNode) int {
	n := 0
	for _, node := range forest {
		n += 1 + CountNodes(node.Children)
	}
	return n
}
