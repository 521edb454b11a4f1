package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/runlens/runlens/internal/domain/run"
	"github.com/runlens/runlens/internal/port/runstore"
)

// Node is one run in a materialized hierarchy view. Trees are derived from
// flat parent pointers at read time; they are never the source of truth.
type Node struct {
	Run      run.Run `json:"run"`
	Children []*Node `json:"children"`
}

// Tree is the resolved hierarchy for one root run.
type Tree struct {
	RootRunID string `json:"root_run_id"`
	Hierarchy *Node  `json:"hierarchy"`
	TotalRuns int    `json:"total_runs"`
	MaxDepth  int    `json:"max_depth"`
	Truncated bool   `json:"truncated,omitempty"`
}

// HierarchyService reconstructs run trees by breadth-first expansion of
// parent pointers, one store round-trip per level.
type HierarchyService struct {
	store    runstore.Store
	maxDepth int
	maxNodes int
}

// NewHierarchyService creates a resolver with the given safety caps.
// Hitting a cap produces a truncated result, never unbounded work.
func NewHierarchyService(store runstore.Store, maxDepth, maxNodes int) *HierarchyService {
	if maxDepth <= 0 {
		maxDepth = 50
	}
	if maxNodes <= 0 {
		maxNodes = 5000
	}
	return &HierarchyService{store: store, maxDepth: maxDepth, maxNodes: maxNodes}
}

// Resolve builds the full descendant tree for rootID. An unknown root id
// returns domain.ErrNotFound (wrapped by the store), which callers surface
// distinctly from a root with no children.
//
// Depth counts nodes on the longest root-to-leaf chain, so a lone root has
// MaxDepth 1. Each id is expanded at most once; a parent pointer that would
// revisit a known node is skipped, which terminates even on cyclic input.
func (s *HierarchyService) Resolve(ctx context.Context, rootID string) (*Tree, error) {
	root, err := s.store.Get(ctx, rootID)
	if err != nil {
		return nil, err
	}

	rootNode := &Node{Run: *root}
	tree := &Tree{
		RootRunID: rootID,
		Hierarchy: rootNode,
		TotalRuns: 1,
		MaxDepth:  1,
	}

	nodes := map[string]*Node{rootID: rootNode}
	frontier := []string{rootID}

	for len(frontier) > 0 {
		if tree.MaxDepth >= s.maxDepth {
			// One probe to distinguish "done" from "cut off".
			more, err := s.store.ListChildren(ctx, frontier)
			if err != nil {
				return nil, fmt.Errorf("resolve hierarchy %s: %w", rootID, err)
			}
			tree.Truncated = len(more) > 0
			break
		}

		children, err := s.store.ListChildren(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("resolve hierarchy %s: %w", rootID, err)
		}
		if len(children) == 0 {
			break
		}

		// Global level sort keeps each parent's child list ordered by
		// start time ascending, ties by id.
		sort.Slice(children, func(i, j int) bool {
			return children[i].Before(&children[j])
		})

		var next []string
		for i := range children {
			child := children[i]
			if _, known := nodes[child.ID]; known {
				continue
			}
			if tree.TotalRuns >= s.maxNodes {
				tree.Truncated = true
				return tree, nil
			}

			node := &Node{Run: child}
			nodes[child.ID] = node
			parent := nodes[child.ParentRunID]
			parent.Children = append(parent.Children, node)

			tree.TotalRuns++
			next = append(next, child.ID)
		}

		if len(next) == 0 {
			break
		}
		tree.MaxDepth++
		frontier = next
	}

	return tree, nil
}
