// Package folders derives the directory tree implied by a set of relative
// file paths and creates it remotely, parents before children.
package folders

import (
	"sort"
	"strings"
)

// PlannedDirectory is a directory to create. RemoteID is empty until the
// directory has been materialized.
type PlannedDirectory struct {
	RelativePath string
	ParentPath   string
	Name         string
	Depth        int
	RemoteID     string
}

// Plan returns every directory implied by filePaths, sorted by depth and then
// by path. Paths use "/" and are relative to the upload root; root-level files
// imply no directories.
func Plan(filePaths []string) []PlannedDirectory {
	seen := make(map[string]struct{})
	for _, p := range filePaths {
		for i := 0; i < len(p); i++ {
			if p[i] == '/' {
				seen[p[:i]] = struct{}{}
			}
		}
	}

	dirs := make([]PlannedDirectory, 0, len(seen))
	for rel := range seen {
		parent, name := "", rel
		if i := strings.LastIndexByte(rel, '/'); i >= 0 {
			parent, name = rel[:i], rel[i+1:]
		}
		dirs = append(dirs, PlannedDirectory{
			RelativePath: rel,
			ParentPath:   parent,
			Name:         name,
			Depth:        strings.Count(rel, "/") + 1,
		})
	}

	sort.Slice(dirs, func(i, j int) bool {
		if dirs[i].Depth != dirs[j].Depth {
			return dirs[i].Depth < dirs[j].Depth
		}
		return dirs[i].RelativePath < dirs[j].RelativePath
	})
	return dirs
}

// PlanDirectories plans each directory path together with its ancestors.
// Empty paths name the root and are ignored.
func PlanDirectories(dirPaths []string) []PlannedDirectory {
	files := make([]string, 0, len(dirPaths))
	for _, d := range dirPaths {
		d = strings.Trim(d, "/")
		if d == "" {
			continue
		}
		files = append(files, d+"/")
	}
	return Plan(files)
}

// groupByDepth splits a depth-sorted plan into consecutive same-depth runs.
func groupByDepth(planned []PlannedDirectory) [][]int {
	var groups [][]int
	for i := range planned {
		if i == 0 || planned[i].Depth != planned[i-1].Depth {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], i)
	}
	return groups
}
