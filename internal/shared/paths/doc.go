// Package paths resolves paths inside session workspaces.
//
// Every session owns one directory under the workspace base:
//
//	/workspace/
//	  ├── 8afdab13-0fce-4365-ace8-226127b13f9a/
//	  └── 1c7b0e52-54a5-4f7e-9f6b-6f0c3f2d9a11/
//
// User-supplied paths are always interpreted relative to that directory and
// rejected if they would escape it.
//
// # Usage
//
//	root := paths.Workspace(cfg.WorkspaceBase, sessionID)
//	full, err := paths.Resolve(root, "src/main.go")
//	if errors.Is(err, paths.ErrOutsideRoot) {
//	    // reject
//	}
package paths
