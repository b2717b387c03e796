package models

const (
	FileTypeFile   = "file"
	FileTypeFolder = "folder"
)

// FileNode is one entry of a workspace file tree. Trees are treated as
// immutable values: mutations produce a new tree and leave the input intact.
type FileNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Type     string      `json:"type"`
	Children []*FileNode `json:"children,omitempty"`
	Content  *string     `json:"content,omitempty"`
}

// IsFolder reports whether n is a folder.
func (n *FileNode) IsFolder() bool {
	return n != nil && n.Type == FileTypeFolder
}
