package tools

import (
	"sort"

	"github.com/cloudwego/eino/schema"
)

// Class selects how a tool call is executed.
type Class string

const (
	// ClassDocument tools act on the document open in the editor.
	ClassDocument Class = "document"
	// ClassWorkspace tools act on workspace files, either through persistence
	// or on the in-memory file tree.
	ClassWorkspace Class = "workspace"
)

type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
)

type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
}

// Spec describes one tool exposed to the model.
type Spec struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Class Class  `json:"class"`
	// Mutates marks workspace tools whose success should refresh file listings.
	Mutates bool    `json:"mutates"`
	Params  []Param `json:"params"`
}

func (s Spec) Description() string {
	if d := ToolDescription(s.Name); d != "" {
		return d
	}
	return s.Label
}

const (
	FSReadFile       = "fs_read_file"
	FSWriteFile      = "fs_write_file"
	FSCreateFile     = "fs_create_file"
	FSUpdateFile     = "fs_update_file"
	FSListDirectory  = "fs_list_directory"
	FSListWorkplace  = "fs_list_workplace"
	FSFindFile       = "fs_find_file"
	FSSearchContent  = "fs_search_content"
	FSDeleteFile     = "fs_delete_file"
	InsertText       = "insert_text"
	ReplaceSelection = "replace_selection"
	SuggestEdit      = "suggest_edit"
	AddComment       = "add_comment"
	GetSelection     = "get_selection"
	SearchDocument   = "search_document"
	OpenFileInEditor = "open_file_in_editor"
)

func str(name, desc string, required bool) Param {
	return Param{Name: name, Type: ParamString, Description: desc, Required: required}
}

var catalog = []Spec{
	{Name: FSReadFile, Label: "Read file", Class: ClassWorkspace, Params: []Param{
		str("path", "Path of the file relative to the workspace root", true),
	}},
	{Name: FSWriteFile, Label: "Write file", Class: ClassWorkspace, Mutates: true, Params: []Param{
		str("path", "Path of the file relative to the workspace root", true),
		str("content", "Full new content of the file", true),
	}},
	{Name: FSCreateFile, Label: "Create file", Class: ClassWorkspace, Mutates: true, Params: []Param{
		str("path", "Path of the new file relative to the workspace root", true),
		str("content", "Initial content", false),
	}},
	{Name: FSUpdateFile, Label: "Update file", Class: ClassWorkspace, Mutates: true, Params: []Param{
		str("path", "Path of the existing file relative to the workspace root", true),
		str("content", "Full new content of the file", true),
	}},
	{Name: FSListDirectory, Label: "List directory", Class: ClassWorkspace, Params: []Param{
		str("path", "Folder relative to the workspace root; empty for the root", false),
	}},
	{Name: FSListWorkplace, Label: "List workspace", Class: ClassWorkspace},
	{Name: FSFindFile, Label: "Find file", Class: ClassWorkspace, Params: []Param{
		str("query", "Partial file name or path", true),
	}},
	{Name: FSSearchContent, Label: "Search content", Class: ClassWorkspace, Params: []Param{
		str("query", "Literal text to search for", true),
	}},
	{Name: FSDeleteFile, Label: "Delete file", Class: ClassWorkspace, Mutates: true, Params: []Param{
		str("path", "Path relative to the workspace root", true),
	}},
	{Name: InsertText, Label: "Insert text", Class: ClassDocument, Params: []Param{
		str("text", "Text to insert at the cursor; markdown is allowed", true),
	}},
	{Name: ReplaceSelection, Label: "Replace selection", Class: ClassDocument, Params: []Param{
		str("text", "Replacement for the selected text; markdown is allowed", true),
	}},
	{Name: SuggestEdit, Label: "Suggest edit", Class: ClassDocument, Params: []Param{
		str("original", "Exact text currently in the document", true),
		str("suggested", "Replacement text; markdown is allowed", true),
		str("reason", "Short explanation shown to the user", false),
		{Name: "occurrence", Type: ParamInteger, Description: "Which match of original to change, 1-based", Required: false},
	}},
	{Name: AddComment, Label: "Add comment", Class: ClassDocument, Params: []Param{
		str("quote", "Exact text the comment refers to", true),
		str("comment", "The comment", true),
	}},
	{Name: GetSelection, Label: "Get selection", Class: ClassDocument},
	{Name: SearchDocument, Label: "Search document", Class: ClassDocument, Params: []Param{
		str("query", "Literal text to search for", true),
	}},
	{Name: OpenFileInEditor, Label: "Open file in editor", Class: ClassDocument, Params: []Param{
		str("path", "Path of the file relative to the workspace root", true),
	}},
}

var byName = func() map[string]Spec {
	m := make(map[string]Spec, len(catalog))
	for _, s := range catalog {
		m[s.Name] = s
	}
	return m
}()

// All returns the catalog in declaration order.
func All() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a tool by its exact name.
func Lookup(name string) (Spec, bool) {
	s, ok := byName[name]
	return s, ok
}

// Names returns the sorted tool names.
func Names() []string {
	out := make([]string, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s.Name)
	}
	sort.Strings(out)
	return out
}

var einoTypes = map[ParamType]schema.DataType{
	ParamString:  schema.String,
	ParamInteger: schema.Integer,
	ParamBoolean: schema.Boolean,
}

// ToolInfo converts a spec into the schema bound to chat models.
func (s Spec) ToolInfo() *schema.ToolInfo {
	params := make(map[string]*schema.ParameterInfo, len(s.Params))
	for _, p := range s.Params {
		params[p.Name] = &schema.ParameterInfo{
			Type:     einoTypes[p.Type],
			Desc:     p.Description,
			Required: p.Required,
		}
	}
	return &schema.ToolInfo{
		Name:        s.Name,
		Desc:        s.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

// ToolInfos returns the schema of every registered tool.
func ToolInfos() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s.ToolInfo())
	}
	return out
}
