package agent

import (
	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
)

// Observer is notified as a turn progresses. Callbacks run on the loop's
// goroutine and must not block.
type Observer interface {
	StateChanged(State)
	MessageAppended(models.ChatMessage)
	ToolStatus(models.ToolCall)
	TreeChanged(tools.Tree)
	// FilesRefresh signals that a persisted workspace changed and listings
	// should be reloaded.
	FilesRefresh()
}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	OnState   func(State)
	OnMessage func(models.ChatMessage)
	OnTool    func(models.ToolCall)
	OnTree    func(tools.Tree)
	OnRefresh func()
}

func (o ObserverFuncs) StateChanged(s State) {
	if o.OnState != nil {
		o.OnState(s)
	}
}

func (o ObserverFuncs) MessageAppended(m models.ChatMessage) {
	if o.OnMessage != nil {
		o.OnMessage(m)
	}
}

func (o ObserverFuncs) ToolStatus(c models.ToolCall) {
	if o.OnTool != nil {
		o.OnTool(c)
	}
}

func (o ObserverFuncs) TreeChanged(t tools.Tree) {
	if o.OnTree != nil {
		o.OnTree(t)
	}
}

func (o ObserverFuncs) FilesRefresh() {
	if o.OnRefresh != nil {
		o.OnRefresh()
	}
}
